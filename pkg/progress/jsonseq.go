package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const recordSeparator = '\x1e'

// JSONSeq writes every report as a record of a JSON text sequence
// (RFC 7464) so that a frontend in another process can follow the run.
type JSONSeq struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Reporter = &JSONSeq{}

func NewJSONSeq(w io.Writer) *JSONSeq {
	return &JSONSeq{w: w}
}

func (j *JSONSeq) write(ev Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, recordSeparator)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	// a reader that went away must not fail the installation
	_, _ = j.w.Write(buf)
}

func (j *JSONSeq) Progress(percent int, message string) {
	j.write(Event{Percent: percent, Message: message})
}

func (j *JSONSeq) Done(success bool, message string) {
	j.write(Event{Terminal: true, Success: success, Message: message})
}

// EventScanner reads the events written by a JSONSeq reporter.
type EventScanner struct {
	scanner *bufio.Scanner
}

// maxEventSize bounds a single record. Failure messages carry the
// stderr of the failed command and can be far longer than a line.
const maxEventSize = 16 * 1024 * 1024

func NewEventScanner(r io.Reader) *EventScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &EventScanner{
		scanner: scanner,
	}
}

// Event returns the next event, or nil once the stream is exhausted.
func (s *EventScanner) Event() (*Event, error) {
	for s.scanner.Scan() {
		line := bytes.TrimLeft(s.scanner.Bytes(), string(recordSeparator))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("cannot scan line %q: %w", line, err)
		}
		return &ev, nil
	}
	return nil, s.scanner.Err()
}
