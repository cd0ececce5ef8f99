// Package progress delivers the progress of an installation run to
// whoever presents it.
//
// A run reports any number of Progress calls with non-decreasing
// percentages followed by exactly one Done call. Reporters are called
// from the installation worker and must not block it for long.
package progress

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type Reporter interface {
	// Progress reports the percentage (0-100) reached and what is
	// being done now.
	Progress(percent int, message string)
	// Done reports the terminal result of the run.
	Done(success bool, message string)
}

// Event is a single progress report. Terminal is set for the final
// event of a run, only then Success is meaningful.
type Event struct {
	Percent  int    `json:"percent" yaml:"percent"`
	Message  string `json:"message" yaml:"message"`
	Terminal bool   `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	Success  bool   `json:"success,omitempty" yaml:"success,omitempty"`
}

func (e Event) String() string {
	if !e.Terminal {
		return fmt.Sprintf("[%3d%%] %s", e.Percent, e.Message)
	}
	if e.Success {
		return fmt.Sprintf("[done] %s", e.Message)
	}
	return fmt.Sprintf("[fail] %s", e.Message)
}

// Replay sends ev to r.
func Replay(r Reporter, ev Event) {
	if ev.Terminal {
		r.Done(ev.Success, ev.Message)
		return
	}
	r.Progress(ev.Percent, ev.Message)
}

// Func adapts a plain function to a Reporter.
type Func func(ev Event)

func (f Func) Progress(percent int, message string) {
	f(Event{Percent: percent, Message: message})
}

func (f Func) Done(success bool, message string) {
	f(Event{Terminal: true, Success: success, Message: message})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Progress(int, string) {}
func (Nop) Done(bool, string)    {}

// Multi sends every report to all of its reporters, in order.
type Multi []Reporter

func (m Multi) Progress(percent int, message string) {
	for _, r := range m {
		r.Progress(percent, message)
	}
}

func (m Multi) Done(success bool, message string) {
	for _, r := range m {
		r.Done(success, message)
	}
}

// Log writes reports to the logrus standard logger.
type Log struct {
	Fields logrus.Fields
}

func (l Log) entry() *logrus.Entry {
	return logrus.WithFields(l.Fields)
}

func (l Log) Progress(percent int, message string) {
	l.entry().WithField("percent", percent).Info(message)
}

func (l Log) Done(success bool, message string) {
	if success {
		l.entry().Info(message)
		return
	}
	l.entry().Error(message)
}
