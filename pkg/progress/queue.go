package progress

import (
	"sync"
)

// Queue hands reports over to another goroutine through a channel
// without ever blocking the reporting side: events are buffered without
// limit and delivered in the order they were reported. The channel is
// closed after the terminal event.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool

	out chan Event
}

var _ Reporter = &Queue{}

func NewQueue() *Queue {
	q := &Queue{
		out: make(chan Event),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.forward()
	return q
}

// Events returns the channel the events are delivered on.
func (q *Queue) Events() <-chan Event {
	return q.out
}

func (q *Queue) Progress(percent int, message string) {
	q.push(Event{Percent: percent, Message: message}, false)
}

func (q *Queue) Done(success bool, message string) {
	q.push(Event{Terminal: true, Success: success, Message: message}, true)
}

func (q *Queue) push(ev Event, last bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// nothing is reported after the terminal event
	if q.closed {
		return
	}
	q.pending = append(q.pending, ev)
	q.closed = last
	q.cond.Signal()
}

func (q *Queue) forward() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.out <- ev
	}
}
