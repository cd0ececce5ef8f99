package install

import (
	"context"

	"github.com/privalinux/installer/pkg/progress"
)

// Task is an installation running in the background.
type Task struct {
	r      *run
	done   chan struct{}
	result *Result
}

// Start validates target and starts the installation on its own
// goroutine. Like Run it returns an error only when the run could not be
// started; in that case nothing has been executed.
//
// reporter is called from the installation goroutine.
func (i *Installer) Start(ctx context.Context, target Target, reporter progress.Reporter) (*Task, error) {
	r, err := i.prepare(ctx, target, reporter)
	if err != nil {
		return nil, err
	}

	t := &Task{
		r:    r,
		done: make(chan struct{}),
	}
	go func() {
		res := r.execute()
		i.busy.Unlock()
		t.result = res
		close(t.done)
	}()
	return t, nil
}

// RunID identifies the run in logs and in its Result.
func (t *Task) RunID() string {
	return t.r.id.String()
}

// Done is closed when the installation has ended.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the installation has ended and returns its result.
func (t *Task) Wait() *Result {
	<-t.done
	return t.result
}

// Result returns the result without blocking. The second return value
// is false while the installation is still running.
func (t *Task) Result() (*Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return nil, false
	}
}

// State returns the state the installation is in right now.
func (t *Task) State() State {
	state, _ := t.r.current()
	return state
}
