package command

import (
	"sync"

	"github.com/privalinux/installer/pkg/shutil"
)

// Call is a single recorded command invocation.
type Call struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args" yaml:"args"`
}

func (c Call) String() string {
	return shutil.Join(append([]string{c.Name}, c.Args...)...)
}

// Recorder is a Runner that does not execute anything. It records every
// call and can be told to fail some of them, which makes it usable both
// as a dry-run backend and as a test double.
type Recorder struct {
	// FailAt makes the n-th call (1-based) fail with exit status 1.
	FailAt int
	// Fail, when set, makes every call for which it returns true fail.
	Fail func(c Call) bool
	// Output maps a command name to the stdout returned for it.
	Output map[string][]byte

	mu    sync.Mutex
	calls []Call
}

var _ Runner = &Recorder{}

func (r *Recorder) Run(name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := Call{Name: name, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, c)

	if (r.FailAt > 0 && len(r.calls) == r.FailAt) || (r.Fail != nil && r.Fail(c)) {
		return nil, &Failure{
			Command:  name,
			Args:     c.Args,
			ExitCode: 1,
		}
	}
	return r.Output[name], nil
}

// Calls returns a copy of all calls recorded so far, in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// CommandLines returns the recorded calls rendered as shell command lines.
func (r *Recorder) CommandLines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}
