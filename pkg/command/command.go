// Package command runs external system tools. Every call spawns exactly
// one process and blocks until it exits; nothing is retried and a non-zero
// exit status is always reported as a *Failure.
package command

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/privalinux/installer/pkg/shutil"
)

// Runner executes a single external command and returns its standard
// output when it exits with status 0.
//
// There is deliberately no context here: once a disk tool is started it
// has to run to completion, cancellation is only checked between calls.
type Runner interface {
	Run(name string, args ...string) ([]byte, error)
}

// Failure is returned when an external command could not be started or
// exited with a non-zero status.
type Failure struct {
	// Step is the identity of the install step that ran the command, it
	// is filled in by the caller that knows about steps.
	Step     string
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	// Err is the underlying error from os/exec, if any.
	Err error
}

// CommandLine renders the failed command as a shell-quoted string.
func (f *Failure) CommandLine() string {
	return shutil.Join(append([]string{f.Command}, f.Args...)...)
}

func (f *Failure) Error() string {
	var sb strings.Builder
	if f.Step != "" {
		fmt.Fprintf(&sb, "%s: ", f.Step)
	}
	if f.ExitCode < 0 {
		fmt.Fprintf(&sb, "command %q could not be run: %v", f.CommandLine(), f.Err)
	} else {
		fmt.Fprintf(&sb, "command %q failed with exit status %d", f.CommandLine(), f.ExitCode)
	}
	if stderr := strings.TrimSpace(f.Stderr); stderr != "" {
		fmt.Fprintf(&sb, "\nstderr:\n%s", stderr)
	}
	return sb.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	logrus.WithFields(logrus.Fields{
		"command": name,
		"args":    strings.Join(args, " "),
	}).Debug("running external command")

	var stdout, stderr bytes.Buffer
	/* #nosec G204 */
	cmd := exec.Command(name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		failure := &Failure{
			Command:  name,
			Args:     args,
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
		}
		logrus.WithFields(logrus.Fields{
			"command":   failure.CommandLine(),
			"exit_code": failure.ExitCode,
		}).Errorf("external command failed: %s", strings.TrimSpace(failure.Stderr))
		return nil, failure
	}

	return stdout.Bytes(), nil
}

// Lines splits command output into lines, dropping surrounding
// whitespace and empty lines.
func Lines(out []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
