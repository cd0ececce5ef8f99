// Package install runs a complete installation: it partitions (or takes
// existing partitions), formats, mounts, copies the live system, installs
// the bootloader and packages from a chroot and unmounts everything
// again, in this fixed order.
//
// A run stops at the first failing step. Progress goes to a
// progress.Reporter, the outcome is a single Result.
package install

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/privalinux/installer/pkg/chroot"
	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/deploy"
	"github.com/privalinux/installer/pkg/disk"
	"github.com/privalinux/installer/pkg/experimentalflags"
	"github.com/privalinux/installer/pkg/mkfs"
	"github.com/privalinux/installer/pkg/mount"
	"github.com/privalinux/installer/pkg/osrelease"
	"github.com/privalinux/installer/pkg/progress"
	"github.com/privalinux/installer/pkg/shutil"
)

const SuccessMessage = "Installation completed successfully!"

// ErrBusy is returned when an Installer is asked to start a second run
// while one is in progress.
var ErrBusy = errors.New("an installation is already running")

type Options struct {
	// MountRoot is where the target is mounted, /mnt when empty.
	MountRoot string
	// SourceTree is the tree copied onto the target.
	SourceTree string
	Layout     disk.Layout
	Bootloader chroot.Bootloader
	// Packages installed into the target. nil selects the default
	// desktop, an empty slice installs nothing.
	Packages []string
	// CleanupOnFailure unmounts everything that was mounted when a run
	// fails. Without it a failed run leaves the target mounted for
	// inspection.
	CleanupOnFailure bool
}

func DefaultOptions() Options {
	return Options{
		MountRoot:        mount.DefaultRoot,
		SourceTree:       deploy.DefaultSourceTree,
		Layout:           disk.DefaultLayout(),
		Bootloader:       chroot.DefaultBootloader(),
		Packages:         append([]string(nil), chroot.DefaultPackages...),
		CleanupOnFailure: true,
	}
}

// Installer runs installations, one at a time.
type Installer struct {
	runner command.Runner
	fs     afero.Fs
	opts   Options

	busy sync.Mutex
}

// New returns an Installer that runs external commands with runner and
// creates mount points and reads the deployed system through fs.
func New(runner command.Runner, fs afero.Fs, opts Options) (*Installer, error) {
	if opts.Layout == (disk.Layout{}) {
		opts.Layout = disk.DefaultLayout()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	if opts.MountRoot == "" {
		opts.MountRoot = mount.DefaultRoot
	}
	if err := mount.ValidateRoot(opts.MountRoot); err != nil {
		return nil, fmt.Errorf("invalid mount root: %w", err)
	}
	if opts.Packages == nil {
		opts.Packages = append([]string(nil), chroot.DefaultPackages...)
	}
	return &Installer{
		runner: runner,
		fs:     fs,
		opts:   opts,
	}, nil
}

// Result is the outcome of a run.
type Result struct {
	RunID   uuid.UUID
	Success bool
	// Message is what the user is shown, on failure it names the step
	// and the command that failed.
	Message string
	State   State
	// FailedStep is the ID of the step that failed.
	FailedStep string
	Err        error
	// CleanupErr is set when unmounting after a failure failed as well.
	CleanupErr error

	Partitions disk.PartitionSet
	// OSRelease describes the deployed system, if known.
	OSRelease *osrelease.Info
	// Mounts are still mounted when the run ended.
	Mounts []mount.Record
}

// Run validates target and runs the installation to its end. The
// returned error is only set when the run could not be started, a failed
// installation is reported through the Result.
//
// ctx is checked between steps: a canceled run stops before the next
// step, external commands are never interrupted.
func (i *Installer) Run(ctx context.Context, target Target, reporter progress.Reporter) (*Result, error) {
	r, err := i.prepare(ctx, target, reporter)
	if err != nil {
		return nil, err
	}
	defer i.busy.Unlock()

	return r.execute(), nil
}

func (i *Installer) prepare(ctx context.Context, target Target, reporter progress.Reporter) (*run, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := deploy.CheckSource(i.fs, i.opts.SourceTree); err != nil {
		return nil, err
	}
	if !i.busy.TryLock() {
		return nil, ErrBusy
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return i.newRun(ctx, target, reporter)
}

func (i *Installer) newRun(ctx context.Context, target Target, reporter progress.Reporter) (*run, error) {
	r := &run{
		id:               uuid.New(),
		ctx:              ctx,
		target:           target,
		parts:            target.Partitions(),
		reporter:         reporter,
		cleanupOnFailure: i.opts.CleanupOnFailure,
		commandProgress:  experimentalflags.Bool(experimentalflags.CommandProgress),
		state:            StateIdle,
	}
	r.log = logrus.WithField("run", r.id.String())

	runner := &stepRunner{runner: i.runner, r: r}
	provisioner, err := disk.NewProvisioner(runner, i.opts.Layout)
	if err != nil {
		i.busy.Unlock()
		return nil, err
	}
	r.provisioner = provisioner
	r.formatter = mkfs.NewFormatter(runner)
	r.mounts = mount.NewManager(runner, i.fs, i.opts.MountRoot)
	r.deployer = deploy.NewDeployer(runner, i.fs, i.opts.SourceTree)
	r.bootstrapper = chroot.NewBootstrapper(runner, r.mounts.Root(), i.opts.Bootloader, i.opts.Packages)
	return r, nil
}

type run struct {
	id       uuid.UUID
	ctx      context.Context
	target   Target
	parts    disk.PartitionSet
	reporter progress.Reporter
	log      *logrus.Entry

	cleanupOnFailure bool
	commandProgress  bool

	provisioner  *disk.Provisioner
	formatter    *mkfs.Formatter
	mounts       *mount.Manager
	deployer     *deploy.Deployer
	bootstrapper *chroot.Bootstrapper

	osRelease *osrelease.Info

	mu    sync.Mutex
	state State
	step  Step
}

func (r *run) setState(s State, step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.step = step
}

func (r *run) current() (State, Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.step
}

func (r *run) execute() *Result {
	r.log.WithField("target", fmt.Sprintf("%+v", r.target)).Info("starting installation")

	for _, step := range Steps(r.target.Mode) {
		if err := r.ctx.Err(); err != nil {
			return r.fail(step, err)
		}

		r.setState(step.State, step)
		r.log.WithFields(logrus.Fields{
			"step":    step.ID,
			"state":   step.State.String(),
			"percent": step.Percent,
		}).Debug(step.Message)
		r.reporter.Progress(step.Percent, step.Message)

		if err := step.run(r); err != nil {
			return r.fail(step, err)
		}
	}

	r.setState(StateSucceeded, Step{})
	res := r.result(true, SuccessMessage)
	r.log.Info(res.Message)
	r.reporter.Done(true, res.Message)
	return res
}

func (r *run) fail(step Step, err error) *Result {
	// command failures already name their step
	var failure *command.Failure
	if !errors.As(err, &failure) || failure.Step == "" {
		err = fmt.Errorf("%s: %w", step.ID, err)
	}

	var cleanupErr error
	if r.cleanupOnFailure && step.ID != StepCleanup && len(r.mounts.Records()) > 0 {
		r.setState(StateUnmounting, stepByID(StepCleanup))
		r.log.WithField("step", step.ID).Info("unmounting target after failure")
		cleanupErr = r.mounts.Teardown()
	}

	r.setState(StateFailed, step)
	msg := fmt.Sprintf("Installation failed: %v", err)
	if cleanupErr != nil {
		msg = fmt.Sprintf("%s (cleanup failed as well: %v)", msg, cleanupErr)
	}
	res := r.result(false, msg)
	res.FailedStep = step.ID
	res.Err = err
	res.CleanupErr = cleanupErr

	r.log.WithField("step", step.ID).Error(msg)
	r.reporter.Done(false, msg)
	return res
}

func (r *run) result(success bool, msg string) *Result {
	state, _ := r.current()
	return &Result{
		RunID:      r.id,
		Success:    success,
		Message:    msg,
		State:      state,
		Partitions: r.parts,
		OSRelease:  r.osRelease,
		Mounts:     r.mounts.Records(),
	}
}

// stepRunner attributes command failures to the running step.
type stepRunner struct {
	runner command.Runner
	r      *run
}

func (s *stepRunner) Run(name string, args ...string) ([]byte, error) {
	_, step := s.r.current()
	if s.r.commandProgress && step.ID != "" {
		s.r.reporter.Progress(step.Percent, shutil.Join(append([]string{name}, args...)...))
	}

	out, err := s.runner.Run(name, args...)
	var failure *command.Failure
	if errors.As(err, &failure) && failure.Step == "" {
		failure.Step = step.ID
	}
	return out, err
}
