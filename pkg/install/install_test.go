package install_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/datasizes"
	"github.com/privalinux/installer/pkg/deploy"
	"github.com/privalinux/installer/pkg/disk"
	"github.com/privalinux/installer/pkg/install"
	"github.com/privalinux/installer/pkg/mount"
	"github.com/privalinux/installer/pkg/progress"
)

var automaticCommands = []string{
	"parted -s /dev/sdx mklabel gpt",
	"parted -s /dev/sdx mkpart primary fat32 1MiB 512MiB",
	"parted -s /dev/sdx set 1 esp on",
	"parted -s /dev/sdx mkpart primary ext4 512MiB 100%",
	"mkfs.fat -F32 /dev/sdx1",
	"mkfs.ext4 -F /dev/sdx2",
	"mount /dev/sdx2 /mnt",
	"mount /dev/sdx1 /mnt/boot/efi",
	"rsync -aHAX /run/live/medium/casper/filesystem.squashfs/ /mnt/",
	"mount --bind /dev /mnt/dev",
	"mount --bind /dev/pts /mnt/dev/pts",
	"mount --bind /proc /mnt/proc",
	"mount --bind /sys /mnt/sys",
	"mount --bind /run /mnt/run",
	"chroot /mnt grub-install --target=x86_64-efi --efi-directory=/boot/efi --bootloader-id=privalinux --recheck",
	"chroot /mnt update-grub",
	"chroot /mnt apt-get update",
	"chroot /mnt apt-get install -y cinnamon cinnamon-desktop-environment",
	"umount /mnt/run",
	"umount /mnt/sys",
	"umount /mnt/proc",
	"umount /mnt/dev/pts",
	"umount /mnt/dev",
	"umount /mnt/boot/efi",
	"umount /mnt",
}

// the step each of automaticCommands belongs to
var automaticCommandSteps = []string{
	"partition-table",
	"efi-partition", "efi-partition",
	"root-partition",
	"format", "format",
	"mount", "mount",
	"deploy",
	"bootloader", "bootloader", "bootloader", "bootloader", "bootloader", "bootloader", "bootloader",
	"packages", "packages",
	"cleanup", "cleanup", "cleanup", "cleanup", "cleanup", "cleanup", "cleanup",
}

func newFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(deploy.DefaultSourceTree, 0755))
	return fs
}

func newInstaller(t *testing.T, runner command.Runner, opts install.Options) *install.Installer {
	inst, err := install.New(runner, newFs(t), opts)
	require.NoError(t, err)
	return inst
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) reporter() progress.Reporter {
	return progress.Func(func(ev progress.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, ev)
	})
}

func (l *eventLog) get() []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progress.Event(nil), l.events...)
}

// assertProgressContract checks the percentages never decrease and that
// there is exactly one terminal event, at the end.
func assertProgressContract(t *testing.T, events []progress.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	last := 0
	for i, ev := range events {
		if i == len(events)-1 {
			assert.True(t, ev.Terminal, "last event must be terminal")
			break
		}
		assert.False(t, ev.Terminal, "event %d: terminal event before the end", i)
		assert.GreaterOrEqual(t, ev.Percent, last, "event %d: progress went backwards", i)
		last = ev.Percent
	}
}

func TestRunAutomaticSuccess(t *testing.T) {
	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	var log eventLog
	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, log.reporter())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Installation completed successfully!", res.Message)
	assert.Equal(t, install.StateSucceeded, res.State)
	assert.Empty(t, res.FailedStep)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Mounts)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, disk.PartitionSet{EFI: "/dev/sdx1", Root: "/dev/sdx2"}, res.Partitions)

	if diff := cmp.Diff(automaticCommands, rec.CommandLines()); diff != "" {
		t.Errorf("unexpected commands (-want +got):\n%s", diff)
	}

	events := log.get()
	assertProgressContract(t, events)
	require.Len(t, events, 10)
	assert.Equal(t, []progress.Event{
		{Percent: 10, Message: "Creating partition table..."},
		{Percent: 20, Message: "Creating EFI partition..."},
		{Percent: 30, Message: "Creating root partition..."},
		{Percent: 40, Message: "Formatting partitions..."},
		{Percent: 50, Message: "Mounting partitions..."},
		{Percent: 60, Message: "Copying system files..."},
		{Percent: 70, Message: "Installing bootloader..."},
		{Percent: 80, Message: "Configuring system..."},
		{Percent: 90, Message: "Cleaning up..."},
		{Terminal: true, Success: true, Message: "Installation completed successfully!"},
	}, events)
}

func TestRunManualWithHome(t *testing.T) {
	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	var log eventLog
	target := install.Target{Mode: install.ModeManual, EFI: "/dev/sda1", Root: "/dev/sda2", Home: "/dev/sdb1"}
	res, err := inst.Run(context.Background(), target, log.reporter())
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	calls := rec.CommandLines()
	for _, c := range calls {
		assert.False(t, strings.HasPrefix(c, "parted"), "manual mode must not partition: %s", c)
	}
	assert.Equal(t, []string{
		"mkfs.fat -F32 /dev/sda1",
		"mkfs.ext4 -F /dev/sda2",
		"mkfs.ext4 -F /dev/sdb1",
		"mount /dev/sda2 /mnt",
		"mount /dev/sda1 /mnt/boot/efi",
		"mount /dev/sdb1 /mnt/home",
	}, calls[:6])
	assert.Equal(t, []string{
		"umount /mnt/dev",
		"umount /mnt/home",
		"umount /mnt/boot/efi",
		"umount /mnt",
	}, calls[len(calls)-4:])

	events := log.get()
	assertProgressContract(t, events)
	require.Len(t, events, 7)
	assert.Equal(t, 40, events[0].Percent)
	assert.Equal(t, 90, events[5].Percent)
}

// The mounts must be unwound in exactly the reverse order they were made.
func TestRunUnmountsInReverse(t *testing.T) {
	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	target := install.Target{Mode: install.ModeManual, EFI: "/dev/sda1", Root: "/dev/sda2", Home: "/dev/sdb1"}
	res, err := inst.Run(context.Background(), target, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	var mounted, unmounted []string
	for _, c := range rec.Calls() {
		switch c.Name {
		case "mount":
			mounted = append(mounted, c.Args[len(c.Args)-1])
		case "umount":
			unmounted = append(unmounted, c.Args[0])
		}
	}
	require.Len(t, unmounted, len(mounted))
	for i := range mounted {
		assert.Equal(t, mounted[i], unmounted[len(unmounted)-1-i])
	}
	// every mount is nested below the first one
	for _, m := range mounted[1:] {
		assert.True(t, strings.HasPrefix(m, mounted[0]+"/"), m)
	}
}

func TestRunFailureAtEachCommand(t *testing.T) {
	for k := 1; k <= len(automaticCommands); k++ {
		t.Run(fmt.Sprintf("fail-at-%d", k), func(t *testing.T) {
			rec := &command.Recorder{FailAt: k}
			opts := install.DefaultOptions()
			opts.CleanupOnFailure = false
			inst := newInstaller(t, rec, opts)

			var log eventLog
			res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, log.reporter())
			require.NoError(t, err)

			failedCmd := automaticCommands[k-1]
			step := automaticCommandSteps[k-1]
			assert.False(t, res.Success)
			assert.Equal(t, install.StateFailed, res.State)
			assert.Equal(t, step, res.FailedStep)
			assert.True(t, strings.HasPrefix(res.Message, "Installation failed: "), res.Message)
			assert.Contains(t, res.Message, failedCmd)
			assert.Contains(t, res.Message, "exit status 1")

			var failure *command.Failure
			require.True(t, errors.As(res.Err, &failure))
			assert.Equal(t, step, failure.Step)

			if step == install.StepCleanup {
				// unmounting carries on past a failure
				assert.Len(t, rec.Calls(), len(automaticCommands))
				require.Len(t, res.Mounts, 1)
			} else {
				// nothing after the failing command ran
				assert.Equal(t, automaticCommands[:k], rec.CommandLines())
			}

			events := log.get()
			assertProgressContract(t, events)
			last := events[len(events)-1]
			assert.Equal(t, progress.Event{Terminal: true, Message: res.Message}, last)
			assert.Equal(t, install.Steps(install.ModeAutomatic)[len(events)-2].ID, step)
		})
	}
}

func TestRunFailureCleansUp(t *testing.T) {
	rec := &command.Recorder{
		Fail: func(c command.Call) bool { return c.Name == "rsync" },
	}
	inst := newInstaller(t, rec, install.DefaultOptions())

	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, install.StepDeploy, res.FailedStep)
	assert.NoError(t, res.CleanupErr)
	assert.Empty(t, res.Mounts)
	assert.NotContains(t, res.Message, "cleanup")

	assert.Equal(t, append(append([]string(nil), automaticCommands[:9]...),
		"umount /mnt/boot/efi",
		"umount /mnt",
	), rec.CommandLines())
}

func TestRunFailureCleanupFails(t *testing.T) {
	rec := &command.Recorder{
		Fail: func(c command.Call) bool {
			return (c.Name == "chroot" && c.Args[1] == "update-grub") ||
				(c.Name == "umount" && c.Args[0] == "/mnt/dev")
		},
	}
	inst := newInstaller(t, rec, install.DefaultOptions())

	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, install.StepBootloader, res.FailedStep)
	assert.ErrorContains(t, res.CleanupErr, "cannot unmount /mnt/dev")
	assert.Contains(t, res.Message, `bootloader: command "chroot /mnt update-grub" failed with exit status 1`)
	assert.Contains(t, res.Message, "cleanup failed as well: cannot unmount /mnt/dev")
	assert.Equal(t, []mount.Record{
		{Source: "/dev", Target: "/mnt/dev", Kind: mount.KindBind},
	}, res.Mounts)

	// every other mount was still unwound
	calls := rec.CommandLines()
	assert.Equal(t, "umount /mnt", calls[len(calls)-1])
}

func TestRunFailureWithoutCleanupLeavesMounts(t *testing.T) {
	rec := &command.Recorder{
		Fail: func(c command.Call) bool { return c.Name == "chroot" && c.Args[1] == "apt-get" && c.Args[2] == "install" },
	}
	opts := install.DefaultOptions()
	opts.CleanupOnFailure = false
	inst := newInstaller(t, rec, opts)

	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, install.StepPackages, res.FailedStep)
	assert.Len(t, res.Mounts, 7)
	for _, c := range rec.Calls() {
		assert.NotEqual(t, "umount", c.Name)
	}
}

func TestRunMissingSourceTree(t *testing.T) {
	rec := &command.Recorder{}
	opts := install.DefaultOptions()
	opts.SourceTree = "/srv/missing"
	inst := newInstaller(t, rec, opts)

	// the drive is left alone when there is nothing to copy onto it
	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, nil)
	assert.Nil(t, res)
	assert.EqualError(t, err, "source tree /srv/missing does not exist")
	assert.Empty(t, rec.Calls())

	task, err := inst.Start(context.Background(), install.Target{Drive: "/dev/sdx"}, nil)
	assert.Nil(t, task)
	assert.EqualError(t, err, "source tree /srv/missing does not exist")
	assert.Empty(t, rec.Calls())
}

func TestRunInvalidTargetRunsNothing(t *testing.T) {
	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	var log eventLog
	res, err := inst.Run(context.Background(), install.Target{Mode: install.ModeManual, EFI: "/dev/sda1"}, log.reporter())
	assert.Nil(t, res)
	var invalid *install.InvalidTargetError
	require.True(t, errors.As(err, &invalid))
	assert.Empty(t, rec.Calls())
	assert.Empty(t, log.get())

	task, err := inst.Start(context.Background(), install.Target{Mode: install.ModeManual, Root: "/dev/sda2"}, log.reporter())
	assert.Nil(t, task)
	assert.True(t, errors.As(err, &invalid))
	assert.Empty(t, rec.Calls())
	assert.Empty(t, log.get())
}

// cancelingRunner cancels the run while the named command executes.
type cancelingRunner struct {
	command.Recorder
	at     string
	cancel context.CancelFunc
}

func (c *cancelingRunner) Run(name string, args ...string) ([]byte, error) {
	if name == c.at {
		c.cancel()
	}
	return c.Recorder.Run(name, args...)
}

func TestRunCanceledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &cancelingRunner{at: "rsync", cancel: cancel}
	inst := newInstaller(t, runner, install.DefaultOptions())

	var log eventLog
	res, err := inst.Run(ctx, install.Target{Drive: "/dev/sdx"}, log.reporter())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, install.StepBootloader, res.FailedStep)
	assert.Equal(t, "Installation failed: bootloader: context canceled", res.Message)

	// the copy that was running completed, nothing after it started and
	// the partitions were unmounted again
	assert.Equal(t, append(append([]string(nil), automaticCommands[:9]...),
		"umount /mnt/boot/efi",
		"umount /mnt",
	), runner.CommandLines())

	events := log.get()
	assertProgressContract(t, events)
	assert.Len(t, events, 7)
}

func TestStartAndWait(t *testing.T) {
	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	q := progress.NewQueue()
	task, err := inst.Start(context.Background(), install.Target{Drive: "/dev/sdx"}, q)
	require.NoError(t, err)
	assert.NotEmpty(t, task.RunID())

	var events []progress.Event
	for ev := range q.Events() {
		events = append(events, ev)
	}
	assertProgressContract(t, events)
	assert.Len(t, events, 10)

	res := task.Wait()
	require.True(t, res.Success)
	assert.Equal(t, task.RunID(), res.RunID.String())
	assert.Equal(t, install.StateSucceeded, task.State())

	polled, ok := task.Result()
	assert.True(t, ok)
	assert.Same(t, res, polled)

	select {
	case <-task.Done():
	default:
		t.Fatal("Done channel not closed after Wait")
	}
}

// blockingRunner blocks every command until released.
type blockingRunner struct {
	command.Recorder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRunner) Run(name string, args ...string) ([]byte, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Recorder.Run(name, args...)
}

func TestOneRunAtATime(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	inst := newInstaller(t, runner, install.DefaultOptions())
	target := install.Target{Drive: "/dev/sdx"}

	task, err := inst.Start(context.Background(), target, nil)
	require.NoError(t, err)
	<-runner.started

	_, finished := task.Result()
	assert.False(t, finished)
	assert.Equal(t, install.StateProvisioning, task.State())

	_, err = inst.Run(context.Background(), target, nil)
	assert.ErrorIs(t, err, install.ErrBusy)
	_, err = inst.Start(context.Background(), target, nil)
	assert.ErrorIs(t, err, install.ErrBusy)

	close(runner.release)
	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("installation did not finish")
	}
	assert.True(t, task.Wait().Success)

	// the installer is free again
	res, err := inst.Run(context.Background(), target, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRunCommandProgress(t *testing.T) {
	t.Setenv("PRIVALINUX_INSTALLER_EXPERIMENTAL", "command-progress")

	rec := &command.Recorder{}
	inst := newInstaller(t, rec, install.DefaultOptions())

	var log eventLog
	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/sdx"}, log.reporter())
	require.NoError(t, err)
	require.True(t, res.Success)

	events := log.get()
	assertProgressContract(t, events)
	assert.Len(t, events, 9+len(automaticCommands)+1)
	assert.Equal(t, progress.Event{Percent: 40, Message: "Formatting partitions..."}, events[7])
	assert.Equal(t, progress.Event{Percent: 40, Message: "mkfs.fat -F32 /dev/sdx1"}, events[8])
	assert.Equal(t, progress.Event{Percent: 40, Message: "mkfs.ext4 -F /dev/sdx2"}, events[9])
}

func TestRunReportsOSRelease(t *testing.T) {
	fs := newFs(t)
	require.NoError(t, afero.WriteFile(fs, "/target/etc/os-release", []byte("NAME=PrivaLinux\nVERSION_ID=1.0\n"), 0644))

	rec := &command.Recorder{}
	opts := install.DefaultOptions()
	opts.MountRoot = "/target"
	opts.Packages = []string{}
	inst, err := install.New(rec, fs, opts)
	require.NoError(t, err)

	res, err := inst.Run(context.Background(), install.Target{Drive: "/dev/vda"}, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.OSRelease)
	assert.Equal(t, "PrivaLinux 1.0", res.OSRelease.String())

	calls := rec.CommandLines()
	assert.Contains(t, calls, "mount /dev/vda2 /target")
	assert.Contains(t, calls, "chroot /target apt-get update")
	for _, c := range calls {
		assert.NotContains(t, c, "apt-get install")
	}
}

func TestNewInvalidOptions(t *testing.T) {
	for _, tc := range []struct {
		name        string
		modify      func(opts *install.Options)
		expectedErr string
	}{
		{
			name: "layout",
			modify: func(opts *install.Options) {
				opts.Layout = disk.Layout{ESPStart: datasizes.MiB, ESPEnd: datasizes.MiB}
			},
			expectedErr: "invalid partition layout",
		},
		{
			name:        "host-root",
			modify:      func(opts *install.Options) { opts.MountRoot = "/" },
			expectedErr: `invalid mount root: mount root must not be the host root "/"`,
		},
		{
			name:        "host-root-unclean",
			modify:      func(opts *install.Options) { opts.MountRoot = "/mnt/../" },
			expectedErr: `invalid mount root: mount root must not be the host root "/mnt/../"`,
		},
		{
			name:        "relative-root",
			modify:      func(opts *install.Options) { opts.MountRoot = "mnt" },
			expectedErr: `invalid mount root: mount root must be an absolute path, got "mnt"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := install.DefaultOptions()
			tc.modify(&opts)
			rec := &command.Recorder{}
			_, err := install.New(rec, newFs(t), opts)
			assert.ErrorContains(t, err, tc.expectedErr)
			assert.Empty(t, rec.Calls())
		})
	}
}
