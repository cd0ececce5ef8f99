// Package mount mounts the partitions of an installation target and the
// virtual kernel filesystems a chroot needs, and unwinds all of them
// again. The Manager is the only place where the target is mounted or
// unmounted.
package mount

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/disk"
)

// DefaultRoot is where the target root filesystem is mounted.
const DefaultRoot = "/mnt"

// EFIMountpoint is where the EFI system partition is mounted, relative to
// the target root.
const EFIMountpoint = "/boot/efi"

const HomeMountpoint = "/home"

// VirtualFilesystems are bind mounted from the host into the target root
// in this order. /dev/pts must come after /dev.
var VirtualFilesystems = []string{"/dev", "/dev/pts", "/proc", "/sys", "/run"}

// Kind distinguishes real filesystem mounts from bind mounts.
type Kind int

const (
	KindFilesystem Kind = iota
	KindBind
)

func (k Kind) String() string {
	switch k {
	case KindFilesystem:
		return "filesystem"
	case KindBind:
		return "bind"
	default:
		panic(fmt.Sprintf("unknown mount kind with enum value %d", k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Record is a mount that has been performed and not yet undone.
type Record struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   Kind   `json:"kind" yaml:"kind"`
}

func (r Record) String() string {
	if r.Kind == KindBind {
		return fmt.Sprintf("%s on %s (bind)", r.Source, r.Target)
	}
	return fmt.Sprintf("%s on %s", r.Source, r.Target)
}

// Manager performs mounts below a target root and keeps a stack of every
// mount that succeeded.
type Manager struct {
	runner command.Runner
	fs     afero.Fs
	root   string

	mu      sync.Mutex
	records []Record
}

// NewManager returns a Manager that mounts the target at root. Mount
// points are created through fs.
func NewManager(runner command.Runner, fs afero.Fs, root string) *Manager {
	if root == "" {
		root = DefaultRoot
	}
	return &Manager{
		runner: runner,
		fs:     fs,
		root:   path.Clean(root),
	}
}

// ValidateRoot checks that root can hold the target: it must be an
// absolute path other than the host root.
func ValidateRoot(root string) error {
	if !path.IsAbs(root) {
		return fmt.Errorf("mount root must be an absolute path, got %q", root)
	}
	if path.Clean(root) == "/" {
		return fmt.Errorf("mount root must not be the host root %q", root)
	}
	return nil
}

// Root returns the path the target root filesystem is mounted at.
func (m *Manager) Root() string {
	return m.root
}

// MountPartitions mounts the root partition at the target root, then the
// EFI partition at <root>/boot/efi and, if there is one, the home
// partition at <root>/home. Mount points are created when missing.
func (m *Manager) MountPartitions(parts disk.PartitionSet) error {
	if parts.Root == "" {
		return fmt.Errorf("cannot mount target: no root partition given")
	}
	if parts.EFI == "" {
		return fmt.Errorf("cannot mount target: no EFI partition given")
	}

	if err := m.mount(parts.Root, m.root, KindFilesystem); err != nil {
		return err
	}
	if err := m.mount(parts.EFI, m.targetPath(EFIMountpoint), KindFilesystem); err != nil {
		return err
	}
	if parts.HasHome() {
		if err := m.mount(parts.Home, m.targetPath(HomeMountpoint), KindFilesystem); err != nil {
			return err
		}
	}
	return nil
}

// BindVirtual bind mounts the host's virtual filesystems under the target
// root so tools can be run inside it with chroot.
func (m *Manager) BindVirtual() error {
	for _, dir := range VirtualFilesystems {
		if err := m.mount(dir, m.targetPath(dir), KindBind); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) targetPath(p string) string {
	return path.Join(m.root, p)
}

func (m *Manager) mount(source, target string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkNesting(target); err != nil {
		return err
	}
	if err := m.fs.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("cannot create mount point %s: %w", target, err)
	}

	var err error
	switch kind {
	case KindBind:
		_, err = m.runner.Run("mount", "--bind", source, target)
	default:
		_, err = m.runner.Run("mount", source, target)
	}
	if err != nil {
		return err
	}

	rec := Record{Source: source, Target: target, Kind: kind}
	m.records = append(m.records, rec)
	logrus.Debugf("mounted %s", rec)
	return nil
}

// checkNesting rejects a mount that would not be below the first mount on
// the stack, the first mount itself must be the target root.
func (m *Manager) checkNesting(target string) error {
	if len(m.records) == 0 {
		if target != m.root {
			return fmt.Errorf("cannot mount %s: the target root %s must be mounted first", target, m.root)
		}
		return nil
	}
	base := m.records[0].Target
	if target == base || !strings.HasPrefix(target, base+"/") {
		return fmt.Errorf("cannot mount %s: not nested below %s", target, base)
	}
	for _, r := range m.records {
		if r.Target == target {
			return fmt.Errorf("cannot mount %s: already mounted", target)
		}
	}
	return nil
}

// Teardown unmounts every recorded mount in the reverse order of
// creation. A failing unmount does not stop the ones after it; the
// records of failed unmounts stay on the stack and all failures are
// returned together.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result *multierror.Error
	var remaining []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if _, err := m.runner.Run("umount", rec.Target); err != nil {
			logrus.Warnf("cannot unmount %s: %v", rec.Target, err)
			result = multierror.Append(result, fmt.Errorf("cannot unmount %s: %w", rec.Target, err))
			remaining = append([]Record{rec}, remaining...)
			continue
		}
		logrus.Debugf("unmounted %s", rec.Target)
	}
	m.records = remaining

	if result != nil {
		result.ErrorFormat = listFormat
	}
	return result.ErrorOrNil()
}

func listFormat(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	if len(errs) == 1 {
		return msgs[0]
	}
	return fmt.Sprintf("%d unmounts failed: %s", len(errs), strings.Join(msgs, "; "))
}

// Records returns a copy of the mounts currently on the stack, oldest
// first.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Record(nil), m.records...)
}
