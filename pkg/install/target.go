package install

import (
	"fmt"
	"path"

	"github.com/privalinux/installer/pkg/disk"
)

// PartitioningMode selects how the partitions of a Target are obtained.
type PartitioningMode int

const (
	// ModeAutomatic wipes a whole drive and creates the partitions.
	ModeAutomatic PartitioningMode = iota
	// ModeManual installs onto partitions that already exist.
	ModeManual
)

func (m PartitioningMode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("PartitioningMode(%d)", int(m))
	}
}

func NewPartitioningMode(s string) (PartitioningMode, error) {
	switch s {
	case "", "automatic", "auto":
		return ModeAutomatic, nil
	case "manual":
		return ModeManual, nil
	default:
		return ModeAutomatic, fmt.Errorf("unknown partitioning mode: %q", s)
	}
}

func (m PartitioningMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *PartitioningMode) UnmarshalText(text []byte) error {
	mode, err := NewPartitioningMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Target is what gets installed to. In automatic mode only Drive is
// used, in manual mode only the partitions are.
type Target struct {
	Mode  PartitioningMode `json:"mode" toml:"mode" yaml:"mode"`
	Drive string           `json:"drive,omitempty" toml:"drive" yaml:"drive,omitempty"`
	EFI   string           `json:"efi,omitempty" toml:"efi" yaml:"efi,omitempty"`
	Root  string           `json:"root,omitempty" toml:"root" yaml:"root,omitempty"`
	// Home is optional in manual mode.
	Home string `json:"home,omitempty" toml:"home" yaml:"home,omitempty"`
}

// InvalidTargetError is returned for a Target that cannot be installed
// to. Nothing has been run when it is returned.
type InvalidTargetError struct {
	Mode   PartitioningMode
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid %s installation target: %s", e.Mode, e.Reason)
}

func (t Target) invalid(format string, a ...any) error {
	return &InvalidTargetError{Mode: t.Mode, Reason: fmt.Sprintf(format, a...)}
}

func checkDevice(what, dev string) string {
	if !path.IsAbs(dev) {
		return fmt.Sprintf("%s %q is not an absolute device path", what, dev)
	}
	return ""
}

// Validate checks that the Target is complete for its mode.
func (t Target) Validate() error {
	switch t.Mode {
	case ModeAutomatic:
		if t.Drive == "" {
			return t.invalid("no drive given")
		}
		if reason := checkDevice("drive", t.Drive); reason != "" {
			return t.invalid(reason)
		}
		if t.EFI != "" || t.Root != "" || t.Home != "" {
			return t.invalid("partitions are derived from the drive and must not be given")
		}
	case ModeManual:
		if t.EFI == "" {
			return t.invalid("no EFI partition given")
		}
		if t.Root == "" {
			return t.invalid("no root partition given")
		}
		seen := map[string]string{}
		for _, p := range []struct{ what, dev string }{
			{"EFI partition", t.EFI},
			{"root partition", t.Root},
			{"home partition", t.Home},
		} {
			if p.dev == "" {
				continue
			}
			if reason := checkDevice(p.what, p.dev); reason != "" {
				return t.invalid(reason)
			}
			if other, ok := seen[p.dev]; ok {
				return t.invalid("%s and %s are both %s", other, p.what, p.dev)
			}
			seen[p.dev] = p.what
		}
	default:
		return t.invalid("unknown partitioning mode")
	}
	return nil
}

// Partitions returns the partitions the installation uses. For automatic
// mode they only exist once the drive has been partitioned.
func (t Target) Partitions() disk.PartitionSet {
	if t.Mode == ModeAutomatic {
		return disk.AutomaticPartitions(t.Drive)
	}
	return disk.PartitionSet{EFI: t.EFI, Root: t.Root, Home: t.Home}
}
