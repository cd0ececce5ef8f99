package disk

import (
	"fmt"
)

// PartitionTableType is the partitioning scheme written to a drive.
type PartitionTableType int

const (
	PT_NONE PartitionTableType = iota
	PT_GPT
)

func (t PartitionTableType) String() string {
	switch t {
	case PT_NONE:
		return ""
	case PT_GPT:
		return "gpt"
	default:
		panic(fmt.Sprintf("unknown or unsupported partition table type with enum value %d", t))
	}
}

func (t PartitionTableType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *PartitionTableType) UnmarshalText(text []byte) error {
	pt, err := NewPartitionTableType(string(text))
	if err != nil {
		return err
	}
	*t = pt
	return nil
}

func NewPartitionTableType(s string) (PartitionTableType, error) {
	switch s {
	case "":
		return PT_NONE, nil
	case "gpt":
		return PT_GPT, nil
	default:
		return PT_NONE, fmt.Errorf("unknown or unsupported partition table type name: %s", s)
	}
}

// FSType is the filesystem type. Only the two filesystems an installed
// system needs are supported: FAT32 for the ESP and ext4 for the rest.
type FSType uint64

const (
	FS_NONE FSType = iota
	FS_VFAT
	FS_EXT4
)

func (f FSType) String() string {
	switch f {
	case FS_NONE:
		return ""
	case FS_VFAT:
		return "vfat"
	case FS_EXT4:
		return "ext4"
	default:
		panic(fmt.Sprintf("unknown or unsupported filesystem type with enum value %d", f))
	}
}

// PartedName returns the filesystem type name parted expects in mkpart.
func (f FSType) PartedName() string {
	switch f {
	case FS_VFAT:
		return "fat32"
	default:
		return f.String()
	}
}

func (f FSType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FSType) UnmarshalText(text []byte) error {
	fst, err := NewFSType(string(text))
	if err != nil {
		return err
	}
	*f = fst
	return nil
}

func NewFSType(s string) (FSType, error) {
	switch s {
	case "":
		return FS_NONE, nil
	case "vfat":
		return FS_VFAT, nil
	case "ext4":
		return FS_EXT4, nil
	default:
		return FS_NONE, fmt.Errorf("unknown or unsupported filesystem type name: %s", s)
	}
}
