package disk

import (
	"fmt"
	"strconv"
	"unicode"
)

// PartitionPath renders the device node of the partition with the given
// 1-based index on a whole-disk device. The kernel appends the index
// directly ("/dev/sda" -> "/dev/sda1") unless the device name itself
// ends in a digit, in which case a "p" separator is inserted
// ("/dev/nvme0n1" -> "/dev/nvme0n1p1", "/dev/mmcblk0" -> "/dev/mmcblk0p1").
func PartitionPath(device string, index int) string {
	if index < 1 {
		panic(fmt.Sprintf("invalid partition index %d for %s", index, device))
	}
	sep := ""
	if device != "" && unicode.IsDigit(rune(device[len(device)-1])) {
		sep = "p"
	}
	return device + sep + strconv.Itoa(index)
}

// PartitionRef identifies a partition as (whole-disk device, index)
// rather than by a pre-rendered path.
type PartitionRef struct {
	Device string
	Index  int
}

// Path returns the device node of the partition.
func (p PartitionRef) Path() string {
	return PartitionPath(p.Device, p.Index)
}

func (p PartitionRef) String() string {
	return p.Path()
}

// PartitionSet holds the device paths of the partitions an installation
// is made on. Home is optional.
type PartitionSet struct {
	EFI  string `json:"efi" yaml:"efi"`
	Root string `json:"root" yaml:"root"`
	Home string `json:"home,omitempty" yaml:"home,omitempty"`
}

// HasHome returns true if a separate home partition is part of the set.
func (ps PartitionSet) HasHome() bool {
	return ps.Home != ""
}
