// Package mkfs creates the filesystems of an installation. Formatting is
// destructive and never idempotent: running it twice on the same device
// silently wipes whatever the first run (and everything after it) wrote.
package mkfs

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/disk"
)

type filesystem struct {
	device string
	fsType disk.FSType
}

// Formatter formats partitions. A Formatter remembers every device it
// formatted and refuses to format one a second time, so use one
// Formatter per installation run.
type Formatter struct {
	runner    command.Runner
	formatted map[string]disk.FSType
}

func NewFormatter(runner command.Runner) *Formatter {
	return &Formatter{
		runner:    runner,
		formatted: make(map[string]disk.FSType),
	}
}

// Format creates a FAT32 filesystem on the EFI partition and ext4 on the
// root partition, and on the home partition when there is one. The
// order is always EFI, root, home.
func (f *Formatter) Format(parts disk.PartitionSet) error {
	targets := []filesystem{
		{parts.EFI, disk.FS_VFAT},
		{parts.Root, disk.FS_EXT4},
	}
	if parts.HasHome() {
		targets = append(targets, filesystem{parts.Home, disk.FS_EXT4})
	}

	for _, t := range targets {
		if err := f.MakeFilesystem(t.device, t.fsType); err != nil {
			return err
		}
	}
	return nil
}

// MakeFilesystem creates a single filesystem of the given type.
func (f *Formatter) MakeFilesystem(device string, fsType disk.FSType) error {
	if device == "" {
		return fmt.Errorf("cannot create %s filesystem: no device given", fsType)
	}
	if prev, ok := f.formatted[device]; ok {
		return fmt.Errorf("refusing to format %s as %s: already formatted as %s in this run", device, fsType, prev)
	}

	var err error
	switch fsType {
	case disk.FS_VFAT:
		_, err = f.runner.Run("mkfs.fat", "-F32", device)
	case disk.FS_EXT4:
		// -F: do not ask for confirmation when the device already
		// carries a filesystem, there is no one to answer.
		_, err = f.runner.Run("mkfs.ext4", "-F", device)
	default:
		return fmt.Errorf("cannot create filesystem on %s: unsupported filesystem type", device)
	}
	if err != nil {
		return err
	}

	f.formatted[device] = fsType
	logrus.Debugf("created %s filesystem on %s", fsType, device)
	return nil
}
