package disk

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/privalinux/installer/pkg/command"
)

// DefaultDriveExcludes are device patterns that are never offered as an
// installation target: loop devices, optical drives and compressed RAM
// disks.
var DefaultDriveExcludes = []string{"/dev/loop*", "/dev/sr*", "/dev/zram*"}

// Drive is a whole-disk block device as reported by lsblk.
type Drive struct {
	Path  string `json:"path"`
	Size  string `json:"size"`
	Model string `json:"model,omitempty"`
}

func (d Drive) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", d.Path, d.Size, d.Model))
}

// ListDrives returns the whole-disk devices of the host, in lsblk order,
// skipping every device whose path matches one of the exclude globs
// (see fnmatch(3)).
func ListDrives(runner command.Runner, exclude ...string) ([]Drive, error) {
	patterns := make([]glob.Glob, 0, len(exclude))
	for _, e := range exclude {
		gl, err := glob.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("invalid drive exclude pattern %q: %w", e, err)
		}
		patterns = append(patterns, gl)
	}

	out, err := runner.Run("lsblk", "-d", "-n", "-p", "-o", "NAME,SIZE,MODEL")
	if err != nil {
		return nil, fmt.Errorf("cannot list drives: %w", err)
	}

	var drives []Drive
outer:
	for _, line := range command.Lines(out) {
		fields := strings.Fields(line)
		drive := Drive{Path: fields[0]}
		for _, p := range patterns {
			if p.Match(drive.Path) {
				continue outer
			}
		}
		if len(fields) > 1 {
			drive.Size = fields[1]
		}
		if len(fields) > 2 {
			drive.Model = strings.Join(fields[2:], " ")
		}
		drives = append(drives, drive)
	}
	return drives, nil
}
