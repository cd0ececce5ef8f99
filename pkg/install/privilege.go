package install

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var geteuid = unix.Geteuid

// PrivilegeError is returned by CheckPrivilege when the process cannot
// partition, format and mount.
type PrivilegeError struct {
	EUID int
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("installation requires root privileges, running as uid %d", e.EUID)
}

// CheckPrivilege fails unless the process runs as root. It has to be
// called before an installation is started.
func CheckPrivilege() error {
	if euid := geteuid(); euid != 0 {
		return &PrivilegeError{EUID: euid}
	}
	return nil
}
