// Package experimentalflags reads opt-in behaviour of the installer
// from the PRIVALINUX_INSTALLER_EXPERIMENTAL environment variable, a
// comma separated list of "name" or "name=value" entries.
package experimentalflags

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const EnvKey = "PRIVALINUX_INSTALLER_EXPERIMENTAL"

// CommandProgress makes the installer emit one extra progress event per
// external command, at the percentage of the step that runs it.
const CommandProgress = "command-progress"

var known = map[string]bool{
	CommandProgress: true,
}

// Flags are the parsed entries of the environment variable.
type Flags map[string]string

// Parse splits s into flags. A name without a value is set to "true",
// later entries override earlier ones.
func Parse(s string) Flags {
	flags := Flags{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, found := strings.Cut(entry, "=")
		if !found {
			value = "true"
		}
		if !known[name] {
			logrus.Warnf("unknown experimental flag %q in %s", name, EnvKey)
		}
		flags[name] = value
	}
	return flags
}

// Load parses the environment of the current process.
func Load() Flags {
	return Parse(os.Getenv(EnvKey))
}

// Bool reports whether the flag is set to a true value. Values that are
// not booleans count as false.
func (f Flags) Bool(name string) bool {
	b, err := strconv.ParseBool(f[name])
	if err != nil {
		return false
	}
	return b
}

// Bool is Load().Bool(name).
func Bool(name string) bool {
	return Load().Bool(name)
}
