package shutil

import (
	"regexp"
	"strings"
)

var unsafeShellChars = regexp.MustCompile(`[^\w@%+=:,./-]`)

// Quote returns a shell-escaped version of the string s. The returned
// value is a string that can safely be used as one token in a shell
// command line (same semantics as python's shlex.quote).
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !unsafeShellChars.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join quotes every argument and joins them with a single space.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}
	return strings.Join(quoted, " ")
}
