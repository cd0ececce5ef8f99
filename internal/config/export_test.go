package config

import (
	"io"
)

func MockConfigRootDir(path string) (restore func()) {
	saved := configRootDir
	configRootDir = path
	return func() {
		configRootDir = saved
	}
}

func MockOsStdin(r io.Reader) (restore func()) {
	saved := osStdin
	osStdin = r
	return func() {
		osStdin = saved
	}
}
