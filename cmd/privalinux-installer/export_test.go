package main

import (
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/privalinux/installer/pkg/command"
)

var (
	Run = run
)

func MockOsArgs(new []string) (restore func()) {
	saved := os.Args
	os.Args = append([]string{"argv0"}, new...)
	return func() {
		os.Args = saved
	}
}

func MockOsStdout(new io.Writer) (restore func()) {
	saved := osStdout
	osStdout = new
	return func() {
		osStdout = saved
	}
}

func MockNewRunner(r command.Runner) (restore func()) {
	saved := newRunner
	newRunner = func() command.Runner { return r }
	return func() {
		newRunner = saved
	}
}

func MockNewFs(fs afero.Fs) (restore func()) {
	saved := newFs
	newFs = func() afero.Fs { return fs }
	return func() {
		newFs = saved
	}
}

func MockCheckPrivilege(f func() error) (restore func()) {
	saved := checkPrivilege
	checkPrivilege = f
	return func() {
		checkPrivilege = saved
	}
}
