// Package deploy copies the live system onto the mounted target root.
package deploy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/osrelease"
)

// DefaultSourceTree is the unpacked root filesystem of the live medium.
const DefaultSourceTree = "/run/live/medium/casper/filesystem.squashfs"

// RsyncArgs preserve permissions, ownership, times, hard links, ACLs and
// extended attributes.
var RsyncArgs = []string{"-aHAX"}

type Deployer struct {
	runner command.Runner
	fs     afero.Fs
	source string
}

func NewDeployer(runner command.Runner, fs afero.Fs, source string) *Deployer {
	if source == "" {
		source = DefaultSourceTree
	}
	return &Deployer{
		runner: runner,
		fs:     fs,
		source: source,
	}
}

// Source returns the tree that is deployed.
func (d *Deployer) Source() string {
	return d.source
}

// CheckSource returns an error unless source is a directory on fs. An
// empty source stands for DefaultSourceTree.
func CheckSource(fs afero.Fs, source string) error {
	if source == "" {
		source = DefaultSourceTree
	}
	exists, err := afero.DirExists(fs, source)
	if err != nil {
		return fmt.Errorf("cannot access source tree %s: %w", source, err)
	}
	if !exists {
		return fmt.Errorf("source tree %s does not exist", source)
	}
	return nil
}

// Deploy mirrors the source tree onto root and returns the os-release
// information of the result, which is nil when the deployed tree has
// none. A failed copy is not rolled back.
func (d *Deployer) Deploy(root string) (*osrelease.Info, error) {
	if err := CheckSource(d.fs, d.source); err != nil {
		return nil, err
	}

	// the trailing slashes copy the contents of the source, not the
	// directory itself
	args := append(append([]string(nil), RsyncArgs...), withSlash(d.source), withSlash(root))
	if _, err := d.runner.Run("rsync", args...); err != nil {
		return nil, err
	}

	info, err := osrelease.Read(d.fs, root)
	if err != nil {
		logrus.Warnf("cannot read os-release of deployed system: %v", err)
		return nil, nil
	}
	if info == nil {
		logrus.Infof("deployed %s to %s", d.source, root)
	} else {
		logrus.Infof("deployed %s (%s) to %s", d.source, info, root)
	}
	return info, nil
}

func withSlash(p string) string {
	return strings.TrimSuffix(p, "/") + "/"
}
