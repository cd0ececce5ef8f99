// Package chroot runs the final configuration of an installed system from
// inside its root. Everything here expects the target to be mounted with
// the virtual filesystems bound, see pkg/mount.
package chroot

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/privalinux/installer/pkg/command"
)

// Bootloader describes the GRUB EFI installation.
type Bootloader struct {
	// ID is the name of the boot entry and of the directory below
	// EFI/ on the ESP.
	ID           string `json:"id" toml:"id" yaml:"id"`
	Target       string `json:"target" toml:"target" yaml:"target"`
	EFIDirectory string `json:"efi_directory" toml:"efi_directory" yaml:"efi_directory"`
}

func DefaultBootloader() Bootloader {
	return Bootloader{
		ID:           "privalinux",
		Target:       "x86_64-efi",
		EFIDirectory: "/boot/efi",
	}
}

// DefaultPackages is the desktop installed on every system.
var DefaultPackages = []string{"cinnamon", "cinnamon-desktop-environment"}

type Bootstrapper struct {
	runner     command.Runner
	root       string
	bootloader Bootloader
	packages   []string
}

// NewBootstrapper returns a Bootstrapper for the system mounted at root.
// Empty fields of bootloader take their defaults.
func NewBootstrapper(runner command.Runner, root string, bootloader Bootloader, packages []string) *Bootstrapper {
	def := DefaultBootloader()
	if bootloader.ID == "" {
		bootloader.ID = def.ID
	}
	if bootloader.Target == "" {
		bootloader.Target = def.Target
	}
	if bootloader.EFIDirectory == "" {
		bootloader.EFIDirectory = def.EFIDirectory
	}
	return &Bootstrapper{
		runner:     runner,
		root:       root,
		bootloader: bootloader,
		packages:   packages,
	}
}

func (b *Bootstrapper) run(name string, args ...string) error {
	_, err := b.runner.Run("chroot", append([]string{b.root, name}, args...)...)
	return err
}

// InstallBootloader installs GRUB for EFI and generates its
// configuration.
func (b *Bootstrapper) InstallBootloader() error {
	err := b.run("grub-install",
		"--target="+b.bootloader.Target,
		"--efi-directory="+b.bootloader.EFIDirectory,
		"--bootloader-id="+b.bootloader.ID,
		"--recheck",
	)
	if err != nil {
		return err
	}
	if err := b.run("update-grub"); err != nil {
		return err
	}
	logrus.Debugf("installed bootloader %q for %s", b.bootloader.ID, b.bootloader.Target)
	return nil
}

// InstallPackages refreshes the package index and installs the package
// set. Without packages only the index is refreshed.
func (b *Bootstrapper) InstallPackages() error {
	if err := b.run("apt-get", "update"); err != nil {
		return err
	}
	if len(b.packages) == 0 {
		logrus.Debug("no packages to install")
		return nil
	}
	if err := b.run("apt-get", append([]string{"install", "-y"}, b.packages...)...); err != nil {
		return err
	}
	logrus.Debugf("installed %d packages", len(b.packages))
	return nil
}

func (b *Bootstrapper) String() string {
	return fmt.Sprintf("chroot %s", b.root)
}
