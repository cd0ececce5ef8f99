package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/privalinux/installer/internal/config"
	"github.com/privalinux/installer/pkg/command"
	"github.com/privalinux/installer/pkg/disk"
	"github.com/privalinux/installer/pkg/install"
)

var (
	osStdout io.Writer = os.Stdout
	osStderr io.Writer = os.Stderr

	newRunner      = func() command.Runner { return command.ExecRunner{} }
	newFs          = afero.NewOsFs
	checkPrivilege = install.CheckPrivilege
)

// loadConfig reads the configuration and applies the flags that were
// given on the command line on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("mount-root") {
		if conf.MountRoot, err = flags.GetString("mount-root"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-level") {
		if conf.LogLevel, err = flags.GetString("log-level"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("cleanup-on-failure") != nil && flags.Changed("cleanup-on-failure") {
		if conf.CleanupOnFailure, err = flags.GetBool("cleanup-on-failure"); err != nil {
			return nil, err
		}
	}
	if err := applyTargetFlags(cmd, &conf.Target); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if conf.LogLevel != "" {
		level, err := logrus.ParseLevel(conf.LogLevel)
		if err != nil {
			return nil, err
		}
		logrus.SetLevel(level)
	}
	return conf, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Partitioning mode (automatic, manual)")
	cmd.Flags().String("drive", "", "Drive to erase and install to in automatic mode")
	cmd.Flags().String("efi", "", "Existing EFI system partition to use in manual mode")
	cmd.Flags().String("root", "", "Existing root partition to use in manual mode")
	cmd.Flags().String("home", "", "Existing home partition to use in manual mode (optional)")
}

func applyTargetFlags(cmd *cobra.Command, target *install.Target) error {
	flags := cmd.Flags()
	if flags.Lookup("mode") == nil {
		return nil
	}
	if flags.Changed("mode") {
		s, err := flags.GetString("mode")
		if err != nil {
			return err
		}
		if target.Mode, err = install.NewPartitioningMode(s); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*string{
		"drive": &target.Drive,
		"efi":   &target.EFI,
		"root":  &target.Root,
		"home":  &target.Home,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	// without --mode the target flags that were given select the mode
	if !flags.Changed("mode") {
		manual := flags.Changed("efi") || flags.Changed("root") || flags.Changed("home")
		switch {
		case manual && flags.Changed("drive"):
			return fmt.Errorf("--drive cannot be combined with --efi, --root or --home")
		case manual:
			target.Mode = install.ModeManual
			target.Drive = ""
		case flags.Changed("drive"):
			target.Mode = install.ModeAutomatic
			target.EFI, target.Root, target.Home = "", "", ""
		}
	}
	return nil
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "privalinux-installer",
		Short: "Install PrivaLinux OS onto a drive",
		Long: `Install PrivaLinux OS onto a drive

The installer partitions a drive (or uses existing partitions), copies
the live system onto it, installs the bootloader and the desktop and
unmounts everything again.`,
		SilenceErrors: true,
	}
	rootCmd.SetOut(osStdout)
	rootCmd.SetErr(osStderr)
	rootCmd.PersistentFlags().String("config", "", "Configuration file (.toml, .yaml or .json), - for stdin")
	rootCmd.PersistentFlags().String("log-level", "", "Logging level (debug, info, warning, error)")
	rootCmd.PersistentFlags().String("mount-root", "", "Where the target is mounted during the installation")

	installCmd := &cobra.Command{
		Use:          "install",
		Short:        "Install onto a drive or onto existing partitions, erasing them",
		RunE:         cmdInstall,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	addTargetFlags(installCmd)
	installCmd.Flags().Bool("cleanup-on-failure", true, "Unmount the target when the installation fails")
	installCmd.Flags().Bool("yes", false, "Confirm that all data on the target may be erased")
	installCmd.Flags().String("progress", "bar", "How to show progress (bar, log, jsonseq)")
	rootCmd.AddCommand(installCmd)

	planCmd := &cobra.Command{
		Use:          "plan",
		Short:        "Show the commands an installation would run, without running them",
		RunE:         cmdPlan,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	addTargetFlags(planCmd)
	planCmd.Flags().String("format", "text", "Output format (text, json, yaml)")
	rootCmd.AddCommand(planCmd)

	listDrivesCmd := &cobra.Command{
		Use:          "list-drives",
		Short:        "List the drives that can be installed to",
		RunE:         cmdListDrives,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	listDrivesCmd.Flags().StringArray("exclude", disk.DefaultDriveExcludes, "Glob of drives to leave out")
	listDrivesCmd.Flags().String("format", "text", "Output format (text, json)")
	rootCmd.AddCommand(listDrivesCmd)

	return rootCmd.Execute()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("error: %s", err)
	}
}

func unsupportedFormat(format string, supported ...string) error {
	return fmt.Errorf("unsupported output format %q, use one of %v", format, supported)
}
