package install

import (
	"fmt"
)

const (
	StepPartitionTable = "partition-table"
	StepEFIPartition   = "efi-partition"
	StepRootPartition  = "root-partition"
	StepFormat         = "format"
	StepMount          = "mount"
	StepDeploy         = "deploy"
	StepBootloader     = "bootloader"
	StepPackages       = "packages"
	StepCleanup        = "cleanup"
)

// Step is one unit of the installation with its fixed progress
// checkpoint.
type Step struct {
	ID      string `json:"id" yaml:"id"`
	State   State  `json:"state" yaml:"state"`
	Percent int    `json:"percent" yaml:"percent"`
	Message string `json:"message" yaml:"message"`
	// AutomaticOnly steps are skipped for ModeManual targets.
	AutomaticOnly bool `json:"automatic_only,omitempty" yaml:"automatic_only,omitempty"`

	run func(r *run) error
}

// the order of this list is the order of the installation and must
// never change at run time
var steps = []Step{
	{
		ID:            StepPartitionTable,
		State:         StateProvisioning,
		Percent:       10,
		Message:       "Creating partition table...",
		AutomaticOnly: true,
		run: func(r *run) error {
			return r.provisioner.CreateTable(r.target.Drive)
		},
	},
	{
		ID:            StepEFIPartition,
		State:         StateProvisioning,
		Percent:       20,
		Message:       "Creating EFI partition...",
		AutomaticOnly: true,
		run: func(r *run) error {
			return r.provisioner.CreateESP(r.target.Drive)
		},
	},
	{
		ID:            StepRootPartition,
		State:         StateProvisioning,
		Percent:       30,
		Message:       "Creating root partition...",
		AutomaticOnly: true,
		run: func(r *run) error {
			return r.provisioner.CreateRoot(r.target.Drive)
		},
	},
	{
		ID:      StepFormat,
		State:   StateFormatting,
		Percent: 40,
		Message: "Formatting partitions...",
		run: func(r *run) error {
			return r.formatter.Format(r.parts)
		},
	},
	{
		ID:      StepMount,
		State:   StateMounting,
		Percent: 50,
		Message: "Mounting partitions...",
		run: func(r *run) error {
			return r.mounts.MountPartitions(r.parts)
		},
	},
	{
		ID:      StepDeploy,
		State:   StateDeploying,
		Percent: 60,
		Message: "Copying system files...",
		run: func(r *run) error {
			info, err := r.deployer.Deploy(r.mounts.Root())
			if err != nil {
				return err
			}
			r.osRelease = info
			return nil
		},
	},
	{
		ID:      StepBootloader,
		State:   StateBootstrapping,
		Percent: 70,
		Message: "Installing bootloader...",
		run: func(r *run) error {
			if err := r.mounts.BindVirtual(); err != nil {
				return err
			}
			return r.bootstrapper.InstallBootloader()
		},
	},
	{
		ID:      StepPackages,
		State:   StateBootstrapping,
		Percent: 80,
		Message: "Configuring system...",
		run: func(r *run) error {
			return r.bootstrapper.InstallPackages()
		},
	},
	{
		ID:      StepCleanup,
		State:   StateUnmounting,
		Percent: 90,
		Message: "Cleaning up...",
		run: func(r *run) error {
			return r.mounts.Teardown()
		},
	},
}

// Steps returns the steps a run for the given mode goes through, in
// order.
func Steps(mode PartitioningMode) []Step {
	var res []Step
	for _, s := range steps {
		if s.AutomaticOnly && mode != ModeAutomatic {
			continue
		}
		res = append(res, s)
	}
	return res
}

func stepByID(id string) Step {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	panic(fmt.Sprintf("unknown installation step %q", id))
}
