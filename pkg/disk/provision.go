package disk

import (
	"fmt"
	"strconv"

	"github.com/privalinux/installer/pkg/command"
)

// Provisioner writes a fresh GPT label with an EFI System Partition and a
// root partition to a whole drive using parted. Every method is
// destructive.
type Provisioner struct {
	runner command.Runner
	layout Layout
}

// NewProvisioner returns a Provisioner for the given layout. The layout
// must be valid.
func NewProvisioner(runner command.Runner, layout Layout) (*Provisioner, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return &Provisioner{
		runner: runner,
		layout: layout,
	}, nil
}

func (p *Provisioner) parted(drive string, args ...string) error {
	_, err := p.runner.Run("parted", append([]string{"-s", drive}, args...)...)
	return err
}

// CreateTable writes an empty GPT partition table.
func (p *Provisioner) CreateTable(drive string) error {
	return p.parted(drive, "mklabel", PT_GPT.String())
}

// CreateESP creates the first partition and flags it as EFI System
// Partition.
func (p *Provisioner) CreateESP(drive string) error {
	err := p.parted(drive, "mkpart", "primary", FS_VFAT.PartedName(),
		partedOffset(p.layout.ESPStart), partedOffset(p.layout.ESPEnd))
	if err != nil {
		return err
	}
	return p.parted(drive, "set", strconv.Itoa(EFIPartitionIndex), "esp", "on")
}

// CreateRoot creates the second partition, filling the rest of the
// drive.
func (p *Provisioner) CreateRoot(drive string) error {
	return p.parted(drive, "mkpart", "primary", FS_EXT4.PartedName(),
		partedOffset(p.layout.ESPEnd), "100%")
}

// Provision runs CreateTable, CreateESP and CreateRoot in order and
// returns the resulting partitions. It stops at the first failure.
func (p *Provisioner) Provision(drive string) (PartitionSet, error) {
	for _, create := range []func(string) error{p.CreateTable, p.CreateESP, p.CreateRoot} {
		if err := create(drive); err != nil {
			return PartitionSet{}, err
		}
	}
	return AutomaticPartitions(drive), nil
}

// AutomaticPartitions returns the partitions automatic partitioning
// creates on drive.
func AutomaticPartitions(drive string) PartitionSet {
	return PartitionSet{
		EFI:  PartitionRef{Device: drive, Index: EFIPartitionIndex}.Path(),
		Root: PartitionRef{Device: drive, Index: RootPartitionIndex}.Path(),
	}
}
