package disk

import (
	"fmt"

	"github.com/privalinux/installer/pkg/datasizes"
)

const (
	// EFIPartitionIndex and RootPartitionIndex are the partition numbers
	// automatic partitioning creates.
	EFIPartitionIndex  = 1
	RootPartitionIndex = 2
)

// Layout describes where the EFI System Partition sits on a drive that
// is partitioned automatically. The root partition always spans from
// the end of the ESP to the end of the drive.
type Layout struct {
	ESPStart datasizes.Size `json:"esp_start" toml:"esp_start" yaml:"esp_start"`
	ESPEnd   datasizes.Size `json:"esp_end" toml:"esp_end" yaml:"esp_end"`
}

// DefaultLayout returns a 1 MiB aligned ESP that ends at 512 MiB.
func DefaultLayout() Layout {
	return Layout{
		ESPStart: 1 * datasizes.MiB,
		ESPEnd:   512 * datasizes.MiB,
	}
}

// Validate checks that both boundaries are MiB aligned, that the ESP
// does not start before the first MiB (where the GPT lives) and that it
// is not empty.
func (l Layout) Validate() error {
	if l.ESPStart%datasizes.MiB != 0 || l.ESPEnd%datasizes.MiB != 0 {
		return fmt.Errorf("partition boundaries must be MiB aligned, got %d and %d bytes", l.ESPStart, l.ESPEnd)
	}
	if l.ESPStart < datasizes.MiB {
		return fmt.Errorf("EFI partition must not start before 1 MiB, got %s", l.ESPStart)
	}
	if l.ESPEnd <= l.ESPStart {
		return fmt.Errorf("EFI partition end (%s) must be after its start (%s)", l.ESPEnd, l.ESPStart)
	}
	return nil
}

// partedOffset renders a MiB aligned size the way parted expects it.
func partedOffset(sz datasizes.Size) string {
	return fmt.Sprintf("%dMiB", sz/datasizes.MiB)
}
