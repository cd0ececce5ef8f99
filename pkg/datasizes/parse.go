package datasizes

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	KiloByte = 1000
	KibiByte = 1024
	MegaByte = 1000 * KiloByte
	MebiByte = 1024 * KibiByte
	GigaByte = 1000 * MegaByte
	GibiByte = 1024 * MebiByte
	TeraByte = 1000 * GigaByte
	TebiByte = 1024 * GibiByte

	KiB Size = KibiByte
	MiB Size = MebiByte
	GiB Size = GibiByte
	TiB Size = TebiByte
)

var sizeRegex = regexp.MustCompile(`^\s*(\d+)\s*([A-Za-z]*)\s*$`)

var unitMultiplier = map[string]uint64{
	"":    1,
	"kB":  KiloByte,
	"KiB": KibiByte,
	"MB":  MegaByte,
	"MiB": MebiByte,
	"GB":  GigaByte,
	"GiB": GibiByte,
	"TB":  TeraByte,
	"TiB": TebiByte,
}

// Parse converts a size specified as a text in a human readable format
// ("123 MiB", "2GB", "4096") to bytes. Unit names are case sensitive.
func Parse(size string) (uint64, error) {
	m := sizeRegex.FindStringSubmatch(size)
	if m == nil {
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}
	multiplier, ok := unitMultiplier[m[2]]
	if !ok {
		return 0, fmt.Errorf("unknown data size units in string: %s", size)
	}
	value, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse data size %q: %w", size, err)
	}
	return value * multiplier, nil
}
