package datasizes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Size is a wrapper around uint64 with support for reading from string
// yaml/toml/json, so {"size": 123}, {"size": "1234"}, {"size": "1 GiB"} are
// all supported
type Size uint64

// Uint64 returns the size as uint64. This is a convenience functions,
// it is strictly equivalent to uint64(Size(1))
func (sz Size) Uint64() uint64 {
	return uint64(sz)
}

// String renders the size using the largest binary unit that divides
// it without remainder, e.g. "512 MiB".
func (sz Size) String() string {
	units := []struct {
		name string
		size Size
	}{
		{"TiB", TiB},
		{"GiB", GiB},
		{"MiB", MiB},
		{"KiB", KiB},
	}
	for _, u := range units {
		if sz != 0 && sz%u.size == 0 {
			return fmt.Sprintf("%d %s", sz/u.size, u.name)
		}
	}
	return strconv.FormatUint(uint64(sz), 10)
}

func (sz *Size) UnmarshalTOML(data interface{}) error {
	if err := sz.decode(data); err != nil {
		return fmt.Errorf("error decoding TOML size: %w", err)
	}
	return nil
}

func (sz *Size) UnmarshalJSON(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("error decoding size: %w", err)
	}
	if err := sz.decode(v); err != nil {
		return fmt.Errorf("error decoding size: %w", err)
	}
	return nil
}

func (sz *Size) UnmarshalYAML(value *yaml.Node) error {
	var v interface{}
	if err := value.Decode(&v); err != nil {
		return fmt.Errorf("error decoding YAML size: %w", err)
	}
	if err := sz.decode(v); err != nil {
		return fmt.Errorf("error decoding YAML size: %w", err)
	}
	return nil
}

func (sz *Size) decode(v interface{}) error {
	switch val := v.(type) {
	case json.Number:
		i, err := strconv.ParseUint(string(val), 10, 64)
		if err != nil {
			return err
		}
		*sz = Size(i)
	case int64:
		if val < 0 {
			return fmt.Errorf("cannot be negative")
		}
		*sz = Size(val)
	case int:
		if val < 0 {
			return fmt.Errorf("cannot be negative")
		}
		*sz = Size(val)
	case uint64:
		*sz = Size(val)
	case float64:
		return fmt.Errorf("cannot be float")
	case string:
		i, err := Parse(val)
		if err != nil {
			return err
		}
		*sz = Size(i)
	default:
		return fmt.Errorf("failed to convert value \"%v\" to number", v)
	}
	return nil
}
