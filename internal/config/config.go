// Package config loads the installer configuration from a TOML, YAML or
// JSON file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/privalinux/installer/pkg/chroot"
	"github.com/privalinux/installer/pkg/deploy"
	"github.com/privalinux/installer/pkg/disk"
	"github.com/privalinux/installer/pkg/install"
	"github.com/privalinux/installer/pkg/mount"
)

// configRootDir is searched for a config file when no path is given
var configRootDir = "/etc/privalinux-installer"

var osStdin io.Reader = os.Stdin

var configNames = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

type Config struct {
	MountRoot        string `json:"mount_root" toml:"mount_root" yaml:"mount_root"`
	SourceTree       string `json:"source_tree" toml:"source_tree" yaml:"source_tree"`
	CleanupOnFailure bool   `json:"cleanup_on_failure" toml:"cleanup_on_failure" yaml:"cleanup_on_failure"`
	LogLevel         string `json:"log_level" toml:"log_level" yaml:"log_level"`

	Target     install.Target    `json:"target" toml:"target" yaml:"target"`
	Layout     disk.Layout       `json:"layout" toml:"layout" yaml:"layout"`
	Bootloader chroot.Bootloader `json:"bootloader" toml:"bootloader" yaml:"bootloader"`
	Packages   []string          `json:"packages" toml:"packages" yaml:"packages"`
}

// Default returns the configuration used when there is no config file.
// Values missing from a config file keep these defaults.
func Default() *Config {
	return &Config{
		MountRoot:        mount.DefaultRoot,
		SourceTree:       deploy.DefaultSourceTree,
		CleanupOnFailure: true,
		LogLevel:         "info",
		Layout:           disk.DefaultLayout(),
		Bootloader:       chroot.DefaultBootloader(),
		Packages:         append([]string(nil), chroot.DefaultPackages...),
	}
}

// Options returns the installer options of the configuration.
func (c *Config) Options() install.Options {
	return install.Options{
		MountRoot:        c.MountRoot,
		SourceTree:       c.SourceTree,
		Layout:           c.Layout,
		Bootloader:       c.Bootloader,
		Packages:         append([]string{}, c.Packages...),
		CleanupOnFailure: c.CleanupOnFailure,
	}
}

func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}
	if !filepath.IsAbs(c.MountRoot) {
		return fmt.Errorf("mount_root must be an absolute path, got %q", c.MountRoot)
	}
	if filepath.Clean(c.MountRoot) == "/" {
		return fmt.Errorf("mount_root must not be the host root, got %q", c.MountRoot)
	}
	if !filepath.IsAbs(c.SourceTree) {
		return fmt.Errorf("source_tree must be an absolute path, got %q", c.SourceTree)
	}
	return nil
}

func decodeTOML(r io.Reader, what string, conf *Config) error {
	dec := toml.NewDecoder(r)
	meta, err := dec.Decode(conf)
	if err != nil {
		return fmt.Errorf("cannot decode %q: %w", what, err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("cannot decode %q: unknown keys found: %v", what, keys)
	}
	return nil
}

func decodeYAML(r io.Reader, what string, conf *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cannot decode %q: %w", what, err)
	}
	return nil
}

func decodeJSON(r io.Reader, what string, conf *Config) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("cannot decode %q: %w", what, err)
	}
	if dec.More() {
		return fmt.Errorf("multiple configuration objects or extra data found in %q", what)
	}
	return nil
}

func decode(r io.Reader, name string, conf *Config) error {
	switch filepath.Ext(name) {
	case ".toml":
		return decodeTOML(r, name, conf)
	case ".yaml", ".yml":
		return decodeYAML(r, name, conf)
	case ".json":
		return decodeJSON(r, name, conf)
	default:
		return fmt.Errorf("unsupported file extension for %q (please use .toml, .yaml or .json)", name)
	}
}

// decodeStdin decides between JSON and TOML by the first character, YAML
// is not supported on stdin.
func decodeStdin(conf *Config) error {
	data, err := io.ReadAll(osStdin)
	if err != nil {
		return fmt.Errorf("cannot read config from stdin: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return decodeJSON(bytes.NewReader(data), "<stdin>", conf)
	}
	return decodeTOML(bytes.NewReader(data), "<stdin>", conf)
}

func findConfig() (string, error) {
	var found []string
	for _, name := range configNames {
		p := filepath.Join(configRootDir, name)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		names := make([]string, len(found))
		for i, p := range found {
			names[i] = fmt.Sprintf("%q", filepath.Base(p))
		}
		return "", fmt.Errorf("found %s, only a single one is supported", strings.Join(names, " and also "))
	}
}

// Load reads the configuration at path on top of the defaults. With an
// empty path the config directory is searched, and without any config
// file the defaults are returned. "-" reads from stdin.
func Load(path string) (*Config, error) {
	conf := Default()

	switch path {
	case "-":
		if err := decodeStdin(conf); err != nil {
			return nil, err
		}
	case "":
		found, err := findConfig()
		if err != nil {
			return nil, err
		}
		if found == "" {
			logrus.Debugf("no config file in %s, using defaults", configRootDir)
			return conf, nil
		}
		path = found
		fallthrough
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := decode(f, path, conf); err != nil {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}
