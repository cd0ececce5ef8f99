// Package osrelease reads the os-release file of an installed tree.
package osrelease

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// Paths are tried in order, relative to the tree root.
var Paths = []string{"etc/os-release", "usr/lib/os-release"}

type Info struct {
	ID         string
	Name       string
	PrettyName string
	VersionID  string

	// Fields holds every key of the file.
	Fields map[string]string
}

func (i *Info) String() string {
	if i.PrettyName != "" {
		return i.PrettyName
	}
	if i.VersionID != "" {
		return fmt.Sprintf("%s %s", i.Name, i.VersionID)
	}
	return i.Name
}

// Parse reads os-release formatted key=value pairs. Quotes around values
// are removed.
func Parse(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse os-release: %w", err)
	}
	return cfg.Section(ini.DefaultSection).KeysHash(), nil
}

// Read returns the os-release information of the tree at root. A tree
// without any os-release file yields nil and no error.
func Read(fsys afero.Fs, root string) (*Info, error) {
	for _, p := range Paths {
		f, err := fsys.Open(path.Join(root, p))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()

		fields, err := Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Join(root, p), err)
		}
		return &Info{
			ID:         fields["ID"],
			Name:       fields["NAME"],
			PrettyName: fields["PRETTY_NAME"],
			VersionID:  fields["VERSION_ID"],
			Fields:     fields,
		}, nil
	}
	return nil, nil
}
