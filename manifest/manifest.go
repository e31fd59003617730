// Package manifest handles yo.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the manifest file looked up in project
// directories.
const FileName = "yo.toml"

// DefaultHeapSize is the heap size used when the manifest does not set one.
const DefaultHeapSize = 1 << 16

// Manifest represents a yo.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Compiler Compiler `toml:"compiler"`
	Runtime  Runtime  `toml:"runtime"`

	// Dir is the directory containing the yo.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// Compiler configures compilation.
type Compiler struct {
	Prelude           bool `toml:"prelude"`
	PrintInstructions bool `toml:"print-instructions"`
}

// Runtime configures the interpreter.
type Runtime struct {
	HeapSize       int  `toml:"heap-size"`
	CheckHeapEmpty bool `toml:"check-heap-empty"`
	ResetOnFree    bool `toml:"reset-on-free"`
}

// Default returns the manifest used when a project has no yo.toml.
func Default() *Manifest {
	return &Manifest{
		Project:  Project{Entry: "main.yo"},
		Compiler: Compiler{Prelude: true},
		Runtime: Runtime{
			HeapSize:    DefaultHeapSize,
			ResetOnFree: true,
		},
	}
}

// Load parses a yo.toml file from the given directory. Keys missing from the
// file keep their default values.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Runtime.HeapSize <= 0 {
		return nil, fmt.Errorf("%s: heap-size must be positive, got %d", path, m.Runtime.HeapSize)
	}
	if m.Project.Entry == "" {
		m.Project.Entry = "main.yo"
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a yo.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}
