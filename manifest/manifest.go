// Package manifest handles byterun.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked for by FindAndLoad.
const FileName = "byterun.toml"

// DefaultMaxDepth bounds the frame stack when the manifest sets no limit.
// An explicit max-depth of 0 leaves the stack unbounded.
const DefaultMaxDepth = 1000

// ErrConflictingEntry is returned when both run.entry and run.module are set.
var ErrConflictingEntry = errors.New("run.entry and run.module are mutually exclusive")

// Manifest represents a byterun.toml project configuration.
type Manifest struct {
	Project Project   `toml:"project"`
	Run     RunConfig `toml:"run"`
	Log     LogConfig `toml:"log"`

	// Dir is the directory containing the byterun.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// RunConfig says what to execute and how.
type RunConfig struct {
	Entry    string   `toml:"entry"`  // unit file, relative to Dir
	Module   string   `toml:"module"` // dotted module name, run as with -m
	Path     []string `toml:"path"`   // search path entries, relative to Dir
	MaxDepth *int     `toml:"max-depth"`
	Argv     []string `toml:"argv"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses the byterun.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses and validates a manifest at an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if m.Run.Entry != "" && m.Run.Module != "" {
		return nil, fmt.Errorf("invalid %s: %w", path, ErrConflictingEntry)
	}
	if m.Run.Module != "" && IsReservedModule(m.Run.Module) {
		return nil, fmt.Errorf("invalid %s: run.module %q is reserved", path, m.Run.Module)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if m.Run.MaxDepth == nil {
		depth := DefaultMaxDepth
		m.Run.MaxDepth = &depth
	}
	if len(m.Run.Path) == 0 {
		m.Run.Path = []string{"."}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a byterun.toml file,
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

// FrameLimit returns run.max-depth, or DefaultMaxDepth if unset.
func (m *Manifest) FrameLimit() int {
	if m.Run.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *m.Run.MaxDepth
}

// EntryPath returns the absolute path of run.entry, or "" if unset.
func (m *Manifest) EntryPath() string {
	if m.Run.Entry == "" {
		return ""
	}
	return m.resolve(m.Run.Entry)
}

// SearchPath returns absolute paths for the configured search path.
func (m *Manifest) SearchPath() []string {
	var paths []string
	for _, p := range m.Run.Path {
		paths = append(paths, m.resolve(p))
	}
	return paths
}

// LogFile returns the absolute path of log.file, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
