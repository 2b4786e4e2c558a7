// Package manifest handles jsrt.toml engine configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "jsrt.toml"

// Manifest represents a jsrt.toml configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Engine  Engine  `toml:"engine"`
	GC      GC      `toml:"gc"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the jsrt.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures which scripts a runner executes.
type Source struct {
	// Preload scripts run, in order, in the same realm before Entry.
	Preload []string `toml:"preload"`
	Entry   string   `toml:"entry"`
}

// Engine configures one Realm.
type Engine struct {
	// MaxCallDepth bounds nested script and native calls.
	MaxCallDepth int `toml:"max-call-depth"`
	// MaxCells bounds the heap arena; 0 means unbounded.
	MaxCells int `toml:"max-cells"`
	// Timeout, when set, is applied by runners through RunContext.
	Timeout Duration `toml:"timeout"`
	// CacheDir holds compiled bytecode keyed by source hash.
	CacheDir string `toml:"cache-dir"`

	GC GC `toml:"-"`
}

// GC configures the collector.
type GC struct {
	// ThresholdBytes of allocation since the last cycle requests a
	// collection at the next safepoint.
	ThresholdBytes int64 `toml:"threshold-bytes"`
	// StrongPrototypeLinks traces object->prototype edges.
	StrongPrototypeLinks bool `toml:"strong-prototype-links"`
	// ExposeGC installs a global gc() function.
	ExposeGC bool `toml:"expose-gc"`
}

// Log configures commonlog verbosity.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Duration is a time.Duration that decodes from a TOML string like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults
const (
	DefaultMaxCallDepth   = 1024
	DefaultThresholdBytes = 4 << 20
)

// Default returns the configuration used when no jsrt.toml is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// DefaultEngine returns the engine configuration of Default.
func DefaultEngine() Engine {
	return Default().EngineConfig()
}

func (m *Manifest) applyDefaults() {
	if m.Engine.MaxCallDepth <= 0 {
		m.Engine.MaxCallDepth = DefaultMaxCallDepth
	}
	if m.GC.ThresholdBytes <= 0 {
		m.GC.ThresholdBytes = DefaultThresholdBytes
	}
}

// Parse decodes jsrt.toml content and applies defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	m.applyDefaults()
	return &m, nil
}

// Load parses a jsrt.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// LoadFile parses the manifest at an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a jsrt.toml file,
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

// EngineConfig returns the engine settings with the [gc] table folded in.
func (m *Manifest) EngineConfig() Engine {
	e := m.Engine
	e.GC = m.GC
	return e
}

// Resolve returns path relative to the manifest directory.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// PreloadPaths returns absolute paths of the configured preload scripts.
func (m *Manifest) PreloadPaths() []string {
	var paths []string
	for _, p := range m.Source.Preload {
		paths = append(paths, m.Resolve(p))
	}
	return paths
}
