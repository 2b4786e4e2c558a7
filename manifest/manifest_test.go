package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a jsrt.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.1.0"

[source]
preload = ["lib/prelude.js"]
entry = "main.js"

[engine]
max-call-depth = 200
max-cells = 100000
timeout = "1500ms"
cache-dir = ".jsrt/cache"

[gc]
threshold-bytes = 65536
strong-prototype-links = true
expose-gc = true

[log]
verbosity = 2
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "main.js" {
		t.Errorf("source entry = %q, want main.js", m.Source.Entry)
	}
	if m.Engine.MaxCallDepth != 200 {
		t.Errorf("max-call-depth = %d, want 200", m.Engine.MaxCallDepth)
	}
	if m.Engine.MaxCells != 100000 {
		t.Errorf("max-cells = %d, want 100000", m.Engine.MaxCells)
	}
	if m.Engine.Timeout.Duration != 1500*time.Millisecond {
		t.Errorf("timeout = %v, want 1.5s", m.Engine.Timeout.Duration)
	}
	if m.GC.ThresholdBytes != 65536 {
		t.Errorf("threshold-bytes = %d, want 65536", m.GC.ThresholdBytes)
	}
	if !m.GC.StrongPrototypeLinks || !m.GC.ExposeGC {
		t.Errorf("gc flags = %+v, want both set", m.GC)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}

	e := m.EngineConfig()
	if e.GC != m.GC {
		t.Errorf("EngineConfig().GC = %+v, want %+v", e.GC, m.GC)
	}

	paths := m.PreloadPaths()
	if len(paths) != 1 || paths[0] != filepath.Join(m.Dir, "lib", "prelude.js") {
		t.Errorf("PreloadPaths() = %v", paths)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Engine.MaxCallDepth != DefaultMaxCallDepth {
		t.Errorf("default max-call-depth = %d, want %d", m.Engine.MaxCallDepth, DefaultMaxCallDepth)
	}
	if m.GC.ThresholdBytes != DefaultThresholdBytes {
		t.Errorf("default threshold = %d, want %d", m.GC.ThresholdBytes, DefaultThresholdBytes)
	}
	if m.GC.StrongPrototypeLinks {
		t.Error("strong prototype links should default to off")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[engine]\nmax-depth = 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("[engine]\ntimeout = \"soon\"\n"))
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestDefault(t *testing.T) {
	e := DefaultEngine()
	if e.MaxCallDepth != DefaultMaxCallDepth {
		t.Errorf("MaxCallDepth = %d", e.MaxCallDepth)
	}
	if e.GC.ThresholdBytes != DefaultThresholdBytes {
		t.Errorf("ThresholdBytes = %d", e.GC.ThresholdBytes)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte("[engine]\nmax-call-depth = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if m.Engine.MaxCallDepth != 7 {
		t.Errorf("max-call-depth = %d, want 7", m.Engine.MaxCallDepth)
	}
	if m.Resolve("x.js") != filepath.Join(m.Dir, "x.js") {
		t.Errorf("Resolve(x.js) = %q", m.Resolve("x.js"))
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no jsrt.toml exists")
	}
}
