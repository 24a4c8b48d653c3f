package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"

[run]
module = "app.main"
path = ["build", "vendor/units.db"]
max-depth = 200
argv = ["--fast", "input.txt"]

[log]
verbosity = 2
file = "byterun.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Run.Module != "app.main" {
		t.Errorf("run module = %q, want app.main", m.Run.Module)
	}
	if m.FrameLimit() != 200 {
		t.Errorf("max-depth = %d, want 200", m.FrameLimit())
	}
	if len(m.Run.Argv) != 2 || m.Run.Argv[1] != "input.txt" {
		t.Errorf("argv = %v", m.Run.Argv)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if m.LogFile() != filepath.Join(m.Dir, "byterun.log") {
		t.Errorf("log file = %q", m.LogFile())
	}
	if m.EntryPath() != "" {
		t.Errorf("entry path = %q, want empty", m.EntryPath())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.FrameLimit() != DefaultMaxDepth {
		t.Errorf("default max-depth = %d, want %d", m.FrameLimit(), DefaultMaxDepth)
	}
	if len(m.Run.Path) != 1 || m.Run.Path[0] != "." {
		t.Errorf("default path = %v, want [.]", m.Run.Path)
	}
	if m.LogFile() != "" {
		t.Errorf("default log file = %q, want stderr", m.LogFile())
	}
}

func TestLoadManifestUnboundedDepth(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[run]\nmax-depth = 0\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Run.MaxDepth == nil || m.FrameLimit() != 0 {
		t.Errorf("max-depth = %v, want an explicit 0", m.Run.MaxDepth)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestLoadManifestRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown section", "[image]\noutput = \"x\"\n"},
		{"unknown key", "[run]\nentry = \"main.byc\"\ncolour = true\n"},
		{"wrong type", "[run]\nmax-depth = \"deep\"\n"},
		{"negative depth", "[run]\nmax-depth = -1\n"},
		{"bad module name", "[run]\nmodule = \"app..main\"\n"},
		{"empty entry", "[run]\nentry = \"\"\n"},
		{"verbosity too high", "[log]\nverbosity = 9\n"},
		{"reserved module", "[run]\nmodule = \"sys\"\n"},
		{"not toml", "[run\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Errorf("Load accepted %q", tt.content)
			}
		})
	}
}

func TestEntryAndModuleConflict(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[run]\nentry = \"main.byc\"\nmodule = \"main\"\n")
	_, err := Load(dir)
	if !errors.Is(err, ErrConflictingEntry) {
		t.Errorf("err = %v, want ErrConflictingEntry", err)
	}
}

func TestLoadFileExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte("[run]\nentry = \"bin/main.byc\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !strings.HasSuffix(m.EntryPath(), filepath.Join("bin", "main.byc")) || !filepath.IsAbs(m.EntryPath()) {
		t.Errorf("entry path = %q", m.EntryPath())
	}

	if _, err := LoadFile(filepath.Join(dir, "absent.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

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
		t.Error("expected nil manifest when no byterun.toml exists")
	}
}

func TestSearchPath(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Run: RunConfig{
			Path: []string{"build", "/opt/units"},
		},
	}

	paths := m.SearchPath()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/build" {
		t.Errorf("paths[0] = %q, want /app/build", paths[0])
	}
	if paths[1] != "/opt/units" {
		t.Errorf("paths[1] = %q, want /opt/units", paths[1])
	}
}

// ---------------------------------------------------------------------------
// Module names
// ---------------------------------------------------------------------------

func TestIsReservedModule(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sys", true},
		{"sys.path", true},
		{"__main__", true},
		{"app", false},
		{"app.sys", false},
	}
	for _, tt := range tests {
		if got := IsReservedModule(tt.name); got != tt.want {
			t.Errorf("IsReservedModule(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if got := ModulePath("a.b.c"); got != "a/b/c" {
		t.Errorf("ModulePath = %q", got)
	}
}
