package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/byterun/archive"
	"github.com/chazu/byterun/manifest"
	"github.com/chazu/byterun/vm"
	"github.com/chazu/byterun/vm/wire"
)

func writeUnit(t *testing.T, path string, code *vm.Code) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFile(path, code); err != nil {
		t.Fatal(err)
	}
}

// printModule builds `print(<msg>)`.
func printModule(filename, msg string) *vm.Code {
	b := vm.NewCodeBuilder("<module>", filename, 1)
	b.LoadName("print").LoadConst(vm.Str(msg)).Call(1).Emit(vm.OpPopTop)
	b.LoadConst(vm.None).Return()
	return b.Build()
}

// failingModule builds:
//
//	def fail():
//	    raise ValueError("bad input")
//	fail()
func failingModule() *vm.Code {
	fb := vm.NewCodeBuilder("fail", "fail.py", 1)
	fb.SetFlags(vm.CoOptimized | vm.CoNewLocals)
	fb.SetLine(2)
	fb.LoadGlobal("ValueError").LoadConst(vm.Str("bad input")).Call(1)
	fb.EmitArg(vm.OpRaiseVarargs, 1)
	fail := fb.Build()

	b := vm.NewCodeBuilder("<module>", "fail.py", 1)
	b.LoadConst(fail).LoadConst(vm.Str("fail")).EmitArg(vm.OpMakeFunction, 0)
	b.StoreName("fail")
	b.SetLine(3)
	b.LoadName("fail").Call(0).Emit(vm.OpPopTop)
	b.LoadConst(vm.None).Return()
	return b.Build()
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	// An explicit config keeps the test from picking up a stray byterun.toml.
	cfg := filepath.Join(t.TempDir(), "byterun.toml")
	if err := os.WriteFile(cfg, []byte("[project]\nname = \"cli-test\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code := run(append([]string{"-config", cfg}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

func TestRunUnitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.byc")
	writeUnit(t, path, printModule("hello.py", "hello, world"))

	status, stdout, stderr := runCLI(t, path, "extra")
	if status != 0 {
		t.Fatalf("status = %d, stderr:\n%s", status, stderr)
	}
	if stdout != "hello, world\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestUncaughtExceptionExitsOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.byc")
	writeUnit(t, path, failingModule())

	status, _, stderr := runCLI(t, path)
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	for _, want := range []string{
		"Traceback (most recent call last):",
		`File "fail.py", line 3, in <module>`,
		`File "fail.py", line 2, in fail`,
		"ValueError: bad input",
	} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestMissingUnitExitsOne(t *testing.T) {
	status, _, stderr := runCLI(t, filepath.Join(t.TempDir(), "nope.byc"))
	if status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
	if !strings.Contains(stderr, "no source") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestNoTarget(t *testing.T) {
	if status, _, _ := runCLI(t); status != 2 {
		t.Errorf("status = %d, want 2", status)
	}
}

// ---------------------------------------------------------------------------
// Manifest-driven runs
// ---------------------------------------------------------------------------

func TestManifestModule(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, filepath.Join(dir, "build", "app", "__main__.byc"), printModule("app/__main__.py", "from the manifest"))
	cfg := filepath.Join(dir, "byterun.toml")
	content := "[run]\nmodule = \"app\"\npath = [\"build\"]\nmax-depth = 50\n"
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	status := run([]string{"-config", cfg}, &stdout, &stderr)
	if status != 0 {
		t.Fatalf("status = %d, stderr:\n%s", status, stderr.String())
	}
	if stdout.String() != "from the manifest\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestMaxDepthFromManifest(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"[project]\nname = \"d\"\n", manifest.DefaultMaxDepth},
		{"[run]\nmax-depth = 0\n", 0},
		{"[run]\nmax-depth = 25\n", 25},
	}
	for _, tt := range tests {
		cfg := filepath.Join(t.TempDir(), "byterun.toml")
		if err := os.WriteFile(cfg, []byte(tt.content), 0o644); err != nil {
			t.Fatal(err)
		}
		m, err := manifest.LoadFile(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got := maxDepth(m); got != tt.want {
			t.Errorf("maxDepth(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
	if got := maxDepth(nil); got != manifest.DefaultMaxDepth {
		t.Errorf("maxDepth(nil) = %d, want %d", got, manifest.DefaultMaxDepth)
	}
}

func TestInvalidManifest(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "byterun.toml")
	if err := os.WriteFile(cfg, []byte("[run]\nmax-depth = \"deep\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if status := run([]string{"-config", cfg, "x.byc"}, &stdout, &stderr); status != 1 {
		t.Errorf("status = %d, want 1", status)
	}
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func TestDisassembleIncludesNestedCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.byc")
	writeUnit(t, path, failingModule())

	status, stdout, stderr := runCLI(t, "-dis", path)
	if status != 0 {
		t.Fatalf("status = %d, stderr:\n%s", status, stderr)
	}
	for _, want := range []string{"MAKE_FUNCTION", "Disassembly of", "RAISE_VARARGS", "LOAD_GLOBAL"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("disassembly missing %q:\n%s", want, stdout)
		}
	}
}

func TestPackThenRunModule(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "build")
	writeUnit(t, filepath.Join(src, "greet.byc"), printModule("greet.py", "packed hello"))
	db := filepath.Join(dir, "units"+archive.Ext)

	status, stdout, stderr := runCLI(t, "-pack", db, src)
	if status != 0 {
		t.Fatalf("pack status = %d, stderr:\n%s", status, stderr)
	}
	if !strings.Contains(stdout, "packed 1 units") {
		t.Errorf("pack stdout = %q", stdout)
	}

	cfg := filepath.Join(dir, "byterun.toml")
	if err := os.WriteFile(cfg, []byte("[run]\npath = [\"units.db\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	if status := run([]string{"-config", cfg, "-m", "greet"}, &out, &errOut); status != 0 {
		t.Fatalf("run status = %d, stderr:\n%s", status, errOut.String())
	}
	if out.String() != "packed hello\n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestIsExceptionLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Traceback (most recent call last):\n", false},
		{"  File \"a.py\", line 1, in <module>\n", false},
		{"\n", false},
		{"During handling of the above exception, another exception occurred:\n", false},
		{"KeyError: 'k'\n", true},
		{"ValueError\n", true},
	}
	for _, tt := range tests {
		if got := isExceptionLine(tt.line); got != tt.want {
			t.Errorf("isExceptionLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
