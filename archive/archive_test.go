package archive

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/chazu/byterun/vm"
	"github.com/chazu/byterun/vm/wire"
)

func constModule(filename string, v vm.Value) *vm.Code {
	b := vm.NewCodeBuilder("<module>", filename, 1)
	b.LoadConst(v).Return()
	return b.Build()
}

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "units"+Ext))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// ---------------------------------------------------------------------------
// Store and load
// ---------------------------------------------------------------------------

func TestPutGet(t *testing.T) {
	a := openTemp(t)

	if err := a.Put("pkg.answer", constModule("answer.py", vm.Int(42))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	code, err := a.Get("pkg.answer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if code.Filename != "answer.py" {
		t.Errorf("filename = %q", code.Filename)
	}
	result, err := vm.NewVM().Run(code, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != vm.Int(42) {
		t.Errorf("result = %v, want 42", result)
	}

	if _, err := a.Get("pkg.missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing module: err = %v, want ErrNotFound", err)
	}
}

func TestPutReplaces(t *testing.T) {
	a := openTemp(t)

	first := constModule("m.py", vm.Int(1))
	second := constModule("m.py", vm.Int(2))
	if err := a.Put("m", first); err != nil {
		t.Fatal(err)
	}
	if err := a.Put("m", second); err != nil {
		t.Fatal(err)
	}

	got, err := a.Hash("m")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := wire.Hash(second)
	if got != want {
		t.Errorf("stored hash does not match the replacement unit")
	}
	names, _ := a.Modules()
	if len(names) != 1 {
		t.Errorf("Modules() = %v, want one entry", names)
	}
}

func TestDeleteAndList(t *testing.T) {
	a := openTemp(t)
	for _, name := range []string{"b", "a.x", "a"} {
		if err := a.Put(name, constModule(name+".py", vm.None)); err != nil {
			t.Fatal(err)
		}
	}

	names, err := a.Modules()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"a", "a.x", "b"}) {
		t.Errorf("Modules() = %v", names)
	}

	if err := a.Delete("a.x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Delete("a.x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if _, err := a.Hash("a.x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("hash after delete: err = %v", err)
	}
}

func TestReopenKeepsUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep"+Ext)
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Put("kept", constModule("kept.py", vm.Str("yes"))); err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Get("kept"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
	if !IsArchive(path) {
		t.Errorf("IsArchive(%s) = false", path)
	}
}

// ---------------------------------------------------------------------------
// Packing
// ---------------------------------------------------------------------------

func TestModuleName(t *testing.T) {
	tests := []struct {
		rel  string
		want string
		ok   bool
	}{
		{"main.byc", "main", true},
		{"a/b.byc", "a.b", true},
		{"a/b/__main__.byc", "a.b.__main__", true},
		{"notes.txt", "", false},
		{"../up.byc", "", false},
	}
	for _, tt := range tests {
		got, ok := ModuleName(tt.rel)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ModuleName(%q) = %q, %v; want %q, %v", tt.rel, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPackDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]vm.Value{
		"util.byc":         vm.Int(1),
		"app/__main__.byc": vm.Int(2),
	}
	for rel, v := range files {
		if err := wire.WriteFile(filepath.Join(root, rel), constModule(rel, v)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := openTemp(t)
	packed, err := a.PackDir(root)
	if err != nil {
		t.Fatalf("PackDir: %v", err)
	}
	slices.Sort(packed)
	if !slices.Equal(packed, []string{"app.__main__", "util"}) {
		t.Errorf("packed = %v", packed)
	}

	code, err := a.Get("app.__main__")
	if err != nil {
		t.Fatal(err)
	}
	if code.Filename != "app/__main__.byc" {
		t.Errorf("filename = %q", code.Filename)
	}
}

func TestPackDirRejectsBadUnit(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "broken.byc"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := openTemp(t)
	if _, err := a.PackDir(root); err == nil {
		t.Errorf("PackDir should fail on a corrupt unit")
	}
}
