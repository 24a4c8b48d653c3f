package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/byterun/archive"
	"github.com/chazu/byterun/vm"
	"github.com/chazu/byterun/vm/wire"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func moduleBuilder(filename string) *vm.CodeBuilder {
	return vm.NewCodeBuilder("<module>", filename, 1)
}

// emitImport emits IMPORT_NAME with its level and from list.
func emitImport(b *vm.CodeBuilder, name string, level int, from ...string) {
	b.LoadConst(vm.Int(level))
	if len(from) == 0 {
		b.LoadConst(vm.None)
	} else {
		names := make([]vm.Value, len(from))
		for i, n := range from {
			names[i] = vm.Str(n)
		}
		b.LoadConst(vm.NewTuple(names...))
	}
	b.EmitArg(vm.OpImportName, b.AddName(name))
}

func writeUnit(t *testing.T, dir, rel string, b *vm.CodeBuilder) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFile(path, b.Build()); err != nil {
		t.Fatal(err)
	}
	return path
}

// assignModule builds a module body `name = v`.
func assignModule(filename, name string, v vm.Value) *vm.CodeBuilder {
	b := moduleBuilder(filename)
	b.LoadConst(v).StoreName(name)
	b.LoadConst(vm.None).Return()
	return b
}

func newLoader(t *testing.T, path ...string) *Loader {
	t.Helper()
	l := New(vm.NewVM(vm.WithMaxDepth(200)), path...)
	t.Cleanup(func() { l.Close() })
	return l
}

// mustRun checks the result of a run: mustRun(t)(l.RunFile(...)).
func mustRun(t *testing.T) func(vm.Value, error) vm.Value {
	return func(v vm.Value, err error) vm.Value {
		t.Helper()
		if err != nil {
			if exc, ok := vm.AsException(err); ok {
				t.Fatalf("run failed:\n%s", exc.FormatTraceback())
			}
			t.Fatalf("run failed: %v", err)
		}
		return v
	}
}

func assertStateRestored(t *testing.T, l *Loader) {
	t.Helper()
	if argv := l.Argv(); len(argv) != 1 || argv[0] != "" {
		t.Errorf("sys.argv after run = %q, want [\"\"]", argv)
	}
	if path := l.Path(); len(path) == 0 || path[0] != "" {
		t.Errorf("sys.path after run = %q, want leading \"\"", path)
	}
	main, _ := l.Modules().GetStr("__main__")
	if m, ok := main.(*vm.Module); !ok {
		t.Errorf("sys.modules['__main__'] = %s", vm.TypeName(main))
	} else if _, ok := m.Dict.GetStr("__file__"); ok {
		t.Errorf("the run's __main__ module was not replaced")
	}
}

// ---------------------------------------------------------------------------
// RunFile
// ---------------------------------------------------------------------------

func TestRunFileSetsMainContext(t *testing.T) {
	dir := t.TempDir()
	// import sys
	// return (__name__, __file__, sys.argv, sys.path[0])
	b := moduleBuilder("prog.py")
	emitImport(b, "sys", 0)
	b.StoreName("sys")
	b.LoadName("__name__").LoadName("__file__")
	b.LoadName("sys").LoadAttr("argv")
	b.LoadName("sys").LoadAttr("path").LoadConst(vm.Int(0)).Emit(vm.OpBinarySubscr)
	b.EmitArg(vm.OpBuildTuple, 4).Return()
	path := writeUnit(t, dir, "prog.byc", b)

	l := newLoader(t)
	result := mustRun(t)(l.RunFile(path, []string{"prog.byc", "-v"}))

	want := "('__main__', " + vm.Repr(vm.Str(path)) + ", ['prog.byc', '-v'], " + vm.Repr(vm.Str(dir)) + ")"
	if got := vm.Repr(result); got != want {
		t.Errorf("result = %s\nwant %s", got, want)
	}
	assertStateRestored(t, l)
}

func TestRunFileRestoresAfterException(t *testing.T) {
	dir := t.TempDir()
	// raise ValueError("boom")
	b := moduleBuilder("boom.py")
	b.LoadName("ValueError").LoadConst(vm.Str("boom")).Call(1)
	b.EmitArg(vm.OpRaiseVarargs, 1)
	path := writeUnit(t, dir, "boom.byc", b)

	l := newLoader(t)
	_, err := l.RunFile(path, []string{"boom.byc"})
	exc, ok := vm.AsException(err)
	if !ok || !exc.Matches(vm.ValueErrorClass) {
		t.Fatalf("err = %v, want ValueError", err)
	}
	if len(exc.Traceback) == 0 || exc.Traceback[0].Filename != "boom.py" {
		t.Errorf("traceback = %+v", exc.Traceback)
	}
	assertStateRestored(t, l)
}

func TestRunFileMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	l := newLoader(t)

	_, err := l.RunFile(filepath.Join(dir, "absent.byc"), nil)
	if !errors.Is(err, ErrNoSource) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}

	bad := filepath.Join(dir, "bad.byc")
	if err := os.WriteFile(bad, []byte("not a unit"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RunFile(bad, nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("corrupt file: err = %v", err)
	}
	assertStateRestored(t, l)
}

// ---------------------------------------------------------------------------
// RunModule
// ---------------------------------------------------------------------------

func TestRunModulePackageMain(t *testing.T) {
	dir := t.TempDir()
	// import sys
	// return (__package__, sys.argv, sys.path[0])
	b := moduleBuilder("app/__main__.py")
	emitImport(b, "sys", 0)
	b.StoreName("sys")
	b.LoadName("__package__")
	b.LoadName("sys").LoadAttr("argv")
	b.LoadName("sys").LoadAttr("path").LoadConst(vm.Int(0)).Emit(vm.OpBinarySubscr)
	b.EmitArg(vm.OpBuildTuple, 3).Return()
	entry := writeUnit(t, dir, filepath.Join("app", "__main__.byc"), b)

	l := newLoader(t, dir)
	result := mustRun(t)(l.RunModule("app", []string{"app", "--flag"}))

	want := "('app', [" + vm.Repr(vm.Str(entry)) + ", '--flag'], '')"
	if got := vm.Repr(result); got != want {
		t.Errorf("result = %s\nwant %s", got, want)
	}
	assertStateRestored(t, l)
}

func TestRunModuleDotted(t *testing.T) {
	dir := t.TempDir()
	b := moduleBuilder("tools/report.py")
	b.LoadName("__package__").Return()
	writeUnit(t, dir, filepath.Join("tools", "report.byc"), b)

	l := newLoader(t, dir)
	result := mustRun(t)(l.RunModule("tools.report", nil))
	if result != vm.Str("tools") {
		t.Errorf("__package__ = %s, want 'tools'", vm.Repr(result))
	}
}

func TestRunModuleFromArchive(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "units"+archive.Ext)
	a, err := archive.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	b := moduleBuilder("tool/__main__.py")
	b.LoadConst(vm.Str("packed")).Return()
	if err := a.Put("tool.__main__", b.Build()); err != nil {
		t.Fatal(err)
	}
	a.Close()

	l := newLoader(t, db)
	result := mustRun(t)(l.RunModule("tool", nil))
	if result != vm.Str("packed") {
		t.Errorf("result = %s", vm.Repr(result))
	}
}

func TestRunModuleNotFound(t *testing.T) {
	l := newLoader(t, t.TempDir())
	_, err := l.RunModule("nowhere", []string{"nowhere"})
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("err = %v, want ErrNoSource", err)
	}
	if !strings.Contains(err.Error(), "nowhere") {
		t.Errorf("error should name the module: %v", err)
	}
}
