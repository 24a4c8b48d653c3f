package loader

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/byterun/archive"
	"github.com/chazu/byterun/vm"
)

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func TestImportModule(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "helper.byc", assignModule("helper.py", "value", vm.Int(41)))

	// import helper
	// import helper as again
	// return (helper.value + 1, helper is again)
	b := moduleBuilder("main.py")
	emitImport(b, "helper", 0)
	b.StoreName("helper")
	emitImport(b, "helper", 0)
	b.StoreName("again")
	b.LoadName("helper").LoadAttr("value").LoadConst(vm.Int(1)).Emit(vm.OpBinaryAdd)
	b.LoadName("helper").LoadName("again").EmitArg(vm.OpCompareOp, uint16(vm.CmpIs))
	b.EmitArg(vm.OpBuildTuple, 2).Return()
	main := writeUnit(t, dir, "main.byc", b)

	l := newLoader(t)
	result := mustRun(t)(l.RunFile(main, []string{"main.byc"}))
	if got := vm.Repr(result); got != "(42, True)" {
		t.Errorf("result = %s, want (42, True)", got)
	}

	cached, ok := l.Modules().GetStr("helper")
	if !ok {
		t.Fatal("helper is not in sys.modules")
	}
	if file, _ := cached.(*vm.Module).Dict.GetStr("__file__"); file != vm.Str(filepath.Join(dir, "helper.byc")) {
		t.Errorf("helper.__file__ = %s", vm.Repr(file))
	}
}

func TestImportPackageSubmodule(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, filepath.Join("pkg", "__init__.byc"), assignModule("pkg/__init__.py", "name", vm.Str("pkg")))
	writeUnit(t, dir, filepath.Join("pkg", "mod.byc"), assignModule("pkg/mod.py", "x", vm.Int(7)))

	// import pkg.mod
	// from pkg import mod as m2
	// return (pkg.mod.x, m2.x, pkg.name)
	b := moduleBuilder("main.py")
	emitImport(b, "pkg.mod", 0)
	b.StoreName("pkg")
	emitImport(b, "pkg", 0, "mod")
	b.EmitArg(vm.OpImportFrom, b.AddName("mod")).StoreName("m2")
	b.Emit(vm.OpPopTop)
	b.LoadName("pkg").LoadAttr("mod").LoadAttr("x")
	b.LoadName("m2").LoadAttr("x")
	b.LoadName("pkg").LoadAttr("name")
	b.EmitArg(vm.OpBuildTuple, 3).Return()
	main := writeUnit(t, dir, "main.byc", b)

	l := newLoader(t)
	result := mustRun(t)(l.RunFile(main, nil))
	if got := vm.Repr(result); got != "(7, 7, 'pkg')" {
		t.Errorf("result = %s", got)
	}
}

func TestFromImportLoadsSubmodule(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, filepath.Join("pkg", "__init__.byc"), assignModule("pkg/__init__.py", "name", vm.Str("pkg")))
	writeUnit(t, dir, filepath.Join("pkg", "leaf.byc"), assignModule("pkg/leaf.py", "y", vm.Int(3)))

	// from pkg import leaf
	// return leaf.y
	b := moduleBuilder("main.py")
	emitImport(b, "pkg", 0, "leaf")
	b.EmitArg(vm.OpImportFrom, b.AddName("leaf")).StoreName("leaf")
	b.Emit(vm.OpPopTop)
	b.LoadName("leaf").LoadAttr("y").Return()
	main := writeUnit(t, dir, "main.byc", b)

	l := newLoader(t)
	if result := mustRun(t)(l.RunFile(main, nil)); result != vm.Int(3) {
		t.Errorf("leaf.y = %s, want 3", vm.Repr(result))
	}
}

func TestImportFromArchive(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "lib"+archive.Ext)
	a, err := archive.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Put("shared", assignModule("shared.py", "greeting", vm.Str("hi")).Build()); err != nil {
		t.Fatal(err)
	}
	a.Close()

	// from shared import greeting
	// return greeting
	b := moduleBuilder("main.py")
	emitImport(b, "shared", 0, "greeting")
	b.EmitArg(vm.OpImportFrom, b.AddName("greeting")).StoreName("greeting")
	b.Emit(vm.OpPopTop)
	b.LoadName("greeting").Return()
	main := writeUnit(t, dir, "main.byc", b)

	l := newLoader(t, db)
	if result := mustRun(t)(l.RunFile(main, nil)); result != vm.Str("hi") {
		t.Errorf("greeting = %s", vm.Repr(result))
	}
}

func TestImportErrors(t *testing.T) {
	dir := t.TempDir()
	// raise KeyError("during import")
	broken := moduleBuilder("broken.py")
	broken.LoadName("KeyError").LoadConst(vm.Str("during import")).Call(1)
	broken.EmitArg(vm.OpRaiseVarargs, 1)
	writeUnit(t, dir, "broken.byc", broken)
	writeUnit(t, dir, "plain.byc", assignModule("plain.py", "a", vm.Int(1)))

	tests := []struct {
		name  string
		build func(b *vm.CodeBuilder)
		kind  *vm.Class
		msg   string
	}{
		{"missing", func(b *vm.CodeBuilder) {
			emitImport(b, "nope", 0)
		}, vm.ImportErrorClass, "No module named 'nope'"},
		{"failing body", func(b *vm.CodeBuilder) {
			emitImport(b, "broken", 0)
		}, vm.KeyErrorClass, "'during import'"},
		{"missing name", func(b *vm.CodeBuilder) {
			emitImport(b, "plain", 0, "b")
			b.EmitArg(vm.OpImportFrom, b.AddName("b"))
		}, vm.ImportErrorClass, "cannot import name 'b'"},
		{"relative at top level", func(b *vm.CodeBuilder) {
			emitImport(b, "plain", 1)
		}, vm.ImportErrorClass, "attempted relative import with no known parent package"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := moduleBuilder("main.py")
			tt.build(b)
			b.LoadConst(vm.None).Return()
			main := writeUnit(t, dir, "main.byc", b)

			l := newLoader(t)
			_, err := l.RunFile(main, nil)
			exc, ok := vm.AsException(err)
			if !ok {
				t.Fatalf("err = %v, want an exception", err)
			}
			if !exc.Matches(tt.kind) || exc.Message() != tt.msg {
				t.Errorf("got %v, want %s: %s", exc, tt.kind.Name, tt.msg)
			}
			if _, ok := l.Modules().GetStr("broken"); ok {
				t.Errorf("a failed import must not stay in sys.modules")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Relative names
// ---------------------------------------------------------------------------

func TestAbsoluteName(t *testing.T) {
	globals := func(pairs ...string) *vm.Dict {
		d := vm.NewDict()
		for i := 0; i+1 < len(pairs); i += 2 {
			d.SetStr(pairs[i], vm.Str(pairs[i+1]))
		}
		return d
	}

	tests := []struct {
		name    string
		globals *vm.Dict
		level   int
		want    string
		err     string
	}{
		{"x", nil, 0, "x", ""},
		{"x", globals("__package__", "a.b"), 1, "a.b.x", ""},
		{"x", globals("__package__", "a.b"), 2, "a.x", ""},
		{"", globals("__package__", "a.b"), 1, "a.b", ""},
		{"x", globals("__name__", "a.b.c"), 1, "a.b.x", ""},
		{"x", globals("__package__", "a"), 2, "", "beyond top-level"},
		{"x", globals("__name__", "__main__"), 1, "", "no known parent"},
		{"", nil, 0, "", "Empty module name"},
	}
	for _, tt := range tests {
		got, err := absoluteName(tt.name, tt.globals, tt.level)
		if tt.err != "" {
			if err == nil || !strings.Contains(err.Error(), tt.err) {
				t.Errorf("absoluteName(%q, %d) err = %v, want %q", tt.name, tt.level, err, tt.err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("absoluteName(%q, %d) = %q, %v; want %q", tt.name, tt.level, got, err, tt.want)
		}
	}
}
