// Package loader locates compiled units and runs them as the main program
// or as imported modules. It owns the sys module and restores the
// process-global state it changes after each run.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/byterun/archive"
	"github.com/chazu/byterun/manifest"
	"github.com/chazu/byterun/vm"
	"github.com/chazu/byterun/vm/wire"
	"github.com/tliron/commonlog"
)

// ErrNoSource wraps every failure to find or decode a unit to run.
var ErrNoSource = errors.New("no source")

// Loader runs units on one VM and serves its imports.
type Loader struct {
	vm       *vm.VM
	sys      *vm.Module
	archives map[string]*archive.Archive
	log      commonlog.Logger
}

// New creates a loader for machine with the given search path and
// installs it as the machine's importer. sys.path starts with an empty
// entry that each run replaces.
func New(machine *vm.VM, path ...string) *Loader {
	l := &Loader{
		vm:       machine,
		sys:      newSysModule(path),
		archives: make(map[string]*archive.Archive),
		log:      commonlog.GetLogger("byterun.loader"),
	}
	machine.SetImporter(l)
	return l
}

// Close closes the unit archives opened while resolving modules.
func (l *Loader) Close() error {
	var errs []error
	for path, a := range l.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", path, err))
		}
		delete(l.archives, path)
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Main program
// ---------------------------------------------------------------------------

// LoadFile decodes the unit file at path.
func (l *Loader) LoadFile(path string) (*vm.Code, error) {
	code, err := wire.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSource, err)
	}
	return code, nil
}

// RunFile runs the unit file at path as __main__ with sys.argv set to
// argv. argv[0] conventionally names the file.
func (l *Loader) RunFile(path string, argv []string) (vm.Value, error) {
	code, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return l.runMain(code, path, argv, "", false)
}

// FindModule resolves a dotted module name for running as a program and
// returns its code, the place it was found and its package name. A
// package runs its __main__ unit.
func (l *Loader) FindModule(name string) (*vm.Code, string, string, error) {
	u, err := l.find(name, "__main__")
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", ErrNoSource, err)
	}
	if u == nil {
		return nil, "", "", fmt.Errorf("%w: no module named %q", ErrNoSource, name)
	}
	code, err := l.load(u)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", ErrNoSource, err)
	}
	pkg := parentName(name)
	if u.isPackage {
		pkg = name
	}
	return code, u.origin, pkg, nil
}

// RunModule runs a module found on the search path, as with -m. argv[0]
// is replaced by the place the module was found.
func (l *Loader) RunModule(name string, argv []string) (vm.Value, error) {
	code, origin, pkg, err := l.FindModule(name)
	if err != nil {
		return nil, err
	}
	argv = append([]string(nil), argv...)
	if len(argv) == 0 {
		argv = append(argv, origin)
	} else {
		argv[0] = origin
	}
	return l.runMain(code, origin, argv, pkg, true)
}

func (l *Loader) runMain(code *vm.Code, filename string, argv []string, pkg string, moduleMode bool) (vm.Value, error) {
	saved := l.save()
	defer l.restore(saved)

	main := vm.NewModule("__main__")
	main.Dict.SetStr("__file__", vm.Str(filename))
	if moduleMode {
		main.Dict.SetStr("__package__", vm.Str(pkg))
	}
	main.Dict.SetStr("__builtins__", l.vm.Builtins())
	l.Modules().SetStr("__main__", main)

	l.sys.Dict.SetStr("argv", strList(argv))
	path0 := ""
	if !moduleMode {
		if abs, err := filepath.Abs(filepath.Dir(filename)); err == nil {
			path0 = abs
		}
	}
	if path := l.sysList("path"); len(path.Items) > 0 {
		path.Items[0] = vm.Str(path0)
	} else {
		path.Items = append(path.Items, vm.Str(path0))
	}

	l.log.Infof("running %s as __main__", filename)
	return l.vm.Run(code, main.Dict)
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// located is a unit found on the search path.
type located struct {
	origin    string   // file path, or archive path and module name
	path      string   // unit file on disk, empty for archive entries
	code      *vm.Code // decoded unit, set for archive entries
	isPackage bool
}

// find searches sys.path for name as a plain unit or as a package whose
// entry unit is named pkgEntry. It returns nil when nothing matches.
func (l *Loader) find(name, pkgEntry string) (*located, error) {
	rel := manifest.ModulePath(name)
	for _, dir := range l.Path() {
		if dir == "" {
			dir = "."
		}
		if archive.IsArchive(dir) {
			u, err := l.findInArchive(dir, name, pkgEntry)
			if err != nil || u != nil {
				return u, err
			}
			continue
		}

		file := filepath.Join(dir, rel+wire.Ext)
		if isFile(file) {
			return &located{origin: file, path: file}, nil
		}
		entry := filepath.Join(dir, rel, pkgEntry+wire.Ext)
		if isFile(entry) {
			return &located{origin: entry, path: entry, isPackage: true}, nil
		}
	}
	return nil, nil
}

func (l *Loader) findInArchive(path, name, pkgEntry string) (*located, error) {
	a, err := l.archive(path)
	if err != nil {
		return nil, err
	}
	for _, candidate := range []string{name, name + "." + pkgEntry} {
		code, err := a.Get(candidate)
		if errors.Is(err, archive.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &located{
			origin:    path + ":" + candidate,
			code:      code,
			isPackage: candidate != name,
		}, nil
	}
	return nil, nil
}

func (l *Loader) archive(path string) (*archive.Archive, error) {
	if a, ok := l.archives[path]; ok {
		return a, nil
	}
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	l.archives[path] = a
	return a, nil
}

func (l *Loader) load(u *located) (*vm.Code, error) {
	if u.code != nil {
		return u.code, nil
	}
	return wire.ReadFile(u.path)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func parentName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[:idx]
	}
	return ""
}
