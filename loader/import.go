package loader

import (
	"strings"

	"github.com/chazu/byterun/vm"
)

// Import implements vm.Importer. Parent packages are imported first and
// each submodule is bound as an attribute of its parent. Without a from
// list the top-level package is returned.
func (l *Loader) Import(machine *vm.VM, name string, globals *vm.Dict, fromList vm.Value, level int) (vm.Value, error) {
	full, err := absoluteName(name, globals, level)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(full, ".")
	var top, mod vm.Value
	for i := range parts {
		m, err := l.importOne(machine, strings.Join(parts[:i+1], "."))
		if err != nil {
			return nil, err
		}
		if parent, ok := mod.(*vm.Module); ok {
			parent.Dict.SetStr(parts[i], m)
		}
		if i == 0 {
			top = m
		}
		mod = m
	}

	names := fromNames(fromList)
	if len(names) == 0 && level == 0 {
		return top, nil
	}
	if pkg, ok := mod.(*vm.Module); ok {
		if err := l.importSubmodules(machine, pkg, full, names); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// importSubmodules makes `from pkg import name` find submodules that
// have not been imported yet.
func (l *Loader) importSubmodules(machine *vm.VM, pkg *vm.Module, full string, names []string) error {
	if _, ok := pkg.Dict.GetStr("__path__"); !ok {
		return nil
	}
	for _, n := range names {
		if n == "*" {
			continue
		}
		if _, ok := pkg.Dict.GetStr(n); ok {
			continue
		}
		sub := full + "." + n
		u, err := l.find(sub, "__init__")
		if err != nil {
			return vm.Errorf(vm.ImportErrorClass, "%v", err)
		}
		if u == nil {
			continue
		}
		m, err := l.importOne(machine, sub)
		if err != nil {
			return err
		}
		pkg.Dict.SetStr(n, m)
	}
	return nil
}

// importOne returns the cached module for a dotted name or executes its
// unit in a fresh module namespace.
func (l *Loader) importOne(machine *vm.VM, name string) (vm.Value, error) {
	if name == "sys" {
		return l.sys, nil
	}
	modules := l.Modules()
	if m, ok := modules.GetStr(name); ok {
		return m, nil
	}

	u, err := l.find(name, "__init__")
	if err != nil {
		return nil, vm.Errorf(vm.ImportErrorClass, "%v", err)
	}
	if u == nil {
		return nil, vm.Errorf(vm.ImportErrorClass, "No module named '%s'", name)
	}
	code, err := l.load(u)
	if err != nil {
		return nil, vm.Errorf(vm.ImportErrorClass, "%v", err)
	}

	m := vm.NewModule(name)
	m.Dict.SetStr("__file__", vm.Str(u.origin))
	m.Dict.SetStr("__builtins__", machine.Builtins())
	if u.isPackage {
		m.Dict.SetStr("__package__", vm.Str(name))
		m.Dict.SetStr("__path__", vm.NewList(vm.Str(u.origin)))
	} else {
		m.Dict.SetStr("__package__", vm.Str(parentName(name)))
	}

	modules.SetStr(name, m)
	l.log.Debugf("importing %s from %s", name, u.origin)
	if _, err := machine.Run(code, m.Dict); err != nil {
		modules.DeleteStr(name)
		return nil, err
	}
	return m, nil
}

// absoluteName resolves a relative import against the importing
// module's package.
func absoluteName(name string, globals *vm.Dict, level int) (string, error) {
	if level <= 0 {
		if name == "" {
			return "", vm.Errorf(vm.ValueErrorClass, "Empty module name")
		}
		return name, nil
	}

	pkg := ""
	if globals != nil {
		if v, ok := globals.GetStr("__package__"); ok {
			if s, ok := v.(vm.Str); ok {
				pkg = string(s)
			}
		} else if v, ok := globals.GetStr("__name__"); ok {
			if s, ok := v.(vm.Str); ok {
				pkg = parentName(string(s))
			}
		}
	}
	if pkg == "" {
		return "", vm.Errorf(vm.ImportErrorClass, "attempted relative import with no known parent package")
	}

	parts := strings.Split(pkg, ".")
	if level-1 >= len(parts) {
		return "", vm.Errorf(vm.ImportErrorClass, "attempted relative import beyond top-level package")
	}
	base := strings.Join(parts[:len(parts)-(level-1)], ".")
	if name == "" {
		return base, nil
	}
	return base + "." + name, nil
}

func fromNames(fromList vm.Value) []string {
	var items []vm.Value
	switch v := fromList.(type) {
	case *vm.Tuple:
		items = v.Items
	case *vm.List:
		items = v.Items
	default:
		return nil
	}
	return strs(items)
}
