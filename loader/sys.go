package loader

import (
	"github.com/chazu/byterun/vm"
)

// newSysModule builds the sys module: argv, path and the modules cache.
func newSysModule(path []string) *vm.Module {
	sys := vm.NewModule("sys")
	entries := make([]vm.Value, 0, len(path)+1)
	entries = append(entries, vm.Str(""))
	for _, p := range path {
		entries = append(entries, vm.Str(p))
	}
	sys.Dict.SetStr("argv", vm.NewList(vm.Str("")))
	sys.Dict.SetStr("path", vm.NewList(entries...))
	modules := vm.NewDict()
	modules.SetStr("sys", sys)
	modules.SetStr("__main__", vm.NewModule("__main__"))
	sys.Dict.SetStr("modules", modules)
	return sys
}

func (l *Loader) sysList(name string) *vm.List {
	if v, ok := l.sys.Dict.GetStr(name); ok {
		if list, ok := v.(*vm.List); ok {
			return list
		}
	}
	list := vm.NewList()
	l.sys.Dict.SetStr(name, list)
	return list
}

// Modules returns sys.modules.
func (l *Loader) Modules() *vm.Dict {
	if v, ok := l.sys.Dict.GetStr("modules"); ok {
		if d, ok := v.(*vm.Dict); ok {
			return d
		}
	}
	d := vm.NewDict()
	d.SetStr("sys", l.sys)
	l.sys.Dict.SetStr("modules", d)
	return d
}

// Argv returns the current sys.argv as Go strings.
func (l *Loader) Argv() []string {
	return strs(l.sysList("argv").Items)
}

// Path returns the current sys.path as Go strings.
func (l *Loader) Path() []string {
	return strs(l.sysList("path").Items)
}

// Sys returns the sys module shared by code run through this loader.
func (l *Loader) Sys() *vm.Module {
	return l.sys
}

func strs(items []vm.Value) []string {
	out := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(vm.Str); ok {
			out = append(out, string(s))
		}
	}
	return out
}

func strList(items []string) *vm.List {
	vals := make([]vm.Value, len(items))
	for i, s := range items {
		vals[i] = vm.Str(s)
	}
	return vm.NewList(vals...)
}

// runState is the process-global state a run replaces and restores.
type runState struct {
	main  vm.Value
	argv  vm.Value
	path0 vm.Value
}

func (l *Loader) save() runState {
	modules := l.Modules()
	main, _ := modules.GetStr("__main__")
	argv, _ := l.sys.Dict.GetStr("argv")
	var path0 vm.Value = vm.Str("")
	if p := l.sysList("path"); len(p.Items) > 0 {
		path0 = p.Items[0]
	}
	return runState{main: main, argv: argv, path0: path0}
}

func (l *Loader) restore(c runState) {
	modules := l.Modules()
	if c.main != nil {
		modules.SetStr("__main__", c.main)
	} else {
		modules.DeleteStr("__main__")
	}
	if c.argv != nil {
		l.sys.Dict.SetStr("argv", c.argv)
	}
	if p := l.sysList("path"); len(p.Items) > 0 {
		p.Items[0] = c.path0
	} else {
		p.Items = append(p.Items, c.path0)
	}
}
