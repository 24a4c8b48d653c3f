package manifest

import "strings"

// reservedModules lists module names the loader provides itself.
var reservedModules = map[string]bool{
	"sys":          true,
	"builtins":     true,
	"__main__":     true,
	"__builtins__": true,
}

// IsReservedModule reports whether the root segment of a dotted module
// name is provided by the loader and cannot be a project module.
// Only the root segment is checked: "app.sys" is fine because the root
// is "app".
func IsReservedModule(name string) bool {
	root := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		root = name[:idx]
	}
	return reservedModules[root]
}

// ModulePath converts a dotted module name to a slash-separated path
// without extension: "a.b.c" -> "a/b/c".
func ModulePath(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
