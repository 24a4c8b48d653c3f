package vm

import "strings"

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a user-visible type created by BUILD_CLASS, or one of the
// built-in exception classes.
type Class struct {
	Name  string
	Bases []*Class
	Dict  *Dict   // class namespace
	MRO   []*Class // method resolution order, starting with the class itself

	exception bool // derives from BaseException
}

// ObjectClass is the root of every class hierarchy.
var ObjectClass = newObjectClass()

func newObjectClass() *Class {
	c := &Class{Name: "object", Dict: NewDict()}
	c.MRO = []*Class{c}
	return c
}

// NewClass creates a class. A class without bases derives from object.
func NewClass(name string, bases []*Class, dict *Dict) (*Class, error) {
	if len(bases) == 0 {
		bases = []*Class{ObjectClass}
	}
	if dict == nil {
		dict = NewDict()
	}
	c := &Class{Name: name, Bases: bases, Dict: dict}
	mro, err := linearize(c)
	if err != nil {
		return nil, err
	}
	c.MRO = mro
	for _, b := range bases {
		if b.exception {
			c.exception = true
		}
	}
	return c, nil
}

// linearize computes the C3 method resolution order of c.
func linearize(c *Class) ([]*Class, error) {
	seqs := make([][]*Class, 0, len(c.Bases)+1)
	for _, b := range c.Bases {
		seqs = append(seqs, append([]*Class(nil), b.MRO...))
	}
	seqs = append(seqs, append([]*Class(nil), c.Bases...))

	out := []*Class{c}
	for {
		nonEmpty := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				nonEmpty = append(nonEmpty, s)
			}
		}
		seqs = nonEmpty
		if len(seqs) == 0 {
			return out, nil
		}
		var head *Class
		for _, s := range seqs {
			candidate := s[0]
			if !inTail(seqs, candidate) {
				head = candidate
				break
			}
		}
		if head == nil {
			names := make([]string, len(c.Bases))
			for i, b := range c.Bases {
				names[i] = b.Name
			}
			return nil, Errorf(TypeErrorClass,
				"Cannot create a consistent method resolution order (MRO) for bases %s", strings.Join(names, ", "))
		}
		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail(seqs [][]*Class, c *Class) bool {
	for _, s := range seqs {
		for _, x := range s[1:] {
			if x == c {
				return true
			}
		}
	}
	return false
}

// Lookup finds name along the method resolution order.
func (c *Class) Lookup(name string) (Value, bool) {
	for _, k := range c.MRO {
		if v, ok := k.Dict.GetStr(name); ok {
			return v, true
		}
	}
	return nil, false
}

// IsSubclassOf returns true if c is other or derives from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, k := range c.MRO {
		if k == other {
			return true
		}
	}
	return false
}

// IsException reports whether instances of c are exceptions.
func (c *Class) IsException() bool {
	return c.exception
}

// ---------------------------------------------------------------------------
// Instances, modules and native callables
// ---------------------------------------------------------------------------

// Instance is an object created by calling a user class.
type Instance struct {
	Class *Class
	Dict  *Dict
}

// NewInstance creates an instance of c with an empty attribute dict.
func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Dict: NewDict()}
}

// Module is a namespace produced by an import.
type Module struct {
	Name string
	Dict *Dict
}

// NewModule creates a module whose namespace holds __name__.
func NewModule(name string) *Module {
	m := &Module{Name: name, Dict: NewDict()}
	m.Dict.SetStr("__name__", Str(name))
	return m
}

// BuiltinFunc implements a native callable.
type BuiltinFunc func(vm *VM, args []Value, kwargs *Dict) (Value, error)

// Builtin is a callable implemented in Go. When Self is set the builtin
// is bound and Self is passed as the first argument.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
	Self Value
}

// NewBuiltin creates an unbound native callable.
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

func (b *Builtin) bind(self Value) *Builtin {
	return &Builtin{Name: b.Name, Fn: b.Fn, Self: self}
}

// StaticMethod wraps a callable so that attribute access never binds it.
type StaticMethod struct {
	Func Value
}

// ClassMethod wraps a callable so that attribute access binds the class.
type ClassMethod struct {
	Func Value
}

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// bindFromClass turns a value found on a class into what attribute access
// returns. Functions bind to self; a nil self leaves them unbound.
func bindFromClass(v Value, self Value, cls *Class) Value {
	switch v := v.(type) {
	case *Function:
		return &Method{Func: v, Self: self, Class: cls}
	case *StaticMethod:
		return v.Func
	case *ClassMethod:
		if f, ok := v.Func.(*Function); ok {
			return &Method{Func: f, Self: cls, Class: cls}
		}
		if b, ok := v.Func.(*Builtin); ok {
			return b.bind(cls)
		}
	}
	return v
}

func attributeError(obj Value, name string) *Exception {
	if c, ok := obj.(*Class); ok {
		return Errorf(AttributeErrorClass, "type object '%s' has no attribute '%s'", c.Name, name)
	}
	if m, ok := obj.(*Module); ok {
		return Errorf(AttributeErrorClass, "module '%s' has no attribute '%s'", m.Name, name)
	}
	return Errorf(AttributeErrorClass, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// GetAttr implements attribute lookup (obj.name).
func (vm *VM) GetAttr(obj Value, name string) (Value, error) {
	switch o := obj.(type) {
	case *Instance:
		if name == "__class__" {
			return o.Class, nil
		}
		if name == "__dict__" {
			return o.Dict, nil
		}
		if v, ok := o.Dict.GetStr(name); ok {
			return v, nil
		}
		if v, ok := o.Class.Lookup(name); ok {
			return bindFromClass(v, o, o.Class), nil
		}
	case *Exception:
		if v, ok := o.attr(name); ok {
			return v, nil
		}
		if v, ok := o.Class.Lookup(name); ok {
			return bindFromClass(v, o, o.Class), nil
		}
	case *Class:
		switch name {
		case "__name__":
			return Str(o.Name), nil
		case "__dict__":
			return o.Dict, nil
		case "__bases__":
			bases := make([]Value, len(o.Bases))
			for i, b := range o.Bases {
				bases[i] = b
			}
			return NewTuple(bases...), nil
		case "__mro__":
			mro := make([]Value, len(o.MRO))
			for i, b := range o.MRO {
				mro[i] = b
			}
			return NewTuple(mro...), nil
		}
		if v, ok := o.Lookup(name); ok {
			return bindFromClass(v, nil, o), nil
		}
	case *Module:
		if v, ok := o.Dict.GetStr(name); ok {
			return v, nil
		}
		if name == "__dict__" {
			return o.Dict, nil
		}
	case *Function:
		if v, ok := o.attr(name); ok {
			return v, nil
		}
	case *Method:
		switch name {
		case "__self__":
			if o.Self == nil {
				return None, nil
			}
			return o.Self, nil
		case "__func__":
			return o.Func, nil
		}
		return vm.GetAttr(o.Func, name)
	case *Builtin:
		switch name {
		case "__name__":
			return Str(o.Name), nil
		case "__self__":
			if o.Self == nil {
				return None, nil
			}
			return o.Self, nil
		}
	case *Code:
		if v, ok := codeAttr(o, name); ok {
			return v, nil
		}
	default:
		if fn, ok := typeMethod(obj, name); ok {
			return fn.bind(obj), nil
		}
	}
	return nil, attributeError(obj, name)
}

// SetAttr implements attribute assignment (obj.name = v).
func (vm *VM) SetAttr(obj Value, name string, v Value) error {
	switch o := obj.(type) {
	case *Instance:
		o.Dict.SetStr(name, v)
		return nil
	case *Exception:
		return o.setAttr(name, v)
	case *Class:
		o.Dict.SetStr(name, v)
		return nil
	case *Module:
		o.Dict.SetStr(name, v)
		return nil
	case *Function:
		return o.setAttr(name, v)
	}
	if _, ok := typeMethod(obj, name); ok {
		return Errorf(AttributeErrorClass, "'%s' object attribute '%s' is read-only", TypeName(obj), name)
	}
	return Errorf(AttributeErrorClass, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// DelAttr implements attribute deletion (del obj.name).
func (vm *VM) DelAttr(obj Value, name string) error {
	var d *Dict
	switch o := obj.(type) {
	case *Instance:
		d = o.Dict
	case *Class:
		d = o.Dict
	case *Module:
		d = o.Dict
	case *Exception:
		d = o.Attrs
	case *Function:
		d = o.Attrs
	}
	if d != nil && d.DeleteStr(name) {
		return nil
	}
	return attributeError(obj, name)
}

func codeAttr(c *Code, name string) (Value, bool) {
	switch name {
	case "co_name":
		return Str(c.Name), true
	case "co_filename":
		return Str(c.Filename), true
	case "co_firstlineno":
		return Int(c.FirstLineNo), true
	case "co_argcount":
		return Int(c.ArgCount), true
	case "co_kwonlyargcount":
		return Int(c.KwOnlyArgCount), true
	case "co_flags":
		return Int(c.Flags), true
	case "co_varnames":
		return strTuple(c.VarNames), true
	case "co_names":
		return strTuple(c.Names), true
	case "co_cellvars":
		return strTuple(c.CellVars), true
	case "co_freevars":
		return strTuple(c.FreeVars), true
	case "co_consts":
		return NewTuple(append([]Value(nil), c.Consts...)...), true
	}
	return nil, false
}

func strTuple(names []string) *Tuple {
	items := make([]Value, len(names))
	for i, n := range names {
		items[i] = Str(n)
	}
	return NewTuple(items...)
}
