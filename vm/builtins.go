package vm

import (
	"errors"
	"io"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func checkArity(name string, args []Value, min, max int) error {
	n := len(args)
	switch {
	case min == max && n != min:
		return Errorf(TypeErrorClass, "%s() takes exactly %s (%d given)", name, plural(min, "argument"), n)
	case n < min:
		return Errorf(TypeErrorClass, "%s() takes at least %s (%d given)", name, plural(min, "argument"), n)
	case max >= 0 && n > max:
		return Errorf(TypeErrorClass, "%s() takes at most %s (%d given)", name, plural(max, "argument"), n)
	}
	return nil
}

func noKeywords(name string, kwargs *Dict) error {
	if kwargs != nil && kwargs.Len() > 0 {
		return Errorf(TypeErrorClass, "%s() takes no keyword arguments", name)
	}
	return nil
}

// keywords extracts the allowed keyword arguments, rejecting any others.
func keywords(name string, kwargs *Dict, allowed ...string) (map[string]Value, error) {
	out := map[string]Value{}
	if kwargs == nil {
		return out, nil
	}
	for _, e := range kwargs.Items() {
		k, ok := e.Key.(Str)
		if !ok || !slices.Contains(allowed, string(k)) {
			return nil, Errorf(TypeErrorClass, "'%s' is an invalid keyword argument for %s()", StrOf(e.Key), name)
		}
		out[string(k)] = e.Value
	}
	return out, nil
}

func intArg(name string, v Value) (int64, error) {
	n, ok := AsInt(v)
	if !ok {
		return 0, Errorf(TypeErrorClass, "%s() expected an integer, got '%s'", name, TypeName(v))
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Special methods on instances
// ---------------------------------------------------------------------------

// callSpecial invokes a method defined by a user class on obj, reporting
// false when obj is not an instance or the class does not define name.
func (vm *VM) callSpecial(obj Value, name string, args ...Value) (Value, bool, error) {
	inst, ok := obj.(*Instance)
	if !ok {
		return nil, false, nil
	}
	m, ok := inst.Class.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	v, err := vm.Call(bindFromClass(m, inst, inst.Class), args, nil)
	return v, true, err
}

// Str converts v as str() does, honouring a class's __str__ and __repr__.
func (vm *VM) Str(v Value) (string, error) {
	for _, name := range []string{"__str__", "__repr__"} {
		r, ok, err := vm.callSpecial(v, name)
		if err != nil {
			return "", err
		}
		if ok {
			s, isStr := r.(Str)
			if !isStr {
				return "", Errorf(TypeErrorClass, "%s returned non-string (type %s)", name, TypeName(r))
			}
			return string(s), nil
		}
	}
	return StrOf(v), nil
}

// Repr converts v as repr() does, honouring a class's __repr__.
func (vm *VM) Repr(v Value) (string, error) {
	r, ok, err := vm.callSpecial(v, "__repr__")
	if err != nil {
		return "", err
	}
	if ok {
		s, isStr := r.(Str)
		if !isStr {
			return "", Errorf(TypeErrorClass, "__repr__ returned non-string (type %s)", TypeName(r))
		}
		return string(s), nil
	}
	return Repr(v), nil
}

// Len returns len(v).
func (vm *VM) Len(v Value) (int64, error) {
	switch o := v.(type) {
	case Str:
		return int64(utf8.RuneCountInString(string(o))), nil
	case *Tuple:
		return int64(len(o.Items)), nil
	case *List:
		return int64(len(o.Items)), nil
	case *Dict:
		return int64(o.Len()), nil
	case *Set:
		return int64(o.Len()), nil
	case *Range:
		return o.Len(), nil
	}
	r, ok, err := vm.callSpecial(v, "__len__")
	if err != nil {
		return 0, err
	}
	if ok {
		n, isInt := AsInt(r)
		if !isInt {
			return 0, Errorf(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(r))
		}
		if n < 0 {
			return 0, Errorf(ValueErrorClass, "__len__() should return >= 0")
		}
		return n, nil
	}
	return 0, Errorf(TypeErrorClass, "object of type '%s' has no len()", TypeName(v))
}

// ---------------------------------------------------------------------------
// Type objects
// ---------------------------------------------------------------------------

// typeConstructors are the builtins that double as type objects for
// type() and isinstance().
var typeConstructors = map[string]bool{
	"int": true, "float": true, "str": true, "bool": true,
	"list": true, "tuple": true, "dict": true, "set": true,
	"range": true, "type": true,
}

func isTypeObject(v Value) bool {
	b, ok := v.(*Builtin)
	return ok && b.Self == nil && typeConstructors[b.Name]
}

// typeOf returns the type object of v.
func (vm *VM) typeOf(v Value) Value {
	switch o := v.(type) {
	case *Instance:
		return o.Class
	case *Exception:
		return o.Class
	}
	name := TypeName(v)
	if t, ok := vm.builtins.GetStr(name); ok && isTypeObject(t) {
		return t
	}
	return NewBuiltin(name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		return nil, Errorf(TypeErrorClass, "cannot create '%s' instances", name)
	})
}

// IsInstance implements isinstance(v, spec).
func (vm *VM) IsInstance(v Value, spec Value) (bool, error) {
	switch s := spec.(type) {
	case *Tuple:
		for _, item := range s.Items {
			ok, err := vm.IsInstance(v, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *Class:
		if s == ObjectClass {
			return true, nil
		}
		switch o := v.(type) {
		case *Instance:
			return o.Class.IsSubclassOf(s), nil
		case *Exception:
			return o.Class.IsSubclassOf(s), nil
		}
		return false, nil
	case *Builtin:
		if isTypeObject(s) {
			name := TypeName(v)
			return name == s.Name || (s.Name == "int" && name == "bool"), nil
		}
	}
	return false, Errorf(TypeErrorClass, "isinstance() arg 2 must be a type or tuple of types")
}

// ---------------------------------------------------------------------------
// The builtins namespace
// ---------------------------------------------------------------------------

func newBuiltins() *Dict {
	d := NewDict()
	d.SetStr("None", None)
	d.SetStr("True", True)
	d.SetStr("False", False)
	d.SetStr("object", ObjectClass)
	for _, c := range ExceptionClasses {
		d.SetStr(c.Name, c)
	}

	fns := []*Builtin{
		NewBuiltin("print", builtinPrint),
		NewBuiltin("len", builtinLen),
		NewBuiltin("repr", builtinRepr),
		NewBuiltin("str", builtinStr),
		NewBuiltin("int", builtinInt),
		NewBuiltin("float", builtinFloat),
		NewBuiltin("bool", builtinBool),
		NewBuiltin("list", builtinList),
		NewBuiltin("tuple", builtinTuple),
		NewBuiltin("dict", builtinDict),
		NewBuiltin("set", builtinSet),
		NewBuiltin("range", builtinRange),
		NewBuiltin("type", builtinType),
		NewBuiltin("iter", builtinIter),
		NewBuiltin("next", builtinNext),
		NewBuiltin("isinstance", builtinIsInstance),
		NewBuiltin("issubclass", builtinIsSubclass),
		NewBuiltin("getattr", builtinGetAttr),
		NewBuiltin("setattr", builtinSetAttr),
		NewBuiltin("hasattr", builtinHasAttr),
		NewBuiltin("delattr", builtinDelAttr),
		NewBuiltin("callable", builtinCallable),
		NewBuiltin("abs", builtinAbs),
		NewBuiltin("min", builtinMin),
		NewBuiltin("max", builtinMax),
		NewBuiltin("sum", builtinSum),
		NewBuiltin("sorted", builtinSorted),
		NewBuiltin("reversed", builtinReversed),
		NewBuiltin("enumerate", builtinEnumerate),
		NewBuiltin("zip", builtinZip),
		NewBuiltin("map", builtinMap),
		NewBuiltin("filter", builtinFilter),
		NewBuiltin("any", builtinAny),
		NewBuiltin("all", builtinAll),
		NewBuiltin("ord", builtinOrd),
		NewBuiltin("chr", builtinChr),
		NewBuiltin("divmod", builtinDivmod),
		NewBuiltin("pow", builtinPow),
		NewBuiltin("round", builtinRound),
		NewBuiltin("globals", builtinGlobals),
		NewBuiltin("locals", builtinLocals),
		NewBuiltin("staticmethod", builtinStaticMethod),
		NewBuiltin("classmethod", builtinClassMethod),
	}
	for _, b := range fns {
		d.SetStr(b.Name, b)
	}
	return d
}

func init() {
	ObjectClass.Dict.SetStr("__init__", NewBuiltin("__init__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if len(args) == 0 {
			return nil, Errorf(TypeErrorClass, "__init__() needs an argument")
		}
		if len(args) > 1 || (kwargs != nil && kwargs.Len() > 0) {
			return nil, Errorf(TypeErrorClass, "%s() takes no arguments", TypeName(args[0]))
		}
		return None, nil
	}))
	BaseExceptionClass.Dict.SetStr("__init__", NewBuiltin("__init__", func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if len(args) == 0 {
			return nil, Errorf(TypeErrorClass, "__init__() needs an argument")
		}
		if err := noKeywords(TypeName(args[0]), kwargs); err != nil {
			return nil, err
		}
		if e, ok := args[0].(*Exception); ok {
			e.Args = NewTuple(append([]Value{}, args[1:]...)...)
		}
		return None, nil
	}))
}

// --- I/O and conversion ---

func builtinPrint(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	kw, err := keywords("print", kwargs, "sep", "end")
	if err != nil {
		return nil, err
	}
	sep, end := " ", "\n"
	if v, ok := kw["sep"]; ok && v != None {
		sep = StrOf(v)
	}
	if v, ok := kw["end"]; ok && v != None {
		end = StrOf(v)
	}
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		s, err := vm.Str(a)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	sb.WriteString(end)
	if _, err := io.WriteString(vm.stdout, sb.String()); err != nil {
		return nil, Errorf(RuntimeErrorClass, "print: %v", err)
	}
	return None, nil
}

func builtinLen(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("len", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := vm.Len(args[0])
	return Int(n), err
}

func builtinRepr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("repr", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := vm.Repr(args[0])
	return Str(s), err
}

func builtinStr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Str(""), nil
	}
	s, err := vm.Str(args[0])
	return Str(s), err
}

func builtinInt(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("int", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Int(0), nil
	}
	if len(args) == 2 {
		s, ok := args[0].(Str)
		if !ok {
			return nil, Errorf(TypeErrorClass, "int() can't convert non-string with explicit base")
		}
		base, err := intArg("int", args[1])
		if err != nil {
			return nil, err
		}
		return parseInt(string(s), int(base))
	}
	switch v := args[0].(type) {
	case Int, BigInt:
		return v, nil
	case Bool:
		n, _ := AsInt(v)
		return Int(n), nil
	case Float:
		f := math.Trunc(float64(v))
		if math.IsNaN(f) {
			return nil, Errorf(ValueErrorClass, "cannot convert float NaN to integer")
		}
		if math.IsInf(f, 0) {
			return nil, Errorf(OverflowErrorClass, "cannot convert float infinity to integer")
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			n, _ := big.NewFloat(f).Int(nil)
			return normInt(n)
		}
		return Int(int64(f)), nil
	case Str:
		return parseInt(string(v), 10)
	}
	return nil, Errorf(TypeErrorClass, "int() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func parseInt(s string, base int) (Value, error) {
	t := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	n, err := strconv.ParseInt(t, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			if b, ok := new(big.Int).SetString(t, base); ok {
				return normInt(b)
			}
		}
		return nil, Errorf(ValueErrorClass, "invalid literal for int() with base %d: %s", base, quoteStr(s))
	}
	return Int(n), nil
}

func builtinFloat(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Float(0), nil
	}
	if s, ok := args[0].(Str); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
				return nil, Errorf(ValueErrorClass, "could not convert string to float: %s", quoteStr(string(s)))
			}
		}
		return Float(f), nil
	}
	f, ok := AsFloat(args[0])
	if !ok {
		return nil, Errorf(TypeErrorClass, "float() argument must be a string or a number, not '%s'", TypeName(args[0]))
	}
	return Float(f), nil
}

func builtinBool(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return False, nil
	}
	return Bool(Truthy(args[0])), nil
}

// --- Containers ---

func builtinList(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("list", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewList(), nil
	}
	items, err := vm.collect(args[0])
	if err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func builtinTuple(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("tuple", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return EmptyTuple, nil
	}
	if t, ok := args[0].(*Tuple); ok {
		return t, nil
	}
	items, err := vm.collect(args[0])
	if err != nil {
		return nil, err
	}
	return NewTuple(items...), nil
}

func builtinDict(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("dict", args, 0, 1); err != nil {
		return nil, err
	}
	d := NewDict()
	if len(args) == 1 {
		if src, ok := args[0].(*Dict); ok {
			d.Update(src)
		} else {
			pairs, err := vm.collect(args[0])
			if err != nil {
				return nil, err
			}
			for i, p := range pairs {
				kv, err := vm.unpack(p, 2)
				if err != nil {
					return nil, Errorf(ValueErrorClass, "dictionary update sequence element #%d has wrong length", i)
				}
				if err := d.Set(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	if kwargs != nil {
		d.Update(kwargs)
	}
	return d, nil
}

func builtinSet(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("set", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return NewSet()
	}
	items, err := vm.collect(args[0])
	if err != nil {
		return nil, err
	}
	return NewSet(items...)
}

func builtinRange(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("range", args, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := AsInt(a)
		if !ok {
			return nil, Errorf(TypeErrorClass, "'%s' object cannot be interpreted as an integer", TypeName(a))
		}
		nums[i] = n
	}
	r := &Range{Step: 1}
	switch len(nums) {
	case 1:
		r.Stop = nums[0]
	case 2:
		r.Start, r.Stop = nums[0], nums[1]
	case 3:
		r.Start, r.Stop, r.Step = nums[0], nums[1], nums[2]
	}
	if r.Step == 0 {
		return nil, Errorf(ValueErrorClass, "range() arg 3 must not be zero")
	}
	return r, nil
}

// --- Types and attributes ---

func builtinType(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	switch len(args) {
	case 1:
		return vm.typeOf(args[0]), nil
	case 3:
		name, ok := args[0].(Str)
		if !ok {
			return nil, Errorf(TypeErrorClass, "type() argument 1 must be str, not %s", TypeName(args[0]))
		}
		baseTuple, ok := args[1].(*Tuple)
		if !ok {
			return nil, Errorf(TypeErrorClass, "type() argument 2 must be tuple, not %s", TypeName(args[1]))
		}
		ns, ok := args[2].(*Dict)
		if !ok {
			return nil, Errorf(TypeErrorClass, "type() argument 3 must be dict, not %s", TypeName(args[2]))
		}
		bases := make([]*Class, len(baseTuple.Items))
		for i, b := range baseTuple.Items {
			c, ok := b.(*Class)
			if !ok {
				return nil, Errorf(TypeErrorClass, "bases must be classes, not '%s'", TypeName(b))
			}
			bases[i] = c
		}
		return NewClass(string(name), bases, ns.Copy())
	}
	return nil, Errorf(TypeErrorClass, "type() takes 1 or 3 arguments")
}

func builtinIsInstance(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("isinstance", args, 2, 2); err != nil {
		return nil, err
	}
	ok, err := vm.IsInstance(args[0], args[1])
	return Bool(ok), err
}

func builtinIsSubclass(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("issubclass", args, 2, 2); err != nil {
		return nil, err
	}
	c, ok := args[0].(*Class)
	if !ok {
		return nil, Errorf(TypeErrorClass, "issubclass() arg 1 must be a class")
	}
	specs := []Value{args[1]}
	if t, ok := args[1].(*Tuple); ok {
		specs = t.Items
	}
	for _, s := range specs {
		other, ok := s.(*Class)
		if !ok {
			return nil, Errorf(TypeErrorClass, "issubclass() arg 2 must be a class or tuple of classes")
		}
		if c.IsSubclassOf(other) {
			return True, nil
		}
	}
	return False, nil
}

func attrName(fn string, v Value) (string, error) {
	s, ok := v.(Str)
	if !ok {
		return "", Errorf(TypeErrorClass, "%s(): attribute name must be string", fn)
	}
	return string(s), nil
}

func builtinGetAttr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("getattr", args, 2, 3); err != nil {
		return nil, err
	}
	name, err := attrName("getattr", args[1])
	if err != nil {
		return nil, err
	}
	v, err := vm.GetAttr(args[0], name)
	if err != nil && len(args) == 3 {
		if exc, ok := AsException(err); ok && exc.Matches(AttributeErrorClass) {
			return args[2], nil
		}
	}
	return v, err
}

func builtinSetAttr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("setattr", args, 3, 3); err != nil {
		return nil, err
	}
	name, err := attrName("setattr", args[1])
	if err != nil {
		return nil, err
	}
	return None, vm.SetAttr(args[0], name, args[2])
}

func builtinHasAttr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("hasattr", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := attrName("hasattr", args[1])
	if err != nil {
		return nil, err
	}
	if _, err := vm.GetAttr(args[0], name); err != nil {
		if exc, ok := AsException(err); ok && exc.Matches(AttributeErrorClass) {
			return False, nil
		}
		return nil, err
	}
	return True, nil
}

func builtinDelAttr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("delattr", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := attrName("delattr", args[1])
	if err != nil {
		return nil, err
	}
	return None, vm.DelAttr(args[0], name)
}

func builtinCallable(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("callable", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *Function, *Method, *Builtin, *Class:
		return True, nil
	case *Instance:
		_, ok := v.Class.Lookup("__call__")
		return Bool(ok), nil
	}
	return False, nil
}

func builtinStaticMethod(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("staticmethod", args, 1, 1); err != nil {
		return nil, err
	}
	return &StaticMethod{Func: args[0]}, nil
}

func builtinClassMethod(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("classmethod", args, 1, 1); err != nil {
		return nil, err
	}
	return &ClassMethod{Func: args[0]}, nil
}

func builtinGlobals(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	f := vm.currentFrame()
	if f == nil {
		return nil, Errorf(SystemErrorClass, "globals(): no current frame")
	}
	return f.Globals, nil
}

func builtinLocals(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	f := vm.currentFrame()
	if f == nil {
		return nil, Errorf(SystemErrorClass, "locals(): no current frame")
	}
	return f.Locals, nil
}

// --- Iteration ---

func builtinIter(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("iter", args, 1, 1); err != nil {
		return nil, err
	}
	return vm.Iter(args[0])
}

func builtinNext(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("next", args, 1, 2); err != nil {
		return nil, err
	}
	if g, ok := args[0].(*Generator); ok {
		v, err := g.Next()
		if err != nil && len(args) == 2 {
			if _, stop := StopValue(err); stop {
				return args[1], nil
			}
		}
		return v, err
	}
	v, ok, err := vm.Next(args[0])
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, NewException(StopIterationClass)
	}
	return v, nil
}

// each calls fn for every item of an iterable.
func (vm *VM) each(v Value, fn func(item Value) error) error {
	it, err := vm.Iter(v)
	if err != nil {
		return err
	}
	for {
		item, ok, err := vm.Next(it)
		if err != nil || !ok {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

func builtinEnumerate(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	var i int64
	if len(args) == 2 {
		n, err := intArg("enumerate", args[1])
		if err != nil {
			return nil, err
		}
		i = n
	}
	it, err := vm.Iter(args[0])
	if err != nil {
		return nil, err
	}
	return &funcIterator{next: func() (Value, bool, error) {
		v, ok, err := vm.Next(it)
		if !ok || err != nil {
			return nil, false, err
		}
		pair := NewTuple(Int(i), v)
		i++
		return pair, true, nil
	}}, nil
}

func builtinZip(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	iters := make([]Value, len(args))
	for i, a := range args {
		it, err := vm.Iter(a)
		if err != nil {
			return nil, err
		}
		iters[i] = it
	}
	return &funcIterator{next: func() (Value, bool, error) {
		if len(iters) == 0 {
			return nil, false, nil
		}
		items := make([]Value, len(iters))
		for i, it := range iters {
			v, ok, err := vm.Next(it)
			if !ok || err != nil {
				return nil, false, err
			}
			items[i] = v
		}
		return NewTuple(items...), true, nil
	}}, nil
}

func builtinMap(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("map", args, 2, -1); err != nil {
		return nil, err
	}
	fn := args[0]
	zipped, err := builtinZip(vm, args[1:], nil)
	if err != nil {
		return nil, err
	}
	return &funcIterator{next: func() (Value, bool, error) {
		t, ok, err := vm.Next(zipped)
		if !ok || err != nil {
			return nil, false, err
		}
		v, err := vm.Call(fn, t.(*Tuple).Items, nil)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}}, nil
}

func builtinFilter(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("filter", args, 2, 2); err != nil {
		return nil, err
	}
	fn := args[0]
	it, err := vm.Iter(args[1])
	if err != nil {
		return nil, err
	}
	return &funcIterator{next: func() (Value, bool, error) {
		for {
			v, ok, err := vm.Next(it)
			if !ok || err != nil {
				return nil, false, err
			}
			keep := v
			if fn != None {
				keep, err = vm.Call(fn, []Value{v}, nil)
				if err != nil {
					return nil, false, err
				}
			}
			if Truthy(keep) {
				return v, true, nil
			}
		}
	}}, nil
}

func builtinReversed(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("reversed", args, 1, 1); err != nil {
		return nil, err
	}
	var items []Value
	switch o := args[0].(type) {
	case *List, *Tuple, Str, *Range:
		all, err := vm.collect(o)
		if err != nil {
			return nil, err
		}
		items = all
	default:
		return nil, Errorf(TypeErrorClass, "'%s' object is not reversible", TypeName(args[0]))
	}
	slices.Reverse(items)
	return &sliceIterator{items: items}, nil
}

func builtinAny(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("any", args, 1, 1); err != nil {
		return nil, err
	}
	found := false
	err := vm.each(args[0], func(item Value) error {
		if Truthy(item) {
			found = true
			return errStopEach
		}
		return nil
	})
	if err != nil && err != errStopEach {
		return nil, err
	}
	return Bool(found), nil
}

func builtinAll(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("all", args, 1, 1); err != nil {
		return nil, err
	}
	all := true
	err := vm.each(args[0], func(item Value) error {
		if !Truthy(item) {
			all = false
			return errStopEach
		}
		return nil
	})
	if err != nil && err != errStopEach {
		return nil, err
	}
	return Bool(all), nil
}

// errStopEach ends an each loop early without reporting a failure.
var errStopEach = errors.New("stop")

// --- Ordering and arithmetic ---

// sortValues sorts items in place by key, stably.
func (vm *VM) sortValues(items []Value, key Value, reverse bool) error {
	keys := items
	if key != nil && key != None {
		keys = make([]Value, len(items))
		for i, item := range items {
			k, err := vm.Call(key, []Value{item}, nil)
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	slices.SortStableFunc(idx, func(a, b int) int {
		if sortErr != nil {
			return 0
		}
		x, y := keys[a], keys[b]
		if reverse {
			x, y = y, x
		}
		lt, err := orderCompare(CmpLT, x, y)
		if err != nil {
			sortErr = err
			return 0
		}
		if lt {
			return -1
		}
		gt, err := orderCompare(CmpLT, y, x)
		if err != nil {
			sortErr = err
			return 0
		}
		if gt {
			return 1
		}
		return 0
	})
	if sortErr != nil {
		return sortErr
	}
	sorted := make([]Value, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
	return nil
}

func builtinSorted(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	kw, err := keywords("sorted", kwargs, "key", "reverse")
	if err != nil {
		return nil, err
	}
	items, err := vm.collect(args[0])
	if err != nil {
		return nil, err
	}
	if err := vm.sortValues(items, kw["key"], Truthy(kw["reverse"])); err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func (vm *VM) extremum(name string, args []Value, kwargs *Dict, want CompareOp) (Value, error) {
	if err := checkArity(name, args, 1, -1); err != nil {
		return nil, err
	}
	kw, err := keywords(name, kwargs, "key", "default")
	if err != nil {
		return nil, err
	}
	items := args
	if len(args) == 1 {
		if items, err = vm.collect(args[0]); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		if d, ok := kw["default"]; ok {
			return d, nil
		}
		return nil, Errorf(ValueErrorClass, "%s() arg is an empty sequence", name)
	}
	key := kw["key"]
	keyOf := func(v Value) (Value, error) {
		if key == nil || key == None {
			return v, nil
		}
		return vm.Call(key, []Value{v}, nil)
	}
	best := items[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, item := range items[1:] {
		k, err := keyOf(item)
		if err != nil {
			return nil, err
		}
		better, err := orderCompare(want, k, bestKey)
		if err != nil {
			return nil, err
		}
		if better {
			best, bestKey = item, k
		}
	}
	return best, nil
}

func builtinMin(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	return vm.extremum("min", args, kwargs, CmpLT)
}

func builtinMax(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	return vm.extremum("max", args, kwargs, CmpGT)
}

func builtinSum(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	var total Value = Int(0)
	if len(args) == 2 {
		if _, ok := args[1].(Str); ok {
			return nil, Errorf(TypeErrorClass, "sum() can't sum strings [use ''.join(seq) instead]")
		}
		total = args[1]
	}
	err := vm.each(args[0], func(item Value) error {
		v, err := vm.binaryOp(opAdd, total, item, false)
		total = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func builtinAbs(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case Int:
		if v == math.MinInt64 {
			return normInt(new(big.Int).Neg(big.NewInt(int64(v))))
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case BigInt:
		return normInt(new(big.Int).Abs(v.n))
	case Bool:
		n, _ := AsInt(v)
		return Int(n), nil
	case Float:
		return Float(math.Abs(float64(v))), nil
	}
	return nil, Errorf(TypeErrorClass, "bad operand type for abs(): '%s'", TypeName(args[0]))
}

func builtinDivmod(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("divmod", args, 2, 2); err != nil {
		return nil, err
	}
	q, err := vm.binaryOp(opFloorDiv, args[0], args[1], false)
	if err != nil {
		return nil, err
	}
	r, err := vm.binaryOp(opMod, args[0], args[1], false)
	if err != nil {
		return nil, err
	}
	return NewTuple(q, r), nil
}

func builtinPow(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("pow", args, 2, 3); err != nil {
		return nil, err
	}
	if len(args) == 3 && args[2] != None {
		b, ok1 := AsInt(args[0])
		e, ok2 := AsInt(args[1])
		m, ok3 := AsInt(args[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, Errorf(TypeErrorClass, "pow() 3rd argument not allowed unless all arguments are integers")
		}
		if m == 0 {
			return nil, Errorf(ValueErrorClass, "pow() 3rd argument cannot be 0")
		}
		if e < 0 {
			return nil, Errorf(ValueErrorClass, "pow() 2nd argument cannot be negative when 3rd argument specified")
		}
		return Int(modPow(b, e, m)), nil
	}
	return vm.binaryOp(opPow, args[0], args[1], false)
}

// modPow computes b**e mod m with the sign of m, without overflow for
// moduli below 2**31.
func modPow(b, e, m int64) int64 {
	mod := func(x int64) int64 {
		r := x % m
		if r != 0 && (r < 0) != (m < 0) {
			r += m
		}
		return r
	}
	result := mod(1)
	b = mod(b)
	for e > 0 {
		if e&1 == 1 {
			result = mod(result * b)
		}
		b = mod(b * b)
		e >>= 1
	}
	return result
}

func builtinRound(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("round", args, 1, 2); err != nil {
		return nil, err
	}
	if n, ok := AsInt(args[0]); ok {
		return Int(n), nil
	}
	f, ok := AsFloat(args[0])
	if !ok {
		return nil, Errorf(TypeErrorClass, "type %s doesn't define __round__ method", TypeName(args[0]))
	}
	if len(args) == 2 && args[1] != None {
		digits, err := intArg("round", args[1])
		if err != nil {
			return nil, err
		}
		scale := math.Pow(10, float64(digits))
		return Float(math.RoundToEven(f*scale) / scale), nil
	}
	r := math.RoundToEven(f)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, Errorf(ValueErrorClass, "cannot convert float %s to integer", formatFloat(f))
	}
	if r < math.MinInt64 || r >= math.MaxInt64 {
		n, _ := big.NewFloat(r).Int(nil)
		return normInt(n)
	}
	return Int(int64(r)), nil
}

func builtinOrd(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("ord", args, 1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(Str)
	if !ok {
		return nil, Errorf(TypeErrorClass, "ord() expected string of length 1, but %s found", TypeName(args[0]))
	}
	if utf8.RuneCountInString(string(s)) != 1 {
		return nil, Errorf(TypeErrorClass, "ord() expected a character, but string of length %d found", utf8.RuneCountInString(string(s)))
	}
	r, _ := utf8.DecodeRuneInString(string(s))
	return Int(r), nil
}

func builtinChr(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("chr", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := intArg("chr", args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 || n > utf8.MaxRune {
		return nil, Errorf(ValueErrorClass, "chr() arg not in range(0x110000)")
	}
	return Str(rune(n)), nil
}
