package vm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// methodTable maps attribute names to native methods. The receiver is
// passed as args[0].
type methodTable map[string]*Builtin

// Method tables for the built-in types. They are filled in init because
// several methods call back into the interpreter.
var (
	listMethods      methodTable
	tupleMethods     methodTable
	dictMethods      methodTable
	setMethods       methodTable
	strMethods       methodTable
	generatorMethods methodTable
)

func (t methodTable) add(name string, fn BuiltinFunc) {
	t[name] = NewBuiltin(name, fn)
}

// typeMethod finds the native method name of a built-in value's type.
func typeMethod(obj Value, name string) (*Builtin, bool) {
	var t methodTable
	switch obj.(type) {
	case *List:
		t = listMethods
	case *Tuple:
		t = tupleMethods
	case *Dict:
		t = dictMethods
	case *Set:
		t = setMethods
	case Str:
		t = strMethods
	case *Generator:
		t = generatorMethods
	}
	b, ok := t[name]
	return b, ok
}

func init() {
	listMethods = methodTable{}
	listMethods.add("append", listAppend)
	listMethods.add("extend", listExtend)
	listMethods.add("insert", listInsert)
	listMethods.add("pop", listPop)
	listMethods.add("remove", listRemove)
	listMethods.add("index", seqIndex)
	listMethods.add("count", seqCount)
	listMethods.add("reverse", listReverse)
	listMethods.add("sort", listSort)
	listMethods.add("copy", listCopy)
	listMethods.add("clear", listClear)

	tupleMethods = methodTable{}
	tupleMethods.add("index", seqIndex)
	tupleMethods.add("count", seqCount)

	dictMethods = methodTable{}
	dictMethods.add("get", dictGet)
	dictMethods.add("keys", dictKeys)
	dictMethods.add("values", dictValues)
	dictMethods.add("items", dictItems)
	dictMethods.add("pop", dictPop)
	dictMethods.add("setdefault", dictSetDefault)
	dictMethods.add("update", dictUpdate)
	dictMethods.add("copy", dictCopy)
	dictMethods.add("clear", dictClear)

	setMethods = methodTable{}
	setMethods.add("add", setAdd)
	setMethods.add("discard", setDiscard)
	setMethods.add("remove", setRemove)
	setMethods.add("copy", setCopy)

	strMethods = methodTable{}
	strMethods.add("join", strJoin)
	strMethods.add("split", strSplit)
	strMethods.add("strip", strStrip(strings.Trim, strings.TrimSpace))
	strMethods.add("lstrip", strStrip(strings.TrimLeft, func(s string) string {
		return strings.TrimLeftFunc(s, unicode.IsSpace)
	}))
	strMethods.add("rstrip", strStrip(strings.TrimRight, func(s string) string {
		return strings.TrimRightFunc(s, unicode.IsSpace)
	}))
	strMethods.add("upper", strMap(strings.ToUpper))
	strMethods.add("lower", strMap(strings.ToLower))
	strMethods.add("startswith", strAffix(strings.HasPrefix))
	strMethods.add("endswith", strAffix(strings.HasSuffix))
	strMethods.add("replace", strReplace)
	strMethods.add("find", strFind)
	strMethods.add("count", strCount)
	strMethods.add("isdigit", strIs(unicode.IsDigit))
	strMethods.add("isalpha", strIs(unicode.IsLetter))
	strMethods.add("isspace", strIs(unicode.IsSpace))

	generatorMethods = methodTable{}
	generatorMethods.add("send", genSend)
	generatorMethods.add("throw", genThrow)
	generatorMethods.add("close", genClose)
	generatorMethods.add("__next__", genNext)
}

// ---------------------------------------------------------------------------
// list and tuple
// ---------------------------------------------------------------------------

func listAppend(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("append", args, 2, 2); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, args[1])
	return None, nil
}

func listExtend(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("extend", args, 2, 2); err != nil {
		return nil, err
	}
	items, err := vm.collect(args[1])
	if err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, items...)
	return None, nil
}

func listInsert(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("insert", args, 3, 3); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	i, err := intArg("insert", args[1])
	if err != nil {
		return nil, err
	}
	n := int64(len(l.Items))
	if i < 0 {
		i += n
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	l.Items = append(l.Items, nil)
	copy(l.Items[i+1:], l.Items[i:])
	l.Items[i] = args[2]
	return None, nil
}

func listPop(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("pop", args, 1, 2); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	if len(l.Items) == 0 {
		return nil, Errorf(IndexErrorClass, "pop from empty list")
	}
	i := len(l.Items) - 1
	if len(args) == 2 {
		j, err := normalizeIndex(args[1], len(l.Items), "pop")
		if err != nil {
			return nil, err
		}
		i = j
	}
	v := l.Items[i]
	l.Items = append(l.Items[:i], l.Items[i+1:]...)
	return v, nil
}

func listRemove(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("remove", args, 2, 2); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	for i, item := range l.Items {
		if Equal(item, args[1]) {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return None, nil
		}
	}
	return nil, Errorf(ValueErrorClass, "list.remove(x): x not in list")
}

func seqIndex(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("index", args, 2, 2); err != nil {
		return nil, err
	}
	items, _ := sequenceItems(args[0])
	for i, item := range items {
		if Equal(item, args[1]) {
			return Int(i), nil
		}
	}
	return nil, Errorf(ValueErrorClass, "%s is not in %s", Repr(args[1]), TypeName(args[0]))
}

func seqCount(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("count", args, 2, 2); err != nil {
		return nil, err
	}
	items, _ := sequenceItems(args[0])
	n := 0
	for _, item := range items {
		if Equal(item, args[1]) {
			n++
		}
	}
	return Int(n), nil
}

func listReverse(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("reverse", args, 1, 1); err != nil {
		return nil, err
	}
	items := args[0].(*List).Items
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return None, nil
}

func listSort(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("sort", args, 1, 1); err != nil {
		return nil, err
	}
	kw, err := keywords("sort", kwargs, "key", "reverse")
	if err != nil {
		return nil, err
	}
	return None, vm.sortValues(args[0].(*List).Items, kw["key"], Truthy(kw["reverse"]))
}

func listCopy(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("copy", args, 1, 1); err != nil {
		return nil, err
	}
	return NewList(append([]Value(nil), args[0].(*List).Items...)...), nil
}

func listClear(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("clear", args, 1, 1); err != nil {
		return nil, err
	}
	args[0].(*List).Items = nil
	return None, nil
}

// ---------------------------------------------------------------------------
// dict
// ---------------------------------------------------------------------------

func dictGet(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("get", args, 2, 3); err != nil {
		return nil, err
	}
	v, ok, err := args[0].(*Dict).Get(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 3 {
			return args[2], nil
		}
		return None, nil
	}
	return v, nil
}

func dictKeys(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("keys", args, 1, 1); err != nil {
		return nil, err
	}
	return NewList(args[0].(*Dict).Keys()...), nil
}

func dictValues(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("values", args, 1, 1); err != nil {
		return nil, err
	}
	return NewList(args[0].(*Dict).Values()...), nil
}

func dictItems(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("items", args, 1, 1); err != nil {
		return nil, err
	}
	entries := args[0].(*Dict).Items()
	items := make([]Value, len(entries))
	for i, e := range entries {
		items[i] = NewTuple(e.Key, e.Value)
	}
	return NewList(items...), nil
}

func dictPop(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("pop", args, 2, 3); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	v, ok, err := d.Get(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 3 {
			return args[2], nil
		}
		return nil, NewException(KeyErrorClass, args[1])
	}
	if _, err := d.Delete(args[1]); err != nil {
		return nil, err
	}
	return v, nil
}

func dictSetDefault(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("setdefault", args, 2, 3); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	v, ok, err := d.Get(args[1])
	if err != nil || ok {
		return v, err
	}
	var def Value = None
	if len(args) == 3 {
		def = args[2]
	}
	return def, d.Set(args[1], def)
}

func dictUpdate(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("update", args, 1, 2); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	src, err := builtinDict(vm, args[1:], kwargs)
	if err != nil {
		return nil, err
	}
	d.Update(src.(*Dict))
	return None, nil
}

func dictCopy(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("copy", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0].(*Dict).Copy(), nil
}

func dictClear(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("clear", args, 1, 1); err != nil {
		return nil, err
	}
	args[0].(*Dict).Clear()
	return None, nil
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func setAdd(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("add", args, 2, 2); err != nil {
		return nil, err
	}
	return None, args[0].(*Set).Add(args[1])
}

func setDiscard(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("discard", args, 2, 2); err != nil {
		return nil, err
	}
	_, err := args[0].(*Set).Discard(args[1])
	return None, err
}

func setRemove(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("remove", args, 2, 2); err != nil {
		return nil, err
	}
	ok, err := args[0].(*Set).Discard(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewException(KeyErrorClass, args[1])
	}
	return None, nil
}

func setCopy(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("copy", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0].(*Set).Copy(), nil
}

// ---------------------------------------------------------------------------
// str
// ---------------------------------------------------------------------------

func strArg(method string, v Value) (string, error) {
	s, ok := v.(Str)
	if !ok {
		return "", Errorf(TypeErrorClass, "%s() argument must be str, not %s", method, TypeName(v))
	}
	return string(s), nil
}

func strJoin(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("join", args, 2, 2); err != nil {
		return nil, err
	}
	items, err := vm.collect(args[1])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(Str)
		if !ok {
			return nil, Errorf(TypeErrorClass, "sequence item %d: expected str instance, %s found", i, TypeName(item))
		}
		parts[i] = string(s)
	}
	return Str(strings.Join(parts, string(args[0].(Str)))), nil
}

func strSplit(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("split", args, 1, 3); err != nil {
		return nil, err
	}
	s := string(args[0].(Str))
	limit := -1
	if len(args) == 3 {
		n, err := intArg("split", args[2])
		if err != nil {
			return nil, err
		}
		limit = int(n)
	}
	var parts []string
	if len(args) == 1 || args[1] == None {
		parts = strings.Fields(s)
		if limit >= 0 && len(parts) > limit+1 {
			parts = strings.SplitN(strings.TrimLeftFunc(s, unicode.IsSpace), " ", limit+1)
		}
	} else {
		sep, err := strArg("split", args[1])
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, Errorf(ValueErrorClass, "empty separator")
		}
		n := -1
		if limit >= 0 {
			n = limit + 1
		}
		parts = strings.SplitN(s, sep, n)
	}
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Str(p)
	}
	return NewList(items...), nil
}

func strStrip(withChars func(string, string) string, space func(string) string) BuiltinFunc {
	return func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := checkArity("strip", args, 1, 2); err != nil {
			return nil, err
		}
		s := string(args[0].(Str))
		if len(args) == 1 || args[1] == None {
			return Str(space(s)), nil
		}
		chars, err := strArg("strip", args[1])
		if err != nil {
			return nil, err
		}
		return Str(withChars(s, chars)), nil
	}
}

func strMap(fn func(string) string) BuiltinFunc {
	return func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := checkArity("str method", args, 1, 1); err != nil {
			return nil, err
		}
		return Str(fn(string(args[0].(Str)))), nil
	}
}

func strAffix(fn func(string, string) bool) BuiltinFunc {
	return func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := checkArity("str method", args, 2, 2); err != nil {
			return nil, err
		}
		s := string(args[0].(Str))
		affixes := []Value{args[1]}
		if t, ok := args[1].(*Tuple); ok {
			affixes = t.Items
		}
		for _, a := range affixes {
			x, err := strArg("startswith", a)
			if err != nil {
				return nil, err
			}
			if fn(s, x) {
				return True, nil
			}
		}
		return False, nil
	}
}

func strReplace(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("replace", args, 3, 4); err != nil {
		return nil, err
	}
	old, err := strArg("replace", args[1])
	if err != nil {
		return nil, err
	}
	repl, err := strArg("replace", args[2])
	if err != nil {
		return nil, err
	}
	n := -1
	if len(args) == 4 {
		c, err := intArg("replace", args[3])
		if err != nil {
			return nil, err
		}
		n = int(c)
	}
	return Str(strings.Replace(string(args[0].(Str)), old, repl, n)), nil
}

func strFind(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("find", args, 2, 2); err != nil {
		return nil, err
	}
	sub, err := strArg("find", args[1])
	if err != nil {
		return nil, err
	}
	s := string(args[0].(Str))
	i := strings.Index(s, sub)
	if i < 0 {
		return Int(-1), nil
	}
	return Int(utf8.RuneCountInString(s[:i])), nil
}

func strCount(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("count", args, 2, 2); err != nil {
		return nil, err
	}
	sub, err := strArg("count", args[1])
	if err != nil {
		return nil, err
	}
	return Int(strings.Count(string(args[0].(Str)), sub)), nil
}

func strIs(pred func(rune) bool) BuiltinFunc {
	return func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if err := checkArity("str method", args, 1, 1); err != nil {
			return nil, err
		}
		s := string(args[0].(Str))
		if s == "" {
			return False, nil
		}
		for _, r := range s {
			if !pred(r) {
				return False, nil
			}
		}
		return True, nil
	}
}

// ---------------------------------------------------------------------------
// generator
// ---------------------------------------------------------------------------

func genSend(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("send", args, 2, 2); err != nil {
		return nil, err
	}
	return args[0].(*Generator).Send(args[1])
}

func genNext(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("__next__", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0].(*Generator).Next()
}

func genThrow(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("throw", args, 2, 3); err != nil {
		return nil, err
	}
	exc, err := vm.makeRaisable(args[1])
	if err != nil {
		return nil, err
	}
	if len(args) == 3 && args[2] != None {
		if _, isClass := args[1].(*Class); !isClass {
			return nil, Errorf(TypeErrorClass, "instance exception may not have a separate value")
		}
		exc.Args = NewTuple(args[2])
	}
	return args[0].(*Generator).Throw(exc)
}

func genClose(vm *VM, args []Value, kwargs *Dict) (Value, error) {
	if err := checkArity("close", args, 1, 1); err != nil {
		return nil, err
	}
	return None, args[0].(*Generator).Close()
}
