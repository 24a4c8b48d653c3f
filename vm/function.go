package vm

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Function is a code object closed over its defining environment.
type Function struct {
	Name     string
	QualName string
	Code     *Code
	Globals  *Dict // shared with the defining module

	Defaults   []Value // right-aligned against the positional parameters
	KwDefaults *Dict   // keyword-only parameter defaults, may be nil
	Closure    []*Cell // shared with the defining frame

	Doc    Value
	Module Value
	Attrs  *Dict
}

// NewFunction creates a function for code defined in globals.
func NewFunction(code *Code, globals *Dict, qualName string) *Function {
	if qualName == "" {
		qualName = code.Name
	}
	fn := &Function{
		Name:     code.Name,
		QualName: qualName,
		Code:     code,
		Globals:  globals,
		Doc:      code.Doc(),
		Module:   None,
		Attrs:    NewDict(),
	}
	if m, ok := globals.GetStr("__name__"); ok {
		fn.Module = m
	}
	return fn
}

func (fn *Function) attr(name string) (Value, bool) {
	switch name {
	case "__name__":
		return Str(fn.Name), true
	case "__qualname__":
		return Str(fn.QualName), true
	case "__doc__":
		return fn.Doc, true
	case "__module__":
		return fn.Module, true
	case "__code__":
		return fn.Code, true
	case "__globals__":
		return fn.Globals, true
	case "__dict__":
		return fn.Attrs, true
	case "__defaults__":
		if len(fn.Defaults) == 0 {
			return None, true
		}
		return NewTuple(append([]Value(nil), fn.Defaults...)...), true
	case "__kwdefaults__":
		if fn.KwDefaults == nil {
			return None, true
		}
		return fn.KwDefaults, true
	case "__closure__":
		if len(fn.Closure) == 0 {
			return None, true
		}
		cells := make([]Value, len(fn.Closure))
		for i, c := range fn.Closure {
			cells[i] = c
		}
		return NewTuple(cells...), true
	}
	return fn.Attrs.GetStr(name)
}

func (fn *Function) setAttr(name string, v Value) error {
	switch name {
	case "__name__", "__qualname__":
		s, ok := v.(Str)
		if !ok {
			return Errorf(TypeErrorClass, "%s must be set to a string object", name)
		}
		if name == "__name__" {
			fn.Name = string(s)
		} else {
			fn.QualName = string(s)
		}
	case "__doc__":
		fn.Doc = v
	case "__module__":
		fn.Module = v
	case "__defaults__":
		if v == None {
			fn.Defaults = nil
			return nil
		}
		t, ok := v.(*Tuple)
		if !ok {
			return Errorf(TypeErrorClass, "__defaults__ must be set to a tuple object")
		}
		fn.Defaults = t.Items
	case "__kwdefaults__":
		if v == None {
			fn.KwDefaults = nil
			return nil
		}
		d, ok := v.(*Dict)
		if !ok {
			return Errorf(TypeErrorClass, "__kwdefaults__ must be set to a dict object")
		}
		fn.KwDefaults = d
	case "__code__", "__globals__", "__closure__", "__dict__":
		return Errorf(AttributeErrorClass, "readonly attribute")
	default:
		fn.Attrs.SetStr(name, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

// Method is a function retrieved through a class or instance. A bound
// method prepends Self to the arguments; with a nil Self the method is
// unbound and arguments pass through unchanged.
type Method struct {
	Func  *Function
	Self  Value
	Class *Class
}

func (m *Method) arguments(args []Value) []Value {
	if m.Self == nil {
		return args
	}
	out := make([]Value, 0, len(args)+1)
	out = append(out, m.Self)
	return append(out, args...)
}

// ---------------------------------------------------------------------------
// Frame construction for calls
// ---------------------------------------------------------------------------

// frameFor binds args against fn's parameters and builds the frame that
// executes the call. The frame is not pushed.
func (vm *VM) frameFor(fn *Function, args []Value, kwargs *Dict) (*Frame, error) {
	locals, err := fn.bind(args, kwargs)
	if err != nil {
		return nil, err
	}
	return vm.newFrame(fn.Code, fn.Globals, locals, fn.Closure)
}
