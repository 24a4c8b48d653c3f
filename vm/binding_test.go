package vm

import "testing"

// sigFunction builds a function whose body returns its locals dict:
//
//	def f(a, b=10, *args, c, d=20, **kw): return locals()
func sigFunction() *Function {
	b := NewCodeBuilder("f", "<test>", 1)
	for _, n := range []string{"a", "b", "c", "d", "args", "kw"} {
		b.AddVarName(n)
	}
	b.SetArgs(2, 2)
	b.SetFlags(CoOptimized | CoNewLocals | CoVarArgs | CoVarKeywords)
	b.LoadGlobal("locals").Call(0).Return()

	fn := NewFunction(b.Build(), NewDict(), "f")
	fn.Defaults = []Value{Int(10)}
	fn.KwDefaults = NewDict()
	fn.KwDefaults.SetStr("d", Int(20))
	return fn
}

func kwargs(pairs ...any) *Dict {
	d := NewDict()
	for i := 0; i < len(pairs); i += 2 {
		d.SetStr(pairs[i].(string), pairs[i+1].(Value))
	}
	return d
}

func TestBindArguments(t *testing.T) {
	tests := []struct {
		name   string
		args   []Value
		kwargs *Dict
		want   map[string]string
	}{
		{
			name:   "defaults fill in",
			args:   []Value{Int(1)},
			kwargs: kwargs("c", Int(3)),
			want:   map[string]string{"a": "1", "b": "10", "c": "3", "d": "20", "args": "()", "kw": "{}"},
		},
		{
			name:   "extra positionals go to varargs",
			args:   []Value{Int(1), Int(2), Int(3), Int(4)},
			kwargs: kwargs("c", Int(5)),
			want:   map[string]string{"a": "1", "b": "2", "args": "(3, 4)", "c": "5"},
		},
		{
			name:   "keywords bind positional parameters",
			kwargs: kwargs("b", Int(2), "a", Int(1), "c", Int(3), "d", Int(4)),
			want:   map[string]string{"a": "1", "b": "2", "d": "4"},
		},
		{
			name:   "unknown keywords go to kwargs",
			args:   []Value{Int(1)},
			kwargs: kwargs("c", Int(3), "z", Str("zz")),
			want:   map[string]string{"kw": "{'z': 'zz'}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locals, err := sigFunction().bind(tt.args, tt.kwargs)
			if err != nil {
				t.Fatalf("bind: %v", err)
			}
			for name, want := range tt.want {
				v, ok := locals.GetStr(name)
				if !ok {
					t.Errorf("%s not bound", name)
					continue
				}
				if got := Repr(v); got != want {
					t.Errorf("%s = %s, want %s", name, got, want)
				}
			}
		})
	}
}

func TestBindArgumentErrors(t *testing.T) {
	// def g(a, b, c=3): ...
	b := NewCodeBuilder("g", "<test>", 1)
	for _, n := range []string{"a", "b", "c"} {
		b.AddVarName(n)
	}
	b.SetArgs(3, 0)
	b.LoadConst(None).Return()
	g := NewFunction(b.Build(), NewDict(), "g")
	g.Defaults = []Value{Int(3)}

	// def h(*, key): ...
	hb := NewCodeBuilder("h", "<test>", 1)
	hb.AddVarName("key")
	hb.SetArgs(0, 1)
	hb.LoadConst(None).Return()
	h := NewFunction(hb.Build(), NewDict(), "h")

	tests := []struct {
		name   string
		fn     *Function
		args   []Value
		kwargs *Dict
		want   string
	}{
		{"missing one", g, []Value{Int(1)}, nil,
			"g() missing 1 required positional argument: 'b'"},
		{"missing two", g, nil, nil,
			"g() missing 2 required positional arguments: 'a' and 'b'"},
		{"too many", g, []Value{Int(1), Int(2), Int(3), Int(4)}, nil,
			"g() takes from 2 to 3 positional arguments but 4 were given"},
		{"duplicate", g, []Value{Int(1)}, kwargs("a", Int(2)),
			"g() got multiple values for argument 'a'"},
		{"unexpected", g, []Value{Int(1), Int(2)}, kwargs("zzz", Int(2)),
			"g() got an unexpected keyword argument 'zzz'"},
		{"keyword-only missing", h, nil, nil,
			"h() missing 1 required keyword-only argument: 'key'"},
		{"keyword-only given positionally", h, []Value{Int(1)}, nil,
			"h() takes 0 positional arguments but 1 was given"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn.bind(tt.args, tt.kwargs)
			exc := wantException(t, err, TypeErrorClass)
			if exc.Message() != tt.want {
				t.Errorf("message = %q, want %q", exc.Message(), tt.want)
			}
		})
	}
}

func TestArityFailureBuildsNoFrame(t *testing.T) {
	vm := NewVM()
	fn := function(t, vm, factCode())

	_, err := vm.Call(fn, nil, nil)
	wantException(t, err, TypeErrorClass)
	if vm.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", vm.Depth())
	}
}

func TestCellArgumentsMoveIntoCells(t *testing.T) {
	vm := NewVM()

	// def outer(n):
	//     def inner(): return n
	//     return inner
	ib := newFuncBuilder("inner")
	free := ib.AddFreeVar("n")
	ib.EmitArg(OpLoadDeref, free).Return()

	ob := newFuncBuilder("outer", "n")
	cell := ob.AddCellVar("n")
	ob.EmitArg(OpLoadClosure, cell).EmitArg(OpBuildTuple, 1)
	ob.LoadConst(ib.Build()).LoadConst(Str("outer.<locals>.inner"))
	ob.EmitArg(OpMakeFunction, MakeFunctionClosure).Return()

	outer := function(t, vm, ob.Build())
	inner, err := vm.Call(outer, []Value{Str("captured")}, nil)
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	result, err := vm.Call(inner, nil, nil)
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	if result != Str("captured") {
		t.Errorf("inner() = %v, want 'captured'", Repr(result))
	}
}
