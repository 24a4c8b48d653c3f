package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestBinaryOperators(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		name string
		op   binOp
		a, b Value
		want string
	}{
		{"int add", opAdd, Int(2), Int(3), "5"},
		{"bool promotes", opAdd, Bool(true), Int(1), "2"},
		{"mixed float", opAdd, Int(1), Float(0.5), "1.5"},
		{"true divide ints", opTrueDiv, Int(7), Int(2), "3.5"},
		{"floor toward minus infinity", opFloorDiv, Int(-7), Int(2), "-4"},
		{"mod takes divisor sign", opMod, Int(-7), Int(3), "2"},
		{"float mod sign", opMod, Float(7), Float(-3), "-2.0"},
		{"power", opPow, Int(2), Int(10), "1024"},
		{"negative power is float", opPow, Int(2), Int(-1), "0.5"},
		{"shift", opLshift, Int(1), Int(8), "256"},
		{"bool and stays bool", opAnd, Bool(true), Bool(false), "False"},
		{"bool xor", opXor, Bool(true), Bool(false), "True"},
		{"str concat", opAdd, Str("ab"), Str("c"), "'abc'"},
		{"str repeat", opMul, Str("ab"), Int(3), "'ababab'"},
		{"int times list", opMul, Int(2), NewList(Int(1)), "[1, 1]"},
		{"negative repeat", opMul, NewTuple(Int(1)), Int(-2), "()"},
		{"empty list huge repeat", opMul, NewList(), Int(1 << 62), "[]"},
		{"empty str huge repeat", opMul, Str(""), Int(1 << 62), "''"},
		{"list concat", opAdd, NewList(Int(1)), NewList(Int(2)), "[1, 2]"},
		{"percent format", opMod, Str("%s=%05.1f"), NewTuple(Str("x"), Float(3.14159)), "'x=003.1'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.binaryOp(tt.op, tt.a, tt.b, false)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if Repr(got) != tt.want {
				t.Errorf("result = %s, want %s", Repr(got), tt.want)
			}
		})
	}
}

func TestBinaryOperatorErrors(t *testing.T) {
	vm := NewVM()
	tests := []struct {
		name string
		op   binOp
		a, b Value
		exc  *Class
		msg  string
	}{
		{"int zero divide", opTrueDiv, Int(1), Int(0), ZeroDivisionErrorClass, "division by zero"},
		{"floor zero divide", opFloorDiv, Int(1), Int(0), ZeroDivisionErrorClass, "integer division or modulo by zero"},
		{"float modulo", opMod, Float(1), Float(0), ZeroDivisionErrorClass, "float modulo"},
		{"pow too large", opPow, Int(10), Int(1 << 20), OverflowErrorClass, "integer overflow"},
		{"shift too large", opLshift, Int(1), Int(1 << 21), OverflowErrorClass, "integer overflow"},
		{"str repeat too long", opMul, Str("ab"), Int(1 << 62), OverflowErrorClass, "repeated sequence is too long"},
		{"list repeat too long", opMul, NewList(Int(1)), Int(1 << 62), OverflowErrorClass, "repeated sequence is too long"},
		{"int times tuple too long", opMul, Int(1 << 40), NewTuple(Int(1), Int(2)), OverflowErrorClass, "repeated sequence is too long"},
		{"negative shift", opRshift, Int(1), Int(-1), ValueErrorClass, "negative shift count"},
		{"mixed types", opAdd, Int(1), Str("a"), TypeErrorClass,
			"unsupported operand type(s) for +: 'int' and 'str'"},
		{"str concat", opAdd, Str("a"), Int(1), TypeErrorClass,
			`can only concatenate str (not "int") to str`},
		{"format arity", opMod, Str("%d %d"), Int(1), TypeErrorClass,
			"not enough arguments for format string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vm.binaryOp(tt.op, tt.a, tt.b, false)
			exc := wantException(t, err, tt.exc)
			if exc.Message() != tt.msg {
				t.Errorf("message = %q, want %q", exc.Message(), tt.msg)
			}
		})
	}
}

func TestInplaceRepeatTooLong(t *testing.T) {
	vm := NewVM()
	l := NewList(Int(1))
	_, err := vm.binaryOp(opMul, l, Int(1<<62), true)
	wantException(t, err, OverflowErrorClass)
	if len(l.Items) != 1 {
		t.Errorf("failed repeat changed the list to %s", Repr(l))
	}
}

func TestInplaceAddMutatesList(t *testing.T) {
	vm := NewVM()
	l := NewList(Int(1))
	got, err := vm.binaryOp(opAdd, l, NewTuple(Int(2), Int(3)), true)
	if err != nil {
		t.Fatal(err)
	}
	if got != Value(l) {
		t.Errorf("in-place add returned a new list")
	}
	if Repr(l) != "[1, 2, 3]" {
		t.Errorf("list = %s, want [1, 2, 3]", Repr(l))
	}

	// Plain add builds a new list and refuses non-lists.
	if _, err := vm.binaryOp(opAdd, l, NewTuple(), false); err == nil {
		t.Errorf("list + tuple should fail")
	}
}

func TestUnaryOperators(t *testing.T) {
	tests := []struct {
		op   Opcode
		v    Value
		want string
	}{
		{OpUnaryNot, Int(0), "True"},
		{OpUnaryNot, NewList(Int(1)), "False"},
		{OpUnaryNegative, Int(5), "-5"},
		{OpUnaryNegative, Bool(true), "-1"},
		{OpUnaryPositive, Bool(true), "1"},
		{OpUnaryInvert, Int(5), "-6"},
	}
	for _, tt := range tests {
		got, err := unaryOp(tt.op, tt.v)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.op, Repr(tt.v), err)
		}
		if Repr(got) != tt.want {
			t.Errorf("%s %s = %s, want %s", tt.op, Repr(tt.v), Repr(got), tt.want)
		}
	}

	neg, err := unaryOp(OpUnaryNegative, Int(math.MinInt64))
	if err != nil || Repr(neg) != "9223372036854775808" {
		t.Errorf("-MinInt64 = %v, %v", Repr(neg), err)
	}
	_, err = unaryOp(OpUnaryNegative, Str("x"))
	wantException(t, err, TypeErrorClass)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func TestCompare(t *testing.T) {
	vm := NewVM()
	list := NewList(Int(1), Int(2))
	nan := Float(math.NaN())
	tests := []struct {
		name string
		op   CompareOp
		a, b Value
		want Bool
	}{
		{"int float equal", CmpEQ, Int(1), Float(1), true},
		{"bool int equal", CmpEQ, Bool(true), Int(1), true},
		{"str int not equal", CmpNE, Str("1"), Int(1), true},
		{"tuple elementwise", CmpEQ, NewTuple(Int(1), Str("a")), NewTuple(Float(1), Str("a")), true},
		{"tuple ordering", CmpLT, NewTuple(Int(1), Int(2)), NewTuple(Int(1), Int(3)), true},
		{"shorter tuple first", CmpLT, NewTuple(Int(1)), NewTuple(Int(1), Int(0)), true},
		{"string ordering", CmpGT, Str("b"), Str("abc"), true},
		{"identity", CmpIs, list, list, true},
		{"equal lists not identical", CmpIs, list, NewList(Int(1), Int(2)), false},
		{"is not", CmpIsNot, None, None, false},
		{"in list", CmpIn, Int(2), list, true},
		{"not in", CmpNotIn, Int(3), list, true},
		{"substring", CmpIn, Str("ell"), Str("hello"), true},
		{"in range", CmpIn, Int(4), &Range{Start: 0, Stop: 10, Step: 2}, true},
		{"odd not in even range", CmpIn, Int(5), &Range{Start: 0, Stop: 10, Step: 2}, false},
		{"nan lt", CmpLT, nan, Float(1), false},
		{"nan ge", CmpGE, nan, Float(1), false},
		{"nan eq itself", CmpEQ, nan, nan, false},
		{"exception match", CmpExceptionMatch, NewException(KeyErrorClass), LookupErrorClass, true},
		{"exception tuple", CmpExceptionMatch, NewException(KeyErrorClass), NewTuple(TypeErrorClass, KeyErrorClass), true},
		{"exception mismatch", CmpExceptionMatch, NewException(KeyErrorClass), TypeErrorClass, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.compare(tt.op, tt.a, tt.b)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s %s %s = %v, want %v", Repr(tt.a), tt.op, Repr(tt.b), got, tt.want)
			}
		})
	}
}

func TestCompareErrors(t *testing.T) {
	vm := NewVM()

	_, err := vm.compare(CmpLT, Int(1), Str("a"))
	exc := wantException(t, err, TypeErrorClass)
	if want := "'<' not supported between instances of 'int' and 'str'"; exc.Message() != want {
		t.Errorf("message = %q, want %q", exc.Message(), want)
	}

	_, err = vm.compare(CmpExceptionMatch, NewException(KeyErrorClass), Int(1))
	wantException(t, err, TypeErrorClass)

	_, err = vm.compare(CmpIn, Int(1), Int(2))
	wantException(t, err, TypeErrorClass)
}

// ---------------------------------------------------------------------------
// Subscripts
// ---------------------------------------------------------------------------

func TestGetItem(t *testing.T) {
	vm := NewVM()
	seq := NewList(Int(0), Int(1), Int(2), Int(3), Int(4))
	tests := []struct {
		name string
		obj  Value
		key  Value
		want string
	}{
		{"negative index", seq, Int(-1), "4"},
		{"slice", seq, &Slice{Start: Int(1), Stop: Int(3), Step: None}, "[1, 2]"},
		{"reverse slice", seq, &Slice{Start: None, Stop: None, Step: Int(-2)}, "[4, 2, 0]"},
		{"clamped slice", seq, &Slice{Start: Int(-100), Stop: Int(100), Step: None}, "[0, 1, 2, 3, 4]"},
		{"tuple slice", NewTuple(Int(1), Int(2)), &Slice{Start: Int(1), Stop: None, Step: None}, "(2,)"},
		{"string index", Str("héllo"), Int(1), "'é'"},
		{"string slice", Str("hello"), &Slice{Start: None, Stop: None, Step: Int(-1)}, "'olleh'"},
		{"dict", func() Value { d := NewDict(); d.SetStr("k", Int(9)); return d }(), Str("k"), "9"},
		{"range", &Range{Start: 10, Stop: 0, Step: -3}, Int(2), "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.getItem(tt.obj, tt.key)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if Repr(got) != tt.want {
				t.Errorf("result = %s, want %s", Repr(got), tt.want)
			}
		})
	}
}

func TestGetItemErrors(t *testing.T) {
	vm := NewVM()
	list := NewList(Int(1))

	_, err := vm.getItem(list, Int(5))
	exc := wantException(t, err, IndexErrorClass)
	if exc.Message() != "list index out of range" {
		t.Errorf("message = %q", exc.Message())
	}

	_, err = vm.getItem(NewDict(), Str("missing"))
	exc = wantException(t, err, KeyErrorClass)
	if Repr(exc.Args) != "('missing',)" {
		t.Errorf("args = %s", Repr(exc.Args))
	}

	_, err = vm.getItem(list, &Slice{Start: None, Stop: None, Step: Int(0)})
	wantException(t, err, ValueErrorClass)

	_, err = vm.getItem(Int(1), Int(0))
	wantException(t, err, TypeErrorClass)
}

func TestSetAndDeleteItem(t *testing.T) {
	vm := NewVM()
	l := NewList(Int(0), Int(1), Int(2), Int(3))

	if err := vm.setItem(l, &Slice{Start: Int(1), Stop: Int(3), Step: None}, NewList(Str("a"))); err != nil {
		t.Fatal(err)
	}
	if Repr(l) != "[0, 'a', 3]" {
		t.Errorf("after slice assignment: %s", Repr(l))
	}
	if err := vm.delItem(l, Int(0)); err != nil {
		t.Fatal(err)
	}
	if Repr(l) != "['a', 3]" {
		t.Errorf("after delete: %s", Repr(l))
	}

	err := vm.setItem(l, Int(9), None)
	exc := wantException(t, err, IndexErrorClass)
	if exc.Message() != "list assignment index out of range" {
		t.Errorf("message = %q", exc.Message())
	}

	err = vm.setItem(NewTuple(), Int(0), None)
	wantException(t, err, TypeErrorClass)
}
