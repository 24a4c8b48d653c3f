package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// binOp indexes the binary operator family; BINARY_* and INPLACE_*
// opcodes are laid out in this order.
type binOp uint8

const (
	opPow binOp = iota
	opMul
	opTrueDiv
	opFloorDiv
	opMod
	opAdd
	opSub
	opLshift
	opRshift
	opAnd
	opXor
	opOr
)

var binOpSymbols = [...]string{"** or pow()", "*", "/", "//", "%", "+", "-", "<<", ">>", "&", "^", "|"}

func unsupportedOperands(op binOp, a, b Value) *Exception {
	return Errorf(TypeErrorClass, "unsupported operand type(s) for %s: '%s' and '%s'",
		binOpSymbols[op], TypeName(a), TypeName(b))
}

// binaryOp applies a binary operator. In-place operators mutate lists
// and sets on the left.
func (vm *VM) binaryOp(op binOp, a, b Value, inplace bool) (Value, error) {
	if inplace {
		if v, ok, err := vm.inplaceOp(op, a, b); ok || err != nil {
			return v, err
		}
	}

	if x, ok := a.(Bool); ok {
		if y, ok := b.(Bool); ok {
			switch op {
			case opAnd:
				return x && y, nil
			case opOr:
				return x || y, nil
			case opXor:
				return Bool(x != y), nil
			}
		}
	}

	if x, ok := AsInt(a); ok {
		if y, ok := AsInt(b); ok {
			return intOp(op, x, y)
		}
	}
	if isBigInt(a) || isBigInt(b) {
		if x, ok := asBig(a); ok {
			if y, ok := asBig(b); ok {
				return bigIntOp(op, x, y)
			}
		}
	}
	if x, ok := AsFloat(a); ok {
		if y, ok := AsFloat(b); ok {
			return floatOp(op, a, b, x, y)
		}
	}

	switch x := a.(type) {
	case Str:
		switch op {
		case opAdd:
			if y, ok := b.(Str); ok {
				return x + y, nil
			}
			return nil, Errorf(TypeErrorClass, "can only concatenate str (not \"%s\") to str", TypeName(b))
		case opMul:
			if n, ok := AsInt(b); ok {
				return repeatStr(x, n)
			}
		case opMod:
			return vm.formatPercent(string(x), b)
		}
	case *List:
		switch op {
		case opAdd:
			if y, ok := b.(*List); ok {
				return NewList(concat(x.Items, y.Items)...), nil
			}
			return nil, Errorf(TypeErrorClass, "can only concatenate list (not \"%s\") to list", TypeName(b))
		case opMul:
			if n, ok := AsInt(b); ok {
				items, err := repeat(x.Items, n)
				if err != nil {
					return nil, err
				}
				return NewList(items...), nil
			}
		}
	case *Tuple:
		switch op {
		case opAdd:
			if y, ok := b.(*Tuple); ok {
				return NewTuple(concat(x.Items, y.Items)...), nil
			}
			return nil, Errorf(TypeErrorClass, "can only concatenate tuple (not \"%s\") to tuple", TypeName(b))
		case opMul:
			if n, ok := AsInt(b); ok {
				items, err := repeat(x.Items, n)
				if err != nil {
					return nil, err
				}
				return NewTuple(items...), nil
			}
		}
	case *Set:
		if y, ok := b.(*Set); ok {
			if v, ok, err := setOp(op, x, y); ok || err != nil {
				return v, err
			}
		}
	case Int, Bool:
		if op == opMul {
			n, _ := AsInt(a)
			switch y := b.(type) {
			case Str:
				return repeatStr(y, n)
			case *List:
				items, err := repeat(y.Items, n)
				if err != nil {
					return nil, err
				}
				return NewList(items...), nil
			case *Tuple:
				items, err := repeat(y.Items, n)
				if err != nil {
					return nil, err
				}
				return NewTuple(items...), nil
			}
		}
	}
	return nil, unsupportedOperands(op, a, b)
}

func (vm *VM) inplaceOp(op binOp, a, b Value) (Value, bool, error) {
	switch x := a.(type) {
	case *List:
		switch op {
		case opAdd:
			items, err := vm.collect(b)
			if err != nil {
				return nil, true, err
			}
			x.Items = append(x.Items, items...)
			return x, true, nil
		case opMul:
			if n, ok := AsInt(b); ok {
				items, err := repeat(x.Items, n)
				if err != nil {
					return nil, true, err
				}
				x.Items = items
				return x, true, nil
			}
		}
	case *Set:
		y, ok := b.(*Set)
		if !ok {
			return nil, false, nil
		}
		v, ok, err := setOp(op, x, y)
		if !ok || err != nil {
			return nil, ok, err
		}
		x.d = v.(*Set).d
		return x, true, nil
	}
	return nil, false, nil
}

func concat(a, b []Value) []Value {
	out := make([]Value, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// maxRepeatLen bounds the length of a sequence built by repetition.
const maxRepeatLen = 1 << 28

func repeatLen(size int, n int64) (int, error) {
	if size == 0 || n <= 0 {
		return 0, nil
	}
	if n > maxRepeatLen/int64(size) {
		return 0, Errorf(OverflowErrorClass, "repeated sequence is too long")
	}
	return size * int(n), nil
}

func repeat(items []Value, n int64) ([]Value, error) {
	total, err := repeatLen(len(items), n)
	if err != nil || total == 0 {
		return []Value{}, err
	}
	out := make([]Value, 0, total)
	for len(out) < total {
		out = append(out, items...)
	}
	return out, nil
}

func repeatStr(s Str, n int64) (Value, error) {
	total, err := repeatLen(len(s), n)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return Str(""), nil
	}
	return Str(strings.Repeat(string(s), total/len(s))), nil
}

func setOp(op binOp, x, y *Set) (Value, bool, error) {
	out, _ := NewSet()
	switch op {
	case opOr:
		out = x.Copy()
		for _, v := range y.Items() {
			if err := out.Add(v); err != nil {
				return nil, true, err
			}
		}
	case opAnd:
		for _, v := range x.Items() {
			if ok, _ := y.Contains(v); ok {
				_ = out.Add(v)
			}
		}
	case opSub:
		for _, v := range x.Items() {
			if ok, _ := y.Contains(v); !ok {
				_ = out.Add(v)
			}
		}
	case opXor:
		for _, v := range x.Items() {
			if ok, _ := y.Contains(v); !ok {
				_ = out.Add(v)
			}
		}
		for _, v := range y.Items() {
			if ok, _ := x.Contains(v); !ok {
				_ = out.Add(v)
			}
		}
	default:
		return nil, false, nil
	}
	return out, true, nil
}

func overflowError() *Exception {
	return Errorf(OverflowErrorClass, "integer overflow")
}

func isBigInt(v Value) bool {
	_, ok := v.(BigInt)
	return ok
}

// intOp applies op to two int64 operands, moving to arbitrary precision
// when the result does not fit.
func intOp(op binOp, x, y int64) (Value, error) {
	switch op {
	case opAdd:
		s := x + y
		if (x > 0 && y > 0 && s < 0) || (x < 0 && y < 0 && s >= 0) {
			return bigIntOp(op, big.NewInt(x), big.NewInt(y))
		}
		return Int(s), nil
	case opSub:
		d := x - y
		if (x >= 0 && y < 0 && d < 0) || (x < 0 && y > 0 && d >= 0) {
			return bigIntOp(op, big.NewInt(x), big.NewInt(y))
		}
		return Int(d), nil
	case opMul:
		p, ok := mulInt(x, y)
		if !ok {
			return bigIntOp(op, big.NewInt(x), big.NewInt(y))
		}
		return Int(p), nil
	case opTrueDiv:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "division by zero")
		}
		return Float(float64(x) / float64(y)), nil
	case opFloorDiv:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return bigIntOp(op, big.NewInt(x), big.NewInt(y))
		}
		q := x / y
		if x%y != 0 && (x < 0) != (y < 0) {
			q--
		}
		return Int(q), nil
	case opMod:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		r := x % y
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return Int(r), nil
	case opPow:
		return powInt(x, y)
	case opLshift:
		if y < 0 {
			return nil, Errorf(ValueErrorClass, "negative shift count")
		}
		if x == 0 {
			return Int(0), nil
		}
		if y >= 63 || (x<<y)>>y != x {
			return bigIntOp(op, big.NewInt(x), big.NewInt(y))
		}
		return Int(x << y), nil
	case opRshift:
		if y < 0 {
			return nil, Errorf(ValueErrorClass, "negative shift count")
		}
		if y >= 63 {
			if x < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return Int(x >> y), nil
	case opAnd:
		return Int(x & y), nil
	case opXor:
		return Int(x ^ y), nil
	case opOr:
		return Int(x | y), nil
	}
	return nil, Errorf(SystemErrorClass, "bad integer operator %d", op)
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	p := x * y
	if p/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return p, true
}

func powInt(x, y int64) (Value, error) {
	if y < 0 {
		if x == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
		}
		return Float(math.Pow(float64(x), float64(y))), nil
	}
	result := int64(1)
	base := x
	for e := y; e > 0; {
		var ok bool
		if e&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return bigPow(big.NewInt(x), big.NewInt(y))
			}
		}
		e >>= 1
		if e > 0 {
			if base, ok = mulInt(base, base); !ok {
				return bigPow(big.NewInt(x), big.NewInt(y))
			}
		}
	}
	return Int(result), nil
}

func floatOp(op binOp, a, b Value, x, y float64) (Value, error) {
	switch op {
	case opAdd:
		return Float(x + y), nil
	case opSub:
		return Float(x - y), nil
	case opMul:
		return Float(x * y), nil
	case opTrueDiv:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "float division by zero")
		}
		return Float(x / y), nil
	case opFloorDiv:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "float floor division by zero")
		}
		return Float(math.Floor(x / y)), nil
	case opMod:
		if y == 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "float modulo")
		}
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return Float(r), nil
	case opPow:
		if x == 0 && y < 0 {
			return nil, Errorf(ZeroDivisionErrorClass, "0.0 cannot be raised to a negative power")
		}
		if x < 0 && y != math.Trunc(y) {
			return nil, Errorf(ValueErrorClass, "math domain error")
		}
		return Float(math.Pow(x, y)), nil
	}
	return nil, unsupportedOperands(op, a, b)
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

func unaryOp(op Opcode, v Value) (Value, error) {
	switch op {
	case OpUnaryNot:
		return Bool(!Truthy(v)), nil
	case OpUnaryPositive:
		switch x := v.(type) {
		case Int, Float, BigInt:
			return x, nil
		case Bool:
			n, _ := AsInt(x)
			return Int(n), nil
		}
		return nil, Errorf(TypeErrorClass, "bad operand type for unary +: '%s'", TypeName(v))
	case OpUnaryNegative:
		switch x := v.(type) {
		case Int:
			if x == math.MinInt64 {
				return normInt(new(big.Int).Neg(big.NewInt(int64(x))))
			}
			return -x, nil
		case BigInt:
			return normInt(new(big.Int).Neg(x.n))
		case Bool:
			n, _ := AsInt(x)
			return Int(-n), nil
		case Float:
			return -x, nil
		}
		return nil, Errorf(TypeErrorClass, "bad operand type for unary -: '%s'", TypeName(v))
	case OpUnaryInvert:
		if n, ok := AsInt(v); ok {
			return Int(^n), nil
		}
		if x, ok := v.(BigInt); ok {
			return normInt(new(big.Int).Not(x.n))
		}
		return nil, Errorf(TypeErrorClass, "bad operand type for unary ~: '%s'", TypeName(v))
	}
	return nil, Errorf(SystemErrorClass, "bad unary opcode %s", op)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// Equal reports a == b with the interpreted language's equality rules:
// numbers compare by value across types, containers compare elementwise,
// everything else compares by identity.
func Equal(a, b Value) bool {
	if x, ok := AsFloat(a); ok {
		if y, ok := AsFloat(b); ok {
			xi, aInt := AsInt(a)
			yi, bInt := AsInt(b)
			if aInt && bInt {
				return xi == yi
			}
			if c, ok := cmpBig(a, b); ok {
				return c == 0
			}
			return x == y
		}
		return false
	}
	switch x := a.(type) {
	case nil, NoneType:
		return b == nil || b == None
	case Str:
		y, ok := b.(Str)
		return ok && x == y
	case *Tuple:
		y, ok := b.(*Tuple)
		return ok && itemsEqual(x.Items, y.Items)
	case *List:
		y, ok := b.(*List)
		return ok && (x == y || itemsEqual(x.Items, y.Items))
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, e := range x.Items() {
			v, found, err := y.Get(e.Key)
			if err != nil || !found || !Equal(e.Value, v) {
				return false
			}
		}
		return true
	case *Set:
		y, ok := b.(*Set)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, v := range x.Items() {
			if found, _ := y.Contains(v); !found {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		if !ok {
			return false
		}
		n := x.Len()
		if n != y.Len() {
			return false
		}
		return n == 0 || (x.Start == y.Start && (n == 1 || x.Step == y.Step))
	}
	return a == b
}

func itemsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compare evaluates a COMPARE_OP.
func (vm *VM) compare(op CompareOp, a, b Value) (Value, error) {
	switch op {
	case CmpEQ:
		return Bool(Equal(a, b)), nil
	case CmpNE:
		return Bool(!Equal(a, b)), nil
	case CmpIs:
		return Bool(a == b), nil
	case CmpIsNot:
		return Bool(a != b), nil
	case CmpIn:
		ok, err := vm.contains(b, a)
		return Bool(ok), err
	case CmpNotIn:
		ok, err := vm.contains(b, a)
		return Bool(!ok), err
	case CmpExceptionMatch:
		ok, err := exceptionMatches(a, b)
		return Bool(ok), err
	case CmpLT, CmpLE, CmpGT, CmpGE:
		ok, err := orderCompare(op, a, b)
		return Bool(ok), err
	}
	return nil, Errorf(SystemErrorClass, "bad comparison operator %d", op)
}

// orderCompare evaluates <, <=, > or >=.
func orderCompare(op CompareOp, a, b Value) (bool, error) {
	c, err := cmp3(op, a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case CmpLT:
		return c < 0, nil
	case CmpLE:
		return c <= 0, nil
	case CmpGT:
		return c > 0, nil
	}
	return c >= 0, nil
}

// cmp3 orders a and b, returning -1, 0 or 1. NaN compares as unordered
// and makes every ordering false.
func cmp3(op CompareOp, a, b Value) (int, error) {
	if x, ok := AsFloat(a); ok {
		if y, ok := AsFloat(b); ok {
			xi, aInt := AsInt(a)
			yi, bInt := AsInt(b)
			if c, ok := cmpBig(a, b); ok {
				return c, nil
			}
			switch {
			case aInt && bInt:
				return cmpOrdered(xi, yi), nil
			case math.IsNaN(x) || math.IsNaN(y):
				if op == CmpLT || op == CmpLE {
					return 1, nil
				}
				return -1, nil
			}
			return cmpOrdered(x, y), nil
		}
	}
	switch x := a.(type) {
	case Str:
		if y, ok := b.(Str); ok {
			return strings.Compare(string(x), string(y)), nil
		}
	case *Tuple:
		if y, ok := b.(*Tuple); ok {
			return cmpItems(op, x.Items, y.Items)
		}
	case *List:
		if y, ok := b.(*List); ok {
			return cmpItems(op, x.Items, y.Items)
		}
	}
	return 0, Errorf(TypeErrorClass, "'%s' not supported between instances of '%s' and '%s'",
		op, TypeName(a), TypeName(b))
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpItems(op CompareOp, a, b []Value) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if !Equal(a[i], b[i]) {
			return cmp3(op, a[i], b[i])
		}
	}
	return cmpOrdered(int64(len(a)), int64(len(b))), nil
}

func exceptionMatches(exc, spec Value) (bool, error) {
	var cls *Class
	switch e := exc.(type) {
	case *Exception:
		cls = e.Class
	case *Class:
		cls = e
	default:
		return false, nil
	}
	switch s := spec.(type) {
	case *Class:
		if !s.exception {
			return false, Errorf(TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
		}
		return cls.IsSubclassOf(s), nil
	case *Tuple:
		for _, item := range s.Items {
			ok, err := exceptionMatches(exc, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, Errorf(TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
}

// contains implements `item in container`.
func (vm *VM) contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case *List:
		return containsItem(c.Items, item), nil
	case *Tuple:
		return containsItem(c.Items, item), nil
	case Str:
		s, ok := item.(Str)
		if !ok {
			return false, Errorf(TypeErrorClass, "'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(string(c), string(s)), nil
	case *Dict:
		_, ok, err := c.Get(item)
		return ok, err
	case *Set:
		return c.Contains(item)
	case *Range:
		n, ok := AsInt(item)
		if !ok {
			if f, isF := item.(Float); isF && float64(f) == math.Trunc(float64(f)) {
				n, ok = int64(f), true
			}
		}
		if !ok {
			return false, nil
		}
		if c.Step > 0 && (n < c.Start || n >= c.Stop) || c.Step < 0 && (n > c.Start || n <= c.Stop) {
			return false, nil
		}
		return (n-c.Start)%c.Step == 0, nil
	case Iterator:
		for {
			v, ok, err := c.iterNext()
			if err != nil || !ok {
				return false, err
			}
			if Equal(v, item) {
				return true, nil
			}
		}
	}
	return false, Errorf(TypeErrorClass, "argument of type '%s' is not iterable", TypeName(container))
}

func containsItem(items []Value, item Value) bool {
	for _, v := range items {
		if v == item || Equal(v, item) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Subscripts
// ---------------------------------------------------------------------------

// normalizeIndex resolves a possibly negative index against length.
func normalizeIndex(key Value, length int, what string) (int, error) {
	n, ok := AsInt(key)
	if !ok {
		return 0, Errorf(TypeErrorClass, "%s indices must be integers or slices, not %s", what, TypeName(key))
	}
	if n < 0 {
		n += int64(length)
	}
	if n < 0 || n >= int64(length) {
		return 0, Errorf(IndexErrorClass, "%s index out of range", what)
	}
	return int(n), nil
}

// sliceIndices resolves a slice against a sequence of length n, returning
// start, stop, step and the number of selected elements.
func sliceIndices(s *Slice, n int) (start, stop, step, count int, err error) {
	step = 1
	if s.Step != None && s.Step != nil {
		st, ok := AsInt(s.Step)
		if !ok {
			return 0, 0, 0, 0, Errorf(TypeErrorClass, "slice indices must be integers or None")
		}
		if st == 0 {
			return 0, 0, 0, 0, Errorf(ValueErrorClass, "slice step cannot be zero")
		}
		step = int(st)
	}
	bound := func(v Value, def int) (int, error) {
		if v == None || v == nil {
			return def, nil
		}
		i, ok := AsInt(v)
		if !ok {
			return 0, Errorf(TypeErrorClass, "slice indices must be integers or None")
		}
		x := int(i)
		if x < 0 {
			x += n
			if x < 0 {
				if step < 0 {
					return -1, nil
				}
				return 0, nil
			}
		}
		if x >= n {
			if step < 0 {
				return n - 1, nil
			}
			return n, nil
		}
		return x, nil
	}
	if step > 0 {
		if start, err = bound(s.Start, 0); err != nil {
			return
		}
		if stop, err = bound(s.Stop, n); err != nil {
			return
		}
		if stop > start {
			count = (stop - start + step - 1) / step
		}
	} else {
		if start, err = bound(s.Start, n-1); err != nil {
			return
		}
		if stop, err = bound(s.Stop, -1); err != nil {
			return
		}
		if start > stop {
			count = (start - stop - step - 1) / -step
		}
	}
	return
}

func sliceItems(items []Value, s *Slice) ([]Value, error) {
	start, _, step, count, err := sliceIndices(s, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]Value, count)
	for i := 0; i < count; i++ {
		out[i] = items[start+i*step]
	}
	return out, nil
}

func (vm *VM) getItem(obj, key Value) (Value, error) {
	switch o := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			items, err := sliceItems(o.Items, s)
			return NewList(items...), err
		}
		i, err := normalizeIndex(key, len(o.Items), "list")
		if err != nil {
			return nil, err
		}
		return o.Items[i], nil
	case *Tuple:
		if s, ok := key.(*Slice); ok {
			items, err := sliceItems(o.Items, s)
			return NewTuple(items...), err
		}
		i, err := normalizeIndex(key, len(o.Items), "tuple")
		if err != nil {
			return nil, err
		}
		return o.Items[i], nil
	case Str:
		runes := []rune(string(o))
		if s, ok := key.(*Slice); ok {
			start, _, step, count, err := sliceIndices(s, len(runes))
			if err != nil {
				return nil, err
			}
			out := make([]rune, count)
			for i := range out {
				out[i] = runes[start+i*step]
			}
			return Str(out), nil
		}
		i, err := normalizeIndex(key, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return Str(runes[i]), nil
	case *Dict:
		v, ok, err := o.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewException(KeyErrorClass, key)
		}
		return v, nil
	case *Range:
		n := o.Len()
		i, err := normalizeIndex(key, int(n), "range object")
		if err != nil {
			return nil, err
		}
		return Int(o.At(int64(i))), nil
	}
	return nil, Errorf(TypeErrorClass, "'%s' object is not subscriptable", TypeName(obj))
}

func (vm *VM) setItem(obj, key, v Value) error {
	switch o := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			items, err := vm.collect(v)
			if err != nil {
				return err
			}
			return assignSlice(o, s, items)
		}
		i, err := normalizeIndex(key, len(o.Items), "list")
		if err != nil {
			if exc, ok := err.(*Exception); ok && exc.Matches(IndexErrorClass) {
				return Errorf(IndexErrorClass, "list assignment index out of range")
			}
			return err
		}
		o.Items[i] = v
		return nil
	case *Dict:
		return o.Set(key, v)
	}
	return Errorf(TypeErrorClass, "'%s' object does not support item assignment", TypeName(obj))
}

func assignSlice(l *List, s *Slice, items []Value) error {
	start, stop, step, count, err := sliceIndices(s, len(l.Items))
	if err != nil {
		return err
	}
	if step == 1 {
		if stop < start {
			stop = start
		}
		out := make([]Value, 0, len(l.Items)-(stop-start)+len(items))
		out = append(out, l.Items[:start]...)
		out = append(out, items...)
		l.Items = append(out, l.Items[stop:]...)
		return nil
	}
	if len(items) != count {
		return Errorf(ValueErrorClass, "attempt to assign sequence of size %d to extended slice of size %d", len(items), count)
	}
	for i, v := range items {
		l.Items[start+i*step] = v
	}
	return nil
}

func (vm *VM) delItem(obj, key Value) error {
	switch o := obj.(type) {
	case *List:
		if s, ok := key.(*Slice); ok {
			start, _, step, count, err := sliceIndices(s, len(o.Items))
			if err != nil {
				return err
			}
			drop := make(map[int]bool, count)
			for i := 0; i < count; i++ {
				drop[start+i*step] = true
			}
			kept := o.Items[:0]
			for i, v := range o.Items {
				if !drop[i] {
					kept = append(kept, v)
				}
			}
			for i := len(kept); i < len(o.Items); i++ {
				o.Items[i] = nil
			}
			o.Items = kept
			return nil
		}
		i, err := normalizeIndex(key, len(o.Items), "list")
		if err != nil {
			if exc, ok := err.(*Exception); ok && exc.Matches(IndexErrorClass) {
				return Errorf(IndexErrorClass, "list assignment index out of range")
			}
			return err
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		return nil
	case *Dict:
		ok, err := o.Delete(key)
		if err != nil {
			return err
		}
		if !ok {
			return NewException(KeyErrorClass, key)
		}
		return nil
	}
	return Errorf(TypeErrorClass, "'%s' object doesn't support item deletion", TypeName(obj))
}

// ---------------------------------------------------------------------------
// printf-style string formatting
// ---------------------------------------------------------------------------

// formatPercent implements str % args for the conversions s, r, d, i, f,
// x, o, e, g and %%, with optional flags, width and precision.
func (vm *VM) formatPercent(format string, args Value) (Value, error) {
	var values []Value
	var mapping *Dict
	switch a := args.(type) {
	case *Tuple:
		values = a.Items
	case *Dict:
		mapping = a
		values = []Value{a}
	default:
		values = []Value{a}
	}
	next := 0
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return nil, Errorf(ValueErrorClass, "incomplete format")
		}
		var arg Value
		haveArg := false
		if format[i] == '(' && mapping != nil {
			end := strings.IndexByte(format[i:], ')')
			if end < 0 {
				return nil, Errorf(ValueErrorClass, "incomplete format key")
			}
			key := format[i+1 : i+end]
			v, ok := mapping.GetStr(key)
			if !ok {
				return nil, NewException(KeyErrorClass, Str(key))
			}
			arg, haveArg = v, true
			i += end + 1
		}
		start := i
		for i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0 {
			i++
		}
		for i < len(format) && (format[i] >= '0' && format[i] <= '9' || format[i] == '.') {
			i++
		}
		if i >= len(format) {
			return nil, Errorf(ValueErrorClass, "incomplete format")
		}
		spec := format[start:i]
		verb := format[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		if !haveArg {
			if next >= len(values) {
				return nil, Errorf(TypeErrorClass, "not enough arguments for format string")
			}
			arg = values[next]
			next++
		}
		s, err := formatOne(verb, spec, arg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	if mapping == nil && next < len(values) {
		return nil, Errorf(TypeErrorClass, "not all arguments converted during string formatting")
	}
	return Str(sb.String()), nil
}

func formatOne(verb byte, spec string, arg Value) (string, error) {
	n := 0
	for n < len(spec) && strings.IndexByte("-+ #0", spec[n]) >= 0 {
		n++
	}
	flags, rest := spec[:n], spec[n:]
	width, prec := -1, -1
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		if p, err := strconv.Atoi(rest[dot+1:]); err == nil {
			prec = p
		} else {
			prec = 0
		}
		rest = rest[:dot]
	}
	if rest != "" {
		width, _ = strconv.Atoi(rest)
	}
	var body string
	switch verb {
	case 's':
		body = StrOf(arg)
		if prec >= 0 && utf8.RuneCountInString(body) > prec {
			body = string([]rune(body)[:prec])
		}
	case 'r':
		body = Repr(arg)
	case 'd', 'i':
		if b, ok := arg.(BigInt); ok {
			body = b.String()
		} else {
			n, ok := AsInt(arg)
			if !ok {
				f, isF := arg.(Float)
				if !isF {
					return "", Errorf(TypeErrorClass, "%%%c format: a number is required, not %s", verb, TypeName(arg))
				}
				n = int64(f)
			}
			body = strconv.FormatInt(n, 10)
		}
		if !strings.HasPrefix(body, "-") && strings.ContainsRune(flags, '+') {
			body = "+" + body
		}
	case 'x', 'X', 'o':
		n, ok := AsInt(arg)
		if !ok {
			return "", Errorf(TypeErrorClass, "%%%c format: an integer is required, not %s", verb, TypeName(arg))
		}
		base := 16
		if verb == 'o' {
			base = 8
		}
		body = strconv.FormatInt(n, base)
		if verb == 'X' {
			body = strings.ToUpper(body)
		}
	case 'f', 'F', 'e', 'E', 'g', 'G':
		f, ok := AsFloat(arg)
		if !ok {
			return "", Errorf(TypeErrorClass, "must be real number, not %s", TypeName(arg))
		}
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(f, verb|0x20, prec, 64)
		if verb < 'a' {
			body = strings.ToUpper(body)
		}
		if f >= 0 && strings.ContainsRune(flags, '+') {
			body = "+" + body
		}
	default:
		return "", Errorf(ValueErrorClass, "unsupported format character '%c'", verb)
	}
	if pad := width - utf8.RuneCountInString(body); pad > 0 {
		switch {
		case strings.ContainsRune(flags, '-'):
			body += strings.Repeat(" ", pad)
		case strings.ContainsRune(flags, '0') && verb != 's' && verb != 'r':
			sign := ""
			if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
				sign, body = body[:1], body[1:]
			}
			body = sign + strings.Repeat("0", pad) + body
		default:
			body = strings.Repeat(" ", pad) + body
		}
	}
	return body, nil
}
