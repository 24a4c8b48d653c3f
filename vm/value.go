package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is any runtime value the interpreter manipulates.
//
// Scalars are represented by small named Go types (None, Bool, Int, Float,
// Str, plus BigInt for ints beyond int64); containers and objects are pointers. Every concrete value type is
// comparable with ==, and == on two Values is identity in the sense of the
// `is` operator.
type Value any

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

// NoneType is the type of None.
type NoneType struct{}

// None is the only NoneType value.
var None = NoneType{}

// Bool is a truth value. It behaves as the integers 0 and 1 in arithmetic.
type Bool bool

// Pre-defined truth values.
const (
	True  Bool = true
	False Bool = false
)

// Int is a fixed-width signed integer. Operations that would overflow
// raise OverflowError.
type Int int64

// Float is a double-precision floating point number.
type Float float64

// Str is an immutable text string.
type Str string

// ---------------------------------------------------------------------------
// Sequences
// ---------------------------------------------------------------------------

// Tuple is an immutable sequence.
type Tuple struct {
	Items []Value
}

// NewTuple creates a tuple holding items. The slice is not copied.
func NewTuple(items ...Value) *Tuple {
	return &Tuple{Items: items}
}

// EmptyTuple is shared by every zero-length tuple the VM creates.
var EmptyTuple = &Tuple{}

// List is a mutable sequence.
type List struct {
	Items []Value
}

// NewList creates a list holding items. The slice is not copied.
func NewList(items ...Value) *List {
	return &List{Items: items}
}

// Slice is the value produced by BUILD_SLICE. Absent bounds are None.
type Slice struct {
	Start, Stop, Step Value
}

// Range is a lazy arithmetic progression, as returned by range().
type Range struct {
	Start, Stop, Step int64
}

// Len returns the number of elements in the range.
func (r *Range) Len() int64 {
	if r.Step > 0 && r.Start < r.Stop {
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Step < 0 && r.Start > r.Stop {
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

// At returns the i-th element of the range. i must be in bounds.
func (r *Range) At(i int64) int64 {
	return r.Start + i*r.Step
}

// ---------------------------------------------------------------------------
// Type names
// ---------------------------------------------------------------------------

// TypeName returns the name of v's type as interpreted code sees it.
func TypeName(v Value) string {
	switch v := v.(type) {
	case nil, NoneType:
		return "NoneType"
	case Bool:
		return "bool"
	case Int, BigInt:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case *Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case *Set:
		return "set"
	case *Slice:
		return "slice"
	case *Range:
		return "range"
	case *Function:
		return "function"
	case *Method:
		return "method"
	case *Builtin:
		if v.Self != nil {
			return "builtin_method"
		}
		return "builtin_function_or_method"
	case *Class:
		return "type"
	case *Instance:
		return v.Class.Name
	case *Exception:
		return v.Class.Name
	case *Module:
		return "module"
	case *Generator:
		return "generator"
	case *Cell:
		return "cell"
	case *Code:
		return "code"
	case *StaticMethod:
		return "staticmethod"
	case *ClassMethod:
		return "classmethod"
	case Iterator:
		return "iterator"
	}
	return fmt.Sprintf("%T", v)
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a boolean context. None,
// False, zero numbers, empty strings and empty containers are false;
// everything else is true.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case nil, NoneType:
		return false
	case Bool:
		return bool(v)
	case Int:
		return v != 0
	case Float:
		return v != 0
	case Str:
		return v != ""
	case *Tuple:
		return len(v.Items) > 0
	case *List:
		return len(v.Items) > 0
	case *Dict:
		return v.Len() > 0
	case *Set:
		return v.Len() > 0
	case *Range:
		return v.Len() > 0
	}
	return true
}

// ---------------------------------------------------------------------------
// String conversion
// ---------------------------------------------------------------------------

// Repr returns the canonical printed form of v, as repr() does.
func Repr(v Value) string {
	var sb strings.Builder
	writeRepr(&sb, v, 0)
	return sb.String()
}

// StrOf returns the informal printed form of v, as str() does.
func StrOf(v Value) string {
	switch v := v.(type) {
	case Str:
		return string(v)
	case *Exception:
		return v.Message()
	}
	return Repr(v)
}

const maxReprDepth = 32

func writeRepr(sb *strings.Builder, v Value, depth int) {
	if depth > maxReprDepth {
		sb.WriteString("...")
		return
	}
	switch v := v.(type) {
	case nil, NoneType:
		sb.WriteString("None")
	case Bool:
		if v {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case Int:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case BigInt:
		sb.WriteString(v.String())
	case Float:
		sb.WriteString(formatFloat(float64(v)))
	case Str:
		sb.WriteString(quoteStr(string(v)))
	case *Tuple:
		sb.WriteByte('(')
		writeItems(sb, v.Items, depth)
		if len(v.Items) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case *List:
		sb.WriteByte('[')
		writeItems(sb, v.Items, depth)
		sb.WriteByte(']')
	case *Dict:
		sb.WriteByte('{')
		for i, e := range v.Items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, e.Key, depth+1)
			sb.WriteString(": ")
			writeRepr(sb, e.Value, depth+1)
		}
		sb.WriteByte('}')
	case *Set:
		if v.Len() == 0 {
			sb.WriteString("set()")
			return
		}
		sb.WriteByte('{')
		writeItems(sb, v.Items(), depth)
		sb.WriteByte('}')
	case *Slice:
		fmt.Fprintf(sb, "slice(%s, %s, %s)", Repr(v.Start), Repr(v.Stop), Repr(v.Step))
	case *Range:
		if v.Step == 1 {
			fmt.Fprintf(sb, "range(%d, %d)", v.Start, v.Stop)
		} else {
			fmt.Fprintf(sb, "range(%d, %d, %d)", v.Start, v.Stop, v.Step)
		}
	case *Function:
		fmt.Fprintf(sb, "<function %s>", v.QualName)
	case *Method:
		if v.Self == nil {
			fmt.Fprintf(sb, "<unbound method %s>", v.Func.QualName)
		} else {
			fmt.Fprintf(sb, "<bound method %s of %s>", v.Func.QualName, Repr(v.Self))
		}
	case *Builtin:
		if v.Self != nil {
			fmt.Fprintf(sb, "<built-in method %s of %s object>", v.Name, TypeName(v.Self))
		} else {
			fmt.Fprintf(sb, "<built-in function %s>", v.Name)
		}
	case *Class:
		fmt.Fprintf(sb, "<class '%s'>", v.Name)
	case *Instance:
		fmt.Fprintf(sb, "<%s object>", v.Class.Name)
	case *Exception:
		sb.WriteString(v.Class.Name)
		writeRepr(sb, v.Args, depth+1)
	case *Module:
		fmt.Fprintf(sb, "<module '%s'>", v.Name)
	case *Generator:
		fmt.Fprintf(sb, "<generator object %s>", v.Name)
	case *Cell:
		if v.IsSet() {
			fmt.Fprintf(sb, "<cell: %s object>", TypeName(v.value))
		} else {
			sb.WriteString("<cell: empty>")
		}
	case *Code:
		fmt.Fprintf(sb, "<code object %s, file %q, line %d>", v.Name, v.Filename, v.FirstLineNo)
	default:
		fmt.Fprintf(sb, "<%s object>", TypeName(v))
	}
}

func writeItems(sb *strings.Builder, items []Value, depth int) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeRepr(sb, item, depth+1)
	}
}

func quoteStr(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == rune(quote) || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// formatFloat renders f the way the interpreted language prints floats:
// shortest round-tripping digits, always with a fractional part or an
// exponent.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ---------------------------------------------------------------------------
// Conversions used by builtins and operators
// ---------------------------------------------------------------------------

// AsInt extracts an integer from an Int or Bool.
func AsInt(v Value) (int64, bool) {
	switch v := v.(type) {
	case Int:
		return int64(v), true
	case Bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsFloat extracts a float from any numeric value.
func AsFloat(v Value) (float64, bool) {
	switch v := v.(type) {
	case Float:
		return float64(v), true
	case Int:
		return float64(v), true
	case BigInt:
		return bigToFloat(v.n), true
	case Bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sequenceItems returns the backing items of a tuple or list.
func sequenceItems(v Value) ([]Value, bool) {
	switch v := v.(type) {
	case *Tuple:
		return v.Items, true
	case *List:
		return v.Items, true
	}
	return nil, false
}
