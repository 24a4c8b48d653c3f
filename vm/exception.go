package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Exception classes
// ---------------------------------------------------------------------------

func newExceptionClass(name string, base *Class) *Class {
	if base == nil {
		base = ObjectClass
	}
	c := &Class{Name: name, Bases: []*Class{base}, Dict: NewDict(), exception: true}
	c.MRO = append([]*Class{c}, base.MRO...)
	return c
}

// The built-in exception hierarchy.
var (
	BaseExceptionClass = newExceptionClass("BaseException", nil)
	GeneratorExitClass = newExceptionClass("GeneratorExit", BaseExceptionClass)
	ExceptionClass     = newExceptionClass("Exception", BaseExceptionClass)

	NameErrorClass         = newExceptionClass("NameError", ExceptionClass)
	UnboundLocalErrorClass = newExceptionClass("UnboundLocalError", NameErrorClass)
	AttributeErrorClass    = newExceptionClass("AttributeError", ExceptionClass)
	LookupErrorClass       = newExceptionClass("LookupError", ExceptionClass)
	KeyErrorClass          = newExceptionClass("KeyError", LookupErrorClass)
	IndexErrorClass        = newExceptionClass("IndexError", LookupErrorClass)
	TypeErrorClass         = newExceptionClass("TypeError", ExceptionClass)
	ValueErrorClass        = newExceptionClass("ValueError", ExceptionClass)
	ArithmeticErrorClass   = newExceptionClass("ArithmeticError", ExceptionClass)
	ZeroDivisionErrorClass = newExceptionClass("ZeroDivisionError", ArithmeticErrorClass)
	OverflowErrorClass     = newExceptionClass("OverflowError", ArithmeticErrorClass)
	StopIterationClass     = newExceptionClass("StopIteration", ExceptionClass)
	RuntimeErrorClass      = newExceptionClass("RuntimeError", ExceptionClass)
	RecursionErrorClass    = newExceptionClass("RecursionError", RuntimeErrorClass)
	AssertionErrorClass    = newExceptionClass("AssertionError", ExceptionClass)
	ImportErrorClass       = newExceptionClass("ImportError", ExceptionClass)
	SystemErrorClass       = newExceptionClass("SystemError", ExceptionClass)
)

// ExceptionClasses lists the built-in exception classes in definition
// order; they are all published in the builtins namespace.
var ExceptionClasses = []*Class{
	BaseExceptionClass, GeneratorExitClass, ExceptionClass,
	NameErrorClass, UnboundLocalErrorClass, AttributeErrorClass,
	LookupErrorClass, KeyErrorClass, IndexErrorClass,
	TypeErrorClass, ValueErrorClass,
	ArithmeticErrorClass, ZeroDivisionErrorClass, OverflowErrorClass,
	StopIterationClass, RuntimeErrorClass, RecursionErrorClass,
	AssertionErrorClass, ImportErrorClass, SystemErrorClass,
}

// ---------------------------------------------------------------------------
// Exception values
// ---------------------------------------------------------------------------

// TraceEntry is one frame an exception unwound through.
type TraceEntry struct {
	Name     string
	Filename string
	Line     int
}

// Exception is a raised (or raisable) exception instance. It is also the
// Go error returned when interpreted code fails.
type Exception struct {
	Class   *Class
	Args    *Tuple
	Attrs   *Dict
	Cause   *Exception // set by raise ... from
	Context *Exception // the exception being handled when this one was raised

	// Traceback lists the frames unwound so far, innermost first.
	Traceback []TraceEntry
}

// NewException creates an exception of class c.
func NewException(c *Class, args ...Value) *Exception {
	if args == nil {
		args = []Value{}
	}
	return &Exception{Class: c, Args: NewTuple(args...), Attrs: NewDict()}
}

// Errorf creates an exception of class c whose single argument is the
// formatted message.
func Errorf(c *Class, format string, a ...any) *Exception {
	return NewException(c, Str(fmt.Sprintf(format, a...)))
}

// Error implements the error interface.
func (e *Exception) Error() string {
	if msg := e.Message(); msg != "" {
		return e.Class.Name + ": " + msg
	}
	return e.Class.Name
}

// Kind returns the exception's class name.
func (e *Exception) Kind() string {
	return e.Class.Name
}

// Message returns str() of the exception.
func (e *Exception) Message() string {
	switch len(e.Args.Items) {
	case 0:
		return ""
	case 1:
		if e.Class.IsSubclassOf(KeyErrorClass) {
			return Repr(e.Args.Items[0])
		}
		return StrOf(e.Args.Items[0])
	}
	return Repr(e.Args)
}

// Matches reports whether the exception is an instance of c.
func (e *Exception) Matches(c *Class) bool {
	return e.Class.IsSubclassOf(c)
}

// Unwrap returns the explicit cause, if any.
func (e *Exception) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

func (e *Exception) attr(name string) (Value, bool) {
	switch name {
	case "args":
		return e.Args, true
	case "__class__":
		return e.Class, true
	case "__cause__":
		if e.Cause == nil {
			return None, true
		}
		return e.Cause, true
	case "__context__":
		if e.Context == nil {
			return None, true
		}
		return e.Context, true
	}
	if v, ok := e.Attrs.GetStr(name); ok {
		return v, true
	}
	if name == "value" && e.Matches(StopIterationClass) {
		if len(e.Args.Items) > 0 {
			return e.Args.Items[0], true
		}
		return None, true
	}
	return nil, false
}

func (e *Exception) setAttr(name string, v Value) error {
	switch name {
	case "args":
		items, ok := sequenceItems(v)
		if !ok {
			return Errorf(TypeErrorClass, "args must be a sequence")
		}
		e.Args = NewTuple(append([]Value(nil), items...)...)
		return nil
	case "__cause__":
		return e.setLink(&e.Cause, v)
	case "__context__":
		return e.setLink(&e.Context, v)
	}
	e.Attrs.SetStr(name, v)
	return nil
}

func (e *Exception) setLink(dst **Exception, v Value) error {
	switch v := v.(type) {
	case NoneType, nil:
		*dst = nil
	case *Exception:
		*dst = v
	default:
		return Errorf(TypeErrorClass, "exception cause must be None or derive from BaseException")
	}
	return nil
}

func (e *Exception) addTrace(f *Frame) {
	e.Traceback = append(e.Traceback, TraceEntry{
		Name:     f.Code.Name,
		Filename: f.Code.Filename,
		Line:     f.Line(),
	})
}

// FormatTraceback renders the exception and its chain the way an
// uncaught exception is reported.
func (e *Exception) FormatTraceback() string {
	var sb strings.Builder
	e.formatChain(&sb, make(map[*Exception]bool))
	return sb.String()
}

func (e *Exception) formatChain(sb *strings.Builder, seen map[*Exception]bool) {
	seen[e] = true
	switch {
	case e.Cause != nil && !seen[e.Cause]:
		e.Cause.formatChain(sb, seen)
		sb.WriteString("\nThe above exception was the direct cause of the following exception:\n\n")
	case e.Cause == nil && e.Context != nil && !seen[e.Context]:
		e.Context.formatChain(sb, seen)
		sb.WriteString("\nDuring handling of the above exception, another exception occurred:\n\n")
	}
	if len(e.Traceback) > 0 {
		sb.WriteString("Traceback (most recent call last):\n")
		for i := len(e.Traceback) - 1; i >= 0; i-- {
			t := e.Traceback[i]
			fmt.Fprintf(sb, "  File \"%s\", line %d, in %s\n", t.Filename, t.Line, t.Name)
		}
	}
	sb.WriteString(e.Error())
	sb.WriteByte('\n')
}

// ---------------------------------------------------------------------------
// Helpers for Go callers
// ---------------------------------------------------------------------------

// AsException extracts the *Exception from err, if it carries one.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}

// StopValue reports whether err is a StopIteration and returns the value
// it carries.
func StopValue(err error) (Value, bool) {
	exc, ok := err.(*Exception)
	if !ok || !exc.Matches(StopIterationClass) {
		return nil, false
	}
	v, _ := exc.attr("value")
	return v, true
}

func newStopIteration(v Value) *Exception {
	if v == nil || v == None {
		return NewException(StopIterationClass)
	}
	return NewException(StopIterationClass, v)
}

// toException converts any error surfacing in the interpreter into an
// exception that interpreted code can catch.
func toException(err error) *Exception {
	if exc, ok := AsException(err); ok {
		return exc
	}
	return Errorf(SystemErrorClass, "%v", err)
}
