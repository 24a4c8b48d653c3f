package vm

import "fmt"

// ---------------------------------------------------------------------------
// Block: a pushed control region
// ---------------------------------------------------------------------------

// BlockKind identifies what a block handles when the frame unwinds.
type BlockKind uint8

const (
	BlockLoop          BlockKind = iota // absorbs break and continue
	BlockExcept                         // absorbs exceptions
	BlockFinally                        // absorbs every unwind reason
	BlockExceptHandler                  // an except or finally body is running
)

func (k BlockKind) String() string {
	switch k {
	case BlockLoop:
		return "loop"
	case BlockExcept:
		return "except"
	case BlockFinally:
		return "finally"
	case BlockExceptHandler:
		return "except-handler"
	}
	return fmt.Sprintf("block(%d)", uint8(k))
}

// Block records where to continue and how deep the value stack was when
// the block was pushed.
type Block struct {
	Kind    BlockKind
	Handler int // jump target
	Level   int // value stack depth at push time

	prev *Exception // exception handled before this handler block was entered
}

// ---------------------------------------------------------------------------
// Frame: one in-progress invocation
// ---------------------------------------------------------------------------

// Frame is the execution state of one code object invocation.
type Frame struct {
	Code     *Code
	Globals  *Dict // shared with every frame of the same module
	Locals   *Dict // the globals themselves for module-level code
	Builtins *Dict
	Back     *Frame     // caller; nil for the outermost frame
	Gen      *Generator // owning generator, if any

	LastI int // offset of the instruction being executed
	pc    int // offset of the next instruction

	stack  []Value
	blocks []Block
	cells  []*Cell // cell variables, then free variables

	retval         Value // return or yield value in flight
	continueTarget int
	initSelf       Value // set for __init__ frames; returned in place of None
}

// Line returns the source line of the current instruction.
func (f *Frame) Line() int {
	return f.Code.LineForOffset(f.LastI)
}

// StackDepth returns the number of values on the value stack.
func (f *Frame) StackDepth() int {
	return len(f.stack)
}

// BlockDepth returns the number of blocks on the block stack.
func (f *Frame) BlockDepth() int {
	return len(f.blocks)
}

// Cell returns the i-th cell (cell variables first, then free variables).
func (f *Frame) Cell(i int) *Cell {
	return f.cells[i]
}

// ---------------------------------------------------------------------------
// Value stack
// ---------------------------------------------------------------------------

// stackUnderflow is panicked on pop from an empty stack; the dispatch loop
// recovers it and raises SystemError.
type stackUnderflow struct {
	code *Code
	at   int
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack)
	if n == 0 {
		panic(stackUnderflow{f.Code, f.LastI})
	}
	v := f.stack[n-1]
	f.stack[n-1] = nil
	f.stack = f.stack[:n-1]
	return v
}

// popN pops n values and returns them in stack order (deepest first).
func (f *Frame) popN(n int) []Value {
	if n == 0 {
		return nil
	}
	if n > len(f.stack) {
		panic(stackUnderflow{f.Code, f.LastI})
	}
	out := make([]Value, n)
	base := len(f.stack) - n
	copy(out, f.stack[base:])
	f.truncate(base)
	return out
}

func (f *Frame) top() Value {
	return f.peek(1)
}

// peek returns the n-th value from the top (1 = top).
func (f *Frame) peek(n int) Value {
	if n > len(f.stack) {
		panic(stackUnderflow{f.Code, f.LastI})
	}
	return f.stack[len(f.stack)-n]
}

func (f *Frame) setTop(v Value) {
	f.stack[len(f.stack)-1] = v
}

// truncate drops values above depth.
func (f *Frame) truncate(depth int) {
	if depth >= len(f.stack) {
		return
	}
	for i := depth; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:depth]
}

// ---------------------------------------------------------------------------
// Block stack
// ---------------------------------------------------------------------------

func (f *Frame) pushBlock(kind BlockKind, handler int) {
	f.blocks = append(f.blocks, Block{Kind: kind, Handler: handler, Level: len(f.stack)})
}

func (f *Frame) popBlock() Block {
	n := len(f.blocks)
	if n == 0 {
		panic(stackUnderflow{f.Code, f.LastI})
	}
	b := f.blocks[n-1]
	f.blocks = f.blocks[:n-1]
	return b
}

func (f *Frame) topBlock() *Block {
	return &f.blocks[len(f.blocks)-1]
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

// cellByName finds a cell or free variable of this frame by name.
func (f *Frame) cellByName(name string) (*Cell, bool) {
	for i, n := range f.Code.CellVars {
		if n == name {
			return f.cells[i], true
		}
	}
	for i, n := range f.Code.FreeVars {
		if n == name {
			return f.cells[len(f.Code.CellVars)+i], true
		}
	}
	return nil, false
}

// loadName resolves name through locals, captured cells, globals and
// builtins, in that order.
func (f *Frame) loadName(name string) (Value, error) {
	if v, ok := f.Locals.GetStr(name); ok {
		return v, nil
	}
	if c, ok := f.cellByName(name); ok {
		if v, set := c.Get(); set {
			return v, nil
		}
	}
	return f.loadGlobal(name)
}

func (f *Frame) loadGlobal(name string) (Value, error) {
	if v, ok := f.Globals.GetStr(name); ok {
		return v, nil
	}
	if v, ok := f.Builtins.GetStr(name); ok {
		return v, nil
	}
	return nil, Errorf(NameErrorClass, "name '%s' is not defined", name)
}

func (f *Frame) loadFast(i int) (Value, error) {
	name := f.Code.VarNames[i]
	if v, ok := f.Locals.GetStr(name); ok {
		return v, nil
	}
	return nil, Errorf(UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
}

func (f *Frame) loadDeref(i int) (Value, error) {
	if v, ok := f.cells[i].Get(); ok {
		return v, nil
	}
	if i < len(f.Code.CellVars) {
		return nil, Errorf(UnboundLocalErrorClass,
			"local variable '%s' referenced before assignment", f.Code.CellVars[i])
	}
	return nil, Errorf(NameErrorClass,
		"free variable '%s' referenced before assignment in enclosing scope",
		f.Code.FreeVars[i-len(f.Code.CellVars)])
}

// ---------------------------------------------------------------------------
// Frame construction
// ---------------------------------------------------------------------------

// resolveBuiltins finds the builtins mapping for a frame executing with
// globals whose caller is back.
func resolveBuiltins(globals *Dict, back *Frame) *Dict {
	if back != nil && back.Globals == globals {
		return back.Builtins
	}
	switch b, _ := globals.GetStr("__builtins__"); b := b.(type) {
	case *Dict:
		return b
	case *Module:
		return b.Dict
	}
	minimal := NewDict()
	minimal.SetStr("None", None)
	return minimal
}

// newFrame builds a frame for code. Locals that name cell variables are
// moved into fresh cells; closure supplies the free variables.
func (vm *VM) newFrame(code *Code, globals, locals *Dict, closure []*Cell) (*Frame, error) {
	if len(closure) != len(code.FreeVars) {
		return nil, Errorf(SystemErrorClass, "%s requires closure of length %d, not %d",
			code.Name, len(code.FreeVars), len(closure))
	}
	back := vm.currentFrame()
	f := &Frame{
		Code:     code,
		Globals:  globals,
		Locals:   locals,
		Builtins: resolveBuiltins(globals, back),
		Back:     back,
		stack:    make([]Value, 0, 8),
	}
	if n := len(code.CellVars) + len(code.FreeVars); n > 0 {
		f.cells = make([]*Cell, 0, n)
		for _, name := range code.CellVars {
			if v, ok := locals.GetStr(name); ok {
				f.cells = append(f.cells, NewCellWith(v))
				locals.DeleteStr(name)
			} else {
				f.cells = append(f.cells, NewCell())
			}
		}
		f.cells = append(f.cells, closure...)
	}
	return f, nil
}
