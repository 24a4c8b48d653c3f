package vm

// ---------------------------------------------------------------------------
// Code: an immutable compiled unit
// ---------------------------------------------------------------------------

// CodeFlags are the declared properties of a code object.
type CodeFlags uint32

const (
	CoOptimized   CodeFlags = 0x0001 // locals are accessed with *_FAST
	CoNewLocals   CodeFlags = 0x0002 // a fresh locals mapping per call
	CoVarArgs     CodeFlags = 0x0004 // declares *args
	CoVarKeywords CodeFlags = 0x0008 // declares **kwargs
	CoNested      CodeFlags = 0x0010 // defined inside another function
	CoGenerator   CodeFlags = 0x0020 // calling it builds a generator
	CoNoFree      CodeFlags = 0x0040 // no cell or free variables
)

// LineEntry is one step of a line table: the number of bytecode bytes and
// source lines to advance by.
type LineEntry struct {
	ByteDelta int
	LineDelta int
}

// Code is one compiled block: a module body, a function body or a class
// body. It is never mutated after Build and is shared by every frame and
// function that executes it.
type Code struct {
	Name     string
	Filename string

	ArgCount       int // positional parameters
	KwOnlyArgCount int // keyword-only parameters, after the positionals
	Flags          CodeFlags

	Bytecode []byte
	Consts   []Value

	Names    []string // globals, attributes and imported names
	VarNames []string // parameters first, then other locals
	CellVars []string // locals captured by nested functions
	FreeVars []string // variables captured from enclosing functions

	FirstLineNo int
	LineTable   []LineEntry
}

// IsGenerator reports whether calling this code builds a generator.
func (c *Code) IsGenerator() bool {
	return c.Flags&CoGenerator != 0
}

// CellAndFreeNames returns the names addressed by LOAD_DEREF, STORE_DEREF
// and LOAD_CLOSURE: cell variables followed by free variables.
func (c *Code) CellAndFreeNames() []string {
	names := make([]string, 0, len(c.CellVars)+len(c.FreeVars))
	names = append(names, c.CellVars...)
	return append(names, c.FreeVars...)
}

// LineForOffset returns the source line of the instruction at offset.
// Line and byte deltas accumulate from zero; the first entry anchors the
// table at the code's first line.
func (c *Code) LineForOffset(offset int) int {
	if len(c.LineTable) == 0 {
		return c.FirstLineNo
	}
	addr, line := 0, 0
	for _, e := range c.LineTable {
		addr += e.ByteDelta
		if addr > offset {
			break
		}
		line += e.LineDelta
	}
	return line
}

// Doc returns the code's docstring: the first constant when it is a
// string.
func (c *Code) Doc() Value {
	if len(c.Consts) > 0 {
		if s, ok := c.Consts[0].(Str); ok {
			return s
		}
	}
	return None
}

// ---------------------------------------------------------------------------
// CodeBuilder: Helper for constructing code objects
// ---------------------------------------------------------------------------

// CodeBuilder helps construct Code instances.
type CodeBuilder struct {
	code     *Code
	bytecode *BytecodeBuilder

	consts map[any]int

	lastOffset int
	lastLine   int
}

// NewCodeBuilder creates a builder for a code object starting at
// firstLine. The line table is anchored at firstLine.
func NewCodeBuilder(name, filename string, firstLine int) *CodeBuilder {
	return &CodeBuilder{
		code: &Code{
			Name:        name,
			Filename:    filename,
			FirstLineNo: firstLine,
			LineTable:   []LineEntry{{0, firstLine}},
		},
		bytecode: NewBytecodeBuilder(),
		consts:   make(map[any]int),
		lastLine: firstLine,
	}
}

// Bytecode returns the bytecode builder for direct emission.
func (b *CodeBuilder) Bytecode() *BytecodeBuilder {
	return b.bytecode
}

// SetArgs declares the positional and keyword-only parameter counts.
// Parameter names must be added first with AddVarName.
func (b *CodeBuilder) SetArgs(argCount, kwOnly int) *CodeBuilder {
	b.code.ArgCount = argCount
	b.code.KwOnlyArgCount = kwOnly
	return b
}

// SetFlags adds flags.
func (b *CodeBuilder) SetFlags(f CodeFlags) *CodeBuilder {
	b.code.Flags |= f
	return b
}

// AddConst adds a constant and returns its index. Equal scalar constants
// share one slot.
func (b *CodeBuilder) AddConst(v Value) uint16 {
	var key any
	switch v.(type) {
	case nil, NoneType, Int, Float, Str:
		key = struct {
			t string
			v Value
		}{TypeName(v), v}
	case Bool:
		key = struct {
			t string
			v Value
		}{"bool", v}
	}
	if key != nil {
		if idx, ok := b.consts[key]; ok {
			return uint16(idx)
		}
		b.consts[key] = len(b.code.Consts)
	}
	b.code.Consts = append(b.code.Consts, v)
	return uint16(len(b.code.Consts) - 1)
}

func indexOf(table *[]string, name string) uint16 {
	for i, n := range *table {
		if n == name {
			return uint16(i)
		}
	}
	*table = append(*table, name)
	return uint16(len(*table) - 1)
}

// AddName adds a global/attribute name and returns its index.
func (b *CodeBuilder) AddName(name string) uint16 {
	return indexOf(&b.code.Names, name)
}

// AddVarName adds a local variable name and returns its index.
func (b *CodeBuilder) AddVarName(name string) uint16 {
	return indexOf(&b.code.VarNames, name)
}

// AddCellVar declares a captured local and returns its deref index.
// Cell variables must all be declared before any free variable.
func (b *CodeBuilder) AddCellVar(name string) uint16 {
	if len(b.code.FreeVars) > 0 {
		panic("AddCellVar: cell variables must precede free variables")
	}
	return indexOf(&b.code.CellVars, name)
}

// AddFreeVar declares a variable captured from an enclosing scope and
// returns its deref index.
func (b *CodeBuilder) AddFreeVar(name string) uint16 {
	return uint16(len(b.code.CellVars)) + indexOf(&b.code.FreeVars, name)
}

// SetLine records that instructions emitted from now on belong to line.
func (b *CodeBuilder) SetLine(line int) {
	if line == b.lastLine {
		return
	}
	offset := b.bytecode.Len()
	b.code.LineTable = append(b.code.LineTable, LineEntry{
		ByteDelta: offset - b.lastOffset,
		LineDelta: line - b.lastLine,
	})
	b.lastOffset = offset
	b.lastLine = line
}

// Build finalizes and returns the code object.
func (b *CodeBuilder) Build() *Code {
	b.code.Bytecode = b.bytecode.Bytes()
	if len(b.code.CellVars) == 0 && len(b.code.FreeVars) == 0 {
		b.code.Flags |= CoNoFree
	}
	return b.code
}

// ---------------------------------------------------------------------------
// Emission shortcuts
// ---------------------------------------------------------------------------

// Emit appends an instruction without operand.
func (b *CodeBuilder) Emit(op Opcode) *CodeBuilder {
	b.bytecode.Emit(op)
	return b
}

// EmitArg appends an instruction with an operand.
func (b *CodeBuilder) EmitArg(op Opcode, arg uint16) *CodeBuilder {
	b.bytecode.EmitArg(op, arg)
	return b
}

// NewLabel creates an unresolved jump target.
func (b *CodeBuilder) NewLabel() *Label {
	return b.bytecode.NewLabel()
}

// Mark resolves label at the current position.
func (b *CodeBuilder) Mark(label *Label) {
	b.bytecode.Mark(label)
}

// EmitJump appends a jump to label.
func (b *CodeBuilder) EmitJump(op Opcode, label *Label) *CodeBuilder {
	b.bytecode.EmitJump(op, label)
	return b
}

// LoadConst emits LOAD_CONST for v.
func (b *CodeBuilder) LoadConst(v Value) *CodeBuilder {
	return b.EmitArg(OpLoadConst, b.AddConst(v))
}

// LoadName emits LOAD_NAME.
func (b *CodeBuilder) LoadName(name string) *CodeBuilder {
	return b.EmitArg(OpLoadName, b.AddName(name))
}

// StoreName emits STORE_NAME.
func (b *CodeBuilder) StoreName(name string) *CodeBuilder {
	return b.EmitArg(OpStoreName, b.AddName(name))
}

// LoadGlobal emits LOAD_GLOBAL.
func (b *CodeBuilder) LoadGlobal(name string) *CodeBuilder {
	return b.EmitArg(OpLoadGlobal, b.AddName(name))
}

// LoadFast emits LOAD_FAST.
func (b *CodeBuilder) LoadFast(name string) *CodeBuilder {
	return b.EmitArg(OpLoadFast, b.AddVarName(name))
}

// StoreFast emits STORE_FAST.
func (b *CodeBuilder) StoreFast(name string) *CodeBuilder {
	return b.EmitArg(OpStoreFast, b.AddVarName(name))
}

// LoadAttr emits LOAD_ATTR.
func (b *CodeBuilder) LoadAttr(name string) *CodeBuilder {
	return b.EmitArg(OpLoadAttr, b.AddName(name))
}

// Call emits CALL_FUNCTION with n positional arguments.
func (b *CodeBuilder) Call(n int) *CodeBuilder {
	return b.EmitArg(OpCallFunction, uint16(n))
}

// Return emits RETURN_VALUE.
func (b *CodeBuilder) Return() *CodeBuilder {
	return b.Emit(OpReturnValue)
}
