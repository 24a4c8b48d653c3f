package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. Opcodes at or above
// HaveArgument are followed by a 16-bit little-endian operand.
type Opcode byte

// HaveArgument is the first opcode that carries an operand.
const HaveArgument Opcode = 0x80

// Stack Operations
const (
	OpNop       Opcode = 0x00 // no operation
	OpPopTop    Opcode = 0x01 // discard top of stack
	OpRotTwo    Opcode = 0x02 // swap the two topmost items
	OpRotThree  Opcode = 0x03 // lift second and third one position, move top down to third
	OpDupTop    Opcode = 0x04 // duplicate top of stack
	OpDupTopTwo Opcode = 0x05 // duplicate the two topmost items
)

// Unary Operators
const (
	OpUnaryPositive Opcode = 0x10
	OpUnaryNegative Opcode = 0x11
	OpUnaryNot      Opcode = 0x12
	OpUnaryInvert   Opcode = 0x13
)

// Binary Operators (pop two, push result)
const (
	OpBinaryPower       Opcode = 0x20
	OpBinaryMultiply    Opcode = 0x21
	OpBinaryTrueDivide  Opcode = 0x22
	OpBinaryFloorDivide Opcode = 0x23
	OpBinaryModulo      Opcode = 0x24
	OpBinaryAdd         Opcode = 0x25
	OpBinarySubtract    Opcode = 0x26
	OpBinaryLshift      Opcode = 0x27
	OpBinaryRshift      Opcode = 0x28
	OpBinaryAnd         Opcode = 0x29
	OpBinaryXor         Opcode = 0x2A
	OpBinaryOr          Opcode = 0x2B
)

// In-place Operators (same operator order as the binary group)
const (
	OpInplacePower       Opcode = 0x30
	OpInplaceMultiply    Opcode = 0x31
	OpInplaceTrueDivide  Opcode = 0x32
	OpInplaceFloorDivide Opcode = 0x33
	OpInplaceModulo      Opcode = 0x34
	OpInplaceAdd         Opcode = 0x35
	OpInplaceSubtract    Opcode = 0x36
	OpInplaceLshift      Opcode = 0x37
	OpInplaceRshift      Opcode = 0x38
	OpInplaceAnd         Opcode = 0x39
	OpInplaceXor         Opcode = 0x3A
	OpInplaceOr          Opcode = 0x3B
)

// Operand-free miscellany
const (
	OpBinarySubscr Opcode = 0x40 // TOS1[TOS]
	OpStoreSubscr  Opcode = 0x41 // TOS1[TOS] = TOS2
	OpDeleteSubscr Opcode = 0x42 // del TOS1[TOS]
	OpGetIter      Opcode = 0x43 // TOS = iter(TOS)
	OpLoadLocals   Opcode = 0x44 // push the frame's locals mapping
	OpBuildClass   Opcode = 0x45 // pop namespace, bases, name; push class
	OpReturnValue  Opcode = 0x46 // return TOS to the caller
	OpYieldValue   Opcode = 0x47 // suspend the generator frame, yielding TOS
	OpPopBlock     Opcode = 0x48 // pop the top control block
	OpEndFinally   Opcode = 0x49 // finish a finally body, resuming any pending unwind
	OpPopExcept    Opcode = 0x4A // leave an except body
	OpBreakLoop    Opcode = 0x4B // break out of the innermost loop block
)

// Name Operations (operand indexes Consts, Names, VarNames or the cell table)
const (
	OpLoadConst    Opcode = 0x80
	OpLoadName     Opcode = 0x81
	OpStoreName    Opcode = 0x82
	OpDeleteName   Opcode = 0x83
	OpLoadFast     Opcode = 0x84
	OpStoreFast    Opcode = 0x85
	OpDeleteFast   Opcode = 0x86
	OpLoadGlobal   Opcode = 0x87
	OpStoreGlobal  Opcode = 0x88
	OpDeleteGlobal Opcode = 0x89
	OpLoadDeref    Opcode = 0x8A
	OpStoreDeref   Opcode = 0x8B
	OpLoadClosure  Opcode = 0x8C
	OpLoadAttr     Opcode = 0x8D
	OpStoreAttr    Opcode = 0x8E
	OpDeleteAttr   Opcode = 0x8F
)

// Containers and Comparison
const (
	OpBuildTuple     Opcode = 0x90 // build tuple from N items
	OpBuildList      Opcode = 0x91 // build list from N items
	OpBuildSet       Opcode = 0x92 // build set from N items
	OpBuildMap       Opcode = 0x93 // build dict from N key/value pairs
	OpBuildSlice     Opcode = 0x94 // build slice from 2 or 3 items
	OpUnpackSequence Opcode = 0x95 // unpack TOS into N items
	OpListAppend     Opcode = 0x96 // append TOS to the list N deep
	OpSetAdd         Opcode = 0x97 // add TOS to the set N deep
	OpMapAdd         Opcode = 0x98 // dict N deep [TOS1] = TOS
	OpCompareOp      Opcode = 0x99 // compare TOS1 and TOS (operand selects CompareOp)
)

// Control Flow
const (
	OpJumpForward     Opcode = 0xA0 // relative jump
	OpJumpAbsolute    Opcode = 0xA1 // absolute jump
	OpPopJumpIfTrue   Opcode = 0xA2 // pop, jump if true (absolute)
	OpPopJumpIfFalse  Opcode = 0xA3 // pop, jump if false (absolute)
	OpJumpIfTrueOrPop Opcode = 0xA4 // jump keeping TOS if true, else pop (absolute)
	OpJumpIfFalseOrPop Opcode = 0xA5 // jump keeping TOS if false, else pop (absolute)
	OpForIter         Opcode = 0xA6 // next(TOS) or pop and jump (relative)
	OpSetupLoop       Opcode = 0xA7 // push loop block (relative handler)
	OpSetupExcept     Opcode = 0xA8 // push except block (relative handler)
	OpSetupFinally    Opcode = 0xA9 // push finally block (relative handler)
	OpContinueLoop    Opcode = 0xAA // continue the innermost loop at an absolute target
)

// Calls
const (
	OpMakeFunction   Opcode = 0xB0 // build a function (operand: MakeFunction flags)
	OpCallFunction   Opcode = 0xB1 // call with N positional arguments
	OpCallFunctionKw Opcode = 0xB2 // call with N arguments, TOS is a tuple of keyword names
	OpCallFunctionEx Opcode = 0xB3 // call with an args sequence (and kwargs dict if operand&1)
	OpRaiseVarargs   Opcode = 0xB4 // raise with 0, 1 or 2 operands
)

// Imports
const (
	OpImportName Opcode = 0xC0 // import the module named by Names[operand]
	OpImportFrom Opcode = 0xC1 // load attribute Names[operand] from the module on TOS
)

// MAKE_FUNCTION operand flags. Values are popped in reverse flag order
// after the qualified name and code object.
const (
	MakeFunctionDefaults    = 0x01 // a tuple of positional defaults
	MakeFunctionKwDefaults  = 0x02 // a dict of keyword-only defaults
	MakeFunctionAnnotations = 0x04 // an annotations dict, discarded
	MakeFunctionClosure     = 0x08 // a tuple of cells
)

// CompareOp selects the operation performed by COMPARE_OP.
type CompareOp uint16

const (
	CmpLT CompareOp = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
	CmpIn
	CmpNotIn
	CmpIs
	CmpIsNot
	CmpExceptionMatch
)

var compareNames = [...]string{"<", "<=", "==", "!=", ">", ">=", "in", "not in", "is", "is not", "exception match"}

func (c CompareOp) String() string {
	if int(c) < len(compareNames) {
		return compareNames[c]
	}
	return fmt.Sprintf("cmp(%d)", uint16(c))
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// JumpKind describes how an opcode's operand addresses a target.
type JumpKind uint8

const (
	JumpNone     JumpKind = iota
	JumpRelative          // target = offset of next instruction + operand
	JumpAbsolute          // target = operand
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string   // human-readable name
	OperandBytes int      // number of operand bytes
	Jump         JumpKind // how the operand addresses a jump target
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:       {"NOP", 0, JumpNone},
	OpPopTop:    {"POP_TOP", 0, JumpNone},
	OpRotTwo:    {"ROT_TWO", 0, JumpNone},
	OpRotThree:  {"ROT_THREE", 0, JumpNone},
	OpDupTop:    {"DUP_TOP", 0, JumpNone},
	OpDupTopTwo: {"DUP_TOP_TWO", 0, JumpNone},

	OpUnaryPositive: {"UNARY_POSITIVE", 0, JumpNone},
	OpUnaryNegative: {"UNARY_NEGATIVE", 0, JumpNone},
	OpUnaryNot:      {"UNARY_NOT", 0, JumpNone},
	OpUnaryInvert:   {"UNARY_INVERT", 0, JumpNone},

	OpBinaryPower:       {"BINARY_POWER", 0, JumpNone},
	OpBinaryMultiply:    {"BINARY_MULTIPLY", 0, JumpNone},
	OpBinaryTrueDivide:  {"BINARY_TRUE_DIVIDE", 0, JumpNone},
	OpBinaryFloorDivide: {"BINARY_FLOOR_DIVIDE", 0, JumpNone},
	OpBinaryModulo:      {"BINARY_MODULO", 0, JumpNone},
	OpBinaryAdd:         {"BINARY_ADD", 0, JumpNone},
	OpBinarySubtract:    {"BINARY_SUBTRACT", 0, JumpNone},
	OpBinaryLshift:      {"BINARY_LSHIFT", 0, JumpNone},
	OpBinaryRshift:      {"BINARY_RSHIFT", 0, JumpNone},
	OpBinaryAnd:         {"BINARY_AND", 0, JumpNone},
	OpBinaryXor:         {"BINARY_XOR", 0, JumpNone},
	OpBinaryOr:          {"BINARY_OR", 0, JumpNone},

	OpInplacePower:       {"INPLACE_POWER", 0, JumpNone},
	OpInplaceMultiply:    {"INPLACE_MULTIPLY", 0, JumpNone},
	OpInplaceTrueDivide:  {"INPLACE_TRUE_DIVIDE", 0, JumpNone},
	OpInplaceFloorDivide: {"INPLACE_FLOOR_DIVIDE", 0, JumpNone},
	OpInplaceModulo:      {"INPLACE_MODULO", 0, JumpNone},
	OpInplaceAdd:         {"INPLACE_ADD", 0, JumpNone},
	OpInplaceSubtract:    {"INPLACE_SUBTRACT", 0, JumpNone},
	OpInplaceLshift:      {"INPLACE_LSHIFT", 0, JumpNone},
	OpInplaceRshift:      {"INPLACE_RSHIFT", 0, JumpNone},
	OpInplaceAnd:         {"INPLACE_AND", 0, JumpNone},
	OpInplaceXor:         {"INPLACE_XOR", 0, JumpNone},
	OpInplaceOr:          {"INPLACE_OR", 0, JumpNone},

	OpBinarySubscr: {"BINARY_SUBSCR", 0, JumpNone},
	OpStoreSubscr:  {"STORE_SUBSCR", 0, JumpNone},
	OpDeleteSubscr: {"DELETE_SUBSCR", 0, JumpNone},
	OpGetIter:      {"GET_ITER", 0, JumpNone},
	OpLoadLocals:   {"LOAD_LOCALS", 0, JumpNone},
	OpBuildClass:   {"BUILD_CLASS", 0, JumpNone},
	OpReturnValue:  {"RETURN_VALUE", 0, JumpNone},
	OpYieldValue:   {"YIELD_VALUE", 0, JumpNone},
	OpPopBlock:     {"POP_BLOCK", 0, JumpNone},
	OpEndFinally:   {"END_FINALLY", 0, JumpNone},
	OpPopExcept:    {"POP_EXCEPT", 0, JumpNone},
	OpBreakLoop:    {"BREAK_LOOP", 0, JumpNone},

	OpLoadConst:    {"LOAD_CONST", 2, JumpNone},
	OpLoadName:     {"LOAD_NAME", 2, JumpNone},
	OpStoreName:    {"STORE_NAME", 2, JumpNone},
	OpDeleteName:   {"DELETE_NAME", 2, JumpNone},
	OpLoadFast:     {"LOAD_FAST", 2, JumpNone},
	OpStoreFast:    {"STORE_FAST", 2, JumpNone},
	OpDeleteFast:   {"DELETE_FAST", 2, JumpNone},
	OpLoadGlobal:   {"LOAD_GLOBAL", 2, JumpNone},
	OpStoreGlobal:  {"STORE_GLOBAL", 2, JumpNone},
	OpDeleteGlobal: {"DELETE_GLOBAL", 2, JumpNone},
	OpLoadDeref:    {"LOAD_DEREF", 2, JumpNone},
	OpStoreDeref:   {"STORE_DEREF", 2, JumpNone},
	OpLoadClosure:  {"LOAD_CLOSURE", 2, JumpNone},
	OpLoadAttr:     {"LOAD_ATTR", 2, JumpNone},
	OpStoreAttr:    {"STORE_ATTR", 2, JumpNone},
	OpDeleteAttr:   {"DELETE_ATTR", 2, JumpNone},

	OpBuildTuple:     {"BUILD_TUPLE", 2, JumpNone},
	OpBuildList:      {"BUILD_LIST", 2, JumpNone},
	OpBuildSet:       {"BUILD_SET", 2, JumpNone},
	OpBuildMap:       {"BUILD_MAP", 2, JumpNone},
	OpBuildSlice:     {"BUILD_SLICE", 2, JumpNone},
	OpUnpackSequence: {"UNPACK_SEQUENCE", 2, JumpNone},
	OpListAppend:     {"LIST_APPEND", 2, JumpNone},
	OpSetAdd:         {"SET_ADD", 2, JumpNone},
	OpMapAdd:         {"MAP_ADD", 2, JumpNone},
	OpCompareOp:      {"COMPARE_OP", 2, JumpNone},

	OpJumpForward:      {"JUMP_FORWARD", 2, JumpRelative},
	OpJumpAbsolute:     {"JUMP_ABSOLUTE", 2, JumpAbsolute},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", 2, JumpAbsolute},
	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", 2, JumpAbsolute},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", 2, JumpAbsolute},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", 2, JumpAbsolute},
	OpForIter:          {"FOR_ITER", 2, JumpRelative},
	OpSetupLoop:        {"SETUP_LOOP", 2, JumpRelative},
	OpSetupExcept:      {"SETUP_EXCEPT", 2, JumpRelative},
	OpSetupFinally:     {"SETUP_FINALLY", 2, JumpRelative},
	OpContinueLoop:     {"CONTINUE_LOOP", 2, JumpAbsolute},

	OpMakeFunction:   {"MAKE_FUNCTION", 2, JumpNone},
	OpCallFunction:   {"CALL_FUNCTION", 2, JumpNone},
	OpCallFunctionKw: {"CALL_FUNCTION_KW", 2, JumpNone},
	OpCallFunctionEx: {"CALL_FUNCTION_EX", 2, JumpNone},
	OpRaiseVarargs:   {"RAISE_VARARGS", 2, JumpNone},

	OpImportName: {"IMPORT_NAME", 2, JumpNone},
	OpImportFrom: {"IMPORT_FROM", 2, JumpNone},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// HasArg reports whether the opcode is followed by an operand.
func (op Opcode) HasArg() bool {
	return op >= HaveArgument
}

// Valid reports whether the opcode is known to the interpreter.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length, which is also the offset of the next
// instruction to be emitted.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operand.
func (b *BytecodeBuilder) Emit(op Opcode) {
	if op.HasArg() {
		panic(fmt.Sprintf("Emit: %s requires an operand", op))
	}
	b.bytes = append(b.bytes, byte(op))
}

// EmitArg appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitArg(op Opcode, operand uint16) {
	if !op.HasArg() {
		panic(fmt.Sprintf("EmitArg: %s takes no operand", op))
	}
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be known yet.
type Label struct {
	resolved bool
	position int
	refs     []labelRef
}

type labelRef struct {
	operand int // position of the 2-byte operand
	kind    JumpKind
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]labelRef, 0, 2)}
}

// Mark resolves a label to the current position and patches every
// instruction that referenced it.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		b.patch(ref, label.position)
	}
	label.refs = nil
}

// EmitJump emits a jump-class instruction targeting label. Relative jumps
// may only go forward.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	kind := op.Info().Jump
	if kind == JumpNone {
		panic(fmt.Sprintf("EmitJump: %s is not a jump", op))
	}
	b.bytes = append(b.bytes, byte(op), 0, 0)
	ref := labelRef{operand: len(b.bytes) - 2, kind: kind}
	if label.resolved {
		b.patch(ref, label.position)
		return
	}
	label.refs = append(label.refs, ref)
}

func (b *BytecodeBuilder) patch(ref labelRef, target int) {
	value := target
	if ref.kind == JumpRelative {
		value = target - (ref.operand + 2)
		if value < 0 {
			panic("relative jump cannot go backward")
		}
	}
	binary.LittleEndian.PutUint16(b.bytes[ref.operand:], uint16(value))
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// Next decodes the instruction at the current position and advances past it.
func (r *BytecodeReader) Next() (Instruction, error) {
	ins, err := decodeAt(r.bytes, r.pos)
	if err != nil {
		return ins, err
	}
	r.pos = ins.Next
	return ins, nil
}

// Instruction is one decoded instruction.
type Instruction struct {
	Offset int
	Op     Opcode
	Arg    int
	Next   int // offset of the following instruction
}

// Target returns the jump target of a jump-class instruction.
func (ins Instruction) Target() int {
	switch ins.Op.Info().Jump {
	case JumpRelative:
		return ins.Next + ins.Arg
	case JumpAbsolute:
		return ins.Arg
	}
	return -1
}

func decodeAt(bc []byte, pos int) (Instruction, error) {
	if pos < 0 || pos >= len(bc) {
		return Instruction{}, fmt.Errorf("offset %d outside bytecode (len=%d)", pos, len(bc))
	}
	ins := Instruction{Offset: pos, Op: Opcode(bc[pos]), Next: pos + 1}
	if ins.Op.HasArg() {
		if pos+3 > len(bc) {
			return ins, fmt.Errorf("truncated operand for %s at %d", ins.Op, pos)
		}
		ins.Arg = int(binary.LittleEndian.Uint16(bc[pos+1:]))
		ins.Next = pos + 3
	}
	return ins, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns a full disassembly of a code object, annotating
// operands with the names and constants they refer to.
func Disassemble(c *Code) string {
	var sb strings.Builder
	r := NewBytecodeReader(c.Bytecode)
	lastLine := -1
	for r.HasMore() {
		ins, err := r.Next()
		if err != nil {
			fmt.Fprintf(&sb, "      %04d  <%v>\n", r.Position(), err)
			break
		}
		line := c.LineForOffset(ins.Offset)
		if line != lastLine {
			fmt.Fprintf(&sb, "%5d ", line)
			lastLine = line
		} else {
			sb.WriteString("      ")
		}
		fmt.Fprintf(&sb, "%04d  %-22s", ins.Offset, ins.Op.Name())
		if ins.Op.HasArg() {
			fmt.Fprintf(&sb, " %d%s", ins.Arg, c.describeArg(ins))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (c *Code) describeArg(ins Instruction) string {
	lookup := func(table []string) string {
		if ins.Arg < len(table) {
			return " (" + table[ins.Arg] + ")"
		}
		return ""
	}
	switch ins.Op {
	case OpLoadConst:
		if ins.Arg < len(c.Consts) {
			return " (" + Repr(c.Consts[ins.Arg]) + ")"
		}
	case OpLoadName, OpStoreName, OpDeleteName, OpLoadGlobal, OpStoreGlobal, OpDeleteGlobal,
		OpLoadAttr, OpStoreAttr, OpDeleteAttr, OpImportName, OpImportFrom:
		return lookup(c.Names)
	case OpLoadFast, OpStoreFast, OpDeleteFast:
		return lookup(c.VarNames)
	case OpLoadDeref, OpStoreDeref, OpLoadClosure:
		return lookup(c.CellAndFreeNames())
	case OpCompareOp:
		return " (" + CompareOp(ins.Arg).String() + ")"
	}
	if ins.Op.Info().Jump != JumpNone {
		return fmt.Sprintf(" (to %d)", ins.Target())
	}
	return ""
}
