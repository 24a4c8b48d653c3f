package vm

import (
	"encoding/binary"
	"fmt"
	"runtime"
)

// ---------------------------------------------------------------------------
// Unwind reasons
// ---------------------------------------------------------------------------

// why tells the dispatch loop what an instruction did to control flow.
type why uint8

const (
	whyNot       why = iota // continue with the next instruction
	whyException            // an exception is propagating
	whyReturn               // the frame is returning retval
	whyBreak                // break out of the innermost loop
	whyContinue             // continue the innermost loop at continueTarget
	whyYield                // the generator frame is suspending with retval
	whyCall                 // a callee frame was pushed
)

var whyNames = [...]string{"not", "exception", "return", "break", "continue", "yield", "call"}

func (w why) String() string {
	if int(w) < len(whyNames) {
		return whyNames[w]
	}
	return fmt.Sprintf("why(%d)", uint8(w))
}

// unwindMarker is pushed for a finally body entered because of a return,
// break or continue; END_FINALLY resumes that unwind.
type unwindMarker struct {
	reason why
	value  Value
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs the frame stack until the frame at index base returns,
// yields, or lets an exception escape. Calls between interpreted
// functions push and pop frames without recursing in Go. A non-nil
// pending exception is raised in the base frame before any instruction
// runs.
func (vm *VM) execute(base int, pending *Exception) (Value, bool, error) {
	exc := pending
	for {
		f := vm.frames[len(vm.frames)-1]
		reason := whyException
		if exc == nil {
			reason, exc = vm.safeStep(f)
			if exc != nil {
				vm.chainContext(exc)
			}
		}

		switch reason {
		case whyNot, whyCall:
			continue
		case whyYield:
			vm.popFrame()
			f.Back = nil
			return f.retval, true, nil
		}

		reason = vm.unwind(f, reason, exc)
		switch reason {
		case whyNot:
			exc = nil
			continue
		case whyBreak, whyContinue:
			exc = Errorf(SystemErrorClass, "'%s' outside loop", reason)
			continue
		}

		vm.popFrame()
		depth := len(vm.frames)
		if reason == whyException {
			exc.addTrace(f)
			if depth == base {
				return nil, false, exc
			}
			continue
		}

		retval := f.retval
		f.retval = nil
		if depth == base {
			return retval, false, nil
		}
		if f.initSelf != nil {
			v, err := finishInit(f, retval)
			if err != nil {
				exc = toException(err)
				continue
			}
			retval = v
		}
		vm.frames[depth-1].push(retval)
	}
}

// safeStep runs one instruction, turning a Go panic raised while
// executing it into a SystemError in f so that the frame's handlers see it.
func (vm *VM) safeStep(f *Frame) (reason why, exc *Exception) {
	defer func() {
		if r := recover(); r != nil {
			vm.logger.Errorf("recovered in %s at offset %d: %v", f.Code.Name, f.LastI, r)
			reason, exc = whyException, panicToException(r)
		}
	}()
	return vm.step(f)
}

// step decodes and executes one instruction of f.
func (vm *VM) step(f *Frame) (why, *Exception) {
	code := f.Code.Bytecode
	offset := f.pc
	if offset >= len(code) {
		return whyException, Errorf(SystemErrorClass, "%s: execution ran past the end of the bytecode", f.Code.Name)
	}
	op := Opcode(code[offset])
	arg := 0
	f.pc++
	if op.HasArg() {
		if offset+3 > len(code) {
			return whyException, Errorf(SystemErrorClass, "%s: truncated operand at offset %d", f.Code.Name, offset)
		}
		arg = int(binary.LittleEndian.Uint16(code[offset+1:]))
		f.pc += 2
	}
	f.LastI = offset

	if vm.tracer != nil {
		vm.tracer(f, offset, op, arg)
	}

	reason, err := vm.dispatch(f, op, arg)
	if err != nil {
		return whyException, toException(err)
	}
	return reason, nil
}

// chainContext records the exception being handled as the implicit
// context of a newly raised one.
func (vm *VM) chainContext(exc *Exception) {
	h := vm.handled
	if h == nil || h == exc || exc.Context != nil {
		return
	}
	for c := h; c != nil; c = c.Context {
		if c == exc {
			return
		}
	}
	exc.Context = h
}

func panicToException(r any) *Exception {
	switch r := r.(type) {
	case stackUnderflow:
		return Errorf(SystemErrorClass, "value stack underflow in %s at offset %d", r.code.Name, r.at)
	case *Exception:
		return r
	case runtime.Error:
		return Errorf(SystemErrorClass, "internal error: %v", r)
	case error:
		return Errorf(SystemErrorClass, "%v", r)
	}
	return Errorf(SystemErrorClass, "%v", r)
}

// ---------------------------------------------------------------------------
// Block stack unwinding
// ---------------------------------------------------------------------------

// unwind pops blocks of f until one absorbs reason. It returns whyNot when
// execution continues in f, or the reason the frame must exit with.
func (vm *VM) unwind(f *Frame, reason why, exc *Exception) why {
	for len(f.blocks) > 0 {
		if reason == whyContinue && f.topBlock().Kind == BlockLoop {
			f.pc = f.continueTarget
			return whyNot
		}
		b := f.popBlock()
		if b.Kind == BlockExceptHandler {
			vm.unwindExceptHandler(f, b)
			continue
		}
		f.truncate(b.Level)

		switch {
		case b.Kind == BlockLoop && reason == whyBreak:
			f.pc = b.Handler
			return whyNot

		case reason == whyException && (b.Kind == BlockExcept || b.Kind == BlockFinally):
			f.blocks = append(f.blocks, Block{
				Kind:    BlockExceptHandler,
				Handler: -1,
				Level:   len(f.stack),
				prev:    vm.handled,
			})
			vm.handled = exc
			f.push(exc)
			f.pc = b.Handler
			return whyNot

		case b.Kind == BlockFinally:
			m := &unwindMarker{reason: reason}
			switch reason {
			case whyReturn:
				m.value = f.retval
			case whyContinue:
				m.value = Int(f.continueTarget)
			}
			f.push(m)
			f.pc = b.Handler
			return whyNot
		}
	}
	return reason
}

// unwindExceptHandler leaves an except or finally body: the stack drops
// to the handler's level and the previously handled exception returns.
func (vm *VM) unwindExceptHandler(f *Frame, b Block) {
	f.truncate(b.Level)
	vm.handled = b.prev
}

// ---------------------------------------------------------------------------
// Instruction handlers
// ---------------------------------------------------------------------------

func (vm *VM) dispatch(f *Frame, op Opcode, arg int) (why, error) {
	switch op {

	// --- Stack operations ---

	case OpNop:
	case OpPopTop:
		f.pop()
	case OpRotTwo:
		a := f.pop()
		b := f.pop()
		f.push(a)
		f.push(b)
	case OpRotThree:
		a := f.pop()
		b := f.pop()
		c := f.pop()
		f.push(a)
		f.push(c)
		f.push(b)
	case OpDupTop:
		f.push(f.top())
	case OpDupTopTwo:
		a := f.peek(2)
		b := f.peek(1)
		f.push(a)
		f.push(b)

	// --- Unary and binary operators ---

	case OpUnaryPositive, OpUnaryNegative, OpUnaryNot, OpUnaryInvert:
		v, err := unaryOp(op, f.top())
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)

	case OpBinaryPower, OpBinaryMultiply, OpBinaryTrueDivide, OpBinaryFloorDivide,
		OpBinaryModulo, OpBinaryAdd, OpBinarySubtract, OpBinaryLshift,
		OpBinaryRshift, OpBinaryAnd, OpBinaryXor, OpBinaryOr:
		b := f.pop()
		v, err := vm.binaryOp(binOp(op-OpBinaryPower), f.top(), b, false)
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)

	case OpInplacePower, OpInplaceMultiply, OpInplaceTrueDivide, OpInplaceFloorDivide,
		OpInplaceModulo, OpInplaceAdd, OpInplaceSubtract, OpInplaceLshift,
		OpInplaceRshift, OpInplaceAnd, OpInplaceXor, OpInplaceOr:
		b := f.pop()
		v, err := vm.binaryOp(binOp(op-OpInplacePower), f.top(), b, true)
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)

	case OpCompareOp:
		b := f.pop()
		v, err := vm.compare(CompareOp(arg), f.top(), b)
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)

	// --- Subscripts ---

	case OpBinarySubscr:
		key := f.pop()
		v, err := vm.getItem(f.top(), key)
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)
	case OpStoreSubscr:
		key := f.pop()
		obj := f.pop()
		v := f.pop()
		return whyNot, vm.setItem(obj, key, v)
	case OpDeleteSubscr:
		key := f.pop()
		obj := f.pop()
		return whyNot, vm.delItem(obj, key)

	// --- Names ---

	case OpLoadConst:
		f.push(f.Code.Consts[arg])
	case OpLoadName:
		v, err := f.loadName(f.Code.Names[arg])
		if err != nil {
			return whyNot, err
		}
		f.push(v)
	case OpStoreName:
		f.Locals.SetStr(f.Code.Names[arg], f.pop())
	case OpDeleteName:
		name := f.Code.Names[arg]
		if !f.Locals.DeleteStr(name) {
			return whyNot, Errorf(NameErrorClass, "name '%s' is not defined", name)
		}
	case OpLoadFast:
		v, err := f.loadFast(arg)
		if err != nil {
			return whyNot, err
		}
		f.push(v)
	case OpStoreFast:
		f.Locals.SetStr(f.Code.VarNames[arg], f.pop())
	case OpDeleteFast:
		name := f.Code.VarNames[arg]
		if !f.Locals.DeleteStr(name) {
			return whyNot, Errorf(UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
		}
	case OpLoadGlobal:
		v, err := f.loadGlobal(f.Code.Names[arg])
		if err != nil {
			return whyNot, err
		}
		f.push(v)
	case OpStoreGlobal:
		f.Globals.SetStr(f.Code.Names[arg], f.pop())
	case OpDeleteGlobal:
		name := f.Code.Names[arg]
		if !f.Globals.DeleteStr(name) {
			return whyNot, Errorf(NameErrorClass, "name '%s' is not defined", name)
		}
	case OpLoadDeref:
		v, err := f.loadDeref(arg)
		if err != nil {
			return whyNot, err
		}
		f.push(v)
	case OpStoreDeref:
		f.cells[arg].Set(f.pop())
	case OpLoadClosure:
		f.push(f.cells[arg])
	case OpLoadLocals:
		f.push(f.Locals)

	// --- Attributes ---

	case OpLoadAttr:
		v, err := vm.GetAttr(f.top(), f.Code.Names[arg])
		if err != nil {
			return whyNot, err
		}
		f.setTop(v)
	case OpStoreAttr:
		obj := f.pop()
		v := f.pop()
		return whyNot, vm.SetAttr(obj, f.Code.Names[arg], v)
	case OpDeleteAttr:
		return whyNot, vm.DelAttr(f.pop(), f.Code.Names[arg])

	// --- Containers ---

	case OpBuildTuple:
		f.push(NewTuple(f.popN(arg)...))
	case OpBuildList:
		f.push(NewList(f.popN(arg)...))
	case OpBuildSet:
		s, err := NewSet(f.popN(arg)...)
		if err != nil {
			return whyNot, err
		}
		f.push(s)
	case OpBuildMap:
		items := f.popN(2 * arg)
		d := NewDict()
		for i := 0; i < len(items); i += 2 {
			if err := d.Set(items[i], items[i+1]); err != nil {
				return whyNot, err
			}
		}
		f.push(d)
	case OpBuildSlice:
		step := Value(None)
		if arg == 3 {
			step = f.pop()
		}
		stop := f.pop()
		start := f.pop()
		f.push(&Slice{Start: start, Stop: stop, Step: step})
	case OpUnpackSequence:
		items, err := vm.unpack(f.pop(), arg)
		if err != nil {
			return whyNot, err
		}
		for i := len(items) - 1; i >= 0; i-- {
			f.push(items[i])
		}
	case OpListAppend:
		v := f.pop()
		l, ok := f.peek(arg).(*List)
		if !ok {
			return whyNot, Errorf(SystemErrorClass, "LIST_APPEND target is not a list")
		}
		l.Items = append(l.Items, v)
	case OpSetAdd:
		v := f.pop()
		s, ok := f.peek(arg).(*Set)
		if !ok {
			return whyNot, Errorf(SystemErrorClass, "SET_ADD target is not a set")
		}
		return whyNot, s.Add(v)
	case OpMapAdd:
		v := f.pop()
		k := f.pop()
		d, ok := f.peek(arg).(*Dict)
		if !ok {
			return whyNot, Errorf(SystemErrorClass, "MAP_ADD target is not a dict")
		}
		return whyNot, d.Set(k, v)

	// --- Jumps ---

	case OpJumpForward:
		f.pc += arg
	case OpJumpAbsolute:
		f.pc = arg
	case OpPopJumpIfTrue:
		if Truthy(f.pop()) {
			f.pc = arg
		}
	case OpPopJumpIfFalse:
		if !Truthy(f.pop()) {
			f.pc = arg
		}
	case OpJumpIfTrueOrPop:
		if Truthy(f.top()) {
			f.pc = arg
		} else {
			f.pop()
		}
	case OpJumpIfFalseOrPop:
		if !Truthy(f.top()) {
			f.pc = arg
		} else {
			f.pop()
		}

	// --- Iteration ---

	case OpGetIter:
		it, err := vm.Iter(f.top())
		if err != nil {
			return whyNot, err
		}
		f.setTop(it)
	case OpForIter:
		v, ok, err := vm.Next(f.top())
		if err != nil {
			return whyNot, err
		}
		if ok {
			f.push(v)
		} else {
			f.pop()
			f.pc += arg
		}

	// --- Blocks ---

	case OpSetupLoop:
		f.pushBlock(BlockLoop, f.pc+arg)
	case OpSetupExcept:
		f.pushBlock(BlockExcept, f.pc+arg)
	case OpSetupFinally:
		f.pushBlock(BlockFinally, f.pc+arg)
	case OpPopBlock:
		b := f.popBlock()
		f.truncate(b.Level)
	case OpBreakLoop:
		return whyBreak, nil
	case OpContinueLoop:
		f.continueTarget = arg
		return whyContinue, nil
	case OpPopExcept:
		b := f.popBlock()
		if b.Kind != BlockExceptHandler {
			return whyNot, Errorf(SystemErrorClass, "popped block is not an except handler")
		}
		vm.unwindExceptHandler(f, b)
	case OpEndFinally:
		return vm.endFinally(f)

	// --- Exceptions ---

	case OpRaiseVarargs:
		return vm.raiseVarargs(f, arg)

	// --- Functions and calls ---

	case OpMakeFunction:
		return whyNot, vm.makeFunction(f, arg)
	case OpCallFunction:
		args := f.popN(arg)
		return vm.callFrom(f, f.pop(), args, nil)
	case OpCallFunctionKw:
		names, ok := f.pop().(*Tuple)
		if !ok || len(names.Items) > arg {
			return whyNot, Errorf(SystemErrorClass, "CALL_FUNCTION_KW expects a tuple of keyword names")
		}
		args := f.popN(arg)
		fn := f.pop()
		npos := arg - len(names.Items)
		kwargs := NewDict()
		for i, name := range names.Items {
			if err := kwargs.Set(name, args[npos+i]); err != nil {
				return whyNot, err
			}
		}
		return vm.callFrom(f, fn, args[:npos], kwargs)
	case OpCallFunctionEx:
		var kwargs *Dict
		if arg&1 != 0 {
			kw, ok := f.pop().(*Dict)
			if !ok {
				return whyNot, Errorf(TypeErrorClass, "argument after ** must be a mapping")
			}
			kwargs = kw.Copy()
		}
		args, err := vm.collect(f.pop())
		if err != nil {
			return whyNot, Errorf(TypeErrorClass, "argument after * must be an iterable")
		}
		return vm.callFrom(f, f.pop(), args, kwargs)
	case OpBuildClass:
		return whyNot, vm.buildClass(f)
	case OpReturnValue:
		f.retval = f.pop()
		return whyReturn, nil
	case OpYieldValue:
		if f.Gen == nil {
			return whyNot, Errorf(SystemErrorClass, "yield outside a generator frame")
		}
		f.retval = f.pop()
		return whyYield, nil

	// --- Imports ---

	case OpImportName:
		fromList := f.pop()
		level, _ := AsInt(f.pop())
		name := f.Code.Names[arg]
		if vm.importer == nil {
			return whyNot, Errorf(ImportErrorClass, "No module named '%s'", name)
		}
		mod, err := vm.importer.Import(vm, name, f.Globals, fromList, int(level))
		if err != nil {
			return whyNot, err
		}
		f.push(mod)
	case OpImportFrom:
		name := f.Code.Names[arg]
		v, err := vm.GetAttr(f.top(), name)
		if err != nil {
			if exc, ok := AsException(err); ok && exc.Matches(AttributeErrorClass) {
				return whyNot, Errorf(ImportErrorClass, "cannot import name '%s'", name)
			}
			return whyNot, err
		}
		f.push(v)

	default:
		return whyNot, Errorf(SystemErrorClass, "unknown opcode 0x%02X at offset %d", byte(op), f.LastI)
	}
	return whyNot, nil
}

// endFinally pops what the finally body's entry pushed and resumes the
// interrupted unwind, if any.
func (vm *VM) endFinally(f *Frame) (why, error) {
	switch v := f.pop().(type) {
	case nil, NoneType:
		return whyNot, nil
	case *Exception:
		return whyException, v
	case *unwindMarker:
		switch v.reason {
		case whyReturn:
			f.retval = v.value
		case whyContinue:
			n, _ := AsInt(v.value)
			f.continueTarget = int(n)
		}
		return v.reason, nil
	}
	return whyNot, Errorf(SystemErrorClass, "'finally' pops bad exception")
}

func (vm *VM) raiseVarargs(f *Frame, argc int) (why, error) {
	switch argc {
	case 0:
		if vm.handled == nil {
			return whyNot, Errorf(RuntimeErrorClass, "No active exception to reraise")
		}
		return whyException, vm.handled
	case 1:
		exc, err := vm.makeRaisable(f.pop())
		if err != nil {
			return whyNot, err
		}
		return whyException, exc
	case 2:
		causeVal := f.pop()
		exc, err := vm.makeRaisable(f.pop())
		if err != nil {
			return whyNot, err
		}
		if causeVal == None {
			exc.Cause = nil
			return whyException, exc
		}
		cause, err := vm.makeRaisable(causeVal)
		if err != nil {
			return whyNot, Errorf(TypeErrorClass, "exception causes must derive from BaseException")
		}
		exc.Cause = cause
		return whyException, exc
	}
	return whyNot, Errorf(SystemErrorClass, "bad RAISE_VARARGS oparg %d", argc)
}

// makeRaisable turns the operand of raise into an exception instance,
// instantiating exception classes.
func (vm *VM) makeRaisable(v Value) (*Exception, error) {
	switch e := v.(type) {
	case *Exception:
		return e, nil
	case *Class:
		if e.exception {
			inst, err := vm.Call(e, nil, nil)
			if err != nil {
				return nil, err
			}
			if exc, ok := inst.(*Exception); ok {
				return exc, nil
			}
		}
	}
	return nil, Errorf(TypeErrorClass, "exceptions must derive from BaseException")
}

func (vm *VM) makeFunction(f *Frame, flags int) error {
	qualName, _ := f.pop().(Str)
	code, ok := f.pop().(*Code)
	if !ok {
		return Errorf(SystemErrorClass, "MAKE_FUNCTION expects a code object")
	}
	fn := NewFunction(code, f.Globals, string(qualName))
	if flags&MakeFunctionClosure != 0 {
		t, ok := f.pop().(*Tuple)
		if !ok {
			return Errorf(SystemErrorClass, "MAKE_FUNCTION expects a tuple of cells")
		}
		fn.Closure = make([]*Cell, len(t.Items))
		for i, c := range t.Items {
			cell, ok := c.(*Cell)
			if !ok {
				return Errorf(SystemErrorClass, "closure item %d is not a cell", i)
			}
			fn.Closure[i] = cell
		}
	}
	if flags&MakeFunctionAnnotations != 0 {
		f.pop()
	}
	if flags&MakeFunctionKwDefaults != 0 {
		d, ok := f.pop().(*Dict)
		if !ok {
			return Errorf(SystemErrorClass, "MAKE_FUNCTION expects a dict of keyword defaults")
		}
		fn.KwDefaults = d
	}
	if flags&MakeFunctionDefaults != 0 {
		t, ok := f.pop().(*Tuple)
		if !ok {
			return Errorf(SystemErrorClass, "MAKE_FUNCTION expects a tuple of defaults")
		}
		fn.Defaults = t.Items
	}
	f.push(fn)
	return nil
}

func (vm *VM) buildClass(f *Frame) error {
	ns, ok := f.pop().(*Dict)
	if !ok {
		return Errorf(SystemErrorClass, "BUILD_CLASS expects a namespace dict")
	}
	baseTuple, ok := f.pop().(*Tuple)
	if !ok {
		return Errorf(TypeErrorClass, "class bases must be a tuple")
	}
	name, ok := f.pop().(Str)
	if !ok {
		return Errorf(TypeErrorClass, "class name must be a string")
	}
	bases := make([]*Class, len(baseTuple.Items))
	for i, b := range baseTuple.Items {
		c, ok := b.(*Class)
		if !ok {
			return Errorf(TypeErrorClass, "bases must be classes, not '%s'", TypeName(b))
		}
		bases[i] = c
	}
	if _, ok := ns.GetStr("__module__"); !ok {
		if m, ok := f.Globals.GetStr("__name__"); ok {
			ns.SetStr("__module__", m)
		}
	}
	cls, err := NewClass(string(name), bases, ns)
	if err != nil {
		return err
	}
	f.push(cls)
	return nil
}

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// callFrom performs a call issued by f. Interpreted callees are pushed
// and run by the dispatch loop; everything else completes here.
func (vm *VM) callFrom(f *Frame, callable Value, args []Value, kwargs *Dict) (why, error) {
	callee, result, err := vm.prepareCall(callable, args, kwargs)
	if err != nil {
		return whyNot, err
	}
	if callee == nil {
		f.push(result)
		return whyNot, nil
	}
	if err := vm.pushFrame(callee); err != nil {
		return whyNot, err
	}
	return whyCall, nil
}

// prepareCall resolves a call. It returns either a frame to run or the
// finished result.
func (vm *VM) prepareCall(callable Value, args []Value, kwargs *Dict) (*Frame, Value, error) {
	switch fn := callable.(type) {
	case *Function:
		return vm.prepareFunction(fn, args, kwargs)
	case *Method:
		return vm.prepareFunction(fn.Func, fn.arguments(args), kwargs)
	case *Builtin:
		if fn.Self != nil {
			args = append([]Value{fn.Self}, args...)
		}
		v, err := fn.Fn(vm, args, kwargs)
		if err != nil {
			return nil, nil, err
		}
		return nil, v, nil
	case *Class:
		return vm.instantiate(fn, args, kwargs)
	}
	return nil, nil, Errorf(TypeErrorClass, "'%s' object is not callable", TypeName(callable))
}

func (vm *VM) prepareFunction(fn *Function, args []Value, kwargs *Dict) (*Frame, Value, error) {
	f, err := vm.frameFor(fn, args, kwargs)
	if err != nil {
		return nil, nil, err
	}
	if fn.Code.IsGenerator() {
		f.Back = nil
		g := newGenerator(vm, fn.Name, f)
		vm.logger.Debugf("created generator %s", fn.Name)
		return nil, g, nil
	}
	return f, nil, nil
}

// instantiate calls a class: it creates the instance and runs __init__.
func (vm *VM) instantiate(c *Class, args []Value, kwargs *Dict) (*Frame, Value, error) {
	var self Value
	if c.exception {
		self = NewException(c, append([]Value(nil), args...)...)
	} else {
		self = NewInstance(c)
	}
	init, ok := c.Lookup("__init__")
	if !ok {
		return nil, self, nil
	}
	if fn, ok := init.(*Function); ok {
		f, err := vm.frameFor(fn, append([]Value{self}, args...), kwargs)
		if err != nil {
			return nil, nil, err
		}
		f.initSelf = self
		return f, nil, nil
	}
	var result Value
	var err error
	if b, ok := init.(*Builtin); ok {
		result, err = vm.Call(b, append([]Value{self}, args...), kwargs)
	} else {
		result, err = vm.Call(bindFromClass(init, self, c), args, kwargs)
	}
	if err != nil {
		return nil, nil, err
	}
	if result != None && result != nil {
		return nil, nil, Errorf(TypeErrorClass, "__init__() should return None, not '%s'", TypeName(result))
	}
	return nil, self, nil
}
