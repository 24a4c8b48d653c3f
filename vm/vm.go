package vm

import (
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the virtual machine
// ---------------------------------------------------------------------------

// Tracer is called before each instruction executes.
type Tracer func(f *Frame, offset int, op Opcode, arg int)

// Importer resolves IMPORT_NAME. fromList is the tuple of names of a
// from-import, or None; level is the relative import level.
type Importer interface {
	Import(vm *VM, name string, globals *Dict, fromList Value, level int) (Value, error)
}

// VM executes code objects. A VM runs on one goroutine at a time; it is
// not safe for concurrent use.
type VM struct {
	frames  []*Frame   // active call stack, innermost last
	handled *Exception // exception currently being handled, for bare raise

	builtins *Dict
	importer Importer
	tracer   Tracer
	maxDepth int
	stdout   io.Writer
	logger   commonlog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithTracer installs a per-instruction trace hook.
func WithTracer(t Tracer) Option {
	return func(vm *VM) {
		vm.tracer = t
	}
}

// WithMaxDepth bounds the number of active frames. Zero means unbounded.
func WithMaxDepth(n int) Option {
	return func(vm *VM) {
		vm.maxDepth = n
	}
}

// WithImporter sets the resolver used by IMPORT_NAME.
func WithImporter(imp Importer) Option {
	return func(vm *VM) {
		vm.importer = imp
	}
}

// WithStdout sets where print() writes.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) {
		vm.stdout = w
	}
}

// WithLogger replaces the VM's logger.
func WithLogger(l commonlog.Logger) Option {
	return func(vm *VM) {
		vm.logger = l
	}
}

// NewVM creates a VM with a fresh builtins namespace.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		frames: make([]*Frame, 0, 64),
		stdout: os.Stdout,
		logger: commonlog.GetLogger("byterun.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.builtins = newBuiltins()
	return vm
}

// Builtins returns the builtins namespace shared by code run on this VM.
func (vm *VM) Builtins() *Dict {
	return vm.builtins
}

// Stdout returns the writer print() uses.
func (vm *VM) Stdout() io.Writer {
	return vm.stdout
}

// Importer returns the installed importer, or nil.
func (vm *VM) Importer() Importer {
	return vm.importer
}

// SetImporter replaces the importer.
func (vm *VM) SetImporter(imp Importer) {
	vm.importer = imp
}

// NewGlobals returns a module namespace holding __name__ and the VM's
// builtins.
func (vm *VM) NewGlobals(name string) *Dict {
	g := NewDict()
	g.SetStr("__name__", Str(name))
	g.SetStr("__builtins__", vm.builtins)
	return g
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int {
	return len(vm.frames)
}

func (vm *VM) currentFrame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Run executes code with globals as both its global and local namespace
// and returns the value of its final RETURN_VALUE. An uncaught exception
// is returned as a *Exception error.
func (vm *VM) Run(code *Code, globals *Dict) (Value, error) {
	if globals == nil {
		globals = vm.NewGlobals("__main__")
	}
	f, err := vm.newFrame(code, globals, globals, nil)
	if err != nil {
		return nil, err
	}
	return vm.runFrame(f)
}

// Call calls any callable value from Go. Interpreted callees run on a
// nested dispatch loop that returns when the call completes.
func (vm *VM) Call(callable Value, args []Value, kwargs *Dict) (Value, error) {
	f, result, err := vm.prepareCall(callable, args, kwargs)
	if err != nil || f == nil {
		return result, err
	}
	result, err = vm.runFrame(f)
	if err != nil {
		return nil, err
	}
	if f.initSelf != nil {
		return finishInit(f, result)
	}
	return result, nil
}

// runFrame pushes f and runs it to completion.
func (vm *VM) runFrame(f *Frame) (Value, error) {
	if err := vm.pushFrame(f); err != nil {
		return nil, err
	}
	result, _, err := vm.execute(len(vm.frames)-1, nil)
	return result, err
}

// enterFrame pushes a suspended generator frame on top of the caller.
func (vm *VM) enterFrame(f *Frame) error {
	back := vm.currentFrame()
	if err := vm.pushFrame(f); err != nil {
		return err
	}
	f.Back = back
	return nil
}

func (vm *VM) pushFrame(f *Frame) error {
	if vm.maxDepth > 0 && len(vm.frames) >= vm.maxDepth {
		return Errorf(RecursionErrorClass, "maximum recursion depth exceeded")
	}
	vm.frames = append(vm.frames, f)
	if vm.logger.AllowLevel(commonlog.Debug) {
		vm.logger.Debugf("push frame %s (depth %d)", f.Code.Name, len(vm.frames))
	}
	return nil
}

func (vm *VM) popFrame() *Frame {
	n := len(vm.frames)
	f := vm.frames[n-1]
	vm.frames[n-1] = nil
	vm.frames = vm.frames[:n-1]
	if vm.logger.AllowLevel(commonlog.Debug) {
		vm.logger.Debugf("pop frame %s (depth %d)", f.Code.Name, n-1)
	}
	return f
}

func finishInit(f *Frame, result Value) (Value, error) {
	if result != None && result != nil {
		return nil, Errorf(TypeErrorClass, "__init__() should return None, not '%s'", TypeName(result))
	}
	return f.initSelf, nil
}
