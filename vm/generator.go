package vm

import "fmt"

// GeneratorState is the lifecycle state of a generator.
type GeneratorState uint8

const (
	GenCreated   GeneratorState = iota // frame built, nothing executed
	GenSuspended                       // paused at a yield
	GenRunning                         // inside a resume
	GenFinished                        // returned or failed; never runs again
)

func (s GeneratorState) String() string {
	switch s {
	case GenCreated:
		return "created"
	case GenSuspended:
		return "suspended"
	case GenRunning:
		return "running"
	case GenFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Generator drives a suspendable frame. It is created, without running
// any code, when a function whose code carries CoGenerator is called.
type Generator struct {
	Name  string
	frame *Frame
	vm    *VM
	state GeneratorState

	handled *Exception // exception being handled inside the body while suspended
}

func newGenerator(vm *VM, name string, f *Frame) *Generator {
	g := &Generator{Name: name, frame: f, vm: vm}
	f.Gen = g
	return g
}

// State returns the generator's current state.
func (g *Generator) State() GeneratorState {
	return g.state
}

// Send resumes the generator, making v the result of the paused yield
// expression. It returns the next yielded value. When the body returns,
// the error is a StopIteration exception carrying the return value; see
// StopValue.
func (g *Generator) Send(v Value) (Value, error) {
	return g.resume(v, nil)
}

// Next resumes the generator with None.
func (g *Generator) Next() (Value, error) {
	return g.resume(None, nil)
}

// Throw raises exc inside the generator at its paused yield. A generator
// that has not started finishes immediately and exc propagates.
func (g *Generator) Throw(exc *Exception) (Value, error) {
	return g.resume(None, exc)
}

// Close raises GeneratorExit inside a suspended generator. Yielding in
// response is a RuntimeError; returning or letting GeneratorExit (or
// StopIteration) escape closes the generator normally.
func (g *Generator) Close() error {
	switch g.state {
	case GenCreated:
		g.finish()
		return nil
	case GenFinished:
		return nil
	}
	_, err := g.resume(None, NewException(GeneratorExitClass))
	if err == nil {
		return Errorf(RuntimeErrorClass, "generator ignored GeneratorExit")
	}
	if exc, ok := AsException(err); ok && (exc.Matches(GeneratorExitClass) || exc.Matches(StopIterationClass)) {
		return nil
	}
	return err
}

func (g *Generator) finish() {
	g.state = GenFinished
	g.frame = nil
	g.handled = nil
}

func (g *Generator) resume(v Value, exc *Exception) (Value, error) {
	switch g.state {
	case GenRunning:
		return nil, Errorf(ValueErrorClass, "generator already executing")
	case GenFinished:
		if exc != nil {
			return nil, exc
		}
		return nil, newStopIteration(None)
	case GenCreated:
		if exc != nil {
			g.finish()
			return nil, exc
		}
		if v != None && v != nil {
			return nil, Errorf(TypeErrorClass, "can't send non-None value to a just-started generator")
		}
	}

	// A frame that cannot be pushed leaves the generator as it was.
	vm := g.vm
	if err := vm.enterFrame(g.frame); err != nil {
		return nil, err
	}
	if g.state == GenSuspended && exc == nil {
		g.frame.push(v)
	}
	g.state = GenRunning
	vm.logger.Debugf("resume generator %s", g.Name)

	outer := vm.handled
	vm.handled = g.handled
	result, yielded, err := vm.execute(len(vm.frames)-1, exc)
	g.handled = vm.handled
	vm.handled = outer

	if yielded {
		g.state = GenSuspended
		return result, nil
	}
	g.finish()
	if err != nil {
		if e, ok := err.(*Exception); ok && e.Matches(StopIterationClass) {
			re := Errorf(RuntimeErrorClass, "generator raised StopIteration")
			re.Cause = e
			re.Context = e
			return nil, re
		}
		return nil, err
	}
	return nil, newStopIteration(result)
}

// iterNext adapts the generator to the iteration protocol.
func (g *Generator) iterNext() (Value, bool, error) {
	v, err := g.Next()
	if err != nil {
		if _, ok := StopValue(err); ok {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}
