// Package vm implements the byterun virtual machine.
//
// This package contains:
//   - Value representation and the builtin types
//   - Code objects, the opcode table, a builder and a disassembler
//   - Frames, block stacks and cells
//   - Functions, bound methods and argument binding
//   - Generators
//   - The dispatch loop and exception unwinding
package vm
