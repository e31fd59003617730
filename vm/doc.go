// Package vm implements the yo virtual machine.
//
// This package contains:
//   - The fixed-width instruction set and the linked Program image
//   - A first-fit heap with the call stack at its top
//   - Automatic reference counting on object headers
//   - The native function table
//   - The bytecode interpreter and disassembler
package vm
