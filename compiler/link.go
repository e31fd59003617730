package compiler

import (
	"strings"

	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Linking: labels to addresses, array literals to constants
// ---------------------------------------------------------------------------

// isLocalLabel reports whether a label is function-local. Every other
// label names a function and is placed on an odd address, which keeps
// function addresses distinguishable from object addresses.
func isLocalLabel(name string) bool {
	return strings.HasPrefix(name, ".")
}

// link concatenates the main stream and the detached chunks, resolves
// labels and builds the constant and metatype tables.
func (c *Compiler) link() *vm.Program {
	prog := &vm.Program{
		Version: vm.ProgramVersion,
		Globals: len(c.globals),
		Symbols: make(map[string]int64),
	}

	constants := make(map[string]int64)
	addConstant := func(in UnresolvedInstruction) {
		if _, dup := constants[in.Label]; dup {
			failAt(Position{}, "duplicate array literal '%s'", in.Label)
		}
		constants[in.Label] = int64(len(prog.Constants))
		prog.Constants = append(prog.Constants, vm.Constant{ElementSize: in.ElementSize, Values: in.Values})
	}
	for _, in := range c.data {
		addConstant(in)
	}

	stream := append([]UnresolvedInstruction(nil), c.main...)
	for _, chunk := range c.detached {
		stream = append(stream, chunk...)
	}
	stream = append(stream, label(programEnd))

	// first pass: addresses
	addresses := make(map[string]int64)
	addr := int64(0)
	for _, in := range stream {
		switch in.Kind {
		case InstrLabel:
			if !isLocalLabel(in.Label) && addr%2 == 0 {
				addr++
			}
			if _, dup := addresses[in.Label]; dup {
				failAt(Position{}, "duplicate label '%s'", in.Label)
			}
			addresses[in.Label] = addr
		case InstrOperation, InstrUnresolvedJump:
			addr++
		case InstrArrayLiteral:
			addConstant(in)
		}
	}

	// second pass: code
	prog.Code = make([]vm.Instruction, 0, addr)
	for _, in := range stream {
		switch in.Kind {
		case InstrLabel:
			if !isLocalLabel(in.Label) {
				if len(prog.Code)%2 == 0 {
					prog.Code = append(prog.Code, vm.Instruction{Op: vm.OpNOP})
				}
				prog.Symbols[in.Label] = addresses[in.Label]
			}
		case InstrOperation:
			prog.Code = append(prog.Code, vm.Instruction{Op: in.Op, Imm: in.Imm})
		case InstrUnresolvedJump:
			var target int64
			var ok bool
			if in.Op == vm.OpLOADC {
				target, ok = constants[in.Label]
			} else {
				target, ok = addresses[in.Label]
			}
			if !ok {
				failAt(Position{}, "unresolved label '%s'", in.Label)
			}
			prog.Code = append(prog.Code, vm.Instruction{Op: in.Op, Imm: target})
		}
	}

	symbols := c.listSymbols()
	for _, entry := range c.types.Entries() {
		mt := vm.Metatype{
			Name:    entry.Name,
			Dealloc: addresses[MangleInstance(entry.Name, deallocMember)],
			Methods: make(map[string]int64),
		}
		for _, name := range symbols {
			selector, ok := instanceSelector(entry.Name, name)
			if !ok || selector == deallocMember {
				continue
			}
			if a, ok := addresses[name]; ok {
				mt.Methods[selector] = a
			}
		}
		prog.Metatypes = append(prog.Metatypes, mt)
	}
	log.Debugf("linked %d instructions, %d constants, %d metatypes", len(prog.Code), len(prog.Constants), len(prog.Metatypes))
	return prog
}
