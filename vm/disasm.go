package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func Disassemble(p *Program) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; yo bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; %d instructions, %d globals\n", len(p.Code), p.Globals))

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			values := c.Values
			suffix := ""
			if len(values) > 16 {
				values = values[:16]
				suffix = " ..."
			}
			sb.WriteString(fmt.Sprintf(";   [%d] i%d x %d %v%s\n", i, c.ElementSize*8, len(c.Values), values, suffix))
		}
	}

	if len(p.Metatypes) > 0 {
		sb.WriteString("; Types:\n")
		for i, mt := range p.Metatypes {
			sb.WriteString(fmt.Sprintf(";   #%d %s dealloc=%d\n", i+1, mt.Name, mt.Dealloc))
		}
	}
	sb.WriteString("\n")

	labels := make(map[int64][]string)
	for name, addr := range p.Symbols {
		labels[addr] = append(labels[addr], name)
	}
	for _, names := range labels {
		sort.Strings(names)
	}

	for addr, instr := range p.Code {
		for _, name := range labels[int64(addr)] {
			sb.WriteString(name)
			sb.WriteString(":\n")
		}
		sb.WriteString(FormatInstruction(p, addr, instr))
		sb.WriteString("\n")
	}
	for _, name := range labels[int64(len(p.Code))] {
		sb.WriteString(name)
		sb.WriteString(":\n")
	}
	return sb.String()
}

// FormatInstruction renders one instruction, resolving jump and call
// targets to symbol names where possible.
func FormatInstruction(p *Program, addr int, instr Instruction) string {
	if !instr.Op.HasImmediate() {
		return fmt.Sprintf("%6d  %s", addr, instr.Op)
	}
	line := fmt.Sprintf("%6d  %-10s %d", addr, instr.Op, instr.Imm)
	if instr.Op.IsJump() || instr.Op == OpPUSH {
		if name, ok := p.SymbolAt(instr.Imm); ok && (instr.Op != OpPUSH || instr.Imm > 0) {
			line += "  ; " + name
		}
	}
	if instr.Op == OpPUSH && instr.Imm <= FirstNativeAddress {
		for _, fn := range Natives() {
			if fn.Address == instr.Imm {
				line += "  ; " + fn.Name
			}
		}
	}
	return line
}
