package compiler

import (
	"fmt"
	"strings"

	"github.com/agreefuture/yo/vm"
)

// InstructionKind classifies an UnresolvedInstruction.
type InstructionKind int

const (
	InstrOperation InstructionKind = iota
	InstrLabel
	InstrUnresolvedJump // Op with a label operand: jump, ujump, push, loadc
	InstrArrayLiteral
	InstrComment
)

// UnresolvedInstruction is an instruction as emitted by codegen, before
// labels and array literals are given addresses.
type UnresolvedInstruction struct {
	Kind        InstructionKind
	Op          vm.Opcode
	Imm         int64
	Label       string
	ElementSize int
	Values      []int64
	Comment     string
}

func operation(op vm.Opcode, imm int64) UnresolvedInstruction {
	return UnresolvedInstruction{Kind: InstrOperation, Op: op, Imm: imm}
}

func label(name string) UnresolvedInstruction {
	return UnresolvedInstruction{Kind: InstrLabel, Label: name}
}

func unresolved(op vm.Opcode, target string) UnresolvedInstruction {
	return UnresolvedInstruction{Kind: InstrUnresolvedJump, Op: op, Label: target}
}

func arrayLiteral(name string, elementSize int, values []int64) UnresolvedInstruction {
	return UnresolvedInstruction{Kind: InstrArrayLiteral, Label: name, ElementSize: elementSize, Values: values}
}

func comment(text string) UnresolvedInstruction {
	return UnresolvedInstruction{Kind: InstrComment, Comment: text}
}

func (i UnresolvedInstruction) String() string {
	switch i.Kind {
	case InstrLabel:
		return i.Label + ":"
	case InstrUnresolvedJump:
		return fmt.Sprintf("    %-10s %s", i.Op, i.Label)
	case InstrArrayLiteral:
		vals := make([]string, len(i.Values))
		for j, v := range i.Values {
			vals[j] = fmt.Sprint(v)
		}
		return fmt.Sprintf("%s: .array i%d [%s]", i.Label, i.ElementSize*8, strings.Join(vals, ", "))
	case InstrComment:
		return "    ; " + i.Comment
	}
	if i.Op.HasImmediate() {
		return fmt.Sprintf("    %-10s %d", i.Op, i.Imm)
	}
	return "    " + i.Op.String()
}
