package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP   Opcode = 0x00 // no operation
	OpPUSH  Opcode = 0x01 // push immediate
	OpPOP   Opcode = 0x02 // discard top of stack
	OpPOPI  Opcode = 0x03 // discard the top imm values
	OpDUP   Opcode = 0x04 // duplicate top of stack
	OpALLOC Opcode = 0x05 // push imm zero-initialized slots
	OpSWAP  Opcode = 0x06 // exchange the two topmost values
)

// Frame and Global Operations
const (
	OpLOAD   Opcode = 0x10 // push frame element fp+imm
	OpSTORE  Opcode = 0x11 // pop into frame element fp+imm
	OpADDR   Opcode = 0x12 // push heap address of frame element fp+imm
	OpREADH  Opcode = 0x13 // push the 64-bit heap cell at address imm
	OpWRITEH Opcode = 0x14 // pop into the 64-bit heap cell at address imm
	OpLOADC  Opcode = 0x15 // push the address of constant blob imm
)

// Heap Access
//
// Loads pop the target address, then the byte offset, and push the
// sign-extended value. Stores pop the target, the offset, then the value.
const (
	OpLOADH8   Opcode = 0x20
	OpLOADH16  Opcode = 0x21
	OpLOADH32  Opcode = 0x22
	OpLOADH64  Opcode = 0x23
	OpSTOREH8  Opcode = 0x24
	OpSTOREH16 Opcode = 0x25
	OpSTOREH32 Opcode = 0x26
	OpSTOREH64 Opcode = 0x27
)

// Integer Arithmetic and Logic
//
// Binary operations pop the right operand first: lhs is pushed before rhs.
const (
	OpADD  Opcode = 0x30
	OpSUB  Opcode = 0x31
	OpMUL  Opcode = 0x32
	OpDIV  Opcode = 0x33
	OpMOD  Opcode = 0x34
	OpAND  Opcode = 0x35
	OpOR   Opcode = 0x36
	OpXOR  Opcode = 0x37
	OpSHL  Opcode = 0x38
	OpSHR  Opcode = 0x39
	OpNOT  Opcode = 0x3A // bitwise complement
	OpLNOT Opcode = 0x3B // 1 if zero, else 0
	OpEQ   Opcode = 0x3C
	OpLT   Opcode = 0x3D
	OpLE   Opcode = 0x3E
)

// Floating Point
//
// Doubles travel through the stack as their IEEE 754 bit patterns.
const (
	OpDADD   Opcode = 0x40
	OpDSUB   Opcode = 0x41
	OpDMUL   Opcode = 0x42
	OpDDIV   Opcode = 0x43
	OpDEQ    Opcode = 0x44
	OpDLT    Opcode = 0x45
	OpDLE    Opcode = 0x46
	OpCVTI2D Opcode = 0x47
	OpCVTD2I Opcode = 0x48
)

// Control Flow
const (
	OpJUMP  Opcode = 0x50 // pop condition, jump to imm if nonzero
	OpUJUMP Opcode = 0x51 // jump to imm
	OpCALL  Opcode = 0x52 // pop callee, call with imm arguments on the stack
	OpRET   Opcode = 0x53 // return, dropping imm arguments
)

// Reference Counting
const (
	OpRETAIN  Opcode = 0x60 // pop address and retain it
	OpRELEASE Opcode = 0x61 // pop address and release it
)

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name      string
	StackPop  int // -1 when it depends on the immediate
	StackPush int
	HasImm    bool
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNOP:   {"nop", 0, 0, false},
	OpPUSH:  {"push", 0, 1, true},
	OpPOP:   {"pop", 1, 0, false},
	OpPOPI:  {"popi", -1, 0, true},
	OpDUP:   {"dup", 1, 2, false},
	OpALLOC: {"alloc", 0, -1, true},
	OpSWAP:  {"swap", 2, 2, false},

	OpLOAD:   {"load", 0, 1, true},
	OpSTORE:  {"store", 1, 0, true},
	OpADDR:   {"addr", 0, 1, true},
	OpREADH:  {"readh", 0, 1, true},
	OpWRITEH: {"writeh", 1, 0, true},
	OpLOADC:  {"loadc", 0, 1, true},

	OpLOADH8:   {"loadh_8", 2, 1, false},
	OpLOADH16:  {"loadh_16", 2, 1, false},
	OpLOADH32:  {"loadh_32", 2, 1, false},
	OpLOADH64:  {"loadh_64", 2, 1, false},
	OpSTOREH8:  {"storeh_8", 3, 0, false},
	OpSTOREH16: {"storeh_16", 3, 0, false},
	OpSTOREH32: {"storeh_32", 3, 0, false},
	OpSTOREH64: {"storeh_64", 3, 0, false},

	OpADD:  {"add", 2, 1, false},
	OpSUB:  {"sub", 2, 1, false},
	OpMUL:  {"mul", 2, 1, false},
	OpDIV:  {"div", 2, 1, false},
	OpMOD:  {"mod", 2, 1, false},
	OpAND:  {"and", 2, 1, false},
	OpOR:   {"or", 2, 1, false},
	OpXOR:  {"xor", 2, 1, false},
	OpSHL:  {"shl", 2, 1, false},
	OpSHR:  {"shr", 2, 1, false},
	OpNOT:  {"not", 1, 1, false},
	OpLNOT: {"lnot", 1, 1, false},
	OpEQ:   {"eq", 2, 1, false},
	OpLT:   {"lt", 2, 1, false},
	OpLE:   {"le", 2, 1, false},

	OpDADD:   {"d_add", 2, 1, false},
	OpDSUB:   {"d_sub", 2, 1, false},
	OpDMUL:   {"d_mul", 2, 1, false},
	OpDDIV:   {"d_div", 2, 1, false},
	OpDEQ:    {"d_eq", 2, 1, false},
	OpDLT:    {"d_lt", 2, 1, false},
	OpDLE:    {"d_le", 2, 1, false},
	OpCVTI2D: {"cvti2d", 1, 1, false},
	OpCVTD2I: {"cvtd2i", 1, 1, false},

	OpJUMP:  {"jump", 1, 0, true},
	OpUJUMP: {"ujump", 0, 0, true},
	OpCALL:  {"call", -1, 1, true},
	OpRET:   {"ret", -1, 1, true},

	OpRETAIN:  {"retain", 1, 0, false},
	OpRELEASE: {"release", 1, 0, false},
}

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown(0x%02X)", byte(op))}
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// HasImmediate reports whether the immediate operand is meaningful.
func (op Opcode) HasImmediate() bool {
	return GetOpcodeInfo(op).HasImm
}

// IsJump reports whether the immediate is an instruction address.
func (op Opcode) IsJump() bool {
	return op == OpJUMP || op == OpUJUMP
}

// LookupOpcode finds an opcode by mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}
