package vm

// ---------------------------------------------------------------------------
// Program: the linked, fixed-width output of the compiler
// ---------------------------------------------------------------------------

// Instruction is one fixed-width bytecode slot.
type Instruction struct {
	Op  Opcode `cbor:"1,keyasint"`
	Imm int64  `cbor:"2,keyasint"`
}

// Constant is an array-literal blob laid out in the heap at startup.
type Constant struct {
	ElementSize int     `cbor:"1,keyasint"`
	Values      []int64 `cbor:"2,keyasint"`
}

// ByteSize returns the number of heap bytes the blob occupies.
func (c Constant) ByteSize() int {
	return c.ElementSize * len(c.Values)
}

// Metatype describes a registered complex type at runtime. Objects refer to
// their metatype through the type id stored in the upper half of the header;
// type ids are 1-based indexes into Program.Metatypes.
type Metatype struct {
	Name    string           `cbor:"1,keyasint"`
	Dealloc int64            `cbor:"2,keyasint"`
	Methods map[string]int64 `cbor:"3,keyasint,omitempty"`
}

// Program is a linked bytecode program.
type Program struct {
	Version   int              `cbor:"1,keyasint"`
	Code      []Instruction    `cbor:"2,keyasint"`
	Constants []Constant       `cbor:"3,keyasint,omitempty"`
	Metatypes []Metatype       `cbor:"4,keyasint,omitempty"`
	Globals   int              `cbor:"5,keyasint"`
	Symbols   map[string]int64 `cbor:"6,keyasint,omitempty"`
}

// ProgramVersion is bumped whenever the instruction set changes.
const ProgramVersion = 1

// Metatype returns the metatype for a 1-based type id.
func (p *Program) Metatype(typeID int64) (*Metatype, bool) {
	if typeID < 1 || int(typeID) > len(p.Metatypes) {
		return nil, false
	}
	return &p.Metatypes[typeID-1], true
}

// SymbolAt returns the label bound to an address, if any.
func (p *Program) SymbolAt(addr int64) (string, bool) {
	for name, a := range p.Symbols {
		if a == addr {
			return name, true
		}
	}
	return "", false
}
