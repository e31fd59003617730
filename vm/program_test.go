package vm

import (
	"reflect"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

func TestOpcodeMnemonicsRoundTrip(t *testing.T) {
	for op, info := range opcodeInfoTable {
		got, ok := LookupOpcode(info.Name)
		if !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v, want %v", info.Name, got, ok, op)
		}
	}
	if _, ok := LookupOpcode("frobnicate"); ok {
		t.Error("unknown mnemonic should not resolve")
	}
}

func TestOpcodeProperties(t *testing.T) {
	if !OpPUSH.HasImmediate() || OpADD.HasImmediate() {
		t.Error("HasImmediate is wrong for push/add")
	}
	if !OpJUMP.IsJump() || !OpUJUMP.IsJump() || OpCALL.IsJump() {
		t.Error("IsJump is wrong")
	}
	if got := Opcode(0xFF).String(); got != "unknown(0xFF)" {
		t.Errorf("String = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func TestNativeAddressesAreUnique(t *testing.T) {
	seenAddr := make(map[int64]string)
	seenName := make(map[string]bool)
	for _, fn := range Natives() {
		if fn.Address > FirstNativeAddress {
			t.Errorf("%s has address %d above %d", fn.Name, fn.Address, FirstNativeAddress)
		}
		if other, ok := seenAddr[fn.Address]; ok {
			t.Errorf("%s and %s share address %d", fn.Name, other, fn.Address)
		}
		if seenName[fn.Name] {
			t.Errorf("duplicate native %s", fn.Name)
		}
		seenAddr[fn.Address] = fn.Name
		seenName[fn.Name] = true
	}
}

func TestLookupNative(t *testing.T) {
	fn, ok := LookupNative("runtime_Salloc")
	if !ok || fn.Address != FirstNativeAddress || fn.Argc() != 1 {
		t.Fatalf("runtime_Salloc = %+v, %v", fn, ok)
	}
	msg, ok := LookupNative("runtime_SmsgSend")
	if !ok || !msg.Variadic || !msg.Unchecked || msg.Returns != "id" {
		t.Errorf("runtime_SmsgSend = %+v, %v", msg, ok)
	}
	if _, ok := LookupNative("io_Sscanf"); ok {
		t.Error("unknown native should not resolve")
	}
}

func TestNativeOwnedParams(t *testing.T) {
	tests := []struct {
		name string
		want []int
	}{
		{"io_Sprint", []int{0}},
		{"io_Sprinti", nil},
		{"io_Sprintc", nil},
		{"runtime_Srelease", nil},
		{"runtime_SmsgSend", nil},
	}
	for _, tt := range tests {
		fn, ok := LookupNative(tt.name)
		if !ok {
			t.Fatalf("no native %s", tt.name)
		}
		if got := fn.ownedParams(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: ownedParams = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

func sampleProgram() *Program {
	return &Program{
		Version: ProgramVersion,
		Code: []Instruction{
			{Op: OpPUSH, Imm: 3},
			{Op: OpPUSH, Imm: 4},
			{Op: OpCALL, Imm: 0},
			{Op: OpUJUMP, Imm: 7},
			{Op: OpNOP},
			{Op: OpLOADC, Imm: 0},
			{Op: OpRET, Imm: 0},
		},
		Constants: []Constant{{ElementSize: 1, Values: []int64{'o', 'k', 0}}},
		Metatypes: []Metatype{{Name: "String", Dealloc: 5, Methods: map[string]int64{"length": 5}}},
		Globals:   1,
		Symbols:   map[string]int64{"main": 5, "end": 7},
	}
}

func TestProgramImageRoundTrip(t *testing.T) {
	prog := sampleProgram()
	data, err := MarshalProgram(prog)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	got, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}
	if !reflect.DeepEqual(got, prog) {
		t.Errorf("round trip changed the program:\n got %+v\nwant %+v", got, prog)
	}
}

func TestProgramImageIsDeterministic(t *testing.T) {
	a, err := MarshalProgram(sampleProgram())
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalProgram(sampleProgram())
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("encoding the same program twice should give identical bytes")
	}
}

func TestProgramImageRejectsOtherVersions(t *testing.T) {
	prog := sampleProgram()
	prog.Version = ProgramVersion + 1
	data, err := MarshalProgram(prog)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalProgram(data); err == nil || !strings.Contains(err.Error(), "unsupported program version") {
		t.Errorf("err = %v, want a version error", err)
	}
	if _, err := UnmarshalProgram([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage should not decode")
	}
}

func TestProgramLookups(t *testing.T) {
	prog := sampleProgram()
	if mt, ok := prog.Metatype(1); !ok || mt.Name != "String" {
		t.Errorf("Metatype(1) = %v, %v", mt, ok)
	}
	if _, ok := prog.Metatype(0); ok {
		t.Error("type id 0 is not a type")
	}
	if _, ok := prog.Metatype(2); ok {
		t.Error("type id past the table should not resolve")
	}
	if name, ok := prog.SymbolAt(5); !ok || name != "main" {
		t.Errorf("SymbolAt(5) = %q, %v", name, ok)
	}
	if c := prog.Constants[0]; c.ByteSize() != 3 {
		t.Errorf("ByteSize = %d, want 3", c.ByteSize())
	}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	prog := sampleProgram()
	prog.Code[1].Imm = nativeAddressOrZero("io_Sprinti")
	listing := Disassemble(prog)

	for _, want := range []string{
		"; yo bytecode v1",
		"; 7 instructions, 1 globals",
		";   [0] i8 x 3 [111 107 0]",
		";   #1 String dealloc=5",
		"main:\n     5  loadc      0",
		"; io_Sprinti",
		"ujump      7  ; end",
		"end:\n",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing does not contain %q:\n%s", want, listing)
		}
	}
}

func TestFormatInstructionWithoutImmediate(t *testing.T) {
	got := FormatInstruction(&Program{}, 12, Instruction{Op: OpADD})
	if got != "    12  add" {
		t.Errorf("FormatInstruction = %q", got)
	}
}

func nativeAddressOrZero(name string) int64 {
	if fn, ok := LookupNative(name); ok {
		return fn.Address
	}
	return 0
}
