package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("yo.vm")

// GlobalsBase is the heap address of global slot 0. The globals region is
// the first allocation after the reserved null cell.
const GlobalsBase = 2

// DefaultHeapSize is used when Options.HeapSize is zero.
const DefaultHeapSize = 1 << 16

// returnToHost is the return address pushed by Call; a ret to it stops the
// nested dispatch loop.
const returnToHost = -1

// Options configures an Interpreter.
type Options struct {
	HeapSize    int
	ResetOnFree bool
	Stdout      io.Writer
}

// DefaultOptions returns the options used by the CLI when nothing is
// configured.
func DefaultOptions() Options {
	return Options{
		HeapSize:    DefaultHeapSize,
		ResetOnFree: true,
		Stdout:      os.Stdout,
	}
}

// ---------------------------------------------------------------------------
// Interpreter: executes a linked Program against a Heap and Stack
// ---------------------------------------------------------------------------

// Interpreter executes yo bytecode. It is single-threaded and owns its heap.
type Interpreter struct {
	program *Program
	natives map[int64]*NativeFunction

	Heap  *Heap
	Stack *Stack
	ARC   *ARC

	constants []int64 // heap address of each constant blob
	reserved  map[int]bool

	ip      int
	current int // address of the instruction being executed
	stdout  io.Writer
}

// NewInterpreter prepares a program for execution: it creates the heap,
// reserves the globals region and lays out the constant blobs.
func NewInterpreter(program *Program, opts Options) *Interpreter {
	if opts.HeapSize == 0 {
		opts.HeapSize = DefaultHeapSize
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	in := &Interpreter{
		program:  program,
		natives:  make(map[int64]*NativeFunction),
		reserved: map[int]bool{0: true},
		stdout:   opts.Stdout,
	}
	in.Heap = NewHeap(opts.HeapSize)
	in.Heap.ResetOnFree = opts.ResetOnFree
	in.Stack = NewStack(in.Heap)
	in.ARC = NewARC(in.Heap, in)

	for _, fn := range Natives() {
		in.natives[fn.Address] = fn
	}

	if program.Globals > 0 {
		addr := in.Heap.Alloc(8 * program.Globals)
		if addr != GlobalsBase {
			panic(&MemoryError{Op: "globals", Address: addr, Message: "globals region is not at the expected base"})
		}
		in.reserved[addr] = true
	}

	in.constants = make([]int64, len(program.Constants))
	for i, c := range program.Constants {
		addr := in.Heap.Alloc(c.ByteSize())
		for j, v := range c.Values {
			in.Heap.Store(addr+j*c.ElementSize, c.ElementSize, v)
		}
		in.constants[i] = int64(addr)
		in.reserved[addr] = true
	}

	log.Debugf("heap %d bytes, %d globals, %d constants, %d instructions",
		in.Heap.Size(), program.Globals, len(program.Constants), len(program.Code))
	return in
}

// Program returns the program being executed.
func (in *Interpreter) Program() *Program {
	return in.program
}

// Stdout returns the writer used by the io natives.
func (in *Interpreter) Stdout() io.Writer {
	return in.stdout
}

// Run executes the program from address 0 to its end and returns main's
// return value. Runtime invariant violations are returned as errors.
func (in *Interpreter) Run() (result int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *RuntimeError:
				if e.IP < 0 {
					e.IP = in.current
				}
				err = e
			case *MemoryError:
				err = &RuntimeError{IP: in.current, Message: e.Error()}
			default:
				panic(r)
			}
		}
	}()

	in.ip = 0
	in.run()
	if in.Stack.IsEmpty() {
		return 0, nil
	}
	return in.Stack.Pop(), nil
}

// Call invokes the function at address with the given arguments from host
// code (dealloc functions, dynamic dispatch) and returns its result.
func (in *Interpreter) Call(address int64, args ...int64) int64 {
	for i := len(args) - 1; i >= 0; i-- {
		in.Stack.Push(args[i])
	}
	savedIP, savedCurrent := in.ip, in.current
	in.call(address, len(args), returnToHost)
	in.run()
	in.ip, in.current = savedIP, savedCurrent
	return in.Stack.Pop()
}

// Dealloc runs the dealloc function registered for typeID.
func (in *Interpreter) Dealloc(address int64, typeID int64) {
	mt, ok := in.program.Metatype(typeID)
	if !ok {
		inconsistency("object at %#x has unknown type id %d", address, typeID)
	}
	log.Debugf("dealloc %s at %#x", mt.Name, address)
	if mt.Dealloc != 0 {
		in.Call(mt.Dealloc, address)
	}
}

func (in *Interpreter) fail(format string, args ...any) {
	panic(&RuntimeError{IP: in.current, Message: fmt.Sprintf(format, args...)})
}

// call transfers control to callee with argc arguments already pushed
// right to left. Negative addresses are natives, objects are closures whose
// first attribute holds the invoke function.
func (in *Interpreter) call(callee int64, argc int, returnAddress int) {
	if callee < 0 {
		fn, ok := in.natives[callee]
		if !ok {
			in.fail("call to unknown native %d", callee)
		}
		result := fn.Impl(StackView{in: in, argc: argc})
		for _, i := range fn.ownedParams() {
			if i < argc {
				arg := in.Stack.Peek(i)
				in.ARC.Retain(arg)
				in.ARC.Release(arg)
			}
		}
		in.Stack.PopN(argc)
		in.Stack.Push(result)
		in.ip = returnAddress
		return
	}

	if in.ARC.IsObject(callee) {
		receiver := callee
		callee = in.Heap.Read64(int(receiver) + HeaderSize)
		in.Stack.Push(receiver)
	}
	if callee <= 0 || int(callee) >= len(in.program.Code) {
		in.fail("call to invalid address %d", callee)
	}

	in.Stack.Push(int64(returnAddress))
	in.Stack.Push(int64(in.Stack.FP))
	in.Stack.FP = in.Stack.SP
	in.ip = int(callee)
}

func (in *Interpreter) ret(argc int) {
	value := in.Stack.Pop()
	for in.Stack.SP > in.Stack.FP {
		in.Stack.Pop()
	}
	fp := in.Stack.Pop()
	returnAddress := in.Stack.Pop()
	in.Stack.PopN(argc)
	in.Stack.FP = int(fp)
	in.Stack.Push(value)
	in.ip = int(returnAddress)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func f64(v int64) float64 {
	return math.Float64frombits(uint64(v))
}

func i64(f float64) int64 {
	return int64(math.Float64bits(f))
}

var loadWidths = map[Opcode]int{
	OpLOADH8: 1, OpLOADH16: 2, OpLOADH32: 4, OpLOADH64: 8,
	OpSTOREH8: 1, OpSTOREH16: 2, OpSTOREH32: 4, OpSTOREH64: 8,
}

// run is the dispatch loop. It returns when control leaves the code, either
// by running off its end or by returning to the host.
func (in *Interpreter) run() {
	code := in.program.Code
	s := in.Stack

	for in.ip >= 0 && in.ip < len(code) {
		instr := code[in.ip]
		in.current = in.ip
		in.ip++

		switch instr.Op {
		// --- Stack operations ---
		case OpNOP:

		case OpPUSH:
			s.Push(instr.Imm)

		case OpPOP:
			s.Pop()

		case OpPOPI:
			s.PopN(int(instr.Imm))

		case OpDUP:
			s.Push(s.Peek(0))

		case OpSWAP:
			a, b := s.Pop(), s.Pop()
			s.Push(a)
			s.Push(b)

		case OpALLOC:
			for i := int64(0); i < instr.Imm; i++ {
				s.Push(0)
			}

		// --- Frame, globals and constants ---
		case OpLOAD:
			s.Push(s.GetFrameElement(int(instr.Imm)))

		case OpSTORE:
			s.PushFrame(int(instr.Imm), s.Pop())

		case OpADDR:
			s.Push(int64(s.FrameAddress(int(instr.Imm))))

		case OpREADH:
			s.Push(in.Heap.Read64(int(instr.Imm)))

		case OpWRITEH:
			in.Heap.Write64(int(instr.Imm), s.Pop())

		case OpLOADC:
			if instr.Imm < 0 || int(instr.Imm) >= len(in.constants) {
				in.fail("constant index %d out of range", instr.Imm)
			}
			s.Push(in.constants[instr.Imm])

		// --- Heap access ---
		case OpLOADH8, OpLOADH16, OpLOADH32, OpLOADH64:
			target := s.Pop()
			offset := s.Pop()
			s.Push(in.Heap.Load(int(target+offset), loadWidths[instr.Op]))

		case OpSTOREH8, OpSTOREH16, OpSTOREH32, OpSTOREH64:
			target := s.Pop()
			offset := s.Pop()
			value := s.Pop()
			in.Heap.Store(int(target+offset), loadWidths[instr.Op], value)

		// --- Integer arithmetic ---
		case OpADD, OpSUB, OpMUL, OpDIV, OpMOD, OpAND, OpOR, OpXOR, OpSHL, OpSHR, OpEQ, OpLT, OpLE:
			b := s.Pop()
			a := s.Pop()
			s.Push(in.intBinop(instr.Op, a, b))

		case OpNOT:
			s.Push(^s.Pop())

		case OpLNOT:
			s.Push(b2i(s.Pop() == 0))

		// --- Floating point ---
		case OpDADD, OpDSUB, OpDMUL, OpDDIV, OpDEQ, OpDLT, OpDLE:
			b := f64(s.Pop())
			a := f64(s.Pop())
			s.Push(doubleBinop(instr.Op, a, b))

		case OpCVTI2D:
			s.Push(i64(float64(s.Pop())))

		case OpCVTD2I:
			s.Push(int64(f64(s.Pop())))

		// --- Control flow ---
		case OpJUMP:
			if s.Pop() != 0 {
				in.ip = int(instr.Imm)
			}

		case OpUJUMP:
			in.ip = int(instr.Imm)

		case OpCALL:
			in.call(s.Pop(), int(instr.Imm), in.ip)

		case OpRET:
			in.ret(int(instr.Imm))

		// --- Reference counting ---
		case OpRETAIN:
			in.ARC.Retain(s.Pop())

		case OpRELEASE:
			in.ARC.Release(s.Pop())

		default:
			in.fail("unknown opcode %s", instr.Op)
		}
	}
}

func (in *Interpreter) intBinop(op Opcode, a, b int64) int64 {
	switch op {
	case OpADD:
		return a + b
	case OpSUB:
		return a - b
	case OpMUL:
		return a * b
	case OpDIV:
		if b == 0 {
			in.fail("integer division by zero")
		}
		return a / b
	case OpMOD:
		if b == 0 {
			in.fail("integer division by zero")
		}
		return a % b
	case OpAND:
		return a & b
	case OpOR:
		return a | b
	case OpXOR:
		return a ^ b
	case OpSHL:
		return a << uint64(b)
	case OpSHR:
		return a >> uint64(b)
	case OpEQ:
		return b2i(a == b)
	case OpLT:
		return b2i(a < b)
	case OpLE:
		return b2i(a <= b)
	}
	in.fail("not an integer operation: %s", op)
	return 0
}

func doubleBinop(op Opcode, a, b float64) int64 {
	switch op {
	case OpDADD:
		return i64(a + b)
	case OpDSUB:
		return i64(a - b)
	case OpDMUL:
		return i64(a * b)
	case OpDDIV:
		return i64(a / b)
	case OpDEQ:
		return b2i(a == b)
	case OpDLT:
		return b2i(a < b)
	default:
		return b2i(a <= b)
	}
}

// ---------------------------------------------------------------------------
// Heap inspection
// ---------------------------------------------------------------------------

// LiveAllocations returns the allocations made by the program that are
// still live, excluding the null cell, globals and constants.
func (in *Interpreter) LiveAllocations() []Allocation {
	var live []Allocation
	for _, a := range in.Heap.Allocations() {
		if !in.reserved[a.Address] {
			live = append(live, a)
		}
	}
	return live
}

// HeapReport describes every live allocation, naming the type of those that
// look like objects.
func (in *Interpreter) HeapReport() []string {
	var lines []string
	for _, a := range in.LiveAllocations() {
		desc := "raw"
		addr := int64(a.Address)
		if in.ARC.IsObject(addr) {
			if mt, ok := in.program.Metatype(in.ARC.TypeID(addr)); ok {
				desc = fmt.Sprintf("%s (retain count %d)", mt.Name, in.ARC.RetainCount(addr))
			}
		}
		lines = append(lines, fmt.Sprintf("%#06x %4d bytes  %s", a.Address, a.Size, desc))
	}
	return lines
}
