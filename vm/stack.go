package vm

// ---------------------------------------------------------------------------
// Stack: 8-byte cells at the top of the heap, growing downwards
// ---------------------------------------------------------------------------

// Stack is the evaluation and call stack. Element i lives at heap address
// ActualIndex(i); SP and FP are element indexes, -1 when empty.
type Stack struct {
	heap *Heap
	SP   int
	FP   int
}

// NewStack creates an empty stack over the heap.
func NewStack(heap *Heap) *Stack {
	return &Stack{heap: heap, SP: -1, FP: -1}
}

// ActualIndex maps a stack index to its heap address.
func (s *Stack) ActualIndex(i int) int {
	return s.heap.Size() - 8*i - 8
}

// Count returns the number of elements on the stack.
func (s *Stack) Count() int {
	return s.SP + 1
}

// IsEmpty reports whether the stack holds no elements.
func (s *Stack) IsEmpty() bool {
	return s.SP < 0
}

// Push pushes a value.
func (s *Stack) Push(v int64) {
	s.SP++
	addr := s.ActualIndex(s.SP)
	if addr < 0 {
		s.SP--
		panic(&MemoryError{Op: "push", Address: addr, Message: "stack overflow"})
	}
	s.heap.Write64(addr, v)
}

// Pop removes and returns the top value, zeroing its cell.
func (s *Stack) Pop() int64 {
	if s.SP < 0 {
		panic(&MemoryError{Op: "pop", Address: s.ActualIndex(0), Message: "stack underflow"})
	}
	addr := s.ActualIndex(s.SP)
	v := s.heap.Read64(addr)
	s.heap.Write64(addr, 0)
	s.SP--
	return v
}

// PopN discards the top n values.
func (s *Stack) PopN(n int) {
	for i := 0; i < n; i++ {
		s.Pop()
	}
}

// Peek returns the value offset elements below the top.
func (s *Stack) Peek(offset int) int64 {
	i := s.SP - offset
	if i < 0 || offset < 0 {
		panic(&MemoryError{Op: "peek", Address: s.ActualIndex(i), Message: "stack underflow"})
	}
	return s.heap.Read64(s.ActualIndex(i))
}

// GetFrameElement reads the element at FP+index.
func (s *Stack) GetFrameElement(index int) int64 {
	i := s.FP + index
	if i < 0 || i > s.SP {
		panic(&MemoryError{Op: "load", Address: s.ActualIndex(i), Message: "frame element outside the stack"})
	}
	return s.heap.Read64(s.ActualIndex(i))
}

// PushFrame writes v into the element at FP+index.
func (s *Stack) PushFrame(index int, v int64) {
	i := s.FP + index
	if i < 0 || i > s.SP {
		panic(&MemoryError{Op: "store", Address: s.ActualIndex(i), Message: "frame element outside the stack"})
	}
	s.heap.Write64(s.ActualIndex(i), v)
}

// FrameAddress returns the heap address of the element at FP+index.
func (s *Stack) FrameAddress(index int) int {
	return s.ActualIndex(s.FP + index)
}
