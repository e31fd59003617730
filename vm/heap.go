package vm

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Heap: fixed-size, byte-addressed memory shared with the call stack
// ---------------------------------------------------------------------------

// Allocation is one live heap region.
type Allocation struct {
	Address int
	Size    int
}

// End returns the first address past the allocation.
func (a Allocation) End() int {
	return a.Address + a.Size
}

// MemoryError reports a violated heap or stack invariant. It is raised with
// panic; the interpreter recovers it at the Run boundary.
type MemoryError struct {
	Op      string
	Address int
	Message string
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("%s at %d: %s", e.Op, e.Address, e.Message)
}

// Heap is a first-fit allocator over one contiguous byte array. The top of
// the array is used by the Stack, which grows downwards towards the
// allocations; the two are not checked against each other.
type Heap struct {
	memory      []byte
	allocations []Allocation // sorted by address, pairwise disjoint

	// ResetOnFree zeroes freed regions.
	ResetOnFree bool
}

// NewHeap creates a heap of the given size in bytes. The size is rounded
// down to whole 8-byte cells. Address 0 is reserved by a throwaway
// allocation so that no object can ever live at the null address.
func NewHeap(size int) *Heap {
	size -= size % 8
	if size < 64 {
		panic(&MemoryError{Op: "heap", Address: size, Message: "heap too small"})
	}
	h := &Heap{
		memory:      make([]byte, size),
		ResetOnFree: true,
	}
	h.Alloc(1)
	return h
}

// Size returns the size of the backing array in bytes.
func (h *Heap) Size() int {
	return len(h.memory)
}

func roundUpToEven(n int) int {
	if n <= 0 {
		return 2
	}
	return n + n%2
}

// Alloc reserves size bytes (rounded up to an even count) and returns the
// address of the first gap that fits, or the address after the last
// allocation when no gap does.
func (h *Heap) Alloc(size int) int {
	if size < 0 {
		panic(&MemoryError{Op: "alloc", Address: 0, Message: fmt.Sprintf("negative size %d", size)})
	}
	size = roundUpToEven(size)

	address := 0
	index := len(h.allocations)
	if n := len(h.allocations); n > 0 {
		address = h.allocations[n-1].End()
		for i := 0; i < n-1; i++ {
			end := h.allocations[i].End()
			if h.allocations[i+1].Address-end >= size {
				address = end
				index = i + 1
				break
			}
		}
	}

	if address+size > len(h.memory) {
		panic(&MemoryError{Op: "alloc", Address: address, Message: fmt.Sprintf("out of memory (requested %d bytes)", size)})
	}

	h.allocations = append(h.allocations, Allocation{})
	copy(h.allocations[index+1:], h.allocations[index:])
	h.allocations[index] = Allocation{Address: address, Size: size}
	return address
}

// Free releases the allocation starting at address.
func (h *Heap) Free(address int) {
	i := sort.Search(len(h.allocations), func(i int) bool {
		return h.allocations[i].Address >= address
	})
	if i == len(h.allocations) || h.allocations[i].Address != address {
		panic(&MemoryError{Op: "free", Address: address, Message: "no allocation at address"})
	}
	if address == 0 {
		panic(&MemoryError{Op: "free", Address: address, Message: "cannot free the reserved null cell"})
	}

	a := h.allocations[i]
	h.allocations = append(h.allocations[:i], h.allocations[i+1:]...)
	if h.ResetOnFree {
		clear(h.memory[a.Address:a.End()])
	}
}

// Clear zeroes size bytes starting at address.
func (h *Heap) Clear(address, size int) {
	h.check("clear", address, size)
	clear(h.memory[address : address+size])
}

// Allocations returns a copy of the live allocation records, including the
// reserved null cell.
func (h *Heap) Allocations() []Allocation {
	out := make([]Allocation, len(h.allocations))
	copy(out, h.allocations)
	return out
}

// AllocationAt returns the allocation starting at address.
func (h *Heap) AllocationAt(address int) (Allocation, bool) {
	for _, a := range h.allocations {
		if a.Address == address {
			return a, true
		}
	}
	return Allocation{}, false
}

func (h *Heap) check(op string, address, width int) {
	if address < 0 || width < 0 || address+width > len(h.memory) {
		panic(&MemoryError{Op: op, Address: address, Message: fmt.Sprintf("access of %d bytes out of bounds", width)})
	}
}

// Load reads a width-byte little-endian value at address and sign-extends
// it to 64 bits.
func (h *Heap) Load(address, width int) int64 {
	h.check("load", address, width)
	b := h.memory[address : address+width]
	switch width {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case 8:
		return int64(binary.LittleEndian.Uint64(b))
	}
	panic(&MemoryError{Op: "load", Address: address, Message: fmt.Sprintf("invalid width %d", width)})
}

// Store writes the low width bytes of value at address.
func (h *Heap) Store(address, width int, value int64) {
	h.check("store", address, width)
	b := h.memory[address : address+width]
	switch width {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(value))
	default:
		panic(&MemoryError{Op: "store", Address: address, Message: fmt.Sprintf("invalid width %d", width)})
	}
}

// Read64 reads the 8-byte cell at address.
func (h *Heap) Read64(address int) int64 {
	return h.Load(address, 8)
}

// Write64 writes the 8-byte cell at address.
func (h *Heap) Write64(address int, value int64) {
	h.Store(address, 8, value)
}

// CString reads a zero-terminated byte string starting at address.
func (h *Heap) CString(address int) string {
	h.check("cstring", address, 1)
	end := address
	for end < len(h.memory) && h.memory[end] != 0 {
		end++
	}
	return string(h.memory[address:end])
}
