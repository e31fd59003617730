package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// ARC: reference counting on object headers
// ---------------------------------------------------------------------------

// Every object's first 8 bytes hold its header:
//   - upper 32 bits: 1-based type id (index into Program.Metatypes)
//   - bit 30: isDeallocating
//   - bit 29: isMarkedForRelease
//   - bits 0-28: retain count
const (
	HeaderSize = 8

	flagDeallocating     = 1 << 30
	flagMarkedForRelease = 1 << 29
	retainCountMask      = math.MaxUint32 >> 3
)

// MakeHeader builds the initial header of a freshly initialized object.
func MakeHeader(typeID int64, retainCount int64) int64 {
	return typeID<<32 | retainCount&retainCountMask
}

// Deallocator runs the type-specific teardown for an object whose last
// reference went away. The backing allocation is freed by the caller.
type Deallocator interface {
	Dealloc(address int64, typeID int64)
}

// ARC implements retain/release against a heap.
type ARC struct {
	heap        *Heap
	deallocator Deallocator
}

// NewARC creates an ARC runtime. deallocator may be nil, in which case
// objects are freed without running a dealloc function.
func NewARC(heap *Heap, deallocator Deallocator) *ARC {
	return &ARC{heap: heap, deallocator: deallocator}
}

// RuntimeError reports an internal inconsistency detected while executing a
// program. Programs accepted by the compiler never trigger one.
type RuntimeError struct {
	IP      int
	Message string
}

func (e *RuntimeError) Error() string {
	if e.IP < 0 {
		return "runtime: " + e.Message
	}
	return fmt.Sprintf("runtime: ip %d: %s", e.IP, e.Message)
}

func inconsistency(format string, args ...any) {
	panic(&RuntimeError{IP: -1, Message: fmt.Sprintf(format, args...)})
}

// IsObject reports whether address looks like a live object: nonzero, on the
// even allocation stride, inside the heap, and with a nonzero header.
func (a *ARC) IsObject(address int64) bool {
	if address <= 0 || address%2 != 0 || int(address)+HeaderSize > a.heap.Size() {
		return false
	}
	return a.heap.Read64(int(address)) != 0
}

func (a *ARC) header(address int64) int64 {
	return a.heap.Read64(int(address))
}

func (a *ARC) setHeader(address int64, h int64) {
	a.heap.Write64(int(address), h)
}

// TypeID returns the type id stored in an object's header.
func (a *ARC) TypeID(address int64) int64 {
	if !a.IsObject(address) {
		return 0
	}
	return int64(uint64(a.header(address)) >> 32)
}

// RetainCount returns the retain count stored in an object's header.
func (a *ARC) RetainCount(address int64) int64 {
	if !a.IsObject(address) {
		return 0
	}
	return a.header(address) & retainCountMask
}

// IsDeallocating reports whether the object is being torn down.
func (a *ARC) IsDeallocating(address int64) bool {
	return a.IsObject(address) && a.header(address)&flagDeallocating != 0
}

// IsMarkedForRelease reports whether the object carries a pending release.
func (a *ARC) IsMarkedForRelease(address int64) bool {
	return a.IsObject(address) && a.header(address)&flagMarkedForRelease != 0
}

// MarkForRelease flags an object returned to a caller that has not taken
// ownership yet. The caller's next retain or release consumes the mark.
func (a *ARC) MarkForRelease(address int64) {
	if !a.IsObject(address) {
		return
	}
	h := a.header(address)
	if h&flagMarkedForRelease != 0 {
		inconsistency("object at %#x is already marked for release", address)
	}
	if h&flagDeallocating != 0 {
		return
	}
	a.setHeader(address, h|flagMarkedForRelease)
}

// Retain takes a reference to an object. Retaining a marked object consumes
// the mark instead of incrementing the count. Objects that are being torn
// down are left alone.
func (a *ARC) Retain(address int64) int64 {
	if !a.IsObject(address) {
		return address
	}
	h := a.header(address)
	if h&flagDeallocating != 0 {
		return address
	}
	if h&flagMarkedForRelease != 0 {
		a.setHeader(address, h&^flagMarkedForRelease)
		return address
	}
	if h&retainCountMask == retainCountMask {
		inconsistency("retain count overflow for object at %#x", address)
	}
	a.setHeader(address, h+1)
	return address
}

// Release drops a reference to an object, deallocating and freeing it when
// the last reference goes away.
func (a *ARC) Release(address int64) int64 {
	if !a.IsObject(address) {
		return address
	}
	h := a.header(address)
	if h&flagDeallocating != 0 {
		return address
	}
	if h&flagMarkedForRelease != 0 {
		h &^= flagMarkedForRelease
		a.setHeader(address, h)
	}

	switch rc := h & retainCountMask; {
	case rc == 1:
		a.setHeader(address, h|flagDeallocating)
		if a.deallocator != nil {
			a.deallocator.Dealloc(address, int64(uint64(h)>>32))
		}
		a.heap.Free(int(address))
	case rc == 0:
		inconsistency("release of object at %#x with retain count 0", address)
	default:
		a.setHeader(address, h-1)
	}
	return address
}
