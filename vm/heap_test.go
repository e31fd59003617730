package vm

import (
	"errors"
	"testing"
)

// expectMemoryError runs fn and fails unless it panics with a *MemoryError
// for the given operation.
func expectMemoryError(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected a %s memory error, got none", op)
		}
		me, ok := r.(*MemoryError)
		if !ok {
			t.Fatalf("expected *MemoryError, got %T: %v", r, r)
		}
		if me.Op != op {
			t.Errorf("op = %q, want %q", me.Op, op)
		}
	}()
	fn()
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func TestHeapReservesNullCell(t *testing.T) {
	h := NewHeap(128)
	allocs := h.Allocations()
	if len(allocs) != 1 || allocs[0].Address != 0 || allocs[0].Size != 2 {
		t.Fatalf("allocations = %v, want only the null cell", allocs)
	}
	if got := h.Alloc(8); got != 2 {
		t.Errorf("first allocation at %d, want 2", got)
	}
}

func TestHeapSizeRoundsToCells(t *testing.T) {
	if got := NewHeap(131).Size(); got != 128 {
		t.Errorf("Size = %d, want 128", got)
	}
}

func TestHeapTooSmall(t *testing.T) {
	expectMemoryError(t, "heap", func() { NewHeap(16) })
}

func TestHeapAllocRoundsToEven(t *testing.T) {
	h := NewHeap(128)
	a := h.Alloc(3)
	b := h.Alloc(0)
	c := h.Alloc(1)
	if a != 2 || b != 6 || c != 8 {
		t.Errorf("addresses = %d, %d, %d, want 2, 6, 8", a, b, c)
	}
}

func TestHeapFirstFit(t *testing.T) {
	h := NewHeap(256)
	a := h.Alloc(16) // 2
	b := h.Alloc(8)  // 18
	c := h.Alloc(16) // 26
	_ = c

	h.Free(a)
	if got := h.Alloc(4); got != a {
		t.Errorf("small allocation at %d, want the freed gap at %d", got, a)
	}
	if got := h.Alloc(10); got != a+4 {
		t.Errorf("second allocation at %d, want the rest of the gap at %d", got, a+4)
	}

	h.Free(b)
	// 16..26 is free now; 12 bytes do not fit and go to the end
	if got := h.Alloc(12); got != 42 {
		t.Errorf("large allocation at %d, want 42", got)
	}
	if got := h.Alloc(8); got != 16 {
		t.Errorf("allocation at %d, want the gap at 16", got)
	}
}

func TestHeapAllocationsSorted(t *testing.T) {
	h := NewHeap(256)
	a := h.Alloc(8)
	h.Alloc(8)
	h.Free(a)
	h.Alloc(2)

	prev := -1
	for _, al := range h.Allocations() {
		if al.Address <= prev {
			t.Fatalf("allocations not sorted: %v", h.Allocations())
		}
		prev = al.Address
	}
}

func TestHeapOutOfMemory(t *testing.T) {
	h := NewHeap(64)
	h.Alloc(40)
	expectMemoryError(t, "alloc", func() { h.Alloc(40) })
}

func TestHeapFreeErrors(t *testing.T) {
	h := NewHeap(64)
	a := h.Alloc(8)
	expectMemoryError(t, "free", func() { h.Free(a + 2) })
	expectMemoryError(t, "free", func() { h.Free(0) })

	h.Free(a)
	expectMemoryError(t, "free", func() { h.Free(a) })
}

func TestHeapResetOnFree(t *testing.T) {
	h := NewHeap(64)
	a := h.Alloc(8)
	h.Write64(a, 99)
	h.Free(a)
	if got := h.Read64(a); got != 0 {
		t.Errorf("freed cell = %d, want 0", got)
	}

	h.ResetOnFree = false
	a = h.Alloc(8)
	h.Write64(a, 99)
	h.Free(a)
	if got := h.Read64(a); got != 99 {
		t.Errorf("freed cell = %d, want contents kept", got)
	}
}

func TestHeapAllocationAt(t *testing.T) {
	h := NewHeap(64)
	a := h.Alloc(6)
	got, ok := h.AllocationAt(a)
	if !ok || got.Size != 6 || got.End() != a+6 {
		t.Errorf("AllocationAt = %+v, %v", got, ok)
	}
	if _, ok := h.AllocationAt(a + 2); ok {
		t.Error("AllocationAt should only match start addresses")
	}
}

// ---------------------------------------------------------------------------
// Loads and stores
// ---------------------------------------------------------------------------

func TestHeapLoadStoreWidths(t *testing.T) {
	tests := []struct {
		width int
		value int64
		want  int64
	}{
		{1, 0x7f, 0x7f},
		{1, -1, -1},
		{1, 0x1ff, -1},
		{2, -2, -2},
		{2, 0x12345, 0x2345},
		{4, 0x1_0000_0005, 5},
		{4, -100000, -100000},
		{8, -1 << 62, -1 << 62},
	}
	h := NewHeap(64)
	addr := h.Alloc(8)
	for _, tt := range tests {
		h.Write64(addr, 0)
		h.Store(addr, tt.width, tt.value)
		if got := h.Load(addr, tt.width); got != tt.want {
			t.Errorf("width %d: stored %#x, loaded %#x, want %#x", tt.width, tt.value, got, tt.want)
		}
	}
}

func TestHeapLittleEndian(t *testing.T) {
	h := NewHeap(64)
	addr := h.Alloc(8)
	h.Write64(addr, 0x0102)
	if got := h.Load(addr, 1); got != 2 {
		t.Errorf("low byte = %d, want 2", got)
	}
	if got := h.Load(addr+1, 1); got != 1 {
		t.Errorf("high byte = %d, want 1", got)
	}
}

func TestHeapBoundsChecks(t *testing.T) {
	h := NewHeap(64)
	expectMemoryError(t, "load", func() { h.Load(60, 8) })
	expectMemoryError(t, "store", func() { h.Store(-1, 1, 0) })
	expectMemoryError(t, "load", func() { h.Load(0, 3) })
	expectMemoryError(t, "clear", func() { h.Clear(32, 64) })
	expectMemoryError(t, "clear", func() { h.Clear(32, -8) })
	expectMemoryError(t, "alloc", func() { h.Alloc(-8) })
}

func TestHeapCString(t *testing.T) {
	h := NewHeap(64)
	addr := h.Alloc(4)
	for i, c := range []byte("yo!") {
		h.Store(addr+i, 1, int64(c))
	}
	if got := h.CString(addr); got != "yo!" {
		t.Errorf("CString = %q, want %q", got, "yo!")
	}
}

func TestMemoryErrorMessage(t *testing.T) {
	var err error = &MemoryError{Op: "free", Address: 12, Message: "no allocation at address"}
	if err.Error() != "free at 12: no allocation at address" {
		t.Errorf("Error = %q", err.Error())
	}
	var me *MemoryError
	if !errors.As(err, &me) {
		t.Error("errors.As should find the MemoryError")
	}
}
