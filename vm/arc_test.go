package vm

import (
	"strings"
	"testing"
)

type recordingDeallocator struct {
	calls [][2]int64
}

func (d *recordingDeallocator) Dealloc(address int64, typeID int64) {
	d.calls = append(d.calls, [2]int64{address, typeID})
}

func newTestObject(t *testing.T, h *Heap, typeID int64) int64 {
	t.Helper()
	addr := h.Alloc(16)
	h.Write64(addr, MakeHeader(typeID, 1))
	return int64(addr)
}

func expectInconsistency(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		re, ok := r.(*RuntimeError)
		if !ok {
			t.Fatalf("expected *RuntimeError, got %T: %v", r, r)
		}
		if !strings.Contains(re.Message, want) {
			t.Errorf("message = %q, want it to contain %q", re.Message, want)
		}
	}()
	fn()
}

func TestMakeHeader(t *testing.T) {
	h := MakeHeader(3, 1)
	if h>>32 != 3 || h&retainCountMask != 1 {
		t.Errorf("header = %#x, want type 3 and count 1", h)
	}
	if h&flagDeallocating != 0 || h&flagMarkedForRelease != 0 {
		t.Errorf("header = %#x, want no flags", h)
	}
}

func TestARCIsObject(t *testing.T) {
	h := NewHeap(128)
	a := NewARC(h, nil)
	obj := newTestObject(t, h, 1)
	raw := int64(h.Alloc(8))

	tests := []struct {
		name    string
		address int64
		want    bool
	}{
		{"object", obj, true},
		{"zeroed allocation", raw, false},
		{"null", 0, false},
		{"negative", -1000, false},
		{"odd", obj + 1, false},
		{"past the heap", 1 << 20, false},
	}
	for _, tt := range tests {
		if got := a.IsObject(tt.address); got != tt.want {
			t.Errorf("%s: IsObject(%d) = %v, want %v", tt.name, tt.address, got, tt.want)
		}
	}
}

func TestARCRetainRelease(t *testing.T) {
	h := NewHeap(128)
	d := &recordingDeallocator{}
	a := NewARC(h, d)
	obj := newTestObject(t, h, 2)

	a.Retain(obj)
	a.Retain(obj)
	if got := a.RetainCount(obj); got != 3 {
		t.Fatalf("RetainCount = %d, want 3", got)
	}
	if got := a.TypeID(obj); got != 2 {
		t.Errorf("TypeID = %d, want 2", got)
	}

	a.Release(obj)
	a.Release(obj)
	if len(d.calls) != 0 {
		t.Fatal("object deallocated while still referenced")
	}

	a.Release(obj)
	if len(d.calls) != 1 || d.calls[0] != [2]int64{obj, 2} {
		t.Fatalf("dealloc calls = %v, want one for %d", d.calls, obj)
	}
	if _, ok := h.AllocationAt(int(obj)); ok {
		t.Error("object should be freed after its last release")
	}
}

func TestARCIgnoresNonObjects(t *testing.T) {
	h := NewHeap(128)
	d := &recordingDeallocator{}
	a := NewARC(h, d)
	raw := int64(h.Alloc(8))

	for _, v := range []int64{0, 7, -1003, raw} {
		if got := a.Retain(v); got != v {
			t.Errorf("Retain(%d) = %d", v, got)
		}
		a.Release(v)
		a.MarkForRelease(v)
	}
	if len(d.calls) != 0 {
		t.Errorf("dealloc calls = %v, want none", d.calls)
	}
}

func TestARCMarkForRelease(t *testing.T) {
	h := NewHeap(128)
	d := &recordingDeallocator{}
	a := NewARC(h, d)
	obj := newTestObject(t, h, 1)

	// a retain by the receiver takes over the returned reference
	a.MarkForRelease(obj)
	if !a.IsMarkedForRelease(obj) {
		t.Fatal("object should be marked")
	}
	a.Retain(obj)
	if a.IsMarkedForRelease(obj) || a.RetainCount(obj) != 1 {
		t.Fatalf("retain should consume the mark, count = %d", a.RetainCount(obj))
	}

	// a discarded result is released
	a.MarkForRelease(obj)
	a.Release(obj)
	if len(d.calls) != 1 {
		t.Fatalf("dealloc calls = %v, want one", d.calls)
	}
}

func TestARCDoubleMarkIsInconsistent(t *testing.T) {
	h := NewHeap(128)
	a := NewARC(h, nil)
	obj := newTestObject(t, h, 1)
	a.MarkForRelease(obj)
	expectInconsistency(t, "already marked", func() { a.MarkForRelease(obj) })
}

func TestARCReleaseOfZeroCount(t *testing.T) {
	h := NewHeap(128)
	a := NewARC(h, nil)
	addr := h.Alloc(16)
	h.Write64(addr, MakeHeader(1, 0))
	expectInconsistency(t, "retain count 0", func() { a.Release(int64(addr)) })
}

// reentrantDeallocator releases its object again from the dealloc function,
// as a dealloc that drops a reference cycle would.
type reentrantDeallocator struct {
	arc   *ARC
	calls int
}

func (d *reentrantDeallocator) Dealloc(address int64, typeID int64) {
	d.calls++
	d.arc.Retain(address)
	d.arc.Release(address)
	if !d.arc.IsDeallocating(address) {
		panic("object should be flagged while its dealloc runs")
	}
}

func TestARCDeallocatingObjectsAreLeftAlone(t *testing.T) {
	h := NewHeap(128)
	d := &reentrantDeallocator{}
	a := NewARC(h, d)
	d.arc = a
	obj := newTestObject(t, h, 1)

	a.Release(obj)
	if d.calls != 1 {
		t.Errorf("dealloc ran %d times, want 1", d.calls)
	}
}
