package vmm

import (
	"testing"
	"unsafe"
)

// frameSource returns a FrameAllocFunc that yields n distinct, real,
// table-sized-aligned frames backed by ordinary Go memory before reporting
// exhaustion, mirroring how kernel/mem/falloc's own tests stand in for
// physical frames.
func frameSource(t *testing.T, n int) FrameAllocFunc {
	t.Helper()
	align := unsafe.Sizeof(PageTable{})
	buf := make([]byte, int(align)*(n+1))
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + align - 1) &^ (align - 1)

	next := 0
	return func() (uintptr, bool) {
		if next >= n {
			return 0, false
		}
		frame := aligned + uintptr(next)*align
		next++
		return frame, true
	}
}

func TestIdentityMapLeafLevelStopsAtPhysLimit(t *testing.T) {
	table, _ := newTestTable(t)
	state := &MapState{}
	const pageSize = 0x1000

	IdentityMap(table, state, 0, pageSize*5, pageSize, nil)

	for i := 0; i < 5; i++ {
		e := table.Entries[i]
		if !e.HasFlags(FlagPresent | FlagWritable | FlagHugePage) {
			t.Fatalf("entry %d: expected a present, writable huge leaf; got %#x", i, uint64(e))
		}
		if want := uintptr(i) * pageSize; e.FrameAddr() != want {
			t.Errorf("entry %d: expected frame addr %#x; got %#x", i, want, e.FrameAddr())
		}
	}
	for i := 5; i < entriesPerTable; i++ {
		if table.Entries[i] != 0 {
			t.Fatalf("entry %d: expected to be marked unused past physLimit; got %#x", i, uint64(table.Entries[i]))
		}
	}
	if state.VirtualMemorySize != pageSize*5 {
		t.Fatalf("expected VirtualMemorySize to stop at %#x; got %#x", pageSize*5, state.VirtualMemorySize)
	}
}

func TestIdentityMapFallsDownAndStopsOnAllocatorExhaustion(t *testing.T) {
	table, _ := newTestTable(t)
	state := &MapState{}
	const pageSize = 0x1000
	// physLimit requires more than one full child table's worth of huge
	// leaves (512 entries), forcing a second child allocation that the
	// single-frame allocator below cannot satisfy.
	const physLimit = pageSize * 600

	alloc := frameSource(t, 1)
	IdentityMap(table, state, 1, physLimit, pageSize, alloc)

	if !table.Entries[0].HasFlags(FlagPresent | FlagWritable | FlagUser) {
		t.Fatalf("expected entry 0 to be a present child link; got %#x", uint64(table.Entries[0]))
	}
	child := TableAt(table.Entries[0].FrameAddr())
	for i := 0; i < entriesPerTable; i++ {
		if !child.Entries[i].HasFlags(FlagPresent | FlagHugePage) {
			t.Fatalf("child entry %d: expected a fully-populated huge leaf; got %#x", i, uint64(child.Entries[i]))
		}
	}

	for i := 1; i < entriesPerTable; i++ {
		if table.Entries[i] != 0 {
			t.Fatalf("entry %d: expected to be marked unused once the allocator was exhausted; got %#x", i, uint64(table.Entries[i]))
		}
	}
	if state.VirtualMemorySize != pageSize*entriesPerTable {
		t.Fatalf("expected mapping to stop at exactly one child table's coverage; got %#x", state.VirtualMemorySize)
	}
}

func TestIdentityMapWithOffsetResumesAndMarksRestUnused(t *testing.T) {
	const pageSize = 0x1000

	child, _ := newTestTable(t)
	for i := 0; i < 3; i++ {
		child.Entries[i] = 0
		child.Entries[i].SetFrameAddr(uintptr(i) * pageSize)
		child.Entries[i].SetFlags(FlagPresent | FlagWritable | FlagHugePage)
	}

	top, _ := newTestTable(t)
	childFrame := uintptr(unsafe.Pointer(child))
	top.Entries[0] = 0
	top.Entries[0].SetFrameAddr(childFrame)
	top.Entries[0].SetFlags(FlagPresent | FlagWritable | FlagUser)

	state := &MapState{VirtualMemorySize: 3 * pageSize}
	const physLimit = 6 * pageSize

	neverCalled := func() (uintptr, bool) {
		t.Fatal("allocFrame must not be called once state has already reached physLimit")
		return 0, false
	}

	IdentityMapWithOffset(top, []int{0, 2}, state, 1, physLimit, pageSize, neverCalled)

	for i := 3; i < 6; i++ {
		e := child.Entries[i]
		if !e.HasFlags(FlagPresent | FlagHugePage) {
			t.Fatalf("child entry %d: expected a huge leaf continuing from the resume point; got %#x", i, uint64(e))
		}
		if want := uintptr(i) * pageSize; e.FrameAddr() != want {
			t.Errorf("child entry %d: expected frame addr %#x; got %#x", i, want, e.FrameAddr())
		}
	}
	for i := 6; i < entriesPerTable; i++ {
		if child.Entries[i] != 0 {
			t.Fatalf("child entry %d: expected to be marked unused past physLimit; got %#x", i, uint64(child.Entries[i]))
		}
	}
	for i := 1; i < entriesPerTable; i++ {
		if top.Entries[i] != 0 {
			t.Fatalf("top entry %d: expected to be marked unused once physLimit was reached", i)
		}
	}
	if state.VirtualMemorySize != physLimit {
		t.Fatalf("expected VirtualMemorySize to equal physLimit %#x; got %#x", physLimit, state.VirtualMemorySize)
	}
}
