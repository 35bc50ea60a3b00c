// Package falloc implements the tiered physical-frame allocator: one
// intrusive LIFO free list per frame size (4 KiB, 2 MiB, and, when the CPU
// supports it, 1 GiB), with fall-down (splitting a larger frame to satisfy
// a smaller request) and scrap (pushing a misaligned remainder down to a
// smaller tier) between them.
//
// Every free frame is the storage for its own list-link cell: the first
// machine word of the frame holds the address of the next free frame, or 0
// for "none". This is the only place in the repository that reads or
// writes memory through a raw, unsafe pointer cast for this reason — Go,
// like Rust without `unsafe`, has no other way to say "the storage is the
// free-list node".
package falloc

import "unsafe"

// Tier is a single frame-size free list.
type Tier struct {
	frameSize uintptr
	head      uintptr
}

// NewTier returns an empty Tier for the given frame size. frameSize must be
// a power of two.
func NewTier(frameSize uintptr) Tier {
	return Tier{frameSize: frameSize}
}

// FrameSize returns the size, in bytes, of the frames this tier manages.
func (t *Tier) FrameSize() uintptr {
	return t.frameSize
}

// Push prepends frameAddr to the free list. frameAddr must be aligned to
// FrameSize() and must name an unused, writable region of that size;
// violating this precondition corrupts the free list.
func (t *Tier) Push(frameAddr uintptr) {
	storeNext(frameAddr, t.head)
	t.head = frameAddr
}

// PushRange pushes every frameSize-aligned frame address in [a, b) onto the
// list. a and b must already be frameSize-aligned; callers with a
// misaligned region must strip or scrap the remainder first (see
// PushAlignedWithScrap).
func (t *Tier) PushRange(a, b uintptr) {
	for f := a; f < b; f += t.frameSize {
		t.Push(f)
	}
}

// PushAligned rounds [a, b) in to the enclosing frameSize-aligned
// sub-range and pushes it. Any unaligned remainder at either end is
// dropped.
func (t *Tier) PushAligned(a, b uintptr) {
	first := alignUp(a, t.frameSize)
	end := alignDown(b, t.frameSize)
	if end > first {
		t.PushRange(first, end)
	}
}

// PushAlignedWithScrap splits [a, b) into the frameSize-aligned middle,
// which is pushed onto t, and the unaligned head and tail, which are
// forwarded to smaller.PushAligned. If the whole region is smaller than one
// frame, it is forwarded to smaller in its entirety. smaller may be nil, in
// which case the unaligned remainder is simply dropped.
func (t *Tier) PushAlignedWithScrap(smaller *Tier, a, b uintptr) {
	p := alignUp(a, t.frameSize)
	q := alignDown(b, t.frameSize)

	if q > p {
		if smaller != nil {
			smaller.PushAligned(a, p)
		}
		t.PushRange(p, q)
		if smaller != nil {
			smaller.PushAligned(q, b)
		}
		return
	}

	if smaller != nil {
		smaller.PushAligned(a, b)
	}
}

// Pop removes and returns the head of the free list. It returns
// (0, false) when the list is empty.
func (t *Tier) Pop() (uintptr, bool) {
	if t.head == 0 {
		return 0, false
	}

	addr := t.head
	t.head = loadNext(addr)
	return addr, true
}

// Empty reports whether the tier currently holds no frames.
func (t *Tier) Empty() bool {
	return t.head == 0
}

func alignUp(addr, align uintptr) uintptr {
	mask := align - 1
	return (addr + mask) &^ mask
}

func alignDown(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}

func storeNext(frameAddr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(frameAddr)) = next
}

func loadNext(frameAddr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(frameAddr))
}
