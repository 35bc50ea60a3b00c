// Package mem holds architecture-independent memory types shared by the
// frame allocator, the region accountant and the virtual memory manager.
package mem

import (
	"reflect"
	"unsafe"
)

const (
	// MaxPageOrder defines the maximum page order that can be requested by
	// a page-based allocator.
	MaxPageOrder = PageOrder(9)
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Order returns the smallest PageOrder suitable for storing a block of this
// size. Depending on the size, Order() may return a page order greater than
// MaxPageOrder.
func (s Size) Order() PageOrder {
	var order = PageOrder(0)
	for ; ; order++ {
		if PageSize<<order >= s {
			break
		}
	}

	return order
}

// Pages returns the number of pages required for storing this size.
func (s Size) Pages() uint32 {
	pageSizeMinus1 := PageSize - 1
	return uint32((s+pageSizeMinus1)&^pageSizeMinus1) >> PageShift
}

// PageOrder represents a power-of-two multiple of the base page size
// (PageSize) and is used as an argument to page-based memory allocators.
//
// PageOrder(0) refers to a page with size PageSize
// PageOrder(1) refers to a page with size PageSize * 2
// ...
// PageOrder(MaxPageOrder) refers to a page with size PageSize * 2^(MaxPageOrder)
type PageOrder uint8

// Range is a half-open interval [Start, End) over the 64-bit physical or
// virtual address space. A Range is empty iff End <= Start.
type Range struct {
	Start uintptr
	End   uintptr
}

// Len returns the number of addresses covered by r. Empty ranges return 0.
func (r Range) Len() uintptr {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether r covers no addresses.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Overlaps reports whether r and other share at least one address.
func (r Range) Overlaps(other Range) bool {
	return !(r.End <= other.Start || other.End <= r.Start)
}

// Intersect returns the overlapping portion of r and other. The result is
// empty (per Empty) when the two ranges do not overlap.
func (r Range) Intersect(other Range) Range {
	start := r.Start
	if other.Start > start {
		start = other.Start
	}
	end := r.End
	if other.End < end {
		end = other.End
	}
	return Range{Start: start, End: end}
}

// AlignStartUp rounds r.Start up to the next multiple of align, shrinking
// the range. align must be a power of two.
func (r Range) AlignStartUp(align uintptr) Range {
	mask := align - 1
	start := (r.Start + mask) &^ mask
	if start > r.End {
		start = r.End
	}
	return Range{Start: start, End: r.End}
}

// AlignStartDown rounds r.Start down to the previous multiple of align,
// growing the range. align must be a power of two. Used to reclaim the
// partial leading frame of a range like the boot-info blob, which can
// safely absorb the rest of its starting frame since nothing else is
// mapped below it within the same frame.
func (r Range) AlignStartDown(align uintptr) Range {
	mask := align - 1
	return Range{Start: r.Start &^ mask, End: r.End}
}

// AlignEndDown rounds r.End down to the previous multiple of align,
// shrinking the range. align must be a power of two.
func (r Range) AlignEndDown(align uintptr) Range {
	mask := align - 1
	end := r.End &^ mask
	if end < r.Start {
		end = r.Start
	}
	return Range{Start: r.Start, End: end}
}

// Fill writes count bytes of value starting at addr, used by kernel/elf's
// loader to zero-pad the tail of a segment that extends past its file
// contents (.bss). It overlays a slice directly on addr rather than
// requiring a caller-owned []byte, since at this layer addr is frequently
// not backed by any Go-visible allocation. Doubling the filled span on each
// pass keeps this to log2(count) copies instead of a byte-at-a-time loop.
func Fill(addr uintptr, value byte, count Size) {
	if count == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(count),
		Cap:  int(count),
		Data: addr,
	}))

	target[0] = value
	for filled := Size(1); filled < count; filled *= 2 {
		copy(target[filled:], target[:filled])
	}
}
