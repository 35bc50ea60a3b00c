// Package accountant computes the free subset of low physical memory: the
// complement of the in-use regions (kernel image, boot-info blob,
// memory-manager module) intersected with the firmware-reported available
// memory map. The accountant never allocates frames itself; it only
// produces ranges for the caller to hand to a frame allocator.
package accountant

import "coreboot/kernel/mem"

// MaxRegionsInUse bounds the number of regions an Accountant can track.
// Three are required by the bootstrap sequence (kernel image, boot-info
// blob, memory-manager module); the fourth slot is headroom for a caller
// that wants to mark an extra reserved range.
const MaxRegionsInUse = 4

// Accountant tracks the regions of physical memory that are in use and
// computes the gaps between them.
type Accountant struct {
	regions [MaxRegionsInUse]mem.Range
	count   int
}

// New returns an empty Accountant.
func New() *Accountant {
	return &Accountant{}
}

// MarkInUse records r as in-use. It returns false and does nothing if the
// accountant's fixed capacity is exhausted. Page-alignment of r's bounds is
// the caller's concern; a misaligned tail is handled downstream by the
// frame allocator's scrap push.
func (a *Accountant) MarkInUse(r mem.Range) bool {
	if a.count >= len(a.regions) {
		return false
	}
	a.regions[a.count] = r
	a.count++
	return true
}

// RegionVisitor is called once per produced unused region. Returning false
// stops the visit early.
type RegionVisitor func(mem.Range) bool

// VisitUnused sorts the in-use regions ascending by start and invokes
// visitor with every disjoint gap between them, up to maxAddress, after
// intersecting each gap with area. Each gap starts at the furthest end
// reached by the regions sorted before it, so a region nested inside
// another never opens a gap. Gaps that are empty after intersection
// (including those produced by overlapping in-use regions) are skipped.
//
// Call this once per firmware-available memory-map entry, passing that
// entry's range as area, so every produced region is both a true gap and
// firmware-available.
func (a *Accountant) VisitUnused(maxAddress uintptr, area mem.Range, visitor RegionVisitor) {
	regions := a.regions[:a.count]
	sortRanges(regions)

	emit := func(start, end uintptr) bool {
		gap := mem.Range{Start: start, End: end}.Intersect(area)
		if gap.Empty() {
			return true
		}
		return visitor(gap)
	}

	if a.count == 0 {
		emit(0, maxAddress)
		return
	}

	if !emit(0, regions[0].Start) {
		return
	}
	coveredTo := regions[0].End
	for i := 1; i < len(regions); i++ {
		if !emit(coveredTo, regions[i].Start) {
			return
		}
		if regions[i].End > coveredTo {
			coveredTo = regions[i].End
		}
	}
	emit(coveredTo, maxAddress)
}

// sortRanges sorts rs ascending by Start using insertion sort. MaxRegionsInUse
// is small enough that this is both simpler and cheaper than sort.Slice, and
// it allocates nothing.
func sortRanges(rs []mem.Range) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Start < rs[j-1].Start; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
