package falloc

import "coreboot/kernel/mem"

// TieredAllocator combines the three AMD64 frame tiers (4 KiB, 2 MiB, and
// an optional 1 GiB tier present only when the CPU advertises 1 GiB-page
// support) behind the fall-down/scrap contract of spec.md §4.1. Tier sizes
// are in the fixed geometric ratio 512x required by the AMD64 page-table
// layout (mem.FourKilobytes -> mem.TwoMegabytes -> mem.Gigabyte).
type TieredAllocator struct {
	FourK Tier
	TwoM  Tier
	OneG  *Tier // nil when 1 GiB pages are unsupported
}

// NewTieredAllocator returns a TieredAllocator. gigabytePages selects
// whether the 1 GiB tier is present; it should be derived from the
// cpu_info bit the entry point receives (mem.CPUIDGigabytePagesBit).
func NewTieredAllocator(gigabytePages bool) *TieredAllocator {
	a := &TieredAllocator{
		FourK: NewTier(uintptr(mem.FourKilobytes)),
		TwoM:  NewTier(uintptr(mem.TwoMegabytes)),
	}
	if gigabytePages {
		g := NewTier(uintptr(mem.Gigabyte))
		a.OneG = &g
	}
	return a
}

// RegisterMemoryRegion feeds an arbitrarily-aligned physical region
// [a, b) into the tiered allocator, splitting it across tiers so that no
// aligned frame is lost. Grounded on the original Amd64FrameAllocator's
// register_memory_region: a 1 GiB-aligned middle goes straight to the
// gigabyte tier (when present); everything else, including both the head
// and tail straddling the gigabyte boundary, is handed to the 2 MiB tier
// with the 4 KiB tier as its scrap allocator.
func (a *TieredAllocator) RegisterMemoryRegion(start, end uintptr) {
	if a.OneG != nil {
		firstGB := alignUp(start, a.OneG.FrameSize())
		endLastGB := alignDown(end, a.OneG.FrameSize())

		if endLastGB > firstGB {
			a.TwoM.PushAlignedWithScrap(&a.FourK, start, firstGB)
			a.OneG.PushRange(firstGB, endLastGB)
			a.TwoM.PushAlignedWithScrap(&a.FourK, endLastGB, end)
			return
		}
	}

	a.TwoM.PushAlignedWithScrap(&a.FourK, start, end)
}

// Pop4K returns a 4 KiB frame, splitting a 2 MiB (or, transitively, a
// 1 GiB) frame if the 4 KiB tier is empty. The remainder of any split
// frame is pushed back onto the 4 KiB tier.
func (a *TieredAllocator) Pop4K() (uintptr, bool) {
	if frame, ok := a.FourK.Pop(); ok {
		return frame, true
	}

	frame, ok := a.Pop2M()
	if !ok {
		return 0, false
	}

	a.FourK.PushRange(frame+a.FourK.FrameSize(), frame+a.TwoM.FrameSize())
	return frame, true
}

// Pop2M returns a 2 MiB frame, splitting a 1 GiB frame if the 2 MiB tier is
// empty and a gigabyte tier exists. The remainder is pushed back onto the
// 2 MiB tier.
func (a *TieredAllocator) Pop2M() (uintptr, bool) {
	if frame, ok := a.TwoM.Pop(); ok {
		return frame, true
	}

	if a.OneG == nil {
		return 0, false
	}

	frame, ok := a.OneG.Pop()
	if !ok {
		return 0, false
	}

	a.TwoM.PushRange(frame+a.TwoM.FrameSize(), frame+a.OneG.FrameSize())
	return frame, true
}

// Pop1G returns a 1 GiB frame directly from the gigabyte tier. It returns
// (0, false) when the tier is absent or empty; unlike Pop4K/Pop2M there is
// no larger tier to fall down from.
func (a *TieredAllocator) Pop1G() (uintptr, bool) {
	if a.OneG == nil {
		return 0, false
	}
	return a.OneG.Pop()
}
