package falloc

import "testing"

// newScaledTieredAllocator builds a TieredAllocator whose tier ratios (8x
// between each tier) mirror the AMD64 4 KiB/2 MiB/1 GiB geometry without
// requiring a gigabyte of real backing memory in the test process.
func newScaledTieredAllocator() (*TieredAllocator, uintptr, uintptr, uintptr) {
	const (
		smallF = 8
		midF   = 64
		bigF   = 512
	)
	oneG := NewTier(bigF)
	a := &TieredAllocator{
		FourK: NewTier(smallF),
		TwoM:  NewTier(midF),
		OneG:  &oneG,
	}
	return a, smallF, midF, bigF
}

func TestTieredAllocatorRegisterMemoryRegionGigabyteAligned(t *testing.T) {
	const bigF = 512
	base, _ := alignedArena(t, bigF*2, bigF)

	a, _, _, _ := newScaledTieredAllocator()
	a.RegisterMemoryRegion(base, base+2*bigF)

	count := 0
	for {
		if _, ok := a.OneG.Pop(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 whole gigabyte-tier frames; got %d", count)
	}
	if _, ok := a.TwoM.Pop(); ok {
		t.Fatal("expected no 2M-tier frames from an exactly gigabyte-aligned region")
	}
	if _, ok := a.FourK.Pop(); ok {
		t.Fatal("expected no 4K-tier frames from an exactly gigabyte-aligned region")
	}
}

func TestTieredAllocatorPop4KFallsDownThroughAllTiers(t *testing.T) {
	const bigF = 512
	base, _ := alignedArena(t, bigF, bigF)

	a, smallF, _, _ := newScaledTieredAllocator()
	a.OneG.Push(base)

	seen := make(map[uintptr]bool)
	for {
		f, ok := a.Pop4K()
		if !ok {
			break
		}
		if seen[f] {
			t.Fatalf("frame %#x popped twice", f)
		}
		seen[f] = true
	}

	wantCount := int(bigF / smallF)
	if len(seen) != wantCount {
		t.Fatalf("expected %d distinct smallest-tier frames out of one gigabyte-tier frame; got %d", wantCount, len(seen))
	}
	for i := 0; i < wantCount; i++ {
		want := base + uintptr(i)*smallF
		if !seen[want] {
			t.Errorf("expected frame %#x to have been produced by fall-down", want)
		}
	}

	if _, ok := a.Pop4K(); ok {
		t.Fatal("expected all tiers to be exhausted after draining the single gigabyte-tier frame")
	}
	if !a.FourK.Empty() || !a.TwoM.Empty() || !a.OneG.Empty() {
		t.Fatal("expected every tier to be empty once the backing frame is fully consumed")
	}
}

func TestTieredAllocatorPop2MFallsDownFromGigabyteTier(t *testing.T) {
	const bigF = 512
	base, _ := alignedArena(t, bigF, bigF)

	a, _, midF, _ := newScaledTieredAllocator()
	a.OneG.Push(base)

	frame, ok := a.Pop2M()
	if !ok || frame != base {
		t.Fatalf("expected the first 2M-tier pop to return the gigabyte frame's base %#x; got %#x (ok=%v)", base, frame, ok)
	}

	count := 0
	for {
		if _, ok := a.TwoM.Pop(); !ok {
			break
		}
		count++
	}
	wantRemainder := int(bigF/midF) - 1
	if count != wantRemainder {
		t.Fatalf("expected %d remainder mid-tier frames pushed back; got %d", wantRemainder, count)
	}
}

func TestTieredAllocatorPop1GDoesNotFallDown(t *testing.T) {
	a, _, _, _ := newScaledTieredAllocator()
	if _, ok := a.Pop1G(); ok {
		t.Fatal("expected Pop1G to fail on an empty gigabyte tier")
	}
}

func TestNewTieredAllocatorOmitsGigabyteTierWhenUnsupported(t *testing.T) {
	a := NewTieredAllocator(false)
	if a.OneG != nil {
		t.Fatal("expected no gigabyte tier when gigabyte pages are unsupported")
	}
	if _, ok := a.Pop2M(); ok {
		t.Fatal("expected Pop2M to fail with empty tiers and no gigabyte tier to fall back to")
	}
}

func TestNewTieredAllocatorIncludesGigabyteTierWhenSupported(t *testing.T) {
	a := NewTieredAllocator(true)
	if a.OneG == nil {
		t.Fatal("expected a gigabyte tier when gigabyte pages are supported")
	}
}
