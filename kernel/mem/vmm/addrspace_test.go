package vmm

import "testing"

func TestBuildAddressSpaceSharesKernelEntryZero(t *testing.T) {
	kernelRoot, _ := newTestTable(t)
	kernelRoot.Entries[0] = 0
	kernelRoot.Entries[0].SetFrameAddr(0x200000)
	kernelRoot.Entries[0].SetFlags(FlagPresent | FlagWritable)

	root, ok := BuildAddressSpace(kernelRoot, frameSource(t, 16), frameSource(t, 1))
	if !ok {
		t.Fatal("expected BuildAddressSpace to succeed")
	}
	if root.Entries[0] != kernelRoot.Entries[0] {
		t.Fatalf("expected entry 0 to be shared verbatim with the kernel root; got %#x, want %#x",
			uint64(root.Entries[0]), uint64(kernelRoot.Entries[0]))
	}
}

func TestBuildAddressSpacePrefersHugePageUserStack(t *testing.T) {
	kernelRoot, _ := newTestTable(t)

	root, ok := BuildAddressSpace(kernelRoot, frameSource(t, 16), frameSource(t, 1))
	if !ok {
		t.Fatal("expected BuildAddressSpace to succeed")
	}

	l3 := TableAt(root.Entries[topEntryIndex].FrameAddr())
	l2 := TableAt(l3.Entries[topEntryIndex].FrameAddr())

	stack := l2.Entries[topEntryIndex]
	if !stack.HasFlags(FlagPresent | FlagWritable | FlagUser | FlagHugePage) {
		t.Fatalf("expected a huge-page user stack leaf; got %#x", uint64(stack))
	}
}

func TestBuildAddressSpaceFallsBackToFourKStackWhenHugePagesExhausted(t *testing.T) {
	kernelRoot, _ := newTestTable(t)

	noHugeFrame := func() (uintptr, bool) { return 0, false }
	root, ok := BuildAddressSpace(kernelRoot, frameSource(t, 16), noHugeFrame)
	if !ok {
		t.Fatal("expected BuildAddressSpace to succeed via the 4K fallback")
	}

	l3 := TableAt(root.Entries[topEntryIndex].FrameAddr())
	l2 := TableAt(l3.Entries[topEntryIndex].FrameAddr())

	stackLink := l2.Entries[topEntryIndex]
	if !stackLink.HasFlags(FlagPresent|FlagWritable|FlagUser) || stackLink.HasFlags(FlagHugePage) {
		t.Fatalf("expected a non-huge child link for the fallback user stack; got %#x", uint64(stackLink))
	}

	l1 := TableAt(stackLink.FrameAddr())
	for _, idx := range userStackFallbackIndices {
		e := l1.Entries[idx]
		if !e.HasFlags(FlagPresent | FlagWritable | FlagUser | FlagNoExecute) {
			t.Fatalf("fallback stack entry %#x: expected present/writable/user/NX leaf; got %#x", idx, uint64(e))
		}
	}
}

func TestBuildAddressSpaceInterruptStackIsNotUserAccessible(t *testing.T) {
	kernelRoot, _ := newTestTable(t)

	root, ok := BuildAddressSpace(kernelRoot, frameSource(t, 16), frameSource(t, 1))
	if !ok {
		t.Fatal("expected BuildAddressSpace to succeed")
	}

	l3 := TableAt(root.Entries[topEntryIndex].FrameAddr())
	l2 := TableAt(l3.Entries[topEntryIndex].FrameAddr())

	irqLink := l2.Entries[interruptStackIndex]
	if !irqLink.HasFlags(FlagPresent | FlagWritable | FlagUser) {
		t.Fatalf("expected the interrupt stack's level-1 link to be a normal child table link; got %#x", uint64(irqLink))
	}

	l1 := TableAt(irqLink.FrameAddr())
	leaf := l1.Entries[topEntryIndex]
	if !leaf.HasFlags(FlagPresent | FlagWritable | FlagNoExecute) {
		t.Fatalf("expected the interrupt stack leaf to be present/writable/NX; got %#x", uint64(leaf))
	}
	if leaf.HasFlags(FlagUser) {
		t.Fatal("expected the interrupt stack leaf to NOT be user-accessible")
	}
}

func TestBuildAddressSpaceFailsWhenFourKAllocatorExhausted(t *testing.T) {
	kernelRoot, _ := newTestTable(t)

	// Only enough frames for the root and level-3 table, not level-2.
	if _, ok := BuildAddressSpace(kernelRoot, frameSource(t, 2), frameSource(t, 1)); ok {
		t.Fatal("expected BuildAddressSpace to fail when the 4K allocator is exhausted")
	}
}
