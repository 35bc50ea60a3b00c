package vmm

// FrameAllocFunc requests a single 4 KiB frame from the physical frame
// allocator. It returns (0, false) when the allocator is exhausted.
type FrameAllocFunc func() (uintptr, bool)

// MapState tracks the progress of a (possibly resumed) identity-mapping
// pass: how much of the address space has been mapped so far, and how much
// of it has already been handed to the frame allocator, so a caller can
// refill the frame allocator and resume from where mapping stopped.
type MapState struct {
	// VirtualMemorySize is the address immediately past the last mapped
	// byte. Identity mapping means this also names the corresponding
	// physical address.
	VirtualMemorySize uintptr
	// LastFrameAdded is the first physical address not yet contributed to
	// the frame allocator. The mapper itself never changes it.
	LastFrameAdded uintptr
}

// Finished reports whether state has reached physLimit and no further
// mapping is required.
func (s *MapState) Finished(physLimit uintptr) bool {
	return s.VirtualMemorySize >= physLimit
}

// IdentityMap populates every entry of table so that every physical address
// in [state.VirtualMemorySize, physLimit) becomes reachable at the same
// virtual address. levelsRemaining counts page-table levels below table: 0
// means table's own entries are huge-page leaves of size pageSize; a
// positive count means table's entries point to child tables built
// recursively by allocFrame.
//
// Mapping stops, marking every remaining entry unused, as soon as
// state.VirtualMemorySize reaches physLimit or allocFrame is exhausted. The
// latter is not an error: the caller can refill the frame allocator from
// the firmware memory map up to state.VirtualMemorySize and call IdentityMap
// (or IdentityMapWithOffset) again to continue.
func IdentityMap(table *PageTable, state *MapState, levelsRemaining int, physLimit, pageSize uintptr, allocFrame FrameAllocFunc) {
	if levelsRemaining == 0 {
		mapHugeLeaves(table, state, physLimit, pageSize)
		return
	}

	for i := range table.Entries {
		identityMapEntry(&table.Entries[i], state, levelsRemaining, physLimit, pageSize, allocFrame)
	}
}

// IdentityMapWithOffset resumes an identity-mapping pass into a table whose
// higher levels are partially populated by entries set up at link time
// (the kernel's own low-memory coverage). offsets names, for table and each
// descendant in turn, the index of the last entry that is already present;
// the corresponding child is finished first, then mapping continues
// forward from the next entry. An empty offsets slice behaves exactly like
// IdentityMap.
func IdentityMapWithOffset(table *PageTable, offsets []int, state *MapState, levelsRemaining int, physLimit, pageSize uintptr, allocFrame FrameAllocFunc) {
	if len(offsets) == 0 {
		IdentityMap(table, state, levelsRemaining, physLimit, pageSize, allocFrame)
		return
	}
	start := offsets[0]

	if levelsRemaining == 0 {
		resumeFrom := start
		if len(offsets) > 0 && start < entriesPerTable && table.Entries[start].HasFlags(FlagPresent) {
			resumeFrom = start + 1
		}
		mapHugeLeavesFrom(table, resumeFrom, state, physLimit, pageSize)
		return
	}

	next := offsets[1:]
	if start < entriesPerTable && table.Entries[start].HasFlags(FlagPresent) {
		child := TableAt(table.Entries[start].FrameAddr())
		IdentityMapWithOffset(child, next, state, levelsRemaining-1, physLimit, pageSize, allocFrame)
		start++
	}

	for i := start; i < entriesPerTable; i++ {
		identityMapEntry(&table.Entries[i], state, levelsRemaining, physLimit, pageSize, allocFrame)
	}
}

func mapHugeLeaves(table *PageTable, state *MapState, physLimit, pageSize uintptr) {
	mapHugeLeavesFrom(table, 0, state, physLimit, pageSize)
}

func mapHugeLeavesFrom(table *PageTable, start int, state *MapState, physLimit, pageSize uintptr) {
	for i := start; i < entriesPerTable; i++ {
		entry := &table.Entries[i]
		if state.Finished(physLimit) {
			entry.MarkUnused()
			continue
		}

		addr := state.VirtualMemorySize
		*entry = 0
		entry.SetFrameAddr(addr)
		entry.SetFlags(FlagPresent | FlagWritable | FlagHugePage)
		state.VirtualMemorySize += pageSize
	}
}

func identityMapEntry(entry *PageTableEntry, state *MapState, levelsRemaining int, physLimit, pageSize uintptr, allocFrame FrameAllocFunc) {
	if state.Finished(physLimit) {
		entry.MarkUnused()
		return
	}

	frame, ok := allocFrame()
	if !ok {
		entry.MarkUnused()
		return
	}

	child := TableAt(frame)
	child.Zero()

	*entry = 0
	entry.SetFrameAddr(frame)
	entry.SetFlags(FlagPresent | FlagWritable | FlagUser)

	IdentityMap(child, state, levelsRemaining-1, physLimit, pageSize, allocFrame)
}
