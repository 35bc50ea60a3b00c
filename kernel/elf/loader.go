package elf

import (
	"reflect"
	"unsafe"

	"coreboot/kernel"
	"coreboot/kernel/mem"
	"coreboot/kernel/mem/vmm"
)

// ErrInvalidModule describes every way a boot module can fail ELF
// validation or segment loading: bad header, a program header whose file
// range runs past the module's bounds, or destination-page-table
// exhaustion. Load itself reports these failures only through its boolean
// result and never returns this value; kernel/boot reports a failed Load
// with its own "invalid_memory_manager_module" error.
var ErrInvalidModule = &kernel.Error{Module: "elf", Message: "boot module is not a valid memory-manager executable"}

// topLevel is the number of page-table levels below the root on AMD64: the
// root (level 4) has 3 levels of child tables beneath it before the leaf
// huge pages or 4 KiB pages are reached.
const topLevel = 3

// Load parses module, validates it, and copies every LOAD segment into
// space at its destination virtual address, zero-filling the tail between
// FileSize and MemorySize. space must not be the currently active address
// space: Load walks and writes through table entries directly by physical
// address, the same way vmm.IdentityMap does, rather than through the CPU's
// own paging.
//
// Load returns the validated entry point and true on success. It returns
// (0, false) if module fails validation or any segment cannot be copied
// (a segment's file range exceeds module's bounds, or alloc4K is
// exhausted).
func Load(module []byte, space *vmm.PageTable, alloc4K vmm.FrameAllocFunc) (uintptr, bool) {
	header, ok := Parse(module)
	if !ok {
		return 0, false
	}

	for i := 0; i < header.NumSegments(); i++ {
		seg := header.Segment(i)
		if seg.Type() != LoadSegment {
			continue
		}
		if !loadSegment(module, seg, space, alloc4K) {
			return 0, false
		}
	}

	return header.Entry(), true
}

func loadSegment(module []byte, seg Segment, space *vmm.PageTable, alloc4K vmm.FrameAllocFunc) bool {
	fileEnd := uint64(seg.Offset()) + uint64(seg.FileSize())
	if fileEnd > uint64(len(module)) {
		return false
	}
	data := module[seg.Offset():fileEnd]

	flags := segmentPageFlags(seg.Flags())
	return copyIntoAddressSpace(topLevel, space, seg.VirtualAddress(), data, seg.MemorySize(), flags, alloc4K)
}

func segmentPageFlags(f SegmentFlags) vmm.PageTableEntryFlag {
	flags := vmm.FlagPresent | vmm.FlagUser
	if f.Writable() {
		flags |= vmm.FlagWritable
	}
	if !f.Executable() {
		flags |= vmm.FlagNoExecute
	}
	return flags
}

// copyIntoAddressSpace walks every table entry spanned by [address,
// address+size), allocating and zeroing any child table or leaf frame not
// already present, until data has been copied in full with the tail
// zero-filled. A segment can span many entries at a given level; this
// mirrors the original loader's per-entry loop rather than handling a
// single page, so segments larger than one page load correctly. Reaching
// level 0, or a pre-existing huge-page leaf at any level, ends the
// recursion for that entry and performs the actual copy.
func copyIntoAddressSpace(levelsRemaining int, table *vmm.PageTable, address uintptr, data []byte, size uintptr, flags vmm.PageTableEntryFlag, alloc4K vmm.FrameAllocFunc) bool {
	pageSize := pageSizeForLevel(levelsRemaining)
	firstIndex := tableIndex(levelsRemaining, address)
	lastIndex := tableIndex(levelsRemaining, address+size-1)

	dataOffset := uintptr(0)
	for idx := firstIndex; idx <= lastIndex; idx++ {
		entry := &table.Entries[idx]

		frame, ok := entryFrame(entry, flags, alloc4K)
		if !ok {
			return false
		}

		pageOffset := offsetInPage(pageSize, address)
		bytesForPage := minUintptr(pageSize-pageOffset, size-dataOffset)
		segData := boundedSlice(data, dataOffset, bytesForPage)

		if levelsRemaining == 0 || entry.HasFlags(vmm.FlagHugePage) {
			var dst []byte
			if levelsRemaining == 0 {
				dst = SliceWithBoundsCheck(frame, pageOffset, bytesForPage)
			} else {
				// A huge-page leaf spans pageSize bytes, not one 4 KiB
				// frame; bytesForPage never runs past its end.
				dst = *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
					Data: frame + pageOffset,
					Len:  int(bytesForPage),
					Cap:  int(bytesForPage),
				}))
			}
			if dst == nil {
				return false
			}
			CopyAndZeroFill(dst, segData)
		} else {
			child := vmm.TableAt(frame)
			if !copyIntoAddressSpace(levelsRemaining-1, child, address, segData, bytesForPage, flags, alloc4K) {
				return false
			}
		}

		dataOffset += bytesForPage
		address += bytesForPage
	}
	return true
}

// entryFrame returns the frame address entry already points to, or
// allocates, zeroes, and links a fresh one with flags if entry is unused.
func entryFrame(entry *vmm.PageTableEntry, flags vmm.PageTableEntryFlag, alloc4K vmm.FrameAllocFunc) (uintptr, bool) {
	if entry.HasFlags(vmm.FlagPresent) {
		return entry.FrameAddr(), true
	}

	frame, ok := alloc4K()
	if !ok {
		return 0, false
	}
	vmm.TableAt(frame).Zero()

	*entry = 0
	entry.SetFrameAddr(frame)
	entry.SetFlags(flags)
	return frame, true
}

// boundedSlice returns data[min(offset,len(data)):min(offset+length,len(data))],
// never panicking even when offset or offset+length run past data's end —
// which happens whenever a segment's BSS tail (memsz beyond filesz) is
// being copied, since data only ever holds the file-backed bytes.
func boundedSlice(data []byte, offset, length uintptr) []byte {
	n := uintptr(len(data))
	start := minUintptr(offset, n)
	end := minUintptr(offset+length, n)
	return data[start:end]
}

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

func pageSizeForLevel(levelsRemaining int) uintptr {
	return uintptr(mem.FourKilobytes) << uint(9*levelsRemaining)
}

func offsetInPage(pageSize, address uintptr) uintptr {
	return address & (pageSize - 1)
}

func tableIndex(levelsRemaining int, address uintptr) int {
	shift := uint(12 + 9*levelsRemaining)
	return int((address >> shift) & 0x1ff)
}

// CopyAndZeroFill copies src into the front of dst, then zero-fills the
// remainder of dst. It is the loader's equivalent of the original
// implementation's copy-then-zero-pad BSS handling, built on mem.Fill.
func CopyAndZeroFill(dst []byte, src []byte) {
	n := copy(dst, src)
	if n < len(dst) {
		rest := dst[n:]
		mem.Fill(uintptr(unsafe.Pointer(&rest[0])), 0, mem.Size(len(rest)))
	}
}

// SliceWithBoundsCheck returns a byte slice of length size rooted at
// frameAddr+offset, or nil if [offset, offset+size) would run past the end
// of the 4 KiB frame at frameAddr. It never panics: callers in the
// freestanding loader path have no recover to fall back on.
func SliceWithBoundsCheck(frameAddr, offset, size uintptr) []byte {
	frameSize := uintptr(mem.FourKilobytes)
	if offset > frameSize || size > frameSize-offset {
		return nil
	}
	addr := frameAddr + offset
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(size),
		Cap:  int(size),
	}))
}
