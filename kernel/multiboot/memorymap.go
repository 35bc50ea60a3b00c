package multiboot

import (
	"reflect"
	"unsafe"

	"coreboot/kernel"
)

// MemoryRegionType classifies a MemoryMapEntry.
type MemoryRegionType uint32

// Region types recognised by the core. Anything else is treated as
// reserved.
const (
	MemAvailable       MemoryRegionType = 1
	MemReserved        MemoryRegionType = 2
	MemAcpiReclaimable MemoryRegionType = 3
	MemNvs             MemoryRegionType = 4
)

// Available reports whether this entry's memory can be handed to the
// accountant: general-purpose available memory or ACPI-reclaimable memory.
func (t MemoryRegionType) Available() bool {
	return t == MemAvailable || t == MemAcpiReclaimable
}

// MemoryMapEntry describes one firmware-reported memory region.
type MemoryMapEntry struct {
	BaseAddr uint64
	Length   uint64
	Type     MemoryRegionType
}

type memoryMapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

type rawMemoryMapEntry struct {
	baseAddr uint64
	length   uint64
	regType  uint32
	reserved uint32
}

var (
	errNoMemoryMap = &kernel.Error{Module: "multiboot", Message: "no_memory_map"}
)

// MemoryMapVisitor is invoked once per memory-map entry by VisitMemoryMap.
// It returns true to continue the scan or false to stop early.
type MemoryMapVisitor func(MemoryMapEntry) bool

// VisitMemoryMap locates the type-6 memory-map tag and invokes visitor once
// for every entry it contains, without allocating: the bootstrap core runs
// this before any frame allocator exists to feed it, so no heap is
// available yet. It returns errNoMemoryMap if the tag is absent or
// malformed: entry_size must equal the fixed 24-byte record size and
// entry_version must be 0, exactly as the Multiboot2 spec requires.
func (r Reader) VisitMemoryMap(visitor MemoryMapVisitor) *kernel.Error {
	it := r.Tags()
	for {
		tag, ok := it.Next()
		if !ok {
			return errNoMemoryMap
		}
		if tag.Type != TagMemoryMap {
			continue
		}

		const rawEntrySize = 24
		if len(tag.Payload) < 8 {
			return errNoMemoryMap
		}

		hdr := (*memoryMapHeader)(unsafe.Pointer(&tag.Payload[0]))
		if hdr.entrySize != rawEntrySize || hdr.entryVersion != 0 {
			return errNoMemoryMap
		}

		body := tag.Payload[8:]
		if len(body)%rawEntrySize != 0 {
			return errNoMemoryMap
		}

		numEntries := len(body) / rawEntrySize
		raw := *(*[]rawMemoryMapEntry)(unsafe.Pointer(&reflect.SliceHeader{
			Data: uintptr(unsafe.Pointer(&body[0])),
			Len:  numEntries,
			Cap:  numEntries,
		}))

		for _, e := range raw {
			typ := MemoryRegionType(e.regType)
			if typ == 0 || typ > MemNvs {
				typ = MemReserved
			}

			if !visitor(MemoryMapEntry{BaseAddr: e.baseAddr, Length: e.length, Type: typ}) {
				return nil
			}
		}

		return nil
	}
}
