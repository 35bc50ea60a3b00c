// Package elf implements the subset of the ELF64 executable format needed
// to load the memory-manager module into a freshly built address space
// (spec.md §4.5): header validation, program-header iteration, and a
// recursive page-table walk that copies each LOAD segment in with
// zero-fill for its BSS tail.
package elf

import "unsafe"

const (
	magicNumber      = 0x464c457f // "\x7fELF" as a little-endian uint32
	class64          = 2
	dataLittleEndian = 1
	currentVersion   = 1
	typeExecutable   = 2
	machineAMD64     = 0x3e

	headerSize     = 64
	progHeaderSize = 56
)

// SegmentType identifies the kind of a program header entry.
type SegmentType uint32

// LoadSegment is the only segment type the loader acts on; every other
// type (dynamic, note, GNU stack, ...) is skipped.
const LoadSegment SegmentType = 1

// SegmentFlags are the ELF program-header p_flags bits relevant to paging.
type SegmentFlags uint32

// p_flags bits, in their standard ELF order. Only executable and writable
// are consulted; spec.md's segment-flags model is the tagged pair
// {writable?, executable?} and nothing else.
const (
	FlagExecutable SegmentFlags = 1 << iota
	FlagWritable
)

// Writable reports whether the segment must be mapped writable.
func (f SegmentFlags) Writable() bool { return f&FlagWritable != 0 }

// Executable reports whether the segment must be mapped executable.
func (f SegmentFlags) Executable() bool { return f&FlagExecutable != 0 }

// rawHeader mirrors the on-disk ELF64 file header byte for byte; it must
// never be copied out of the module's backing bytes, only overlaid.
type rawHeader struct {
	identMagic      uint32
	identClass      uint8
	identData       uint8
	identVersion    uint8
	identOSABI      uint8
	identABIVersion uint8
	identPad        [7]uint8
	fileType        uint16
	machine         uint16
	version         uint32
	entry           uint64
	phOffset        uint64
	shOffset        uint64
	flags           uint32
	ehSize          uint16
	phEntSize       uint16
	phNum           uint16
	shEntSize       uint16
	shNum           uint16
	shStrNdx        uint16
}

// rawProgramHeader mirrors the on-disk Elf64_Phdr layout.
type rawProgramHeader struct {
	segType  uint32
	flags    uint32
	offset   uint64
	vaddr    uint64
	paddr    uint64
	fileSize uint64
	memSize  uint64
	align    uint64
}

// Header is a validated, zero-copy view over an in-memory ELF64 executable
// image.
type Header struct {
	raw    *rawHeader
	module []byte
}

// Parse validates module as a well-formed, little-endian, 64-bit, AMD64,
// executable-type ELF file whose program-header table lies entirely within
// module, and returns a Header over it without copying module.
func Parse(module []byte) (Header, bool) {
	if len(module) < headerSize {
		return Header{}, false
	}
	raw := (*rawHeader)(unsafe.Pointer(&module[0]))

	if raw.identMagic != magicNumber ||
		raw.identClass != class64 ||
		raw.identData != dataLittleEndian ||
		raw.identVersion != currentVersion ||
		raw.fileType != typeExecutable ||
		raw.machine != machineAMD64 {
		return Header{}, false
	}

	phEnd := uint64(raw.phOffset) + uint64(raw.phNum)*progHeaderSize
	if phEnd > uint64(len(module)) {
		return Header{}, false
	}

	return Header{raw: raw, module: module}, true
}

// Entry returns the executable's entry point virtual address.
func (h Header) Entry() uintptr { return uintptr(h.raw.entry) }

// NumSegments returns the number of program header entries.
func (h Header) NumSegments() int { return int(h.raw.phNum) }

// Segment returns the i'th program header. i must be in [0, NumSegments()).
func (h Header) Segment(i int) Segment {
	base := uintptr(unsafe.Pointer(&h.module[0])) + uintptr(h.raw.phOffset) + uintptr(i)*progHeaderSize
	return Segment{raw: (*rawProgramHeader)(unsafe.Pointer(base))}
}

// Segment is a single ELF64 program header entry.
type Segment struct {
	raw *rawProgramHeader
}

// Type returns the segment's p_type.
func (s Segment) Type() SegmentType { return SegmentType(s.raw.segType) }

// Offset returns the segment's byte offset within the module.
func (s Segment) Offset() uintptr { return uintptr(s.raw.offset) }

// VirtualAddress returns the segment's destination virtual address.
func (s Segment) VirtualAddress() uintptr { return uintptr(s.raw.vaddr) }

// FileSize returns the number of bytes the segment occupies in the module.
func (s Segment) FileSize() uintptr { return uintptr(s.raw.fileSize) }

// MemorySize returns the number of bytes the segment occupies once loaded;
// MemorySize() - FileSize() trailing bytes must be zero-filled.
func (s Segment) MemorySize() uintptr { return uintptr(s.raw.memSize) }

// Flags returns the segment's p_flags.
func (s Segment) Flags() SegmentFlags { return SegmentFlags(s.raw.flags) }
