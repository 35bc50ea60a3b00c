// Package multiboot reads the Multiboot2 boot-information blob a
// Multiboot2-compliant loader hands to the kernel entry point. It treats the
// blob as an opaque tag stream: callers locate the tags they care about
// (memory map, boot module) by iterating (tag_type, payload) pairs; the raw
// byte layout beyond that contract is not exposed.
package multiboot

import (
	"reflect"
	"unsafe"

	"coreboot/kernel"
	"coreboot/kernel/mem"
)

// TagType identifies the kind of a boot-info tag.
type TagType uint32

// Tag types recognised by the core. All other tag types are skipped.
const (
	TagEnd        TagType = 0
	TagBootModule TagType = 3
	TagMemoryMap  TagType = 6
)

const (
	headerSize    = 8 // (total_size, reserved), both u32
	tagHeaderSize = 8 // (tag_type, size), both u32
)

var (
	errIllegalAddress    = &kernel.Error{Module: "multiboot", Message: "illegal_boot_info_address"}
	errIllegalSize       = &kernel.Error{Module: "multiboot", Message: "illegal_boot_info_size"}
	errMissingTerminator = &kernel.Error{Module: "multiboot", Message: "missing_boot_info_terminator"}
)

type header struct {
	totalSize uint32
	reserved  uint32
}

type tagHeader struct {
	tagType TagType
	size    uint32
}

// Reader provides read-only access to a validated Multiboot2 boot-info blob.
type Reader struct {
	base      uintptr
	totalSize uint32
}

// NewReader validates the boot-info blob at infoPtr and returns a Reader
// over it. infoPtr must be non-zero and 8-byte aligned (Multiboot2 guarantees
// this, but corrupt boot loaders are not trusted); the declared total size
// must be at least the header plus one tag header (16 bytes), and a type-0,
// size-8 terminator tag must occupy the last 8 of those totalSize bytes.
func NewReader(infoPtr uintptr) (Reader, *kernel.Error) {
	if infoPtr == 0 || infoPtr&0x7 != 0 {
		return Reader{}, errIllegalAddress
	}

	hdr := (*header)(unsafe.Pointer(infoPtr))
	if hdr.totalSize < headerSize+tagHeaderSize {
		return Reader{}, errIllegalSize
	}

	r := Reader{base: infoPtr, totalSize: hdr.totalSize}

	endOffset := uintptr(hdr.totalSize) - tagHeaderSize
	term := (*tagHeader)(unsafe.Pointer(infoPtr + endOffset))
	if term.tagType != TagEnd || term.size != tagHeaderSize {
		return Reader{}, errMissingTerminator
	}

	return r, nil
}

// TotalSize returns the total size, in bytes, of the boot-info blob
// (header plus all tags, including the terminator).
func (r Reader) TotalSize() uint32 {
	return r.totalSize
}

// AddressRange returns the physical address range occupied by the blob.
func (r Reader) AddressRange() mem.Range {
	return mem.Range{Start: r.base, End: r.base + uintptr(r.totalSize)}
}

// Tag is one (tag_type, payload) pair produced while iterating a Reader.
// Payload excludes the 8-byte tag header but includes any tag-specific
// sub-header (e.g. the memory-map tag's entry_size/entry_version fields).
type Tag struct {
	Type    TagType
	Payload []byte
}

// TagIterator walks the tag stream of a boot-info blob in order, stopping at
// (and excluding) the terminating type-0 tag.
type TagIterator struct {
	cur uintptr
	end uintptr
}

// Tags returns an iterator over this blob's tags.
func (r Reader) Tags() *TagIterator {
	return &TagIterator{
		cur: r.base + headerSize,
		end: r.base + uintptr(r.totalSize) - tagHeaderSize,
	}
}

// Next advances the iterator and returns the next tag. It returns
// (Tag{}, false) once the terminator tag is reached.
func (it *TagIterator) Next() (Tag, bool) {
	if it.cur >= it.end {
		return Tag{}, false
	}

	hdr := (*tagHeader)(unsafe.Pointer(it.cur))
	if hdr.tagType == TagEnd {
		return Tag{}, false
	}

	payloadLen := hdr.size - tagHeaderSize
	payload := byteSliceAt(it.cur+tagHeaderSize, payloadLen)

	// Tags are aligned on 8-byte boundaries; the size field does not
	// include this trailing padding.
	advance := (uintptr(hdr.size) + 7) &^ 7
	it.cur += advance

	return Tag{Type: hdr.tagType, Payload: payload}, true
}

func byteSliceAt(addr uintptr, length uint32) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(length),
		Cap:  int(length),
	}))
}
