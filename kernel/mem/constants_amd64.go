// +build amd64

package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)
)

// Frame sizes available to the tiered allocator and the page-table mapper.
// Grounded on the original source's frame_allocation::amd64 module, which
// defines the same three tiers for the AMD64 architecture.
const (
	FourKilobytes = Size(0x1000)
	TwoMegabytes  = Size(0x20_0000)
	Gigabyte      = Size(0x4000_0000)

	// InitialVirtualMemorySize bounds the region the bootstrapper identity
	// maps and hands to the accountant: the first 4 GiB of address space.
	InitialVirtualMemorySize = Size(0x1_0000_0000)
)

// CPUIDGigabytePagesBit is the bit of CPUID leaf 0x80000001 EDX that
// indicates 1 GiB page support.
const CPUIDGigabytePagesBit = uint32(0x0400_0000)
