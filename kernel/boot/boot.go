// Package boot implements the bootstrap orchestrator (spec.md §4.6): the
// fixed sequence that runs trap-plane init, ingests the firmware memory
// map into a tiered frame allocator, identity-maps physical memory,
// builds a fresh address space for the memory-manager process, loads its
// ELF image into that address space, and hands off control to it.
//
// Every failure along the way is fatal (spec.md §7): there is no retry or
// partial-capacity fallback. Bootstrap reports the failure via kfmt and
// halts the CPU through kernel.Panic.
package boot

import (
	"unsafe"

	"coreboot/kernel"
	"coreboot/kernel/cpu"
	"coreboot/kernel/elf"
	"coreboot/kernel/mem"
	"coreboot/kernel/mem/accountant"
	"coreboot/kernel/mem/falloc"
	"coreboot/kernel/mem/vmm"
	"coreboot/kernel/multiboot"
	"coreboot/kernel/trap"
)

// memoryManagerCmdLine is the boot-module command-line substring that
// identifies the module to load as the memory-manager process.
const memoryManagerCmdLine = "memory_manager"

// Error kinds classified for reporting only (spec.md §7); propagation is
// always "first failure short-circuits to halt", so these values are never
// inspected by callers beyond Bootstrap itself. no_memory_map and the three
// boot-info errors are classified by kernel/multiboot instead and surfaced
// verbatim.
var (
	errNoMemoryManager   = &kernel.Error{Module: "boot", Message: "no_memory_manager"}
	errInvalidModule     = &kernel.Error{Module: "boot", Message: "invalid_memory_manager_module"}
	errAddressSpaceSetup = &kernel.Error{Module: "boot", Message: "address_space_setup_failed"}
	errAssertion         = &kernel.Error{Module: "boot", Message: "assertion_error"}
)

// stackSize matches the original bootstrapper's DOUBLE_FAULT_STACK_SIZE: one
// 4 KiB frame is enough for a handler that does nothing but report and halt.
const stackSize = uintptr(mem.FourKilobytes)

// doubleFaultStack and interruptStack are statically reserved in the core's
// own data segment (identity-mapped low memory), so the TSS can point at
// them before any frame allocator exists to hand out dynamic stack space.
var (
	doubleFaultStack [stackSize]byte
	interruptStack   [stackSize]byte
)

func stackTop(stack *[stackSize]byte) uintptr {
	return uintptr(unsafe.Pointer(&stack[0])) + stackSize
}

// Bootstrap is the freestanding entry point's real body (see the repo's
// top-level entry.go). multibootInfoPtr is the physical address of the
// Multiboot2 boot-info blob; cpuInfo's CPUIDGigabytePagesBit records
// whether the running CPU supports 1 GiB pages. Bootstrap never returns:
// it either hands off to the memory manager or halts via kernel.Panic.
func Bootstrap(multibootInfoPtr, cpuInfo uint32) {
	if err := trap.Init(trap.Config{
		DoubleFaultStackTop: stackTop(&doubleFaultStack),
		InterruptStackTop:   stackTop(&interruptStack),
	}); err != nil {
		kernel.Panic(err)
	}

	reader, err := multiboot.NewReader(uintptr(multibootInfoPtr))
	if err != nil {
		kernel.Panic(err)
	}

	module, ok := reader.FindBootModule(memoryManagerCmdLine)
	if !ok {
		kernel.Panic(errNoMemoryManager)
	}

	gigabytePages := cpuInfo&mem.CPUIDGigabytePagesBit != 0
	alloc := falloc.NewTieredAllocator(gigabytePages)

	kernelImage := mem.Range{Start: kernelStart(), End: kernelEnd()}
	physicalMemorySize, err := ingestMemoryMap(reader, alloc, kernelImage, module.Range)
	if err != nil {
		kernel.Panic(err)
	}

	kernelRoot := vmm.TableAt(cpu.ActivePDT())
	physLimit := uintptr(physicalMemorySize)

	state := identityMapKernel(kernelRoot, gigabytePages, physLimit, alloc)

	// The accountant only fed memory below the 4 GiB floor to alloc, so
	// state.LastFrameAdded is still that floor; what the mapper has
	// identity-mapped above it, up to state.VirtualMemorySize, becomes
	// ordinary allocatable memory.
	alloc.RegisterMemoryRegion(state.LastFrameAdded, state.VirtualMemorySize)

	bootInfoRange := reader.AddressRange().AlignStartDown(uintptr(mem.FourKilobytes))
	alloc.RegisterMemoryRegion(bootInfoRange.Start, bootInfoRange.End)

	addrSpace, ok := vmm.BuildAddressSpace(kernelRoot, alloc.Pop4K, alloc.Pop2M)
	if !ok {
		kernel.Panic(errAddressSpaceSetup)
	}

	moduleBytes := moduleBytesAt(module.Range)
	entry, ok := elf.Load(moduleBytes, addrSpace, alloc.Pop4K)
	if !ok {
		kernel.Panic(errInvalidModule)
	}

	cpu.SwitchPDT(uintptr(unsafe.Pointer(addrSpace)))
	handOff(entry, alloc, uintptr(multibootInfoPtr))
}

// ingestMemoryMap marks the in-use regions (kernel image, boot-info blob,
// memory-manager module), then feeds every gap between them — intersected
// with each firmware-available memory-map entry — into alloc (spec.md
// §4.6 step 5). It returns the largest observed end-of-memory across every
// entry, available or not.
func ingestMemoryMap(reader multiboot.Reader, alloc *falloc.TieredAllocator, kernelImage, moduleRange mem.Range) (mem.Size, *kernel.Error) {
	acct := accountant.New()
	if !acct.MarkInUse(kernelImage) ||
		!acct.MarkInUse(reader.AddressRange()) ||
		!acct.MarkInUse(moduleRange) {
		return 0, errAssertion
	}

	var physicalMemorySize mem.Size

	visitErr := reader.VisitMemoryMap(func(e multiboot.MemoryMapEntry) bool {
		end := mem.Size(e.BaseAddr + e.Length)
		if end > physicalMemorySize {
			physicalMemorySize = end
		}

		if !e.Type.Available() {
			return true
		}

		area := mem.Range{Start: uintptr(e.BaseAddr), End: uintptr(e.BaseAddr + e.Length)}
		acct.VisitUnused(uintptr(mem.InitialVirtualMemorySize), area, func(gap mem.Range) bool {
			alloc.RegisterMemoryRegion(gap.Start, gap.End)
			return true
		})
		return true
	})
	if visitErr != nil {
		return 0, visitErr
	}

	return physicalMemorySize, nil
}

// identityMapKernel runs the recursive identity mapper from the active
// root table. The initial offsets give, level by level, the index of the
// last entry the link-time kernel image already populated for its own
// low-memory coverage of the first 4 GiB: root entry 0 and its level-3
// entry 3 when 1 GiB pages cover it, plus entry 511 of that entry's full
// level-2 table when 2 MiB pages are used instead (spec.md §4.6 step 6).
func identityMapKernel(root *vmm.PageTable, gigabytePages bool, physLimit uintptr, alloc *falloc.TieredAllocator) *vmm.MapState {
	// The walk resumes past the link-time-static low-memory region the
	// offsets below already skip over, so it must start counting from
	// that region's own size rather than from zero (spec.md §4.6 step 6).
	floor := uintptr(mem.InitialVirtualMemorySize)
	state := &vmm.MapState{VirtualMemorySize: floor, LastFrameAdded: floor}

	var offsets []int
	var levelsRemaining int
	var pageSize uintptr
	if gigabytePages {
		offsets = []int{0, 3}
		levelsRemaining = 1
		pageSize = uintptr(mem.Gigabyte)
	} else {
		offsets = []int{0, 3, 511}
		levelsRemaining = 2
		pageSize = uintptr(mem.TwoMegabytes)
	}

	vmm.IdentityMapWithOffset(root, offsets, state, levelsRemaining, physLimit, pageSize, alloc.Pop4K)
	return state
}

// moduleBytesAt overlays the memory-manager module's physical range as a
// byte slice, the same direct-physical-access pattern kernel/multiboot
// uses to read boot-info tags.
func moduleBytesAt(r mem.Range) []byte {
	return sliceAt(r.Start, r.Len())
}

// sliceAt and kernelStart/kernelEnd are asm-declared: sliceAt overlays raw
// physical memory as a byte slice (no bounds to check against here, unlike
// kernel/elf's SliceWithBoundsCheck, since r comes from a validated
// multiboot tag); kernelStart/kernelEnd are provided by the linker script's
// _kernel_start/_kernel_end symbols.
func sliceAt(addr uintptr, length uintptr) []byte

func kernelStart() uintptr
func kernelEnd() uintptr

// handOff jumps to entryPoint in the address space Bootstrap has already
// made active with cpu.SwitchPDT, with argument 0 set to allocatorState and
// argument 1 set to bootInfoPtr, per spec.md §6's hand-off ABI. It never
// returns.
func handOff(entryPoint uintptr, allocatorState *falloc.TieredAllocator, bootInfoPtr uintptr)
