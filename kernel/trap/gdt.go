// Package trap installs the CPU state the bootstrap core needs to survive
// interrupts and faults: a GDT carrying a task-state segment, an IDT, and a
// local APIC in place of the legacy 8259 PICs. The handlers registered
// against the IDT are intentionally minimal (spec.md treats the trap plane
// as a black box); only their plumbing is exercised here.
package trap

import "unsafe"

// Selector is an x86 segment selector: a GDT index (bits 3-15), a table
// indicator bit (always 0, GDT) and a 2-bit requested privilege level,
// loaded directly into a segment register or the task register.
type Selector uint16

// gdtIndex names the fixed slots of the installed GDT. tssLow/tssHigh
// together hold the 16-byte long-mode TSS descriptor, which does not fit a
// single 8-byte slot the way code/data descriptors do.
type gdtIndex int

const (
	nullIndex gdtIndex = iota
	kernelCodeIndex
	tssLowIndex
	tssHighIndex
	userDataIndex
	userCodeIndex
	gdtEntryCount
)

// Selectors are the segment selectors setupGDT returns: Code for the kernel
// code segment and TSS, which setupGDT itself loads into the task register.
type Selectors struct {
	Code Selector
	TSS  Selector
}

func (i gdtIndex) selector(requestedPrivilege uint16) Selector {
	return Selector(uint16(i)<<3 | requestedPrivilege)
}

// TSS is the AMD64 task-state segment. In long mode hardware only consults
// two parts of it: RSP, the stack pointers loaded on a privilege-level
// transition (index 0 is the ring-0 stack used by interrupts and syscalls
// arriving from a lower ring), and IST, up to seven alternate stacks an
// interrupt gate can demand by index regardless of the current privilege
// level.
type TSS struct {
	reserved0 uint32
	RSP       [3]uint64
	reserved1 uint64
	IST       [7]uint64
	reserved2 uint64
	reserved3 uint16
	IOMapBase uint16
}

// doubleFaultISTIndex is the IST slot (1-based; 0 means "no IST") reserved
// for the double-fault handler, so a corrupted normal stack (the usual
// cause of a double fault) can never also corrupt the handler's own stack.
const doubleFaultISTIndex = 1

var (
	gdt [gdtEntryCount]uint64
	tss TSS
)

// setupGDT builds the GDT and TSS and loads them into the CPU. It installs
// doubleFaultStackTop as the double-fault handler's IST stack and
// interruptStackTop as the ring-0 stack used whenever an interrupt or
// syscall arrives from the memory-manager process's ring-3 code.
func setupGDT(doubleFaultStackTop, interruptStackTop uintptr) Selectors {
	tss = TSS{}
	tss.IST[doubleFaultISTIndex-1] = uint64(doubleFaultStackTop)
	tss.RSP[0] = uint64(interruptStackTop)

	gdt = [gdtEntryCount]uint64{}
	gdt[kernelCodeIndex] = codeDescriptor(0)
	low, high := tssDescriptor(&tss)
	gdt[tssLowIndex] = low
	gdt[tssHighIndex] = high
	gdt[userDataIndex] = dataDescriptor(3)
	gdt[userCodeIndex] = codeDescriptor(3)

	loadGDT(&gdt[0], uint16(len(gdt)*8-1))

	sel := Selectors{
		Code: kernelCodeIndex.selector(0),
		TSS:  tssLowIndex.selector(0),
	}
	loadTSS(sel.TSS)
	return sel
}

// Segment descriptor access-byte bits common to every descriptor kind.
const (
	accessPresent     = 1 << 7
	accessDescriptor  = 1 << 4 // S bit: 1 = code/data, 0 = system
	accessExecutable  = 1 << 3
	accessReadWrite   = 1 << 1 // readable for code, writable for data
	accessSystemTSS64 = 0x9    // type field for an available 64-bit TSS
)

// longModeFlag is the descriptor flags-nibble L bit, marking a code segment
// as a native 64-bit segment; D/B must be clear whenever L is set.
const longModeFlag = 1 << 1

func codeDescriptor(dpl uint64) uint64 {
	access := uint64(accessPresent | accessDescriptor | accessExecutable | accessReadWrite)
	access |= dpl << 5
	return access<<40 | uint64(longModeFlag)<<52
}

func dataDescriptor(dpl uint64) uint64 {
	access := uint64(accessPresent | accessDescriptor | accessReadWrite)
	access |= dpl << 5
	return access << 40
}

// tssDescriptor builds the two 8-byte halves of a 64-bit TSS descriptor
// pointing at t. The limit is set to sizeof(TSS)-1 with granularity left at
// byte (not page) scale, since a TSS is always far smaller than 4 KiB.
func tssDescriptor(t *TSS) (low, high uint64) {
	base := uint64(uintptr(unsafe.Pointer(t)))
	limit := uint64(unsafe.Sizeof(TSS{})) - 1

	low = limit & 0xffff
	low |= (base & 0xff_ffff) << 16
	low |= uint64(accessPresent|accessSystemTSS64) << 40
	low |= ((limit >> 16) & 0xf) << 48
	low |= ((base >> 24) & 0xff) << 56

	high = (base >> 32) & 0xffff_ffff
	return low, high
}

// loadGDT loads the GDT descriptor table register (LGDT) with a table of
// limit+1 bytes starting at the address of first.
func loadGDT(first *uint64, limit uint16)

// loadTSS loads the task register (LTR) with the given selector.
func loadTSS(selector Selector)
