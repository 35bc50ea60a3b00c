package cpu

import "coreboot/kernel/mem"

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register. It is read by the
// page-fault handler to recover the faulting address.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf and ECX=subleaf 0, returning the
// values placed in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// ReadMSR returns the value of the given model-specific register, read via
// RDMSR. Used by kernel/trap to locate the local APIC's MMIO base address
// in the IA32_APIC_BASE register.
func ReadMSR(msr uint32) uint64

// WriteMSR writes value to the given model-specific register via WRMSR.
func WriteMSR(msr uint32, value uint64)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// SupportsGigabytePages reports whether the CPU advertises 1 GiB page
// support via CPUID leaf 0x80000001 (EDX bit 26).
func SupportsGigabytePages() bool {
	_, _, _, edx := cpuidFn(0x80000001)
	return edx&mem.CPUIDGigabytePagesBit != 0
}
