package trap

import (
	"coreboot/kernel"
	"coreboot/kernel/cpu"
	"coreboot/kernel/sync"
)

// InterruptIndex names the hardware interrupt vectors the local APIC is
// programmed to raise, offset past the 32 vectors the architecture reserves
// for CPU exceptions.
type InterruptIndex = Number

const picOffset = 32

const (
	TimerInterrupt    = InterruptIndex(picOffset)
	ErrorInterrupt    = InterruptIndex(0xfe)
	SpuriousInterrupt = InterruptIndex(0xff)
)

// ErrAPICInit is returned by Init when the running CPU has no local APIC, or
// the APIC_BASE MSR reports it disabled.
var ErrAPICInit = &kernel.Error{Module: "trap", Message: "local APIC is not present or disabled"}

const (
	msrAPICBase    = 0x1b
	apicBaseEnable = 1 << 11

	apicBaseAddrMask = 0xffff_f000

	regEOI            = 0x0b0
	regSpuriousVector = 0x0f0
	regLVTError       = 0x370
	regLVTTimer       = 0x320
	regTimerDivide    = 0x3e0
	regTimerInitCount = 0x380

	apicSWEnable = 1 << 8
)

// apicBase is the MMIO base address of the CPU's local APIC. It is guarded by a
// spinlock since EndOfInterrupt can be called from within an interrupt
// handler while Init is (conceptually) still settling the handle in place.
var (
	apicGuard sync.Spinlock
	apicBase  uintptr
)

// apicInit locates the local APIC via the IA32_APIC_BASE MSR, masks the
// spurious and error vectors in, and leaves the timer disabled (the
// bootstrap core has no scheduler to drive off a timer tick yet). It must
// run after installIDT so EndOfInterrupt and the error/spurious handlers
// have somewhere to dispatch to.
func apicInit() *kernel.Error {
	base := cpu.ReadMSR(msrAPICBase)
	if base&apicBaseEnable == 0 {
		return ErrAPICInit
	}

	apicGuard.Acquire()
	apicBase = uintptr(base & apicBaseAddrMask)
	apicGuard.Release()

	writeReg(regSpuriousVector, uint32(SpuriousInterrupt)|apicSWEnable)
	writeReg(regLVTError, uint32(ErrorInterrupt))
	writeReg(regLVTTimer, 1<<16) // masked
	writeReg(regTimerDivide, 0x3)
	writeReg(regTimerInitCount, 0)

	HandleInterrupt(ErrorInterrupt, 0, func(*Registers) { EndOfInterrupt() })
	HandleInterrupt(SpuriousInterrupt, 0, func(*Registers) {})

	return nil
}

// EndOfInterrupt signals the local APIC that the currently-serviced
// interrupt has been handled, letting it deliver further interrupts of the
// same or lower priority. Every handler installed for an APIC-routed vector
// must call this before returning.
func EndOfInterrupt() {
	writeReg(regEOI, 0)
}

func writeReg(offset uint32, value uint32) {
	apicGuard.Acquire()
	base := apicBase
	apicGuard.Release()
	mmioWrite32(base+uintptr(offset), value)
}

// mmioWrite32 stores value to the 32-bit MMIO register at addr.
func mmioWrite32(addr uintptr, value uint32)
