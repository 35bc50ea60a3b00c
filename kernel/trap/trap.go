package trap

import (
	"coreboot/kernel"
	"coreboot/kernel/cpu"
)

// Config carries the stack tops the GDT's TSS needs: a dedicated stack for
// the double-fault handler, and the stack the CPU switches to on any
// privilege-level-raising interrupt or syscall.
type Config struct {
	DoubleFaultStackTop uintptr
	InterruptStackTop   uintptr
}

// Init brings up the full trap plane: a GDT with a TSS, an IDT with default
// handlers for the exceptions this bootstrap core cannot recover from plus a
// breakpoint handler, and
// the local APIC in place of the legacy 8259 PICs. It must run once, after
// the kernel has obtained stack memory for cfg's two stack tops but before
// interrupts are enabled.
func Init(cfg Config) *kernel.Error {
	setupGDT(cfg.DoubleFaultStackTop, cfg.InterruptStackTop)
	installIDT()
	installDefaultHandlers()

	if err := apicInit(); err != nil {
		return err
	}

	cpu.EnableInterrupts()
	return nil
}

// installDefaultHandlers wires the exceptions that indicate an
// unrecoverable condition for this bootstrap core straight into
// kernel.Panic. A real handler for page faults belongs to the memory
// manager once address spaces are live; until then any fault here means the
// identity map itself is broken. A breakpoint only dumps the registers, and
// execution resumes after it.
func installDefaultHandlers() {
	HandleInterrupt(Breakpoint, 0, func(r *Registers) {
		r.Dump()
	})
	HandleInterrupt(DoubleFault, doubleFaultISTIndex, func(r *Registers) {
		r.Dump()
		kernel.Panic(errDoubleFault)
	})
	HandleInterrupt(GPFException, 0, func(r *Registers) {
		r.Dump()
		kernel.Panic(errGPF)
	})
	HandleInterrupt(PageFault, 0, func(r *Registers) {
		r.Dump()
		kernel.Panic(errPageFault)
	})
}

var (
	errDoubleFault = &kernel.Error{Module: "trap", Message: "double fault"}
	errGPF         = &kernel.Error{Module: "trap", Message: "general protection fault"}
	errPageFault   = &kernel.Error{Module: "trap", Message: "unhandled page fault"}
)
