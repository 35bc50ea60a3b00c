package trap

import "coreboot/kernel/kfmt"

// Registers is a snapshot of general-purpose register values captured by
// the interrupt gate entrypoint before it dispatches to a Go handler.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// Info carries the CPU-pushed error code for exceptions that have one,
	// or is zero otherwise.
	Info uint64

	// The frame IRETQ consumes to resume execution.
	RIP, CS, RFlags, RSP, SS uint64
}

// Dump writes r's fields to the console, in the same layout as a fault
// report's register section.
func (r *Registers) Dump() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x RBP = %16x\n", r.RSI, r.RDI, r.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x R10 = %16x\n", r.R8, r.R9, r.R10)
	kfmt.Printf("R11 = %16x R12 = %16x R13 = %16x\n", r.R11, r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Printf("RIP = %16x CS  = %16x RFL = %16x\n", r.RIP, r.CS, r.RFlags)
	kfmt.Printf("RSP = %16x SS  = %16x\n", r.RSP, r.SS)
}

// Number identifies an IDT vector: a CPU exception, or a hardware interrupt
// remapped onto the local APIC's vectors (see InterruptIndex in apic.go).
type Number uint8

// AMD64 exception vectors relevant to this bootstrap core. The full
// 0-31 range is reserved by the architecture; only the ones with
// handlers installed by Init are named here.
const (
	Breakpoint    = Number(3)
	DoubleFault   = Number(8)
	GPFException  = Number(13)
	PageFault     = Number(14)
)

// HandleInterrupt installs handler at intNumber's IDT gate. istIndex selects
// an alternate interrupt stack from the TSS's IST array (1-7), or 0 to keep
// using whatever stack was active when the interrupt fired.
func HandleInterrupt(intNumber Number, istIndex uint8, handler func(*Registers))

// installIDT populates the IDT descriptor and loads it (LIDT). Every gate
// starts out non-present; HandleInterrupt must be called before a vector
// can actually fire a handler.
func installIDT()

// dispatchInterrupt is the common entrypoint every generated interrupt gate
// stub jumps to; it looks up and invokes the handler registered for the
// firing vector via HandleInterrupt.
func dispatchInterrupt()
