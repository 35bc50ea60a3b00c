package main

import "coreboot/kernel/boot"

// multibootInfoPtr and cpuInfo are populated by the rt0 assembly trampoline
// before jumping into main. They are package-level (rather than function
// arguments baked in by the linker) so the Go compiler cannot inline this
// call and drop Bootstrap from the generated object file.
var (
	multibootInfoPtr uint32
	cpuInfo          uint32
)

// main is the only Go symbol visible to the rt0 initialization code. It
// works as a trampoline into the real entry point, kernel/boot.Bootstrap.
//
// main is invoked by the rt0 assembly code after the GDT has been set up and
// a minimal g0 struct has been initialized, allowing Go code to run on top
// of the small stack the assembly stub allocated.
//
// main (and Bootstrap) never return; if they did, the rt0 code halts the
// CPU.
func main() {
	boot.Bootstrap(multibootInfoPtr, cpuInfo)
}
