package multiboot

import (
	"reflect"
	"unsafe"

	"coreboot/kernel/mem"
)

// BootModule describes a type-3 boot-module tag: a blob the loader placed
// in memory, together with the NUL-terminated command-line string that
// named it.
type BootModule struct {
	Range   mem.Range
	CmdLine string
}

type bootModuleHeader struct {
	modStart uint32
	modEnd   uint32
}

// FindBootModule returns the first type-3 boot-module tag whose command
// line contains substr, matching the original bootstrapper's first-match
// semantics (it does not error on multiple matches). It reports false if no
// module's command line contains substr.
func (r Reader) FindBootModule(substr string) (BootModule, bool) {
	it := r.Tags()
	for {
		tag, ok := it.Next()
		if !ok {
			return BootModule{}, false
		}
		if tag.Type != TagBootModule {
			continue
		}

		if len(tag.Payload) < 8 {
			continue
		}

		hdr := (*bootModuleHeader)(unsafe.Pointer(&tag.Payload[0]))
		cmdLine := nulTerminatedString(tag.Payload[8:])

		if !containsSubstr(cmdLine, substr) {
			continue
		}

		return BootModule{
			Range:   mem.Range{Start: uintptr(hdr.modStart), End: uintptr(hdr.modEnd)},
			CmdLine: cmdLine,
		}, true
	}
}

// nulTerminatedString views the portion of b up to (excluding) its first
// NUL byte as a string without copying: boot-info command lines are
// read-only for the remainder of the bootstrap, so a zero-copy overlay is
// safe and avoids needing a working heap this early in boot.
func nulTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}

	if len(b) == 0 {
		return ""
	}

	var s string
	sh := (*reflect.StringHeader)(unsafe.Pointer(&s))
	sh.Data = uintptr(unsafe.Pointer(&b[0]))
	sh.Len = len(b)
	return s
}

func containsSubstr(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(substr) > len(s) {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
