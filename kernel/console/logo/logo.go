// Package logo holds the boot splash logo consumed by a pixel-addressable
// console. The bootstrap core's own Vga device is text-mode only and does
// not render ConsoleLogo yet; the asset exists so a future framebuffer
// console (or a diagnostic dump) has somewhere fixed to read it from,
// the same role the teacher's equivalent package plays for its own
// framebuffer console.
package logo

import "image/color"

// ConsoleLogo is the active boot logo, or nil if none was compiled in.
var ConsoleLogo *Image

// Alignment is the supported horizontal placement of a logo within a
// console's available width.
type Alignment uint8

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// Image is an 8bpp palette image: Data holds one palette index per pixel,
// row-major, Width*Height entries long.
type Image struct {
	Width  uint32
	Height uint32

	Align Alignment

	// TransparentIndex names the palette entry a console should skip
	// drawing, letting whatever is already on screen show through.
	TransparentIndex uint8

	// Palette is capped at 16 entries: this core renders logos onto a
	// 4bpp-attribute text console, same ceiling as tools/bootlogo
	// enforces when it generates this asset.
	Palette []color.RGBA

	Data []uint8
}
