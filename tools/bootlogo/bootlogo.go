// Command bootlogo renders a boot splash logo from a short piece of text
// and a TTF font, then converts the result into the palette form
// kernel/console/logo.Image expects, emitting a ready-to-compile Go source
// file the same way tools/makelogo emits a console.Image from a bitmap. It
// does not reduce colors: a rendering with more than 16 distinct colors is
// rejected with an error.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"image"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
)

// maxColors mirrors tools/makelogo: the logo is displayed by remapping its
// palette into the tail of a console's own 16-color attribute palette.
const maxColors = 16

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[bootlogo] error: %s\n", err.Error())
	os.Exit(1)
}

// renderText draws a background panel with gg's vector rasterizer, then
// burns the requested text onto it with a direct freetype rendering
// context. Using freetype directly (rather than gg's LoadFontFace
// convenience wrapper) keeps the text rasterization path independent of
// gg's internal font cache, since the two libraries are meant to cover two
// distinct concerns here: shape rasterization and font rendering.
func renderText(text string, width, height int, fontPath string, fg, bg color.RGBA, margin float64) (image.Image, error) {
	ctx := gg.NewContext(width, height)
	ctx.SetColor(bg)
	ctx.Clear()
	ctx.SetColor(fg)
	ctx.SetLineWidth(2)
	ctx.DrawRoundedRectangle(margin, margin, float64(width)-2*margin, float64(height)-2*margin, margin/2)
	ctx.Stroke()

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", fontPath, err)
	}

	font, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font %s: %w", fontPath, err)
	}

	rgba, ok := ctx.Image().(*image.RGBA)
	if !ok {
		return nil, errors.New("gg context did not produce an RGBA backbuffer")
	}

	fontSize := float64(height) / 2
	fc := freetype.NewContext()
	fc.SetDPI(72)
	fc.SetFont(font)
	fc.SetFontSize(fontSize)
	fc.SetClip(rgba.Bounds())
	fc.SetDst(rgba)
	fc.SetSrc(image.NewUniform(fg))
	fc.SetHinting(truetype.NoHinting)

	pt := freetype.Pt(int(margin*2), height/2+int(fontSize/3))
	if _, err := fc.DrawString(text, pt); err != nil {
		return nil, fmt.Errorf("drawing text: %w", err)
	}

	return rgba, nil
}

func buildPalette(img image.Image, transColor color.RGBA) ([]color.RGBA, map[color.RGBA]int, error) {
	var (
		palette         []color.RGBA
		colorToPalIndex = make(map[color.RGBA]int)
	)

	palette = append(palette, transColor)
	colorToPalIndex[palette[0]] = 0

	bounds := img.Bounds()
	for y := 0; y < bounds.Size().Y; y++ {
		for x := 0; x < bounds.Size().X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
			if _, exists := colorToPalIndex[c]; exists {
				continue
			}

			colorToPalIndex[c] = len(colorToPalIndex)
			palette = append(palette, c)
		}
	}

	if got := len(palette); got > maxColors {
		return nil, nil, fmt.Errorf("rendered logo should not contain more than %d colors; got %d (try fewer antialiased edges or a larger margin)", maxColors, got)
	}

	return palette, colorToPalIndex, nil
}

func genLogoFile(img image.Image, transColor color.RGBA, varName, align string) (string, error) {
	var (
		buf    bytes.Buffer
		bounds = img.Bounds()
		name   = fmt.Sprintf("%s%dx%d", varName, bounds.Size().X, bounds.Size().Y)
	)

	palette, colorToPalIndex, err := buildPalette(img, transColor)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&buf, `
package logo

import "image/color"

var (
%s = Image{
Width: %d,
Height: %d,
Align: %s,
TransparentIndex: 0,
`, name, bounds.Size().X, bounds.Size().Y, align)

	fmt.Fprint(&buf, "Palette: []color.RGBA{\n")
	for _, c := range palette {
		fmt.Fprintf(&buf, "\t{R:%d, G:%d, B:%d},\n", c.R, c.G, c.B)
	}
	fmt.Fprint(&buf, "},\n")

	fmt.Fprint(&buf, "Data: []uint8{\n")
	pixelIndex := 0
	for y := 0; y < bounds.Size().Y; y++ {
		for x := 0; x < bounds.Size().X; x, pixelIndex = x+1, pixelIndex+1 {
			if pixelIndex != 0 && pixelIndex%16 == 0 {
				buf.WriteByte('\n')
			}

			r, g, b, _ := img.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
			fmt.Fprintf(&buf, "0x%x, ", colorToPalIndex[c])
		}
	}
	fmt.Fprint(&buf, "\n},\n")

	fmt.Fprint(&buf, "}\n)\n")
	fmt.Fprintf(&buf, "func init(){\nConsoleLogo = &%s\n}\n", name)

	return buf.String(), nil
}

func runTool() error {
	text := flag.String("text", "coreboot", "the text to render into the logo")
	font := flag.String("font", "", "path to a TTF font file (required)")
	width := flag.Int("width", 160, "logo width in pixels")
	height := flag.Int("height", 32, "logo height in pixels")
	margin := flag.Float64("margin", 4, "border margin in pixels")
	fgR := flag.Uint("fg-r", 0xaa, "foreground red component")
	fgG := flag.Uint("fg-g", 0xaa, "foreground green component")
	fgB := flag.Uint("fg-b", 0xaa, "foreground blue component")
	transR := flag.Uint("trans-r", 255, "red component of the transparent color")
	transG := flag.Uint("trans-g", 0, "green component of the transparent color")
	transB := flag.Uint("trans-b", 255, "blue component of the transparent color")
	varName := flag.String("var-name", "logo", "the name of the variable holding the logo data")
	align := flag.String("align", "center", "horizontal alignment (left, center or right)")
	output := flag.String("out", "-", "file to write the generated logo to, or - for STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "bootlogo: render text into a console.Image boot logo\n\n")
		fmt.Fprint(os.Stderr, "Usage: bootlogo -font path/to/font.ttf [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *font == "" {
		exit(errors.New("missing required -font argument"))
	}

	switch *align {
	case "left":
		*align = "AlignLeft"
	case "center":
		*align = "AlignCenter"
	case "right":
		*align = "AlignRight"
	default:
		exit(errors.New("invalid alignment; supported values are: left, center or right"))
	}

	bg := color.RGBA{R: uint8(*transR), G: uint8(*transG), B: uint8(*transB)}
	fg := color.RGBA{R: uint8(*fgR), G: uint8(*fgG), B: uint8(*fgB)}

	img, err := renderText(*text, *width, *height, *font, fg, bg, *margin)
	if err != nil {
		return err
	}

	logoData, err := genLogoFile(img, bg, *varName, *align)
	if err != nil {
		return err
	}

	fSet := token.NewFileSet()
	astFile, err := parser.ParseFile(fSet, "", logoData, parser.ParseComments)
	if err != nil {
		return err
	}

	if *output == "-" {
		return printer.Fprint(os.Stdout, fSet, astFile)
	}

	fOut, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer fOut.Close()

	return printer.Fprint(fOut, fSet, astFile)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
