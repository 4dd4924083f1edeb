package renderer

import (
	"bytes"
	"fmt"

	"github.com/thereceipt/thermal-bridge/internal/capability"
)

// starEncoder accumulates Star command bytes.
type starEncoder struct {
	buf bytes.Buffer
}

func (e *starEncoder) raw(b ...byte) {
	e.buf.Write(b)
}

// initialize resets the printer.
func (e *starEncoder) initialize() {
	e.raw(ESC, '@')
}

// partialCut feeds to the cutter and performs a partial cut.
func (e *starEncoder) partialCut() {
	e.raw(ESC, 'd', 3)
}

// encodeStarPRNT emits the StarPRNT raster command ESC GS S with the whole
// image in one block, centered with ESC GS a.
func encodeStarPRNT(_ capability.Profile, bm *Bitmap) ([]byte, error) {
	e := &starEncoder{}
	e.initialize()
	e.raw(ESC, GS, 'a', 1)

	e.raw(ESC, GS, 'S', 1,
		byte(bm.Stride), byte(bm.Stride>>8),
		byte(bm.Height), byte(bm.Height>>8),
		0)
	e.buf.Write(bm.Bits)

	e.raw(ESC, GS, 'a', 0)
	e.partialCut()
	return e.buf.Bytes(), nil
}

// enterRaster switches a Star Line or Star Graphic printer to raster mode
// with continuous page length.
func (e *starEncoder) enterRaster() {
	e.raw(ESC, '*', 'r', 'R')
	e.raw(ESC, '*', 'r', 'A')
	e.raw(ESC, '*', 'r', 'P', '0', 0)
}

func (e *starEncoder) rasterRows(bm *Bitmap) {
	for y := 0; y < bm.Height; y++ {
		row := bm.Row(y)
		e.raw('b', byte(len(row)), byte(len(row)>>8))
		e.buf.Write(row)
	}
}

func (e *starEncoder) exitRaster() {
	e.raw(ESC, '*', 'r', 'B')
}

// encodeStarLine prints through raster mode, then cuts with the line mode
// cut command. Raster rows carry no alignment, so the image is padded to
// the paper width.
func encodeStarLine(profile capability.Profile, bm *Bitmap) ([]byte, error) {
	bm = bm.Centered(profile.PaperWidthDots)

	e := &starEncoder{}
	e.initialize()
	e.enterRaster()
	e.rasterRows(bm)
	e.exitRaster()
	e.partialCut()
	return e.buf.Bytes(), nil
}

// encodeStarGraphic targets raster-only printers. The cut is requested as
// the end-of-document action before the rows are sent.
func encodeStarGraphic(profile capability.Profile, bm *Bitmap) ([]byte, error) {
	bm = bm.Centered(profile.PaperWidthDots)

	e := &starEncoder{}
	e.enterRaster()
	// ESC * r E n NUL: partial cut after feeding to the cut position.
	e.raw(ESC, '*', 'r', 'E', '1', '3', 0)
	e.rasterRows(bm)
	e.exitRaster()
	return e.buf.Bytes(), nil
}

// encodeStarDotImpact emits 8-dot bit image bands (ESC K) for dot impact
// printers, each band followed by an 8-dot feed.
func encodeStarDotImpact(profile capability.Profile, bm *Bitmap) ([]byte, error) {
	if bm.Width > profile.PaperWidthDots {
		return nil, errPixel{fmt.Errorf("bitmap width %d exceeds %d dots", bm.Width, profile.PaperWidthDots)}
	}

	e := &starEncoder{}
	e.initialize()

	offset := (profile.PaperWidthDots - bm.Width) / 2
	columns := offset + bm.Width
	for y0 := 0; y0 < bm.Height; y0 += 8 {
		e.raw(ESC, 'K', byte(columns), byte(columns>>8))
		for i := 0; i < offset; i++ {
			e.raw(0)
		}
		for x := 0; x < bm.Width; x++ {
			var col byte
			for bit := 0; bit < 8; bit++ {
				if bm.Black(x, y0+bit) {
					col |= 0x80 >> uint(bit)
				}
			}
			e.raw(col)
		}
		e.raw(ESC, 'J', 16)
	}

	e.partialCut()
	return e.buf.Bytes(), nil
}
