package renderer

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
)

// Bitmap is a 1-bit raster, one bit per dot, most significant bit first.
// A set bit prints black.
type Bitmap struct {
	Width  int
	Height int
	Stride int
	Bits   []byte
}

// NewBitmap allocates an all-white bitmap.
func NewBitmap(width, height int) *Bitmap {
	stride := (width + 7) / 8
	return &Bitmap{
		Width:  width,
		Height: height,
		Stride: stride,
		Bits:   make([]byte, stride*height),
	}
}

// Row returns the packed bytes of row y.
func (b *Bitmap) Row(y int) []byte {
	return b.Bits[y*b.Stride : (y+1)*b.Stride]
}

// Black reports whether the dot at (x, y) is set. Out of range dots are white.
func (b *Bitmap) Black(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Bits[y*b.Stride+x/8]&(0x80>>uint(x%8)) != 0
}

func (b *Bitmap) set(x, y int) {
	b.Bits[y*b.Stride+x/8] |= 0x80 >> uint(x%8)
}

// Image renders the bitmap back into a grayscale image.
func (b *Bitmap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// Centered returns a copy of b padded with white on both sides to width dots.
// Bitmaps already at least that wide are returned unchanged.
func (b *Bitmap) Centered(width int) *Bitmap {
	if width <= b.Width {
		return b
	}
	out := NewBitmap(width, b.Height)
	offset := ((width - b.Width) / 2) &^ 7
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Black(x, y) {
				out.set(x+offset, y)
			}
		}
	}
	return out
}

// flatten composites img over white so transparent areas print blank.
func flatten(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	bg := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// threshold converts img to a bitmap, treating luminance below level as black.
func threshold(img image.Image, level uint8) *Bitmap {
	gray := imaging.Grayscale(flatten(img))
	bounds := gray.Bounds()
	bm := NewBitmap(bounds.Dx(), bounds.Dy())

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if gray.NRGBAAt(x, y).R < level {
				bm.set(x, y)
			}
		}
	}

	return bm
}

// diffuse converts img to a bitmap with Floyd-Steinberg error diffusion.
func diffuse(img image.Image, level uint8) *Bitmap {
	flat := flatten(img)

	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = dither.FloydSteinberg
	out := d.Dither(flat)
	if out == nil {
		// Already two-tone.
		return threshold(flat, level)
	}

	bounds := out.Bounds()
	bm := NewBitmap(bounds.Dx(), bounds.Dy())
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, _, _, _ := out.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if r < 0x8000 {
				bm.set(x, y)
			}
		}
	}
	return bm
}
