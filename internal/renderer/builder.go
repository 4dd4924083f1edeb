// Package renderer turns raster images into printer command streams.
package renderer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/thereceipt/thermal-bridge/internal/capability"
)

var (
	// ErrInvalidImage covers undecodable input and pixel data the dialect
	// encoder cannot carry.
	ErrInvalidImage = errors.New("renderer: invalid image")
	// ErrCommand is a failure inside a dialect command encoder.
	ErrCommand = errors.New("renderer: command encoding failed")
)

// DefaultThreshold is the luminance below which a dot prints black.
const DefaultThreshold uint8 = 128

// Options tunes rasterization.
type Options struct {
	Threshold uint8
	Diffusion bool
}

// EncodeError records which dialect failed and whether the fault came from
// the pixel data or from the command encoder.
type EncodeError struct {
	Dialect capability.Dialect
	Pixel   bool
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Dialect, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	if e.Pixel {
		return []error{ErrInvalidImage, e.Err}
	}
	return []error{ErrCommand, e.Err}
}

// Builder builds device command streams from encoded images.
type Builder struct {
	opts Options
}

// NewBuilder creates a builder. A zero threshold selects DefaultThreshold.
func NewBuilder(opts Options) *Builder {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Builder{opts: opts}
}

// Build decodes data, fits it to the profile's paper width and encodes it in
// the profile's dialect.
func (b *Builder) Build(data []byte, profile capability.Profile) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return b.BuildImage(img, profile)
}

// BuildImage encodes an already decoded image.
func (b *Builder) BuildImage(img image.Image, profile capability.Profile) ([]byte, error) {
	if profile.PaperWidthDots <= 0 {
		return nil, fmt.Errorf("%w: profile %q has no paper width", ErrCommand, profile.Key)
	}

	bm, err := b.Rasterize(img, profile.PaperWidthDots)
	if err != nil {
		return nil, err
	}

	enc, ok := encoders[profile.Dialect]
	if !ok {
		return nil, &EncodeError{Dialect: profile.Dialect, Err: errors.New("unsupported dialect")}
	}

	return encode(profile, bm, enc)
}

// Rasterize scales img to fit width dots and converts it to a bitmap.
func (b *Builder) Rasterize(img image.Image, width int) (*Bitmap, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-area image", ErrInvalidImage)
	}

	scaled := Scale(img, width)
	if b.opts.Diffusion {
		return diffuse(scaled, b.opts.Threshold), nil
	}
	return threshold(scaled, b.opts.Threshold), nil
}

// Decode decodes PNG, JPEG, GIF, BMP or WebP data.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImage)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-area image", ErrInvalidImage)
	}

	return img, nil
}

// DecodeBase64 decodes a base64 payload, accepting an optional data URL
// prefix and missing padding.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty base64 payload", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}

// TargetSize returns the dimensions an image of w x h dots takes on paper
// of the given width: never wider than the paper, never upscaled, width
// rounded down to a multiple of 8 and height following the original aspect
// ratio.
func TargetSize(w, h, paper int) (int, int) {
	target := w
	if target > paper {
		target = paper
	}
	target -= target % 8
	if target == 0 {
		return w, h
	}
	if target == w {
		return w, h
	}

	height := int(math.Round(float64(h) * float64(target) / float64(w)))
	if height < 1 {
		height = 1
	}
	return target, height
}

// Scale fits img to paper dots following TargetSize. Images narrower than
// one byte are padded with white to 8 dots instead of being stretched.
func Scale(img image.Image, paper int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w < 8 {
		canvas := imaging.New(8, h, color.White)
		return imaging.Paste(canvas, img, image.Pt(0, 0))
	}

	tw, th := TargetSize(w, h, paper)
	if tw == w && th == h {
		return img
	}
	return imaging.Resize(img, tw, th, imaging.Lanczos)
}
