package renderer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hennedo/escpos"

	"github.com/thereceipt/thermal-bridge/internal/capability"
)

// Command bytes shared by the dialects.
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// maxRasterRows is the largest row count a single raster command can carry.
const maxRasterRows = 0xFFFF

type encoderFunc func(profile capability.Profile, bm *Bitmap) ([]byte, error)

var encoders = map[capability.Dialect]encoderFunc{
	capability.DialectEscPos:        encodeEscPos,
	capability.DialectEscPosMobile:  encodeEscPosMobile,
	capability.DialectStarPRNT:      encodeStarPRNT,
	capability.DialectStarPRNTL:     encodeStarPRNT,
	capability.DialectStarLine:      encodeStarLine,
	capability.DialectStarGraphic:   encodeStarGraphic,
	capability.DialectStarDotImpact: encodeStarDotImpact,
}

// errPixel marks an encoder failure caused by the bitmap itself.
type errPixel struct{ err error }

func (e errPixel) Error() string { return e.err.Error() }
func (e errPixel) Unwrap() error { return e.err }

// encode runs enc and turns both returned errors and panics into an
// EncodeError. Pixel faults map to ErrInvalidImage, anything else to
// ErrCommand.
func encode(profile capability.Profile, bm *Bitmap, enc encoderFunc) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &EncodeError{Dialect: profile.Dialect, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if bm.Height > maxRasterRows {
		return nil, &EncodeError{
			Dialect: profile.Dialect,
			Pixel:   true,
			Err:     fmt.Errorf("bitmap height %d exceeds %d rows", bm.Height, maxRasterRows),
		}
	}

	out, err = enc(profile, bm)
	if err != nil {
		var pe errPixel
		return nil, &EncodeError{Dialect: profile.Dialect, Pixel: errors.As(err, &pe), Err: err}
	}
	return out, nil
}

// encodeEscPos emits reset, centered alignment, a GS v 0 raster image,
// a short feed and a cut through the escpos command library.
func encodeEscPos(_ capability.Profile, bm *Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	p := escpos.New(&buf)

	if _, err := p.WriteRaw([]byte{ESC, '@', ESC, 'a', 1}); err != nil {
		return nil, err
	}
	if _, err := p.PrintImage(bm.Image()); err != nil {
		return nil, errPixel{err}
	}
	if _, err := p.WriteRaw([]byte{LF, ESC, 'd', 3}); err != nil {
		return nil, err
	}
	if err := p.PrintAndCut(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// encodeEscPosMobile is ESC/POS for cutter-less portable printers: the job
// ends with a paper feed instead of a cut.
func encodeEscPosMobile(_ capability.Profile, bm *Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	p := escpos.New(&buf)

	if _, err := p.WriteRaw([]byte{ESC, '@', ESC, 'a', 1}); err != nil {
		return nil, err
	}
	if _, err := p.PrintImage(bm.Image()); err != nil {
		return nil, errPixel{err}
	}
	if _, err := p.WriteRaw([]byte{LF, ESC, 'd', 4}); err != nil {
		return nil, err
	}
	if err := p.Print(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
