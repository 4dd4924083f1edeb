package renderer

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"
)

// Canvas draws a printable page top to bottom on a growing white canvas.
type Canvas struct {
	width  int
	height int
	ctx    *gg.Context
	y      float64
}

// NewCanvas creates a canvas width dots wide.
func NewCanvas(width int) *Canvas {
	initialHeight := 600

	ctx := gg.NewContext(width, initialHeight)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)

	return &Canvas{
		width:  width,
		height: initialHeight,
		ctx:    ctx,
	}
}

// Text draws one centered line with the default face.
func (c *Canvas) Text(s string) {
	lineHeight := c.ctx.FontHeight() * 1.6
	c.ensureHeight(int(lineHeight) + 1)

	c.ctx.SetColor(color.Black)
	c.ctx.DrawStringAnchored(s, float64(c.width)/2, c.y+lineHeight/2, 0.5, 0.5)
	c.y += lineHeight
}

// Divider draws a dashed rule across the page.
func (c *Canvas) Divider() {
	c.ensureHeight(15)

	y := c.y + 7
	margin := 20.0
	x2 := float64(c.width) - margin

	c.ctx.SetLineWidth(2)
	for x := margin; x < x2; x += 15 {
		end := x + 10
		if end > x2 {
			end = x2
		}
		c.ctx.DrawLine(x, y, end, y)
		c.ctx.Stroke()
	}

	c.y += 15
}

// QRCode draws a centered QR code of value.
func (c *Canvas) QRCode(value string) error {
	qr, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr code: %w", err)
	}

	size := c.width / 2
	if size > 400 {
		size = 400
	}
	img := qr.Image(size)

	c.drawCentered(img)
	return nil
}

// Barcode draws a centered Code 128 barcode of value.
func (c *Canvas) Barcode(value string) error {
	code, err := code128.Encode(value)
	if err != nil {
		return fmt.Errorf("barcode: %w", err)
	}

	width := c.width - 40
	if min := code.Bounds().Dx(); width < min {
		width = min
	}
	scaled, err := barcode.Scale(code, width, 80)
	if err != nil {
		return fmt.Errorf("barcode: %w", err)
	}

	c.drawCentered(scaled)
	return nil
}

// Feed adds blank space.
func (c *Canvas) Feed(dots int) {
	c.ensureHeight(dots)
	c.y += float64(dots)
}

// Image returns the drawn page cropped to its content.
func (c *Canvas) Image() image.Image {
	finalHeight := int(c.y) + 20
	if finalHeight > c.height {
		finalHeight = c.height
	}

	img := c.ctx.Image()
	return img.(interface {
		SubImage(r image.Rectangle) image.Image
	}).SubImage(image.Rect(0, 0, c.width, finalHeight))
}

func (c *Canvas) drawCentered(img image.Image) {
	h := img.Bounds().Dy()
	c.ensureHeight(h + 20)

	x := (c.width - img.Bounds().Dx()) / 2
	if x < 0 {
		x = 0
	}
	c.ctx.DrawImage(img, x, int(c.y)+10)
	c.y += float64(h) + 20
}

func (c *Canvas) ensureHeight(needed int) {
	if int(c.y)+needed <= c.height {
		return
	}

	newHeight := c.height * 2
	if newHeight < int(c.y)+needed {
		newHeight = int(c.y) + needed + 600
	}

	grown := gg.NewContext(c.width, newHeight)
	grown.SetColor(color.White)
	grown.Clear()
	grown.DrawImage(c.ctx.Image(), 0, 0)
	grown.SetColor(color.Black)

	c.ctx = grown
	c.height = newHeight
}

// TestPageInfo is the content of a printer self-test page.
type TestPageInfo struct {
	Title    string
	DeviceID string
	Model    string
	Lines    []string
	Time     time.Time
}

// TestPage renders a self-test page width dots wide.
func TestPage(width int, info TestPageInfo) (image.Image, error) {
	c := NewCanvas(width)

	c.Feed(10)
	c.Text(info.Title)
	c.Divider()
	if info.Model != "" {
		c.Text("Model: " + info.Model)
	}
	c.Text(fmt.Sprintf("Paper width: %d dots", width))
	for _, line := range info.Lines {
		c.Text(line)
	}
	if !info.Time.IsZero() {
		c.Text(info.Time.Format("2006-01-02 15:04:05"))
	}
	c.Divider()

	if info.DeviceID != "" {
		if err := c.QRCode(info.DeviceID); err != nil {
			return nil, err
		}
		if err := c.Barcode(info.DeviceID); err != nil {
			return nil, err
		}
		c.Text(info.DeviceID)
	}

	c.Feed(20)
	return c.Image(), nil
}
