// Package codec holds the pixel-side data model: frames in the model's
// normalized signed range and the conversion to the 8-bit display range.
package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// Frame is a single decoded image with RGB samples interleaved row-major,
// each in [-1, 1]. Frames are treated as immutable once produced.
type Frame struct {
	Width  int
	Height int
	// Pix holds Width*Height*3 float32 samples, R G B per pixel.
	Pix []float32
}

// NewFrame allocates a zero (mid-gray) frame of the given geometry.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Pix: make([]float32, width*height*3)}
}

// Validate reports whether the sample buffer matches the declared geometry.
func (f Frame) Validate() error {
	if want := f.Width * f.Height * 3; len(f.Pix) != want {
		return fmt.Errorf("frame %dx%d: have %d samples, want %d", f.Width, f.Height, len(f.Pix), want)
	}
	return nil
}

// DisplayByte maps one normalized sample to the 8-bit display range:
// clamp(round((v+1)*127.5), 0, 255). Saturates, never wraps.
func DisplayByte(v float32) uint8 {
	d := math.Round((float64(v) + 1) * 127.5)
	if d < 0 {
		return 0
	}
	if d > 255 {
		return 255
	}
	return uint8(d)
}

// ToNRGBA converts the frame to the external display range.
func (f Frame) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			img.SetNRGBA(x, y, color.NRGBA{
				R: DisplayByte(f.Pix[i]),
				G: DisplayByte(f.Pix[i+1]),
				B: DisplayByte(f.Pix[i+2]),
				A: 255,
			})
		}
	}
	return img
}

// EncodePNG writes the frame as a PNG in the display range.
func (f Frame) EncodePNG(w io.Writer) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return png.Encode(w, f.ToNRGBA())
}

// FromImage converts an 8-bit image to a normalized frame. The inverse of
// the display mapping: v = b/127.5 - 1.
func FromImage(img image.Image) Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = float32(r>>8)/127.5 - 1
			f.Pix[i+1] = float32(g>>8)/127.5 - 1
			f.Pix[i+2] = float32(bl>>8)/127.5 - 1
			i += 3
		}
	}
	return f
}
