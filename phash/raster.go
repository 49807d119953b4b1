package phash

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Layout describes the channel order of a Raster's pixel bytes.
type Layout int

const (
	Gray Layout = iota + 1
	GrayAlpha
	RGB
	RGBA
)

// Channels is the number of bytes per pixel for the layout, or 0 if unknown.
func (l Layout) Channels() int {
	switch l {
	case Gray:
		return 1
	case GrayAlpha:
		return 2
	case RGB:
		return 3
	case RGBA:
		return 4
	default:
		return 0
	}
}

// Raster is an already-decoded 8-bit image. Stride may be zero, in which case
// rows are assumed to be tightly packed.
type Raster struct {
	Width  int
	Height int
	Layout Layout
	Stride int
	Pix    []byte
}

// DecodeError reports a pixel buffer that cannot be read as a 2-D raster.
type DecodeError struct {
	ID     string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode error"
	if e.ID != "" {
		msg += " for " + e.ID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (r *Raster) stride() int {
	if r.Stride > 0 {
		return r.Stride
	}
	return r.Width * r.Layout.Channels()
}

// Validate checks that the buffer is large enough for the declared geometry.
func (r *Raster) Validate() error {
	if r == nil {
		return &DecodeError{Reason: "nil raster"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &DecodeError{Reason: fmt.Sprintf("invalid dimensions %dx%d", r.Width, r.Height)}
	}
	ch := r.Layout.Channels()
	if ch == 0 {
		return &DecodeError{Reason: fmt.Sprintf("unknown channel layout %d", r.Layout)}
	}
	stride := r.stride()
	if stride < r.Width*ch {
		return &DecodeError{Reason: fmt.Sprintf("stride %d shorter than row of %d bytes", stride, r.Width*ch)}
	}
	need := stride*(r.Height-1) + r.Width*ch
	if len(r.Pix) < need {
		return &DecodeError{Reason: fmt.Sprintf("pixel buffer has %d bytes, need %d", len(r.Pix), need)}
	}
	return nil
}

// Pixels is the pixel area, used as the default quality score.
func (r *Raster) Pixels() int64 {
	return int64(r.Width) * int64(r.Height)
}

// luma converts the raster to one grey byte per pixel using the integer
// BT.601 weights. Alpha is ignored.
func (r *Raster) luma() []uint8 {
	out := make([]uint8, r.Width*r.Height)
	ch := r.Layout.Channels()
	stride := r.stride()
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*stride:]
		for x := 0; x < r.Width; x++ {
			p := row[x*ch:]
			switch r.Layout {
			case Gray, GrayAlpha:
				out[y*r.Width+x] = p[0]
			default:
				rr, gg, bb := uint32(p[0]), uint32(p[1]), uint32(p[2])
				out[y*r.Width+x] = uint8((19595*rr + 38470*gg + 7471*bb + 1<<15) >> 16)
			}
		}
	}
	return out
}

// FromImage converts a decoded image.Image into an RGBA raster. Gray images
// keep a single channel.
func FromImage(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, &DecodeError{Reason: "nil image"}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid bounds %v", b)}
	}
	if g, ok := img.(*image.Gray); ok {
		return &Raster{
			Width:  b.Dx(),
			Height: b.Dy(),
			Layout: Gray,
			Stride: g.Stride,
			Pix:    g.Pix[g.PixOffset(b.Min.X, b.Min.Y):],
		}, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Raster{
		Width:  b.Dx(),
		Height: b.Dy(),
		Layout: RGBA,
		Stride: dst.Stride,
		Pix:    dst.Pix,
	}, nil
}
