// Package testimages draws small synthetic pictures for tests and demos, so
// no binary fixtures have to be checked in.
package testimages

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// Size is the side of the square images drawn by Sunset and Cat.
const Size = 256

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// Sunset draws a vertical sky gradient with a sun disc. brightness scales the
// gradient steepness; 1.0 is the reference image.
func Sunset(brightness float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	for y := 0; y < Size; y++ {
		progress := float64(y) / Size
		c := color.RGBA{
			R: clamp(135 + (255-135)*progress*brightness),
			G: clamp(206 + (100-206)*progress*brightness),
			B: clamp(235 + (50-235)*progress*brightness),
			A: 255,
		}
		for x := 0; x < Size; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	sunX, sunY, r := 128, 85, 32
	sun := color.RGBA{255, 215, 0, 255}
	for y := sunY - r; y <= sunY+r; y++ {
		for x := sunX - r; x <= sunX+r; x++ {
			dx, dy := x-sunX, y-sunY
			if dx*dx+dy*dy < r*r {
				img.SetRGBA(x, y, sun)
			}
		}
	}
	return img
}

// Cat draws a grey cat silhouette on a pale background.
func Cat() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	bg := color.RGBA{240, 248, 255, 255}
	fg := color.RGBA{100, 100, 100, 255}
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	ellipse := func(cx, cy int, rx, ry float64) {
		for y := 0; y < Size; y++ {
			for x := 0; x < Size; x++ {
				dx, dy := float64(x-cx)/rx, float64(y-cy)/ry
				if dx*dx+dy*dy <= 1 {
					img.SetRGBA(x, y, fg)
				}
			}
		}
	}
	ellipse(128, 170, 40, 30) // body
	ellipse(128, 100, 35, 30) // head

	// ears
	for y := 65; y < 85; y++ {
		for x := 93; x < 113; x++ {
			if x+y > 158 && x+3*y > 300 && 3*x+y < 420 {
				img.SetRGBA(x, y, fg)
			}
		}
		for x := 143; x < 163; x++ {
			if 508-x+y > 158 && 508-x+3*y > 300 && 768-3*x+y < 420 {
				img.SetRGBA(x, y, fg)
			}
		}
	}
	return img
}

// Checker draws a black and white checkerboard of w x h pixels with square
// cells of the given side.
func Checker(w, h, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

// Offset adds delta to every colour channel, clamping at 0 and 255.
func Offset(src image.Image, delta int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{
				R: clamp(float64(int(c.R) + delta)),
				G: clamp(float64(int(c.G) + delta)),
				B: clamp(float64(int(c.B) + delta)),
				A: c.A,
			})
		}
	}
	return dst
}

// Invert produces the photographic negative of src.
func Invert(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{255 - c.R, 255 - c.G, 255 - c.B, c.A})
		}
	}
	return dst
}

// Scale resamples src to w x h with a Catmull-Rom filter.
func Scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// WriteJPEG encodes img to path, creating parent directories.
func WriteJPEG(path string, img image.Image, quality int) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
