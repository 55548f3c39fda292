package imaging

import (
	"image"
	"image/color"
	"math/bits"
)

// Raster is a two-level (ink / background) image in the canonical sheet
// coordinate system.
//
// Pixels are bit-packed, one bit per pixel, row-major with each row padded
// to a whole number of 64-bit words. A set bit means ink.
//
// A Raster has no exported mutators: once built by Normalize, Binarize or
// RasterFromFunc it is read-only and may be shared between goroutines.
type Raster struct {
	width  int
	height int
	stride int // words per row
	bits   []uint64
}

func newRaster(width, height int) *Raster {
	stride := (width + 63) / 64
	return &Raster{
		width:  width,
		height: height,
		stride: stride,
		bits:   make([]uint64, stride*height),
	}
}

func (r *Raster) set(x, y int) {
	r.bits[y*r.stride+x>>6] |= 1 << uint(x&63)
}

// RasterFromFunc builds a raster by asking ink(x, y) for every pixel.
func RasterFromFunc(width, height int, ink func(x, y int) bool) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	r := newRaster(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if ink(x, y) {
				r.set(x, y)
			}
		}
	}
	return r
}

// Binarize classifies every pixel of gray as ink when its luminance is at
// or below threshold. The raster origin is gray.Bounds().Min.
func Binarize(gray *image.Gray, threshold uint8) *Raster {
	b := gray.Bounds()
	r := newRaster(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[gray.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] <= threshold {
				r.set(x, y)
			}
		}
	}
	return r
}

// binarizeNRGBA is Binarize for the grayscale NRGBA images produced by
// the disintegration/imaging pipeline, where R == G == B.
func binarizeNRGBA(img *image.NRGBA, threshold uint8) *Raster {
	b := img.Bounds()
	r := newRaster(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4] <= threshold {
				r.set(x, y)
			}
		}
	}
	return r
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.width }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.height }

// Bounds returns the raster rectangle with its origin at (0,0).
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// Ink reports whether (x, y) is an ink pixel. Points outside the raster
// are background.
func (r *Raster) Ink(x, y int) bool {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return false
	}
	return r.bits[y*r.stride+x>>6]&(1<<uint(x&63)) != 0
}

// CountInk returns the number of ink pixels inside the rectangle with
// top-left (x, y) and the given width and height. The rectangle is clipped
// to the raster; an empty rectangle counts zero.
func (r *Raster) CountInk(x, y, width, height int) int {
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+width, r.width), min(y+height, r.height)
	if x0 >= x1 || y0 >= y1 {
		return 0
	}

	n := 0
	for row := y0; row < y1; row++ {
		n += r.countRow(row, x0, x1)
	}
	return n
}

// countRow counts set bits in [x0, x1) of one row, a word at a time.
func (r *Raster) countRow(y, x0, x1 int) int {
	words := r.bits[y*r.stride : (y+1)*r.stride]
	n := 0
	for x0 < x1 {
		off := uint(x0 & 63)
		span := 64 - int(off)
		if x1-x0 < span {
			span = x1 - x0
		}
		mask := ^uint64(0)
		if span < 64 {
			mask = (uint64(1)<<uint(span) - 1) << off
		}
		n += bits.OnesCount64(words[x0>>6] & mask)
		x0 += span
	}
	return n
}

// InkCount returns the total number of ink pixels.
func (r *Raster) InkCount() int {
	return r.CountInk(0, 0, r.width, r.height)
}

// Gray renders the raster as an 8-bit image: ink is black (0) and
// background is white (255).
func (r *Raster) Gray() *image.Gray {
	img := image.NewGray(r.Bounds())
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			v := uint8(255)
			if r.Ink(x, y) {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}
