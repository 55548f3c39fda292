package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/varshakam/omr-eval/internal/omrerr"
)

const (
	// ReferenceWidth is the width of the canonical sheet coordinate system.
	// Every layout rectangle is expressed in pixels of a sheet scaled to
	// this width.
	ReferenceWidth = 600

	// InkThreshold is the highest luminance that still counts as ink.
	InkThreshold uint8 = 128

	// MaxCanonicalHeight bounds the normalized raster. A sheet more than
	// ten times taller than it is wide is not an answer sheet, and a
	// narrow strip would otherwise be upscaled into a huge raster.
	MaxCanonicalHeight = 10 * ReferenceWidth
)

// Normalizer maps an arbitrary decoded photo onto the canonical raster.
type Normalizer struct {
	Width     int
	Threshold uint8
	Filter    imaging.ResampleFilter

	// MaxHeight rejects photos whose canonical height would exceed it.
	// Zero means MaxCanonicalHeight.
	MaxHeight int
}

// DefaultNormalizer returns the normalizer used by the grading pipeline.
func DefaultNormalizer() Normalizer {
	return Normalizer{
		Width:     ReferenceWidth,
		Threshold: InkThreshold,
		Filter:    imaging.Lanczos,
		MaxHeight: MaxCanonicalHeight,
	}
}

// Normalize converts img to grayscale, rescales it to n.Width preserving
// aspect ratio, and binarizes it.
//
// Parameters:
//   - img: the decoded photo or scan, any color model.
//
// Returns:
//   - *Raster: n.Width wide, round(h * n.Width / w) tall.
//   - error: an InvalidImageError for a nil or zero-sized image, or when
//     the canonical height would exceed n.MaxHeight.
func (n Normalizer) Normalize(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, omrerr.NewInvalidImageError(0, 0, "image is nil")
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, omrerr.NewInvalidImageError(w, h, "image has zero width or height")
	}

	height := ScaledHeight(w, h, n.Width)
	maxHeight := n.MaxHeight
	if maxHeight <= 0 {
		maxHeight = MaxCanonicalHeight
	}
	if height > maxHeight {
		err := omrerr.NewInvalidImageError(w, h, "image is too narrow for its height")
		err.Details["canonical_height"] = height
		err.Details["max_height"] = maxHeight
		return nil, err
	}

	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, n.Width, height, n.Filter)

	return binarizeNRGBA(resized, n.Threshold), nil
}

// Normalize runs the default normalizer.
func Normalize(img image.Image) (*Raster, error) {
	return DefaultNormalizer().Normalize(img)
}

// ScaledHeight is the canonical height of a width x height photo once
// rescaled to targetWidth. It is never less than 1.
func ScaledHeight(width, height, targetWidth int) int {
	if width <= 0 {
		return 0
	}
	scaled := int(math.Round(float64(height) * float64(targetWidth) / float64(width)))
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
