package omr

import (
	"image"
	"image/color"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
)

// fourOptions is one question with bubbles A-D, 20x20 each, 25px apart.
func fourOptions(y int) layout.Question {
	var q layout.Question
	for i := 0; i < 4; i++ {
		q.Options = append(q.Options, layout.Option{
			Label: layout.DefaultLabel(i),
			Rect:  layout.Rect{X: 10 + 25*i, Y: y, Width: 20, Height: 20},
		})
	}
	return q
}

func singleQuestion() layout.SubjectLayout {
	return layout.SubjectLayout{fourOptions(20)}
}

// mark puts count ink pixels into rect, row-major from its top-left.
type mark struct {
	rect  layout.Rect
	count int
}

// inkRaster builds a raster whose only ink comes from marks.
func inkRaster(width, height int, marks ...mark) *imaging.Raster {
	return imaging.RasterFromFunc(width, height, func(x, y int) bool {
		for _, m := range marks {
			r := m.rect
			if x < r.X || y < r.Y || x >= r.Right() || y >= r.Bottom() {
				continue
			}
			idx := (y-r.Y)*r.Width + (x - r.X)
			if idx < m.count {
				return true
			}
		}
		return false
	})
}

// full marks every pixel of r.
func full(r layout.Rect) mark { return mark{rect: r, count: r.Area()} }

// sheetImage renders a white RGBA sheet with the given rects filled black.
func sheetImage(width, height int, filled ...layout.Rect) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	for _, r := range filled {
		for y := r.Y; y < r.Bottom(); y++ {
			for x := r.X; x < r.Right(); x++ {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}
