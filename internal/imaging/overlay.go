package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultMarkedColor highlights options the detector accepted.
const DefaultMarkedColor = "#00c853"

// OverlayBox is one option rectangle to outline on a sheet.
type OverlayBox struct {
	X      int
	Y      int
	Width  int
	Height int

	// Group selects the outline hue; boxes of one subject share a group.
	Group int

	// Caption, when set, is drawn just above the box.
	Caption string

	// Marked boxes get an extra outline in the marked colour.
	Marked bool
}

// OverlayResult is a normalized sheet with layout boxes drawn on it.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Boxes       int    `json:"boxes"`
	Marked      int    `json:"marked"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Overlay draws boxes over the raster so a layout author can see where the
// configured bubbles land on a real sheet. groups is the number of distinct
// groups; hues are spread evenly around the colour wheel.
func Overlay(r *Raster, boxes []OverlayBox, groups int, markedHex string) (*OverlayResult, error) {
	bounds := r.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("cannot overlay an empty sheet")
	}

	marked, err := colorful.Hex(markedHex)
	if err != nil {
		marked, _ = colorful.Hex(DefaultMarkedColor)
	}
	markedColor := toRGBA(marked)

	palette := groupPalette(groups)

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, r.Gray(), bounds.Min, draw.Src)

	markedCount := 0
	for _, b := range boxes {
		rect := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
		outline := palette[0]
		if b.Group >= 0 && b.Group < len(palette) {
			outline = palette[b.Group]
		}
		drawOutline(result, rect, outline)
		if b.Marked {
			drawOutline(result, rect.Inset(1), markedColor)
			drawOutline(result, rect.Inset(-1), markedColor)
			markedCount++
		}
		if b.Caption != "" {
			drawLabel(result, b.X, b.Y, b.Caption, outline)
		}
	}

	encoded, err := EncodeBase64PNG(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}

	return &OverlayResult{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Boxes:       len(boxes),
		Marked:      markedCount,
		ImageBase64: encoded,
		MimeType:    MimePNG,
	}, nil
}

func groupPalette(groups int) []color.RGBA {
	if groups < 1 {
		groups = 1
	}
	palette := make([]color.RGBA, groups)
	for i := range palette {
		hue := 360 * float64(i) / float64(groups)
		palette[i] = toRGBA(colorful.Hsv(hue, 0.9, 0.85))
	}
	return palette
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// drawOutline draws the one pixel border of rect, clipped to img.
func drawOutline(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	if rect.Empty() {
		return
	}
	bounds := img.Bounds()
	set := func(x, y int) {
		if image.Pt(x, y).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}
	for x := rect.Min.X; x < rect.Max.X; x++ {
		set(x, rect.Min.Y)
		set(x, rect.Max.Y-1)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		set(rect.Min.X, y)
		set(rect.Max.X-1, y)
	}
}

// drawLabel writes text with its baseline just above (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y-2),
	}
	d.DrawString(text)
}
