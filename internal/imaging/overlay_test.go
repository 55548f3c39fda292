package imaging

import (
	"image/color"
	"testing"
)

func TestOverlay(t *testing.T) {
	r := RasterFromFunc(100, 60, func(x, y int) bool { return false })
	boxes := []OverlayBox{
		{X: 10, Y: 10, Width: 20, Height: 20, Group: 0, Caption: "1"},
		{X: 40, Y: 10, Width: 20, Height: 20, Group: 1, Marked: true},
	}

	result, err := Overlay(r, boxes, 2, DefaultMarkedColor)
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if result.Width != 100 || result.Height != 60 {
		t.Errorf("dimensions: got %dx%d, want 100x60", result.Width, result.Height)
	}
	if result.Boxes != 2 || result.Marked != 1 {
		t.Errorf("counts: got %d boxes %d marked, want 2 and 1", result.Boxes, result.Marked)
	}

	img := decodeBase64PNG(t, result.ImageBase64)

	// The box border is coloured, its interior stays white.
	if isGray(img.At(10, 20)) {
		t.Error("box border should be coloured")
	}
	if c := color.RGBAModel.Convert(img.At(20, 20)).(color.RGBA); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("box interior should be white, got %v", c)
	}
	// Distinct groups get distinct hues.
	if img.At(10, 20) == img.At(40, 25) {
		t.Error("groups should use different colours")
	}
}

func TestOverlay_InvalidMarkedColorFallsBack(t *testing.T) {
	r := checkerRaster(50, 50)
	boxes := []OverlayBox{{X: 5, Y: 5, Width: 10, Height: 10, Marked: true}}

	result, err := Overlay(r, boxes, 1, "not-a-colour")
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if result.Marked != 1 {
		t.Errorf("Marked: got %d, want 1", result.Marked)
	}
}

func TestOverlay_BoxesOutsideAreClipped(t *testing.T) {
	r := checkerRaster(30, 30)
	boxes := []OverlayBox{{X: 20, Y: 20, Width: 50, Height: 50, Caption: "12"}}

	if _, err := Overlay(r, boxes, 1, ""); err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
}

func TestOverlay_EmptyRaster(t *testing.T) {
	r := RasterFromFunc(0, 0, func(x, y int) bool { return false })
	if _, err := Overlay(r, nil, 1, ""); err == nil {
		t.Error("Overlay should fail for an empty raster")
	}
}

func isGray(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == g && g == b
}
