package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropResult is a crop of a normalized sheet.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	InkPixels   int    `json:"ink_pixels"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts the region (x1,y1)-(x2,y2) of a normalized sheet, in
// canonical coordinates, and optionally magnifies it by scale.
//
// Scaling uses nearest neighbour so the crop stays strictly black and
// white and individual raster pixels remain countable.
func Crop(r *Raster, x1, y1, x2, y2 int, scale float64) (*CropResult, error) {
	bounds := r.Bounds()

	if x1 < bounds.Min.X || y1 < bounds.Min.Y || x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside sheet bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	cropped := imaging.Crop(r.Gray(), image.Rect(x1, y1, x2, y2))

	if scale != 1.0 && scale > 0 {
		newWidth := max(int(float64(cropped.Bounds().Dx())*scale), 1)
		newHeight := max(int(float64(cropped.Bounds().Dy())*scale), 1)
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.NearestNeighbor)
	}

	encoded, err := EncodeBase64PNG(cropped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cropped region: %w", err)
	}

	return &CropResult{
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		InkPixels:   r.CountInk(x1, y1, x2-x1, y2-y1),
		ImageBase64: encoded,
		MimeType:    MimePNG,
	}, nil
}
