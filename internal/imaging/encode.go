package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
)

// MimePNG is the content type of every image this package emits.
const MimePNG = "image/png"

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encode := imgio.PNGEncoder()
	if err := encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64PNG encodes img as PNG and returns it base64 encoded, the
// form MCP clients expect inline images in.
func EncodeBase64PNG(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// RasterImage is a rendered raster ready to be returned to a client.
type RasterImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// RenderRaster renders r black on white as a base64 PNG.
func RenderRaster(r *Raster) (*RasterImage, error) {
	encoded, err := EncodeBase64PNG(r.Gray())
	if err != nil {
		return nil, err
	}
	return &RasterImage{
		Width:       r.Width(),
		Height:      r.Height(),
		ImageBase64: encoded,
		MimeType:    MimePNG,
	}, nil
}
