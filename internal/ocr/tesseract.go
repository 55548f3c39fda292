package ocr

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	omrimaging "github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// DefaultScale enlarges the identification crop before recognition.
// Canonical label text is only a few pixels tall.
const DefaultScale = 4

// padding is the white border added around the crop, in enlarged pixels.
const padding = 16

// Options configures a Reader.
type Options struct {
	// Language is a Tesseract language code. Defaults to "eng".
	Language string

	// TessdataPrefix overrides the directory holding *.traineddata.
	TessdataPrefix string

	// Scale is the enlargement factor. Defaults to DefaultScale.
	Scale int
}

// Reader identifies exam versions from the identification region of a
// normalized sheet. It implements omr.VersionReader.
type Reader struct {
	region   layout.Rect
	versions []string
	opts     Options
}

// NewReader builds a Reader for the versions and identification region of
// reg. It fails with a ConfigurationError when reg defines no region.
func NewReader(reg *layout.Registry, opts Options) (*Reader, error) {
	region, ok := reg.Identification()
	if !ok {
		return nil, omrerr.NewConfigurationError("layout defines no identification region", nil)
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	return &Reader{region: region, versions: reg.Versions(), opts: opts}, nil
}

// ReadVersion recognizes the label in the identification region and maps
// it to a registered version.
//
// Returns:
//   - string: the matched version name.
//   - error: a ConfigurationError when the text matches no version, or
//     the underlying Tesseract error.
func (r *Reader) ReadVersion(raster *omrimaging.Raster) (string, error) {
	text, err := r.ReadText(raster)
	if err != nil {
		return "", err
	}

	version, ok := MatchVersion(text, r.versions)
	if !ok {
		return "", omrerr.NewConfigurationError("exam version could not be identified", map[string]interface{}{
			"text":     strings.TrimSpace(text),
			"versions": r.versions,
		})
	}
	return version, nil
}

// ReadText returns the raw text Tesseract finds in the identification
// region.
func (r *Reader) ReadText(raster *omrimaging.Raster) (string, error) {
	crop := r.prepare(raster)
	if crop == nil {
		return "", omrerr.NewInvalidImageError(raster.Width(), raster.Height(),
			"sheet does not cover the identification region")
	}

	data, err := omrimaging.EncodePNG(crop)
	if err != nil {
		return "", fmt.Errorf("failed to encode identification region: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.opts.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(r.opts.Language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return text, nil
}

// prepare crops the region, enlarges it and pads it with white. It
// returns nil when the region lies outside the raster.
func (r *Reader) prepare(raster *omrimaging.Raster) image.Image {
	rect := r.region.Image().Intersect(raster.Bounds())
	if rect.Empty() {
		return nil
	}

	crop := imaging.Crop(raster.Gray(), rect)
	scale := r.opts.Scale
	enlarged := imaging.Resize(crop, rect.Dx()*scale, rect.Dy()*scale, imaging.Lanczos)

	b := enlarged.Bounds()
	canvas := imaging.New(b.Dx()+2*padding, b.Dy()+2*padding, color.White)
	return imaging.Paste(canvas, enlarged, image.Pt(padding, padding))
}

// Info describes the OCR backend.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
}

// GetInfo reports the linked Tesseract version.
func GetInfo() Info {
	version := gosseract.Version()
	return Info{
		Available: version != "",
		Version:   version,
		Backend:   "gosseract",
	}
}
