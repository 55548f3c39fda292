package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder (flatbed scanners)
	_ "golang.org/x/image/webp" // Register WebP format decoder (phone uploads)

	"github.com/varshakam/omr-eval/internal/omrerr"
)

// MaxSourcePixels caps the dimensions of a decoded upload. It is checked
// from the image header before any pixel data is decoded.
const MaxSourcePixels = 50_000_000

// Decode parses an uploaded sheet photo. It returns the decoded image and
// the format name reported by the registered decoder.
//
// Any failure to parse the bytes is reported as an omrerr DecodeError, so
// transport layers can tell an unreadable upload from other failures.
// Images larger than MaxSourcePixels fail with an InvalidImageError.
func Decode(r io.Reader) (image.Image, string, error) {
	return DecodeLimited(r, MaxSourcePixels)
}

// DecodeLimited is Decode with an explicit pixel limit.
//
// Parameters:
//   - r: the encoded image bytes.
//   - maxPixels: the largest accepted width * height; zero or less
//     disables the check.
//
// Returns:
//   - image.Image, string: the decoded image and its format name.
//   - error: a DecodeError for unreadable bytes, an InvalidImageError for
//     images over maxPixels.
func DecodeLimited(r io.Reader, maxPixels int) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", omrerr.NewDecodeError(err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", omrerr.NewDecodeError(err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		e := omrerr.NewInvalidImageError(cfg.Width, cfg.Height, "image has too many pixels")
		e.Details["max_pixels"] = maxPixels
		return nil, "", e
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", omrerr.NewDecodeError(err)
	}
	return img, format, nil
}

// ImageCache keeps decoded sheets keyed by file path so that repeated tool
// calls against the same photo (normalize, then overlay, then grade) only
// decode it once.
//
// ImageCache is safe for concurrent use. Entries stay until Evict or Clear.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load returns the cached image for path, decoding it from disk on first
// use. Different spellings of the same path are separate entries.
//
// # Errors
//
//   - the file cannot be opened: a wrapped *os.PathError
//   - the file is not a supported image: an omrerr DecodeError
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every cached image.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict drops the image cached under path, if any.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}
