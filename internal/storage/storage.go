// Package storage persists audit artifacts (processed sheet images and
// JSON result records) on local disk or in a MinIO bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/varshakam/omr-eval/internal/config"
)

// ErrNotFound is returned by Get for a missing artifact.
var ErrNotFound = errors.New("artifact not found")

// URLPrefix is the HTTP path under which stored artifacts are served.
const URLPrefix = "/processed/"

// Provider stores named blobs. Names are flat file names; any directory
// part is stripped.
type Provider interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// New picks the provider named by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "minio":
		return NewMinio(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// URL is the public path of a stored artifact.
func URL(name string) string {
	return URLPrefix + CleanName(name)
}

// CleanName reduces name to a safe flat file name.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// Local stores artifacts in a directory.
type Local struct {
	dir string
}

// NewLocal stores artifacts under dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Put writes r to a temp file in the directory and renames it into place,
// so readers never see a partial artifact. It returns the artifact URL.
func (p *Local) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	name = CleanName(name)
	if name == "" {
		return "", fmt.Errorf("invalid artifact name")
	}

	tmp, err := os.CreateTemp(p.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(p.dir, name)); err != nil {
		return "", err
	}
	return URL(name), nil
}

// Get opens the named artifact. A missing file gives ErrNotFound.
func (p *Local) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	name = CleanName(name)
	if name == "" {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(p.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes the named artifact. A missing file gives ErrNotFound.
func (p *Local) Delete(ctx context.Context, name string) error {
	name = CleanName(name)
	if name == "" {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(p.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
