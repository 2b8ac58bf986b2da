package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brovar/digimarket-backend/pkg/config"
)

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// Store keeps offer images on the local filesystem. Files are named by
// offer id so a re-upload replaces the previous image.
type Store struct {
	dir string
}

// New creates the storage directory if needed and returns a Store.
func New(cfg config.ImageStoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("image directory required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// Attach streams the upload to disk and returns the stored filename.
func (s *Store) Attach(ctx context.Context, offerID uuid.UUID, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if offerID == uuid.Nil {
		return "", fmt.Errorf("offer id required")
	}
	if r == nil {
		return "", fmt.Errorf("image content required")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}

	filename := offerID.String() + ext
	path := filepath.Join(s.dir, filename)

	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return filename, nil
}

// Open returns the stored image for serving.
func (s *Store) Open(offerImage string) (*os.File, error) {
	clean := filepath.Base(offerImage)
	if clean != offerImage || clean == "." || clean == "" {
		return nil, fmt.Errorf("invalid image name %q", offerImage)
	}
	return os.Open(filepath.Join(s.dir, clean))
}
