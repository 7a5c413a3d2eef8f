package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

var (
	// ErrInvalidKey is returned for object keys that escape the store's root
	ErrInvalidKey = errors.New("invalid object key")

	// ErrNotFound is returned when no object exists at a key
	ErrNotFound = errors.New("object not found")
)

// ObjectStore persists opaque objects and returns their durable address
type ObjectStore interface {
	// Put writes size bytes from r under key and returns the object's address
	Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error)
}

// ImageStore stores original uploads under a unique key
type ImageStore struct {
	objects ObjectStore
	logger  *slog.Logger
}

// NewImageStore creates an image store on top of objects
func NewImageStore(objects ObjectStore, logger *slog.Logger) *ImageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageStore{
		objects: objects,
		logger:  logger,
	}
}

// Store uploads img and returns its durable address
func (s *ImageStore) Store(ctx context.Context, img pipeline.Image) (string, error) {
	key := uuid.New().String() + "_" + SafeName(img.Filename)

	address, err := s.objects.Put(ctx, key, img.ContentType, img.Reader(), img.Size())
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Info("image uploaded", "address", address, "size", img.Size())
	return address, nil
}

// SafeName reduces an uploaded file name to its base name so it can be used in a key
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
