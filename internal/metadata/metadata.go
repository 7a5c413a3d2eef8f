package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// DefaultTags are attached to every extracted record
const DefaultTags = "default,photo"

// ErrImageDecode is returned when the payload is not a decodable image
var ErrImageDecode = errors.New("image decode failed")

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("metadata not found")

// Record describes one stored image
type Record struct {
	ImageID   string    `json:"imageId" dynamodbav:"imageId"`
	ImageURL  string    `json:"imageUrl" dynamodbav:"imageUrl"`
	Width     int       `json:"width" dynamodbav:"width"`
	Height    int       `json:"height" dynamodbav:"height"`
	Format    string    `json:"format" dynamodbav:"format"`
	Tags      string    `json:"tags" dynamodbav:"tags"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// Repository persists metadata records
type Repository interface {
	Save(ctx context.Context, rec Record) error
}

// Extract decodes img and builds its metadata record for the image stored at address
func Extract(img pipeline.Image, address string) (Record, error) {
	decoded, err := imaging.Decode(img.Reader())
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := decoded.Bounds()
	return Record{
		ImageID:   uuid.New().String(),
		ImageURL:  address,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Format:    FileExtension(img.Filename),
		Tags:      DefaultTags,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FileExtension returns the lowercased extension of name, or "unknown"
func FileExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == "." {
		return "unknown"
	}
	return strings.ToLower(ext[1:])
}

// Service extracts metadata and saves it to a repository
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a metadata service backed by repo
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// ExtractAndStore extracts img's metadata and persists it against address
func (s *Service) ExtractAndStore(ctx context.Context, img pipeline.Image, address string) error {
	rec, err := Extract(img, address)
	if err != nil {
		return err
	}
	s.logger.Info("extracted metadata",
		"image_id", rec.ImageID,
		"address", rec.ImageURL,
		"width", rec.Width,
		"height", rec.Height,
		"format", rec.Format,
	)

	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.Error("failed to store metadata", "image_id", rec.ImageID, "error", err)
		return fmt.Errorf("failed to store metadata for %s: %w", rec.ImageID, err)
	}

	s.logger.Info("stored metadata", "image_id", rec.ImageID)
	return nil
}
