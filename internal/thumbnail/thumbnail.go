package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

const (
	DefaultWidth   = 150
	DefaultHeight  = 150
	DefaultQuality = 80

	contentType = "image/jpeg"
	keyPrefix   = "thumbnails/"
)

// ErrImageDecode is returned when the payload is not a decodable image
var ErrImageDecode = errors.New("image decode failed")

// ObjectWriter persists rendered thumbnails
type ObjectWriter interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error)
}

// Generator renders JPEG thumbnails that fit inside a fixed box
type Generator struct {
	objects ObjectWriter
	width   int
	height  int
	quality int
	logger  *slog.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithSize sets the bounding box. Non-positive values keep the default.
func WithSize(width, height int) Option {
	return func(g *Generator) {
		if width > 0 {
			g.width = width
		}
		if height > 0 {
			g.height = height
		}
	}
}

// WithQuality sets the JPEG quality (1-100)
func WithQuality(quality int) Option {
	return func(g *Generator) {
		if quality > 0 && quality <= 100 {
			g.quality = quality
		}
	}
}

// WithLogger sets the generator's logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a thumbnail generator writing to objects
func NewGenerator(objects ObjectWriter, opts ...Option) *Generator {
	g := &Generator{
		objects: objects,
		width:   DefaultWidth,
		height:  DefaultHeight,
		quality: DefaultQuality,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Render decodes img and returns the encoded JPEG thumbnail with its dimensions
func (g *Generator) Render(img pipeline.Image) ([]byte, int, int, error) {
	src, err := imaging.Decode(img.Reader())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	thumb := imaging.Fit(src, g.width, g.height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("JPEG encode failed: %w", err)
	}

	bounds := thumb.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// Generate renders a thumbnail of img and stores it under thumbnails/
func (g *Generator) Generate(ctx context.Context, img pipeline.Image) error {
	data, width, height, err := g.Render(img)
	if err != nil {
		return err
	}

	key := keyPrefix + uuid.New().String() + "_thumbnail_" + storage.SafeName(img.Filename)
	address, err := g.objects.Put(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	g.logger.Info("thumbnail uploaded",
		"address", address,
		"width", width,
		"height", height,
		"size", len(data),
	)
	return nil
}
