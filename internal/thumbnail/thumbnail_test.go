package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

type put struct {
	key         string
	contentType string
	data        []byte
	size        int64
}

type recordingWriter struct {
	puts []put
	err  error
}

func (w *recordingWriter) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	w.puts = append(w.puts, put{key: key, contentType: contentType, data: data, size: size})
	return "mem://" + key, nil
}

func pngImage(t *testing.T, name string, width, height int) pipeline.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return pipeline.Image{Filename: name, ContentType: "image/png", Data: buf.Bytes()}
}

func TestGenerator_Generate(t *testing.T) {
	w := &recordingWriter{}
	g := NewGenerator(w)

	require.NoError(t, g.Generate(context.Background(), pngImage(t, "wide.png", 400, 200)))

	require.Len(t, w.puts, 1)
	p := w.puts[0]
	assert.True(t, strings.HasPrefix(p.key, "thumbnails/"), p.key)
	assert.True(t, strings.HasSuffix(p.key, "_thumbnail_wide.png"), p.key)
	assert.Equal(t, "image/jpeg", p.contentType)
	assert.Equal(t, int64(len(p.data)), p.size)

	decoded, err := jpeg.Decode(bytes.NewReader(p.data))
	require.NoError(t, err)
	assert.Equal(t, 150, decoded.Bounds().Dx())
	assert.Equal(t, 75, decoded.Bounds().Dy())
}

func TestGenerator_CustomSize(t *testing.T) {
	g := NewGenerator(&recordingWriter{}, WithSize(32, 64), WithQuality(50))

	data, width, height, err := g.Render(pngImage(t, "a.png", 100, 100))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, 32, width)
	assert.Equal(t, 32, height)
}

func TestGenerator_SmallImageIsNotUpscaled(t *testing.T) {
	g := NewGenerator(&recordingWriter{})

	_, width, height, err := g.Render(pngImage(t, "tiny.png", 20, 10))
	require.NoError(t, err)
	assert.Equal(t, 20, width)
	assert.Equal(t, 10, height)
}

func TestGenerator_DecodeFailure(t *testing.T) {
	w := &recordingWriter{}
	g := NewGenerator(w)

	err := g.Generate(context.Background(), pipeline.Image{Filename: "test.txt", Data: []byte("Hello World")})
	assert.ErrorIs(t, err, ErrImageDecode)
	assert.Empty(t, w.puts)
}

func TestGenerator_UploadFailure(t *testing.T) {
	boom := errors.New("bucket gone")
	g := NewGenerator(&recordingWriter{err: boom})

	err := g.Generate(context.Background(), pngImage(t, "a.png", 10, 10))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrImageDecode)
}
