package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStorage implements ObjectStore on a local directory
type FilesystemStorage struct {
	baseDir string
	baseURL string
}

// NewFilesystemStorage creates a filesystem store rooted at baseDir.
// Addresses are baseURL/key, or file:// paths when baseURL is empty.
func NewFilesystemStorage(baseDir, baseURL string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: abs,
		baseURL: baseURL,
	}, nil
}

// Put writes the object to baseDir/key
func (fs *FilesystemStorage) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	if fs.baseURL == "" {
		return "file://" + filepath.ToSlash(path), nil
	}
	return joinURL(fs.baseURL, key), nil
}

// GetReader returns a reader for the object at key
func (fs *FilesystemStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists checks if an object exists at key
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// resolve maps key to a path inside baseDir, rejecting traversal
func (fs *FilesystemStorage) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	path := filepath.Clean(filepath.Join(fs.baseDir, key))
	if !strings.HasPrefix(path, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidKey)
	}
	return path, nil
}
