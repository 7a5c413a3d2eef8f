package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStorage implements ObjectStore by PUTting objects to an HTTP endpoint
type HTTPStorage struct {
	baseURL    string
	publicURL  string
	httpClient *http.Client
}

// NewHTTPStorage creates an HTTP object store. Objects are written to
// baseURL/key and addressed as publicURL/key (baseURL when publicURL is empty).
func NewHTTPStorage(baseURL, publicURL string) *HTTPStorage {
	if publicURL == "" {
		publicURL = baseURL
	}
	return &HTTPStorage{
		baseURL:   baseURL,
		publicURL: publicURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// NewHTTPStorageWithClient creates an HTTP object store with a custom HTTP client
func NewHTTPStorageWithClient(baseURL, publicURL string, httpClient *http.Client) *HTTPStorage {
	s := NewHTTPStorage(baseURL, publicURL)
	s.httpClient = httpClient
	return s
}

// Put uploads the object with a PUT request
func (s *HTTPStorage) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, joinURL(s.baseURL, key), r)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	return joinURL(s.publicURL, key), nil
}
