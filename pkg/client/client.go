package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Client is an HTTP client for the image upload and progress API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new pipeline client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new pipeline client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Upload sends an image for processing and returns its job ID
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images/upload", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp pipeline.UploadResponse
	if err := c.do(req, &resp, http.StatusOK, http.StatusAccepted); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Progress returns the progress of jobID. Unknown jobs report 0.
func (c *Client) Progress(ctx context.Context, jobID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/images/progress/"+url.PathEscape(jobID), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	var resp pipeline.ProgressResponse
	if err := c.do(req, &resp, http.StatusOK); err != nil {
		return 0, err
	}
	return resp.Progress, nil
}

// AllProgress returns the progress of every tracked job
func (c *Client) AllProgress(ctx context.Context) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/images/progress", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp := make(map[string]int)
	if err := c.do(req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp, nil
}

// Forget removes jobID's progress entry from the server
func (c *Client) Forget(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/images/progress/"+url.PathEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil, http.StatusNoContent, http.StatusOK)
}

// WaitForCompletion polls jobID every interval until it reaches 100 or ctx ends.
// onProgress, if set, is called whenever the reported value changes.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, interval time.Duration, onProgress func(int)) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		percent, err := c.Progress(ctx, jobID)
		if err != nil {
			return err
		}
		if percent != last {
			last = percent
			if onProgress != nil {
				onProgress(percent)
			}
		}
		if percent >= pipeline.ProgressNotified {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("job %s stopped at %d%%: %w", jobID, last, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out any, okStatus ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiErr pipeline.ErrorResponse
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
