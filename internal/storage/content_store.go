package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentStorage implements ObjectStore on a simple-content service
type ContentStorage struct {
	service  simplecontent.Service
	ownerID  uuid.UUID
	tenantID uuid.UUID
	baseURL  string
}

// NewContentStorage creates a store that uploads objects as simple-content contents.
// Addresses point at the content download endpoint under baseURL, or use the
// content:// scheme when baseURL is empty.
func NewContentStorage(service simplecontent.Service, ownerID, tenantID uuid.UUID, baseURL string) *ContentStorage {
	return &ContentStorage{
		service:  service,
		ownerID:  ownerID,
		tenantID: tenantID,
		baseURL:  baseURL,
	}
}

// Put uploads the object and returns the address of the new content
func (cs *ContentStorage) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error) {
	fileName := path.Base(key)

	content, err := cs.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      cs.ownerID,
		TenantID:     cs.tenantID,
		Name:         fileName,
		DocumentType: contentType,
		Reader:       r,
		FileName:     fileName,
		Tags:         tagsForKey(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}

	if cs.baseURL == "" {
		return "content://" + content.ID.String(), nil
	}
	return fmt.Sprintf("%s/api/v1/contents/%s/download", cs.baseURL, content.ID), nil
}

func tagsForKey(key string) []string {
	if dir := path.Dir(key); dir != "." {
		return []string{"image", dir}
	}
	return []string{"image", "original"}
}
