package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client used by S3Storage
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage implements ObjectStore on an S3 bucket
type S3Storage struct {
	client  PutObjectAPI
	bucket  string
	baseURL string
}

// NewS3Storage creates an S3 store. Addresses default to the public
// https://s3.amazonaws.com/<bucket> form when baseURL is empty.
func NewS3Storage(client PutObjectAPI, bucket, baseURL string) *S3Storage {
	if baseURL == "" {
		baseURL = "https://s3.amazonaws.com/" + bucket
	}
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}
}

// Put uploads the object to the bucket
func (s *S3Storage) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return joinURL(s.baseURL, key), nil
}
