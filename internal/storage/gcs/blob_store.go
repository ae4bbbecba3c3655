// Package gcs stores crawl artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the bucket and an optional key prefix.
type Config struct {
	Bucket string
	Prefix string
}

// BlobStore implements crawler.BlobStore on GCS.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New dials GCS with application default credentials.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// PutObject uploads data and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Close releases the client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
