// Package local stores crawl artifacts under a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore implements crawler.BlobStore on the local filesystem.
type BlobStore struct {
	root string
}

// New creates root if needed and returns a store rooted there.
func New(root string) (*BlobStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &BlobStore{root: abs}, nil
}

// PutObject writes data to root/key and returns a file:// URI. Keys that
// escape root are rejected.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes artifact directory", key)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create artifact parent: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "file://" + filepath.ToSlash(full), nil
}
