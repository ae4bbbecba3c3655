// Package memory keeps crawl artifacts and results in process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// BlobStore implements crawler.BlobStore in memory.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewBlobStore returns an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject stores a copy of data and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, data []byte) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

// Object returns the stored bytes for key.
func (s *BlobStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return append([]byte(nil), data...), ok
}

// Keys lists stored keys in sorted order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
