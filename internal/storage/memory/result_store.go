package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

// ResultStore is an in-memory crawler.ResultStore, used for dry runs.
type ResultStore struct {
	mu      sync.RWMutex
	records []crawler.Record
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Append implements crawler.ResultStore.
func (s *ResultStore) Append(_ context.Context, record crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns the stored records in append order.
func (s *ResultStore) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Record(nil), s.records...)
}

// ReadAll returns the records flattened to field maps.
func (s *ResultStore) ReadAll(context.Context) ([]map[string]any, error) {
	records := s.Records()
	out := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode result %d: %w", i, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode result %d: %w", i, err)
		}
		out = append(out, fields)
	}
	return out, nil
}

// Reset drops every stored record.
func (s *ResultStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}
