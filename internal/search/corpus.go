package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Document is one searchable record: the flattened result fields plus an
// embedding, which is empty when the record could not be embedded.
type Document struct {
	ID        string
	Fields    map[string]any
	Embedding []float64
}

// Text returns the field as a string. Missing and null fields are empty.
func (d Document) Text(field string) string {
	v, ok := d.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Corpus stores the indexed documents.
type Corpus interface {
	Documents(ctx context.Context) ([]Document, error)
	Replace(ctx context.Context, docs []Document) error
}

// RecordSource yields stored crawl results as field maps.
type RecordSource interface {
	ReadAll(ctx context.Context) ([]map[string]any, error)
}

// MemoryCorpus keeps documents in process.
type MemoryCorpus struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryCorpus returns an empty corpus.
func NewMemoryCorpus() *MemoryCorpus {
	return &MemoryCorpus{}
}

// Documents implements Corpus.
func (c *MemoryCorpus) Documents(context.Context) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Document(nil), c.docs...), nil
}

// Replace implements Corpus.
func (c *MemoryCorpus) Replace(_ context.Context, docs []Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append([]Document(nil), docs...)
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
