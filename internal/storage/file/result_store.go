// Package file persists crawl results as a single JSON array on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

// ResultStore appends records to a JSON array file. Every Append rewrites the
// whole file through a temp file and rename, so readers never observe a
// partially written array. Writers are serialized by a mutex within the
// process and by an advisory lock on path+".lock" across processes.
type ResultStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// New returns a store writing to path. The file is created on first Append.
func New(path string) (*ResultStore, error) {
	if path == "" {
		return nil, errors.New("results path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}
	return &ResultStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the backing file path.
func (s *ResultStore) Path() string {
	return s.path
}

// Reset truncates the store to an empty array.
func (s *ResultStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(nil)
}

// Append implements crawler.ResultStore.
func (s *ResultStore) Append(ctx context.Context, record crawler.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()
	existing, err := s.read()
	if err != nil {
		return err
	}
	return s.write(append(existing, encoded))
}

// ReadAll returns every stored record as a flat field map, in append order.
func (s *ResultStore) ReadAll(context.Context) ([]map[string]any, error) {
	s.mu.Lock()
	raw, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("decode result %d: %w", i, err)
		}
		out = append(out, fields)
	}
	return out, nil
}

// lockFile takes the cross-process lock. Callers hold s.mu.
func (s *ResultStore) lockFile() (func(), error) {
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock results %s: %w", s.path, err)
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func (s *ResultStore) read() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", s.path, err)
	}
	return items, nil
}

func (s *ResultStore) write(items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp results: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp results: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	return nil
}
