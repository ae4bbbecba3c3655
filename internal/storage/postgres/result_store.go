package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

// ResultStore appends crawl records to a table as jsonb rows. The serial id
// preserves append order.
type ResultStore struct {
	pool  Pool
	table string
}

// NewResultStore wraps pool. An empty table defaults to program_results.
func NewResultStore(pool Pool, table string) (*ResultStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table, "program_results")
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: name}, nil
}

// EnsureSchema creates the results table when missing.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	data_id TEXT NOT NULL,
	failed BOOLEAN NOT NULL DEFAULT FALSE,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Append implements crawler.ResultStore.
func (s *ResultStore) Append(ctx context.Context, record crawler.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (data_id, failed, record) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.pool.Exec(ctx, query, record.Listing.DataID, record.Failed(), data); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ReadAll returns every record in append order.
func (s *ResultStore) ReadAll(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT record FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, fields)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Reset deletes every stored record.
func (s *ResultStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, s.table)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}
