package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/program-crawler/internal/search"
)

// Corpus implements search.Corpus with one row per document: the record
// fields as jsonb and the embedding as float8[].
type Corpus struct {
	pool  Pool
	table string
}

// NewCorpus wraps pool. An empty table defaults to program_documents.
func NewCorpus(pool Pool, table string) (*Corpus, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table, "program_documents")
	if err != nil {
		return nil, err
	}
	return &Corpus{pool: pool, table: name}, nil
}

// EnsureSchema creates the documents table when missing.
func (c *Corpus) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	position INTEGER PRIMARY KEY,
	doc_id TEXT NOT NULL,
	fields JSONB NOT NULL,
	embedding DOUBLE PRECISION[]
)`, c.table)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", c.table, err)
	}
	return nil
}

// Replace swaps the stored corpus for docs in a single transaction.
func (c *Corpus) Replace(ctx context.Context, docs []search.Document) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin corpus replace: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, c.table)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("clear corpus: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (position, doc_id, fields, embedding) VALUES ($1, $2, $3, $4)`, c.table)
	for i, doc := range docs {
		fields, err := json.Marshal(doc.Fields)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
		if _, err := tx.Exec(ctx, insert, i, doc.ID, fields, doc.Embedding); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit corpus replace: %w", err)
	}
	return nil
}

// Documents returns the corpus in insertion order.
func (c *Corpus) Documents(ctx context.Context) ([]search.Document, error) {
	rows, err := c.pool.Query(ctx, fmt.Sprintf(`SELECT doc_id, fields, embedding FROM %s ORDER BY position`, c.table))
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var docs []search.Document
	for rows.Next() {
		var (
			doc    search.Document
			fields []byte
		)
		if err := rows.Scan(&doc.ID, &fields, &doc.Embedding); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
