package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}

// fallbackFields are joined, in order, when no weighted field has text.
var fallbackFields = []string{
	"program_name", "university", "discipline", "sub_discipline",
	"tags", "academic_level", "programme_type", "introduction",
}

// Indexer builds document embeddings.
type Indexer struct {
	embedder  Embedder
	weights   Weights
	batchSize int
	logger    *zap.Logger
}

// NewIndexer returns an Indexer using DefaultIndexWeights when weights is nil.
func NewIndexer(embedder Embedder, weights Weights, batchSize int, logger *zap.Logger) *Indexer {
	if weights == nil {
		weights = DefaultIndexWeights()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{embedder: embedder, weights: weights, batchSize: batchSize, logger: logger}
}

type fieldText struct {
	doc    int
	weight float64
	text   string
}

// Index converts records into documents. Each embedding is the weighted mean
// of its string fields' embeddings, normalized to unit length; a record with
// none of the weighted fields falls back to embedding its concatenated text.
// Failed records keep their listing fields and are indexed like any other.
func (ix *Indexer) Index(ctx context.Context, records []map[string]any) ([]Document, error) {
	docs := make([]Document, len(records))
	var parts []fieldText
	for i, rec := range records {
		docs[i] = Document{ID: documentID(rec, i), Fields: rec}
		for _, field := range ix.weights.Fields() {
			s, ok := rec[field].(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			parts = append(parts, fieldText{doc: i, weight: ix.weights[field], text: strings.TrimSpace(s)})
		}
	}

	vectors, err := ix.embedAll(ctx, texts(parts))
	if err != nil {
		return nil, err
	}
	sums := make([][]float64, len(docs))
	totals := make([]float64, len(docs))
	for i, part := range parts {
		sums[part.doc] = addScaled(sums[part.doc], vectors[i], part.weight)
		totals[part.doc] += part.weight
	}

	var fallback []fieldText
	for i := range docs {
		if totals[i] > 0 {
			mean := make([]float64, len(sums[i]))
			for j, x := range sums[i] {
				mean[j] = x / totals[i]
			}
			docs[i].Embedding = normalize(mean)
			continue
		}
		if text := joinedText(docs[i]); text != "" {
			fallback = append(fallback, fieldText{doc: i, text: text})
		}
	}
	if len(fallback) > 0 {
		vectors, err := ix.embedAll(ctx, texts(fallback))
		if err != nil {
			return nil, err
		}
		for i, part := range fallback {
			docs[part.doc].Embedding = vectors[i]
		}
	}
	ix.logger.Info("documents indexed",
		zap.Int("documents", len(docs)),
		zap.Int("field_embeddings", len(parts)),
		zap.Int("fallback_embeddings", len(fallback)),
	)
	return docs, nil
}

// Rebuild reads every record from src, indexes it and replaces the corpus.
func (ix *Indexer) Rebuild(ctx context.Context, src RecordSource, corpus Corpus) (int, error) {
	records, err := src.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load results: %w", err)
	}
	docs, err := ix.Index(ctx, records)
	if err != nil {
		return 0, err
	}
	if err := corpus.Replace(ctx, docs); err != nil {
		return 0, fmt.Errorf("replace corpus: %w", err)
	}
	return len(docs), nil
}

// Weights returns a copy of the field weights used for indexing.
func (ix *Indexer) Weights() Weights {
	return ix.weights.Clone()
}

func (ix *Indexer) embedAll(ctx context.Context, inputs []string) ([][]float64, error) {
	out := make([][]float64, 0, len(inputs))
	for start := 0; start < len(inputs); start += ix.batchSize {
		end := min(start+ix.batchSize, len(inputs))
		vectors, err := ix.embedder.Embed(ctx, inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func texts(parts []fieldText) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.text
	}
	return out
}

func addScaled(sum, v []float64, w float64) []float64 {
	if sum == nil {
		sum = make([]float64, len(v))
	}
	for i := range sum {
		if i < len(v) {
			sum[i] += v[i] * w
		}
	}
	return sum
}

func joinedText(doc Document) string {
	var parts []string
	for _, field := range fallbackFields {
		if s := strings.TrimSpace(doc.Text(field)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func documentID(rec map[string]any, i int) string {
	if id, ok := rec["data_id"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("doc-%d", i)
}

// Index binds an Indexer to the store it reads and the corpus it fills.
type Index struct {
	Indexer *Indexer
	Source  RecordSource
	Corpus  Corpus
}

// Reindex rebuilds the corpus from the source.
func (i Index) Reindex(ctx context.Context) (int, error) {
	return i.Indexer.Rebuild(ctx, i.Source, i.Corpus)
}

// Weights returns the indexing weights.
func (i Index) Weights() Weights {
	return i.Indexer.Weights()
}
