package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/llm"
	"github.com/JakeFAU/program-crawler/internal/metrics"
)

// Search modes reported in responses.
const (
	ModeKeyword  = "keyword"
	ModeVector   = "vector"
	ModeWeighted = "llm_dynamic_weights"
)

// Scoring constants for the weighted mode.
const (
	wholeQueryBonus  = 0.3
	anyTermBonus     = 0.15
	prefilterWeight  = 2.0
	minPrefilterTerm = 3
	weightMaxTokens  = 500
	weightTemp       = 0.1
	defaultTopK      = 10
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query must not be empty")

// ErrNoEmbedder is returned when a mode needs embeddings but none are configured.
var ErrNoEmbedder = errors.New("vector search is not configured")

// Completer sends one chat request and returns the reply text.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Query selects the mode and size of a search. UseLLM wins over UseVector.
type Query struct {
	Text      string
	UseVector bool
	UseLLM    bool
	TopK      int
}

// Response is the JSON body returned by the search endpoint.
type Response struct {
	Results    []map[string]any `json:"results"`
	SearchType string           `json:"search_type"`
	Query      string           `json:"query"`
	Count      int              `json:"count"`
	Weights    Weights          `json:"weights,omitempty"`
}

// Scored pairs a document with its ranking score.
type Scored struct {
	Document Document
	Score    float64
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	TopK      int
	CacheSize int
}

// Engine answers queries over a Corpus. The weight cache is owned by the
// engine, so each engine instance has its own.
type Engine struct {
	corpus   Corpus
	embedder Embedder
	model    Completer
	cache    *weightCache
	topK     int
	logger   *zap.Logger
}

// NewEngine wires an Engine. embedder and model may be nil, which disables
// the vector mode and model-derived weights respectively.
func NewEngine(corpus Corpus, embedder Embedder, model Completer, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		corpus:   corpus,
		embedder: embedder,
		model:    model,
		cache:    newWeightCache(cfg.CacheSize),
		topK:     cfg.TopK,
		logger:   logger,
	}
}

// Search runs q in the mode it selects.
func (e *Engine) Search(ctx context.Context, q Query) (Response, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Response{}, ErrEmptyQuery
	}
	k := q.TopK
	if k <= 0 {
		k = e.topK
	}

	resp := Response{Query: q.Text}
	switch {
	case q.UseLLM:
		scored, weights, err := e.Weighted(ctx, q.Text, k)
		if err != nil {
			return Response{}, err
		}
		resp.SearchType = ModeWeighted
		resp.Results = fieldsOf(scored)
		resp.Weights = weights
	case q.UseVector:
		scored, err := e.Vector(ctx, q.Text, k)
		if err != nil {
			return Response{}, err
		}
		resp.SearchType = ModeVector
		resp.Results = fieldsOf(scored)
	default:
		docs, err := e.Keyword(ctx, q.Text, k)
		if err != nil {
			return Response{}, err
		}
		resp.SearchType = ModeKeyword
		resp.Results = make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			resp.Results = append(resp.Results, d.Fields)
		}
	}
	resp.Count = len(resp.Results)
	metrics.ObserveSearch(resp.SearchType)
	return resp, nil
}

var keywordFields = []string{"program_name", "university", "discipline", "sub_discipline", "introduction"}

// Keyword returns up to k documents, in corpus order, where any keyword
// field contains the whole query case-insensitively.
func (e *Engine) Keyword(ctx context.Context, query string, k int) ([]Document, error) {
	docs, err := e.corpus.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	var out []Document
	for _, doc := range docs {
		if len(out) >= k {
			break
		}
		for _, field := range keywordFields {
			if containsFold(doc.Text(field), query) {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}

// Vector ranks documents by cosine similarity to the query embedding.
func (e *Engine) Vector(ctx context.Context, query string, k int) ([]Scored, error) {
	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	docs, err := e.corpus.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	scored := make([]Scored, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		scored = append(scored, Scored{Document: doc, Score: cosine(qv, doc.Embedding)})
	}
	return topK(scored, k), nil
}

// Weighted ranks documents by vector similarity plus field-match bonuses
// scaled by per-query weights, and returns the weights it used.
func (e *Engine) Weighted(ctx context.Context, query string, k int) ([]Scored, Weights, error) {
	weights := e.QueryWeights(ctx, query)
	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	docs, err := e.corpus.Documents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}

	candidates := prefilter(docs, query, weights)
	lowerQuery := strings.ToLower(query)
	terms := strings.Fields(lowerQuery)
	scored := make([]Scored, 0, len(candidates))
	for _, doc := range candidates {
		score := cosine(qv, doc.Embedding)
		for field, w := range weights {
			value := strings.ToLower(doc.Text(field))
			if value == "" {
				continue
			}
			if strings.Contains(value, lowerQuery) {
				score += wholeQueryBonus * w
			} else if anyContained(value, terms) {
				score += anyTermBonus * w
			}
		}
		scored = append(scored, Scored{Document: doc, Score: score})
	}
	e.logger.Debug("weighted search",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("corpus", len(docs)),
	)
	return topK(scored, k), weights, nil
}

// QueryWeights returns field weights for query: cached, freshly derived by
// the model, or the defaults when the model is unavailable or unparseable.
// Only model-derived weights are cached.
func (e *Engine) QueryWeights(ctx context.Context, query string) Weights {
	key := strings.ToLower(strings.TrimSpace(query))
	if w, ok := e.cache.get(key); ok {
		metrics.ObserveWeightCache(true)
		return w
	}
	metrics.ObserveWeightCache(false)
	if e.model == nil {
		return DefaultQueryWeights()
	}
	reply, err := e.model.Chat(ctx, llm.ChatRequest{
		Messages:    weightMessages(query),
		Temperature: weightTemp,
		MaxTokens:   weightMaxTokens,
	})
	if err != nil {
		e.logger.Warn("weight request failed, using defaults", zap.String("query", query), zap.Error(err))
		return DefaultQueryWeights()
	}
	weights, err := ParseWeights(reply)
	if err != nil {
		e.logger.Warn("weight reply unusable, using defaults", zap.String("query", query), zap.Error(err))
		return DefaultQueryWeights()
	}
	e.cache.put(key, weights)
	return weights.Clone()
}

// Documents exposes the corpus for callers that derive data from it.
func (e *Engine) Documents(ctx context.Context) ([]Document, error) {
	docs, err := e.corpus.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return docs, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if e.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	return vectors[0], nil
}

// prefilter keeps documents where a heavily weighted field contains a
// query term longer than two characters. It returns every document when
// there is nothing to filter on or nothing matches.
func prefilter(docs []Document, query string, weights Weights) []Document {
	var terms []string
	for _, t := range strings.Fields(query) {
		if utf8.RuneCountInString(t) >= minPrefilterTerm {
			terms = append(terms, strings.ToLower(t))
		}
	}
	var heavy []string
	for _, field := range weights.Fields() {
		if weights[field] >= prefilterWeight {
			heavy = append(heavy, field)
		}
	}
	if len(terms) == 0 || len(heavy) == 0 {
		return docs
	}
	var out []Document
	for _, doc := range docs {
		for _, field := range heavy {
			if anyContained(strings.ToLower(doc.Text(field)), terms) {
				out = append(out, doc)
				break
			}
		}
	}
	if len(out) == 0 {
		return docs
	}
	return out
}

func anyContained(value string, terms []string) bool {
	if value == "" {
		return false
	}
	for _, t := range terms {
		if strings.Contains(value, t) {
			return true
		}
	}
	return false
}

func topK(scored []Scored, k int) []Scored {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func fieldsOf(scored []Scored) []map[string]any {
	out := make([]map[string]any, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Document.Fields)
	}
	return out
}
