package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/metrics"
	"github.com/JakeFAU/program-crawler/internal/search"
)

// Searcher answers search and weight queries.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Response, error)
	QueryWeights(ctx context.Context, query string) search.Weights
}

// Assistant streams filter suggestions for a query.
type Assistant interface {
	Run(ctx context.Context, query string, emit func(string) error) error
}

// Reindexer rebuilds the search corpus.
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
	Weights() search.Weights
}

// RequestIDs generates request identifiers.
type RequestIDs interface {
	NewRequestID() string
}

// Deps are the services behind the handlers. Assistant and Index may be nil,
// in which case their routes answer 503.
type Deps struct {
	Search    Searcher
	Assistant Assistant
	Index     Reindexer
	IDs       RequestIDs
	// Ready reports whether the service can take traffic; nil means always.
	Ready func(ctx context.Context) error
}

// Config tunes the server.
type Config struct {
	RequestTimeout time.Duration
	AuthEnabled    bool
	APIKey         string
}

// Server wires HTTP handlers to the search services.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(deps.IDs))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Group(func(r chi.Router) {
			if cfg.AuthEnabled {
				r.Use(apiKeyMiddleware(cfg.APIKey))
			}
			// Streams are long-lived and need a flushable writer.
			r.Get("/ai_stream_search", s.streamSearch)
			r.Group(func(r chi.Router) {
				r.Use(timeoutMiddleware(cfg.RequestTimeout))
				r.Get("/search", s.search)
				r.Get("/weights", s.weights)
				r.Post("/init", s.reindex)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "search service is running"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("query")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	topK := 0
	if raw := params.Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}
	resp, err := s.deps.Search.Search(r.Context(), search.Query{
		Text:      query,
		UseVector: flag(params.Get("use_vector")),
		UseLLM:    flag(params.Get("use_llm")),
		TopK:      topK,
	})
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) weights(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"weights": s.deps.Search.QueryWeights(r.Context(), query),
		"status":  "success",
	})
}

func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		writeError(w, http.StatusServiceUnavailable, "indexing is not configured")
		return
	}
	n, err := s.deps.Index.Reindex(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err), zap.String("request_id", RequestIDFrom(r.Context())))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("corpus rebuilt", zap.Int("documents", n))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"message":      "corpus rebuilt from stored results",
		"documents":    n,
		"weights_used": s.deps.Index.Weights(),
	})
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNoEmbedder):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err), zap.String("request_id", RequestIDFrom(r.Context())))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// flag parses a boolean query parameter; anything unrecognized is false.
func flag(raw string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
