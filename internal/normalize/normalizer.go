package normalize

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

// Normalizer fetches a program page and cleans it down to text.
type Normalizer struct {
	fetcher crawler.Fetcher
	clock   crawler.Clock
	logger  *zap.Logger
	headers http.Header
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for FetchedAt.
func WithClock(clock crawler.Clock) Option {
	return func(n *Normalizer) { n.clock = clock }
}

// WithHeaders adds request headers to every fetch.
func WithHeaders(h http.Header) Option {
	return func(n *Normalizer) { n.headers = h.Clone() }
}

// New wires a Normalizer around a fetcher.
func New(fetcher crawler.Fetcher, logger *zap.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{fetcher: fetcher, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize fetches url and returns the cleaned page. It fails with
// *crawler.FetchError on transport or status problems and with
// *crawler.EmptyContentError when nothing readable remains.
func (n *Normalizer) Normalize(ctx context.Context, url string) (crawler.ExtractionTarget, error) {
	resp, err := n.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Headers: n.headers})
	if err != nil {
		return crawler.ExtractionTarget{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return crawler.ExtractionTarget{}, &crawler.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	text, err := Clean(resp.Body)
	if err != nil {
		return crawler.ExtractionTarget{}, fmt.Errorf("clean %s: %w", url, err)
	}
	if text == "" {
		return crawler.ExtractionTarget{}, &crawler.EmptyContentError{URL: url}
	}

	n.logger.Debug("page normalized",
		zap.String("url", url),
		zap.Int("html_bytes", len(resp.Body)),
		zap.Int("text_chars", len(text)),
	)
	return crawler.ExtractionTarget{
		URL:            url,
		RawHTML:        resp.Body,
		NormalizedText: text,
		FetchedAt:      n.now(),
		StatusCode:     resp.StatusCode,
	}, nil
}

func (n *Normalizer) now() time.Time {
	if n.clock != nil {
		return n.clock.Now()
	}
	return time.Now().UTC()
}
