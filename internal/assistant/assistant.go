package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/llm"
)

// StreamEnd is always the last fragment of a response stream.
const StreamEnd = "<<STREAM_END>>"

const (
	streamTemperature = 0.3
	streamMaxTokens   = 2000
)

// ErrNotConfigured is reported when no model is available.
var ErrNotConfigured = errors.New("assistant model is not configured")

// Streamer runs a streaming completion.
type Streamer interface {
	Stream(ctx context.Context, req llm.ChatRequest, onFragment func(string) error) error
}

// Assistant streams filter suggestions for a query.
type Assistant struct {
	model  Streamer
	source DocumentSource
	logger *zap.Logger
}

// New returns an Assistant. A nil model yields an error fragment on every call.
func New(model Streamer, source DocumentSource, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{model: model, source: source, logger: logger}
}

// Run streams the response for query through emit: reasoning fragments, the
// marker, the snapped filter object and finally StreamEnd. Failures are
// reported in-band as "Error: ..." fragments. Run only returns an error when
// emit fails, which means the client has gone away.
func (a *Assistant) Run(ctx context.Context, query string, emit func(string) error) error {
	if err := a.run(ctx, query, emit); err != nil {
		var sinkErr *emitError
		if errors.As(err, &sinkErr) {
			return sinkErr.err
		}
		a.logger.Warn("assistant stream failed", zap.String("query", query), zap.Error(err))
		if err := emit("Error: " + err.Error()); err != nil {
			return err
		}
	}
	return emit(StreamEnd)
}

// emitError marks failures of the caller's emit function so they are not
// reported back through it.
type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }

func (a *Assistant) run(ctx context.Context, query string, emit func(string) error) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query must not be empty")
	}
	if a.model == nil {
		return ErrNotConfigured
	}
	opts, err := LoadOptions(ctx, a.source)
	if err != nil {
		return err
	}
	msgs, err := messages(query, opts)
	if err != nil {
		return err
	}

	forward := func(s string) error {
		if err := emit(s); err != nil {
			return &emitError{err: err}
		}
		return nil
	}
	splitter := NewSplitter(forward, func(payload string) string {
		return a.snapPayload(payload, opts)
	})
	err = a.model.Stream(ctx, llm.ChatRequest{
		Messages:    msgs,
		Temperature: streamTemperature,
		MaxTokens:   streamMaxTokens,
	}, splitter.Write)
	if err != nil {
		var sinkErr *emitError
		if errors.As(err, &sinkErr) {
			return err
		}
		return fmt.Errorf("model stream: %w", err)
	}
	if !splitter.SawMarker() {
		a.logger.Warn("stream ended without marker", zap.String("query", query))
	}
	return splitter.Finish()
}

// snapPayload constrains the model's filters to the options. A payload that
// does not parse is passed through unchanged so the client still sees it.
func (a *Assistant) snapPayload(payload string, opts Options) string {
	parsed, err := ParsePayload(payload)
	if err != nil {
		a.logger.Warn("unparseable filter payload", zap.String("payload", payload), zap.Error(err))
		return payload
	}
	snapped, err := json.Marshal(Snap(parsed, opts))
	if err != nil {
		return payload
	}
	return string(snapped)
}
