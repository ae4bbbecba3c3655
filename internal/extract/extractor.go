package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/llm"
)

// DefaultMaxTokens is the completion budget for extraction and validation.
const DefaultMaxTokens = 8000

// Completer runs a single chat completion.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Extractor issues the initial extraction request.
type Extractor struct {
	model     Completer
	maxTokens int
	logger    *zap.Logger
}

// NewExtractor builds an Extractor. A non-positive maxTokens uses DefaultMaxTokens.
func NewExtractor(model Completer, maxTokens int, logger *zap.Logger) *Extractor {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{model: model, maxTokens: maxTokens, logger: logger}
}

// Extract asks the model for a schema-conforming document at temperature 0.
// Model failures surface as *llm.APIError and undecodable output as
// *crawler.ParseError; neither is retried here.
func (e *Extractor) Extract(ctx context.Context, text string) (crawler.ProgramInfo, error) {
	content, err := e.model.Chat(ctx, llm.ChatRequest{
		Messages:    extractionMessages(text),
		Temperature: 0,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return crawler.ProgramInfo{}, fmt.Errorf("extract program: %w", err)
	}
	program, err := ParseProgram(content)
	if err != nil {
		e.logger.Debug("extraction output not parseable", zap.Int("content_chars", len(content)), zap.Error(err))
		return crawler.ProgramInfo{}, fmt.Errorf("extract program: %w", err)
	}
	return program, nil
}
