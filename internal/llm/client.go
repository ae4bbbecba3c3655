// Package llm talks to an OpenAI-compatible chat-completion and embedding API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/metrics"
)

var tracer = otel.Tracer("program-crawler/llm")

// longRequestTokens is the max_tokens threshold above which the long timeout applies.
const longRequestTokens = 1000

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// ChatRequest describes one completion call.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	ShortTimeout time.Duration
	LongTimeout  time.Duration
}

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// APIError reports a failed model call: a non-2xx status, a transport
// failure or timeout, or a response without choices.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm api status %d: %s", e.StatusCode, truncate(e.Body, 300))
	}
	return fmt.Sprintf("llm api: %v", e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client is a thin resty wrapper around the completion endpoints.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter Limiter
	logger  *zap.Logger
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = 60 * time.Second
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = 180 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Client{cfg: cfg, http: client, limiter: limiter, logger: logger}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// TimeoutFor picks the request budget for a token limit.
func (c *Client) TimeoutFor(maxTokens int) time.Duration {
	if maxTokens > longRequestTokens {
		return c.cfg.LongTimeout
	}
	return c.cfg.ShortTimeout
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat runs a non-streaming completion and returns choices[0].message.content.
// An empty string with a nil error means the model answered with no content.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	)

	start := time.Now()
	content, err := c.chat(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
	}
	metrics.ObserveLLMRequest("chat", outcome, time.Since(start))
	return content, err
}

func (c *Client) chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.TimeoutFor(req.MaxTokens))
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatPayload{
			Model:       c.cfg.Model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}).
		Post("/chat/completions")
	if err != nil {
		return "", &APIError{Err: fmt.Errorf("post chat completion: %w", err)}
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &APIError{Err: errors.New("response has no choices")}
	}
	c.logger.Debug("chat completion",
		zap.String("model", c.cfg.Model),
		zap.Int("content_chars", len(out.Choices[0].Message.Content)),
		zap.String("finish_reason", out.Choices[0].FinishReason),
	)
	return out.Choices[0].Message.Content, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, c.cfg.BaseURL); err != nil {
		return &APIError{Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
