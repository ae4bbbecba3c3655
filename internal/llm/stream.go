package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/JakeFAU/program-crawler/internal/metrics"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream runs a streaming completion, calling onFragment with every non-empty
// content delta until the server sends [DONE] or finish_reason "stop".
// Returning an error from onFragment aborts the stream.
func (c *Client) Stream(ctx context.Context, req ChatRequest, onFragment func(string) error) error {
	ctx, span := tracer.Start(ctx, "llm.stream")
	defer span.End()

	start := time.Now()
	err := c.stream(ctx, req, onFragment)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
	}
	metrics.ObserveLLMRequest("stream", outcome, time.Since(start))
	return err
}

func (c *Client) stream(ctx context.Context, req ChatRequest, onFragment func(string) error) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.TimeoutFor(req.MaxTokens))
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(chatPayload{
			Model:       c.cfg.Model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Stream:      true,
		}).
		Post("/chat/completions")
	if err != nil {
		return &APIError{Err: fmt.Errorf("post streaming completion: %w", err)}
	}
	body := resp.RawBody()
	defer body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		raw, _ := io.ReadAll(io.LimitReader(body, 4096))
		return &APIError{StatusCode: resp.StatusCode(), Body: string(raw)}
	}
	return readEvents(body, onFragment)
}

// readEvents consumes server-sent event lines from r.
func readEvents(r io.Reader, onFragment func(string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if data == sseDone {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if err := onFragment(choice.Delta.Content); err != nil {
				return err
			}
		}
		if choice.FinishReason != nil && *choice.FinishReason == "stop" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &APIError{Err: fmt.Errorf("read stream: %w", err)}
	}
	return nil
}
