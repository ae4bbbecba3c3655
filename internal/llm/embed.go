package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/program-crawler/internal/metrics"
)

type embeddingPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "llm.embed")
	defer span.End()

	start := time.Now()
	vectors, err := c.embed(ctx, inputs)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	metrics.ObserveLLMRequest("embed", outcome, time.Since(start))
	return vectors, err
}

func (c *Client) embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ShortTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embeddingPayload{Model: c.cfg.Model, Input: inputs}).
		Post("/embeddings")
	if err != nil {
		return nil, &APIError{Err: fmt.Errorf("post embeddings: %w", err)}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var out embeddingResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("decode embeddings: %w", err)}
	}
	if len(out.Data) != len(inputs) {
		return nil, &APIError{Err: fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(out.Data))}
	}
	vectors := make([][]float64, len(inputs))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(inputs) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, nil
}
