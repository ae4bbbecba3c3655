package extract

import (
	"context"
	"sync"

	"github.com/JakeFAU/program-crawler/internal/llm"
)

// scriptedModel replays canned responses in order.
type scriptedModel struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []llm.ChatRequest
}

type scriptedResponse struct {
	content string
	err     error
}

func (m *scriptedModel) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return "", nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.content, next.err
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func reply(content string) scriptedResponse { return scriptedResponse{content: content} }
