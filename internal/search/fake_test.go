package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/JakeFAU/program-crawler/internal/llm"
)

// keywordEmbedder maps text to a 3-d vector counting the words "business",
// "computing" and "arts", so similarity is predictable in tests.
type keywordEmbedder struct {
	mu     sync.Mutex
	calls  int
	inputs []string
	err    error
}

func (k *keywordEmbedder) Embed(_ context.Context, inputs []string) ([][]float64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls++
	k.inputs = append(k.inputs, inputs...)
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		lower := strings.ToLower(in)
		out[i] = []float64{
			float64(strings.Count(lower, "business")),
			float64(strings.Count(lower, "computing")),
			float64(strings.Count(lower, "arts")),
		}
	}
	return out, nil
}

type stubModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (s *stubModel) Chat(context.Context, llm.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

func (s *stubModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errBoom = errors.New("boom")

func sampleCorpus() *MemoryCorpus {
	c := NewMemoryCorpus()
	_ = c.Replace(context.Background(), []Document{
		{ID: "1", Fields: map[string]any{
			"program_name": "BSc Business Analytics", "discipline": "Business", "university": "UOL",
		}, Embedding: []float64{1, 0, 0}},
		{ID: "2", Fields: map[string]any{
			"program_name": "BSc Computing", "discipline": "IT", "university": "UOW",
		}, Embedding: []float64{0, 1, 0}},
		{ID: "3", Fields: map[string]any{
			"program_name": "Diploma in Arts", "discipline": "Arts", "introduction": "Creative business arts",
		}, Embedding: []float64{0.2, 0, 1}},
	})
	return c
}
