package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ids(results []map[string]any) []string {
	var out []string
	for _, r := range results {
		out = append(out, r["program_name"].(string))
	}
	return out
}

func TestSearchKeyword(t *testing.T) {
	t.Parallel()

	e := NewEngine(sampleCorpus(), nil, nil, EngineConfig{}, zap.NewNop())
	resp, err := e.Search(context.Background(), Query{Text: "BUSINESS"})
	require.NoError(t, err)
	require.Equal(t, ModeKeyword, resp.SearchType)
	require.Equal(t, []string{"BSc Business Analytics", "Diploma in Arts"}, ids(resp.Results))
	require.Equal(t, 2, resp.Count)
	require.Nil(t, resp.Weights)

	resp, err = e.Search(context.Background(), Query{Text: "business", TopK: 1})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)

	resp, err = e.Search(context.Background(), Query{Text: "astronomy"})
	require.NoError(t, err)
	require.NotNil(t, resp.Results)
	require.Zero(t, resp.Count)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	e := NewEngine(sampleCorpus(), nil, nil, EngineConfig{}, nil)
	_, err := e.Search(context.Background(), Query{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchVector(t *testing.T) {
	t.Parallel()

	e := NewEngine(sampleCorpus(), &keywordEmbedder{}, nil, EngineConfig{TopK: 2}, zap.NewNop())
	resp, err := e.Search(context.Background(), Query{Text: "computing degree", UseVector: true})
	require.NoError(t, err)
	require.Equal(t, ModeVector, resp.SearchType)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "BSc Computing", resp.Results[0]["program_name"])

	noEmbed := NewEngine(sampleCorpus(), nil, nil, EngineConfig{}, zap.NewNop())
	_, err = noEmbed.Search(context.Background(), Query{Text: "x", UseVector: true})
	require.ErrorIs(t, err, ErrNoEmbedder)
}

func TestWeightedScoringOrder(t *testing.T) {
	t.Parallel()

	model := &stubModel{reply: `{"program_name": 3, "discipline": 2.5, "introduction": 2}`}
	e := NewEngine(sampleCorpus(), &keywordEmbedder{}, model, EngineConfig{}, zap.NewNop())

	scored, weights, err := e.Weighted(context.Background(), "business", 10)
	require.NoError(t, err)
	require.Equal(t, Weights{"program_name": 3, "discipline": 2.5, "introduction": 2}, weights)

	// Prefilter drops the computing program: no heavy field mentions "business".
	require.Len(t, scored, 2)
	// Doc 1: cosine 1 + 0.3*3 + 0.3*2.5 = 2.65.
	require.Equal(t, "1", scored[0].Document.ID)
	require.InDelta(t, 2.65, scored[0].Score, 1e-9)
	// Doc 3: cosine(~0.196) + 0.3*2 for the introduction.
	require.Equal(t, "3", scored[1].Document.ID)
	require.Greater(t, scored[0].Score, scored[1].Score)
}

func TestWeightedFallsBackToAllDocuments(t *testing.T) {
	t.Parallel()

	e := NewEngine(sampleCorpus(), &keywordEmbedder{}, nil, EngineConfig{}, zap.NewNop())
	resp, err := e.Search(context.Background(), Query{Text: "astronomy", UseLLM: true, UseVector: true})
	require.NoError(t, err)
	require.Equal(t, ModeWeighted, resp.SearchType)
	require.Equal(t, 3, resp.Count)
	require.Equal(t, DefaultQueryWeights(), resp.Weights)
}

func TestQueryWeightsCachesModelReplies(t *testing.T) {
	t.Parallel()

	model := &stubModel{reply: `{"university": 4}`}
	e := NewEngine(sampleCorpus(), nil, model, EngineConfig{CacheSize: 10}, zap.NewNop())

	first := e.QueryWeights(context.Background(), "  UOL programs ")
	second := e.QueryWeights(context.Background(), "uol programs")
	require.Equal(t, Weights{"university": 4}, first)
	require.Equal(t, first, second)
	require.Equal(t, 1, model.Calls())
}

func TestQueryWeightsDefaultsAreNotCached(t *testing.T) {
	t.Parallel()

	model := &stubModel{err: errBoom}
	e := NewEngine(sampleCorpus(), nil, model, EngineConfig{}, zap.NewNop())
	require.Equal(t, DefaultQueryWeights(), e.QueryWeights(context.Background(), "q"))
	require.Equal(t, DefaultQueryWeights(), e.QueryWeights(context.Background(), "q"))
	require.Equal(t, 2, model.Calls())

	model.reply, model.err = "not json", nil
	require.Equal(t, DefaultQueryWeights(), e.QueryWeights(context.Background(), "other"))
}

func TestCosine(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	require.Zero(t, cosine([]float64{1}, []float64{1, 2}))
	require.Zero(t, cosine([]float64{0, 0}, []float64{1, 2}))
	require.Zero(t, cosine(nil, nil))
}
