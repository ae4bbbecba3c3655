package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIndexWeightedEmbedding(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	ix := NewIndexer(emb, Weights{"program_name": 3, "discipline": 1}, 2, zap.NewNop())

	docs, err := ix.Index(context.Background(), []map[string]any{
		{"data_id": "7", "program_name": "Business", "discipline": "Computing"},
		{"program_name": "", "tags": "arts arts", "error": "Failed after 5 global retry attempts"},
		{"duration": 3.0},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	require.Equal(t, "7", docs[0].ID)
	// (3*[1,0,0] + 1*[0,1,0]) / 4, normalized.
	n := math.Sqrt(0.75*0.75 + 0.25*0.25)
	require.InDeltaSlice(t, []float64{0.75 / n, 0.25 / n, 0}, docs[0].Embedding, 1e-9)

	require.Equal(t, "doc-1", docs[1].ID)
	require.Equal(t, []float64{0, 0, 2}, docs[1].Embedding, "falls back to joined text")
	require.Nil(t, docs[2].Embedding)

	// Field batch of 2 texts, then one fallback batch.
	require.Equal(t, 2, emb.calls)
}

func TestIndexPropagatesEmbedErrors(t *testing.T) {
	t.Parallel()

	ix := NewIndexer(&keywordEmbedder{err: errBoom}, nil, 0, nil)
	_, err := ix.Index(context.Background(), []map[string]any{{"program_name": "x"}})
	require.ErrorIs(t, err, errBoom)
}

type staticSource []map[string]any

func (s staticSource) ReadAll(context.Context) ([]map[string]any, error) { return s, nil }

func TestRebuildReplacesCorpus(t *testing.T) {
	t.Parallel()

	corpus := sampleCorpus()
	ix := NewIndexer(&keywordEmbedder{}, nil, 8, zap.NewNop())
	n, err := ix.Rebuild(context.Background(), staticSource{{"program_name": "Arts"}}, corpus)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	docs, err := corpus.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "Arts", docs[0].Text("program_name"))
}
