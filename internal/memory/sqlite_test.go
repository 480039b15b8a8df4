package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"quantum", "qubit", "football", "goal"}

// bagEmbedder counts vocabulary words, which is enough to make cosine
// similarity meaningful in tests.
type bagEmbedder struct{ fail bool }

func (b bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if b.fail {
		return nil, errors.New("embedding service down")
	}
	vec := make([]float32, len(vocabulary))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		for i, v := range vocabulary {
			if strings.HasPrefix(w, v) {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func openTest(t *testing.T, e Embedder) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:", e)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestVectorRecall(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, bagEmbedder{})
	require.NoError(t, s.Store(ctx, "Quantum computers manipulate qubits.", map[string]string{"query": "quantum computing"}))
	require.NoError(t, s.Store(ctx, "The football match ended with a late goal.", nil))

	results, err := s.Search(ctx, "quantum qubit", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Quantum computers manipulate qubits.", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "quantum computing", results[0].Metadata["query"])
	assert.False(t, results[0].CreatedAt.IsZero())
	assert.NotEmpty(t, results[0].ID)
}

func TestKeywordRecallWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	require.NoError(t, s.Store(ctx, "Quantum computing uses qubits.", nil))
	require.NoError(t, s.Store(ctx, "Quantum field theory overview.", nil))
	require.NoError(t, s.Store(ctx, "Sports news.", nil))

	results, err := s.Search(ctx, "quantum qubits", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Quantum computing uses qubits.", results[0].Content)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, 0.5, results[1].Score)
}

func TestStoreDeduplicatesContent(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	require.NoError(t, s.Store(ctx, "Qubits decohere.", map[string]string{"confidence": "0.45"}))
	require.NoError(t, s.Store(ctx, "  Qubits decohere.  ", map[string]string{"confidence": "0.75"}))

	results, err := s.Search(ctx, "qubits", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "0.75", results[0].Metadata["confidence"])
}

func TestEmbedderFailureFallsBackToKeywords(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, bagEmbedder{fail: true})
	require.NoError(t, s.Store(ctx, "Quantum annealing differs from gate models.", nil))

	results, err := s.Search(ctx, "quantum annealing", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchLimitAndEmptyInput(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, nil)
	for _, c := range []string{"quantum one", "quantum two", "quantum three"} {
		require.NoError(t, s.Store(ctx, c, nil))
	}

	results, err := s.Search(ctx, "quantum", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(ctx, "   ", 2)
	require.NoError(t, err)
	assert.Nil(t, results)

	assert.Error(t, s.Store(ctx, " ", nil))
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Store(context.Background(), "persisted synthesis about qubits", nil))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	results, err := s.Search(context.Background(), "qubits", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
