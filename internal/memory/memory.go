// Package memory persists research syntheses and recalls them for later
// runs. Recall is semantic when an embedder is configured and falls back to
// keyword matching otherwise.
package memory

import (
	"context"
	"math"
	"time"
)

// Result is one recalled memory.
type Result struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Score     float64           `json:"score"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is the optional memory collaborator. Callers treat every error as
// non-fatal.
type Store interface {
	Store(ctx context.Context, content string, metadata map[string]string) error
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
