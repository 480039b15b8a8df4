package memory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGenAIEmbedderRequestsSemanticSimilarity(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		select {
		case bodies <- string(b):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.25,0.5,1]}]}`))
	}))
	defer srv.Close()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	})
	require.NoError(t, err)

	e, err := NewGenAIEmbedder(client, "")
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "quantum error correction")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 1}, vec)

	body := <-bodies
	assert.Contains(t, body, "SEMANTIC_SIMILARITY")
	assert.Contains(t, body, "quantum error correction")
}

func TestNewGenAIEmbedderRequiresClient(t *testing.T) {
	_, err := NewGenAIEmbedder(nil, "")
	assert.Error(t, err)
}
