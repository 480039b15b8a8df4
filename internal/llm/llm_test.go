package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeCompleter) CompleteWithSystem(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		reply   string
		want    bool
		wantErr bool
	}{
		{"YES", true, false},
		{"Yes.", true, false},
		{"**yes** - it covers qubits", true, false},
		{"No", false, false},
		{"NO, unrelated sports article", false, false},
		{"Not relevant.", false, false},
		{"It depends", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		f := &fakeCompleter{reply: tt.reply}
		got, err := New(f).IsRelevant(context.Background(), "Qubits are...", "quantum computing")
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnparseable, tt.reply)
			continue
		}
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, got, tt.reply)
	}
}

func TestIsRelevantEmptySnippetSkipsModel(t *testing.T) {
	f := &fakeCompleter{reply: "YES"}
	ok, err := New(f).IsRelevant(context.Background(), "   ", "q")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.prompts)
}

func TestIsRelevantTruncatesSnippet(t *testing.T) {
	f := &fakeCompleter{reply: "yes"}
	m := New(f, Options{MaxSnippetChars: 10})
	_, err := m.IsRelevant(context.Background(), strings.Repeat("a", 50)+"TAIL", "q")
	require.NoError(t, err)
	assert.Contains(t, f.lastPrompt(), strings.Repeat("a", 10))
	assert.NotContains(t, f.lastPrompt(), "TAIL")
}

func TestExtractKeyPoints(t *testing.T) {
	f := &fakeCompleter{reply: "Key points:\n- Qubits use superposition.\n* Entanglement links qubits.\n\n3. Shor's algorithm factors integers.\n- qubits use superposition."}
	points, err := New(f).ExtractKeyPoints(context.Background(), "some long text")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Qubits use superposition.",
		"Entanglement links qubits.",
		"Shor's algorithm factors integers.",
	}, points)
}

func TestExtractKeyPointsJSONAndCap(t *testing.T) {
	f := &fakeCompleter{reply: "```json\n[\"a\", \"b\", \"c\"]\n```"}
	points, err := New(f, Options{MaxPoints: 2}).ExtractKeyPoints(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, points)
}

func TestExtractKeyPointsErrors(t *testing.T) {
	_, err := New(&fakeCompleter{}).ExtractKeyPoints(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = New(&fakeCompleter{reply: "   "}).ExtractKeyPoints(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUnparseable)

	boom := errors.New("quota")
	_, err = New(&fakeCompleter{err: boom}).ExtractKeyPoints(context.Background(), "text")
	assert.ErrorIs(t, err, boom)
}

func TestSynthesize(t *testing.T) {
	f := &fakeCompleter{reply: "  Quantum computers exploit superposition.  "}
	out, err := New(f).Synthesize(context.Background(), "quantum computing", []string{"one", " ", "two"})
	require.NoError(t, err)
	assert.Equal(t, "Quantum computers exploit superposition.", out)
	assert.Contains(t, f.lastPrompt(), "- one\n- two\n")
	assert.Contains(t, f.lastPrompt(), "quantum computing")

	_, err = New(f).Synthesize(context.Background(), "q", []string{"", "  "})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestPlan(t *testing.T) {
	f := &fakeCompleter{reply: "```\n1. Read surveys\n2. Read papers\n```"}
	plan, err := New(f).Plan(context.Background(), "quantum computing")
	require.NoError(t, err)
	assert.Equal(t, "1. Read surveys\n2. Read papers", plan)

	_, err = New(f).Plan(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = New(&fakeCompleter{reply: ""}).Plan(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStripMarker(t *testing.T) {
	assert.Equal(t, "x", stripMarker("- x"))
	assert.Equal(t, "x", stripMarker("12) x"))
	assert.Equal(t, "x", stripMarker("• x"))
	assert.Equal(t, "2024 was a year", stripMarker("2024 was a year"))
}
