// Package llm provides the language model collaborator used by the research
// pipeline: planning, relevance judgments, key point extraction and
// synthesis, layered over any text completion client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"webresearch/internal/logging"
)

var (
	// ErrUnparseable is returned when a model answer cannot be interpreted.
	ErrUnparseable = errors.New("llm: unparseable response")
	// ErrNoInput is returned when there is nothing to send to the model.
	ErrNoInput = errors.New("llm: empty input")
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Completer is a plain request/response text completion client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LanguageModel is what the research pipeline asks of a model. Calls share
// no state and may fail independently.
type LanguageModel interface {
	Plan(ctx context.Context, query string) (string, error)
	IsRelevant(ctx context.Context, snippet, query string) (bool, error)
	ExtractKeyPoints(ctx context.Context, text string) ([]string, error)
	Synthesize(ctx context.Context, query string, points []string) (string, error)
}

// Options tunes prompt sizes.
type Options struct {
	// MaxInputChars truncates document text before key point extraction.
	MaxInputChars int
	// MaxSnippetChars truncates the relevance check input.
	MaxSnippetChars int
	// MaxPoints caps the key points kept per document.
	MaxPoints int
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{MaxInputChars: 12000, MaxSnippetChars: 1500, MaxPoints: 8}
}

// Model implements LanguageModel over a Completer.
type Model struct {
	c    Completer
	opts Options
}

var _ LanguageModel = (*Model)(nil)

// New wraps c. Zero-valued option fields take their defaults.
func New(c Completer, opts ...Options) *Model {
	o := DefaultOptions()
	if len(opts) > 0 {
		if opts[0].MaxInputChars > 0 {
			o.MaxInputChars = opts[0].MaxInputChars
		}
		if opts[0].MaxSnippetChars > 0 {
			o.MaxSnippetChars = opts[0].MaxSnippetChars
		}
		if opts[0].MaxPoints > 0 {
			o.MaxPoints = opts[0].MaxPoints
		}
	}
	return &Model{c: c, opts: o}
}

// Plan returns a short research plan for query.
func (m *Model) Plan(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoInput
	}
	resp, err := m.c.CompleteWithSystem(ctx, planSystem, fmt.Sprintf(planPrompt, query))
	if err != nil {
		return "", fmt.Errorf("plan: %w", err)
	}
	plan := strings.TrimSpace(stripFences(resp))
	if plan == "" {
		return "", fmt.Errorf("plan: %w", ErrEmptyResponse)
	}
	return plan, nil
}

// IsRelevant asks for a yes/no judgment of snippet against query.
func (m *Model) IsRelevant(ctx context.Context, snippet, query string) (bool, error) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return false, nil
	}
	prompt := fmt.Sprintf(relevancePrompt, query, truncate(snippet, m.opts.MaxSnippetChars))
	resp, err := m.c.CompleteWithSystem(ctx, relevanceSystem, prompt)
	if err != nil {
		return false, fmt.Errorf("relevance: %w", err)
	}
	ok, err := parseRelevance(resp)
	if err != nil {
		logging.LLMWarn("relevance answer not understood: %q", truncate(resp, 80))
		return false, err
	}
	return ok, nil
}

// ExtractKeyPoints distills text into at most MaxPoints short facts.
func (m *Model) ExtractKeyPoints(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoInput
	}
	prompt := fmt.Sprintf(keyPointsPrompt, m.opts.MaxPoints, truncate(text, m.opts.MaxInputChars))
	resp, err := m.c.CompleteWithSystem(ctx, keyPointsSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("key points: %w", err)
	}
	points := parseList(resp)
	if len(points) == 0 {
		return nil, fmt.Errorf("key points: %w", ErrUnparseable)
	}
	if len(points) > m.opts.MaxPoints {
		points = points[:m.opts.MaxPoints]
	}
	logging.LLMDebug("extracted %d key points", len(points))
	return points, nil
}

// Synthesize writes one narrative answering query from points.
func (m *Model) Synthesize(ctx context.Context, query string, points []string) (string, error) {
	var sb strings.Builder
	n := 0
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			n++
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	if n == 0 {
		return "", ErrNoInput
	}
	resp, err := m.c.CompleteWithSystem(ctx, synthesisSystem, fmt.Sprintf(synthesisPrompt, query, sb.String()))
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	out := strings.TrimSpace(resp)
	if out == "" {
		return "", fmt.Errorf("synthesize: %w", ErrEmptyResponse)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
