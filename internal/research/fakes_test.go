package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"webresearch/internal/extract"
	"webresearch/internal/memory"
	"webresearch/internal/search"
)

type fakeModel struct {
	planErr  error
	relevant func(text string) bool
	points   int
	synthErr error

	mu          sync.Mutex
	relevance   int
	keyPoints   int
	synthInputs [][]string
}

func (m *fakeModel) Plan(ctx context.Context, query string) (string, error) {
	if m.planErr != nil {
		return "", m.planErr
	}
	return "1. search\n2. read", nil
}

func (m *fakeModel) IsRelevant(ctx context.Context, snippet, query string) (bool, error) {
	m.mu.Lock()
	m.relevance++
	m.mu.Unlock()
	if m.relevant == nil {
		return true, nil
	}
	return m.relevant(snippet), nil
}

func (m *fakeModel) ExtractKeyPoints(ctx context.Context, text string) ([]string, error) {
	m.mu.Lock()
	m.keyPoints++
	m.mu.Unlock()
	n := max(m.points, 1)
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("point %d of %s", i, firstWords(text, 4))
	}
	return out, nil
}

func (m *fakeModel) Synthesize(ctx context.Context, query string, points []string) (string, error) {
	m.mu.Lock()
	m.synthInputs = append(m.synthInputs, append([]string(nil), points...))
	m.mu.Unlock()
	if m.synthErr != nil {
		return "", m.synthErr
	}
	return fmt.Sprintf("synthesis of %d points about %s", len(points), query), nil
}

func (m *fakeModel) synthCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.synthInputs...)
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}

type fakeSearch struct {
	results []search.Candidate
	err     error
}

func (s fakeSearch) Search(ctx context.Context, query string) ([]search.Candidate, error) {
	return s.results, s.err
}

// fakeDocs returns a document per URL, optionally blocking until release.
type fakeDocs struct {
	release chan struct{}

	mu    sync.Mutex
	calls []string
}

func (d *fakeDocs) Extract(ctx context.Context, url string) extract.Document {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	if d.release != nil {
		<-d.release
	}
	return extract.Document{
		URL:      url,
		Title:    "Paper " + url,
		MainText: "Quantum error correction protects logical qubits from noise.",
		Success:  true,
	}
}

func (d *fakeDocs) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// fakeWeb serves each URL after a per-URL delay. URLs containing "stuck"
// ignore ctx and wait for release.
type fakeWeb struct {
	delay   time.Duration
	release chan struct{}
}

func (w *fakeWeb) Each(ctx context.Context, urls []string, concurrency int, delay time.Duration, onDone func(int, extract.Document)) {
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if strings.Contains(u, "stuck") {
				<-w.release
			} else if w.delay > 0 {
				select {
				case <-time.After(w.delay):
				case <-ctx.Done():
					onDone(i, extract.Failed(u, ctx.Err()))
					return
				}
			}
			onDone(i, extract.Document{URL: u, Title: "Page", MainText: "Quantum computing uses qubits " + u, Success: true})
		}()
	}
	wg.Wait()
}

type fakeMemory struct {
	seed     []memory.Result
	storeErr error

	mu     sync.Mutex
	stored []map[string]string
}

func (m *fakeMemory) Store(ctx context.Context, content string, metadata map[string]string) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, metadata)
	return nil
}

func (m *fakeMemory) Search(ctx context.Context, query string, limit int) ([]memory.Result, error) {
	if m.seed == nil {
		return nil, errors.New("memory offline")
	}
	return m.seed, nil
}

func webCandidates(n int) []search.Candidate {
	out := make([]search.Candidate, n)
	for i := range out {
		out[i] = search.Candidate{
			Title:   fmt.Sprintf("Article %d", i),
			URL:     fmt.Sprintf("https://site%d.example.com/quantum", i),
			Snippet: fmt.Sprintf("quantum computing overview %d", i),
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InterItemDelay = 0
	cfg.ExtractDeadline = 5 * time.Second
	cfg.Timeout = 10 * time.Second
	return cfg
}
