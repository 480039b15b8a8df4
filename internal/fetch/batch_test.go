package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webresearch/internal/browser"
	"webresearch/internal/extract"
)

// recordingFetcher tracks concurrency and start times.
type recordingFetcher struct {
	delay time.Duration

	mu       sync.Mutex
	inflight int
	peak     int
	started  map[string]time.Time
	finished map[string]time.Time
}

func newRecordingFetcher(delay time.Duration) *recordingFetcher {
	return &recordingFetcher{delay: delay, started: map[string]time.Time{}, finished: map[string]time.Time{}}
}

func (r *recordingFetcher) Fetch(ctx context.Context, req Request) extract.Document {
	r.mu.Lock()
	r.inflight++
	r.peak = max(r.peak, r.inflight)
	r.started[req.URL] = time.Now()
	r.mu.Unlock()

	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.inflight--
	r.finished[req.URL] = time.Now()
	r.mu.Unlock()

	if strings.Contains(req.URL, "fail") {
		return extract.Failed(req.URL, errors.New("boom"))
	}
	return extract.Document{URL: req.URL, Success: true}
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://site%d.example.com/", i)
	}
	return out
}

func TestBatchWindowingBoundsInflight(t *testing.T) {
	rec := newRecordingFetcher(15 * time.Millisecond)
	in := urls(10)

	docs := NewBatch(rec).FetchAll(context.Background(), in, 3, 0)

	require.Len(t, docs, 10)
	for i, d := range docs {
		assert.Equal(t, in[i], d.URL, "results keep input order")
		assert.True(t, d.Success)
	}
	assert.LessOrEqual(t, rec.peak, 3)
	assert.Equal(t, 3, rec.peak, "items inside a window overlap")
}

func TestBatchWindowsRunSequentially(t *testing.T) {
	rec := newRecordingFetcher(10 * time.Millisecond)
	in := urls(6)

	NewBatch(rec).FetchAll(context.Background(), in, 3, 0)

	var lastOfFirst time.Time
	for _, u := range in[:3] {
		if rec.finished[u].After(lastOfFirst) {
			lastOfFirst = rec.finished[u]
		}
	}
	for _, u := range in[3:] {
		assert.False(t, rec.started[u].Before(lastOfFirst), "%s started before window 1 resolved", u)
	}
}

func TestBatchStaggersStarts(t *testing.T) {
	rec := newRecordingFetcher(time.Millisecond)
	in := urls(3)
	delay := 20 * time.Millisecond

	NewBatch(rec).FetchAll(context.Background(), in, 3, delay)

	first := rec.started[in[0]]
	assert.GreaterOrEqual(t, rec.started[in[1]].Sub(first), delay-2*time.Millisecond)
	assert.GreaterOrEqual(t, rec.started[in[2]].Sub(first), 2*delay-2*time.Millisecond)
}

func TestBatchAbsorbsFailures(t *testing.T) {
	in := []string{"https://ok.example.com", "https://fail.example.com", "https://ok2.example.com"}
	docs := NewBatch(newRecordingFetcher(time.Millisecond)).FetchAll(context.Background(), in, 2, 0)

	require.Len(t, docs, 3)
	assert.True(t, docs[0].Success)
	assert.False(t, docs[1].Success)
	assert.True(t, docs[2].Success)
}

func TestBatchCancelledContextFillsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := NewBatch(newRecordingFetcher(time.Hour)).FetchAll(ctx, urls(5), 2, 0)
	require.Len(t, docs, 5)
	for _, d := range docs {
		assert.False(t, d.Success)
		assert.Contains(t, d.Error, "context canceled")
	}
}

func TestBatchEachCallsOncePerURL(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]int{}
	NewBatch(newRecordingFetcher(time.Millisecond)).Each(context.Background(), urls(7), 3, time.Millisecond,
		func(i int, doc extract.Document) {
			mu.Lock()
			seen[i]++
			mu.Unlock()
		})
	require.Len(t, seen, 7)
	for i, n := range seen {
		assert.Equal(t, 1, n, "index %d", i)
	}
}

// A hundred URLs, half unreachable, through the real pool: every input
// yields a Document and no worker leaks.
func TestFetcherNeverFailsAtScale(t *testing.T) {
	render := func(ctx context.Context, req browser.RenderRequest) (string, error) {
		if strings.Contains(req.URL, "/down/") {
			return "", errors.New("net::ERR_NAME_NOT_RESOLVED")
		}
		return page, nil
	}
	f, pool, factory := newTestFetcher(t, 4, 3, render, DefaultConfig())

	in := make([]string, 100)
	for i := range in {
		if i%2 == 0 {
			in[i] = fmt.Sprintf("https://up.example.com/%d", i)
		} else {
			in[i] = fmt.Sprintf("https://gone.example.com/down/%d", i)
		}
	}

	docs := NewBatch(f).FetchAll(context.Background(), in, 10, 0)
	require.Len(t, docs, 100)

	failed := 0
	for i, d := range docs {
		assert.Equal(t, in[i], d.URL)
		if !d.Success {
			failed++
		}
	}
	assert.Equal(t, 50, failed)

	st := pool.Stats()
	assert.Zero(t, st.InUse)
	assert.LessOrEqual(t, st.PeakInUse, 3)
	assert.LessOrEqual(t, factory.PeakInflight(), 3)
}
