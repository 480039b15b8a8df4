// Package browsertest provides an in-memory worker factory for tests that
// exercise the pool without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"webresearch/internal/browser"
)

// RenderFunc produces markup for a request.
type RenderFunc func(ctx context.Context, req browser.RenderRequest) (string, error)

// Factory creates fake workers that delegate to Render.
type Factory struct {
	Render RenderFunc

	// FailCreateAfter makes NewWorker fail once this many workers exist (0 = never).
	FailCreateAfter int

	// BeforeCreate, if set, runs before the n-th NewWorker call (1-based)
	// without holding the factory lock. It may block.
	BeforeCreate func(n int)

	mu       sync.Mutex
	attempts int
	created  int
	closed   int
	inflight int
	peak     int
	calls    []string

	factoryClosed atomic.Bool
}

// NewFactory returns a factory whose workers call render.
func NewFactory(render RenderFunc) *Factory {
	return &Factory{Render: render}
}

// StaticHTML returns a RenderFunc that always returns html.
func StaticHTML(html string) RenderFunc {
	return func(ctx context.Context, req browser.RenderRequest) (string, error) {
		return html, nil
	}
}

func (f *Factory) NewWorker(ctx context.Context) (browser.Worker, error) {
	f.mu.Lock()
	f.attempts++
	n, hook := f.attempts, f.BeforeCreate
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateAfter > 0 && f.created >= f.FailCreateAfter {
		return nil, fmt.Errorf("fake: refusing to create worker %d", f.created+1)
	}
	f.created++
	return &worker{id: fmt.Sprintf("fake-%d", f.created), f: f}, nil
}

func (f *Factory) Close() error {
	f.factoryClosed.Store(true)
	return nil
}

// Created returns how many workers were created.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// ClosedWorkers returns how many workers were closed.
func (f *Factory) ClosedWorkers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// PeakInflight is the maximum number of concurrent Render calls observed.
func (f *Factory) PeakInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// Calls returns the URLs rendered, in start order.
func (f *Factory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// FactoryClosed reports whether Close was called.
func (f *Factory) FactoryClosed() bool { return f.factoryClosed.Load() }

type worker struct {
	id string
	f  *Factory
}

func (w *worker) ID() string { return w.id }

func (w *worker) Render(ctx context.Context, req browser.RenderRequest) (string, error) {
	w.f.mu.Lock()
	w.f.inflight++
	if w.f.inflight > w.f.peak {
		w.f.peak = w.f.inflight
	}
	w.f.calls = append(w.f.calls, req.URL)
	render := w.f.Render
	w.f.mu.Unlock()

	defer func() {
		w.f.mu.Lock()
		w.f.inflight--
		w.f.mu.Unlock()
	}()

	if render == nil {
		return "<html><body></body></html>", nil
	}
	return render(ctx, req)
}

func (w *worker) Close() error {
	w.f.mu.Lock()
	w.f.closed++
	w.f.mu.Unlock()
	return nil
}
