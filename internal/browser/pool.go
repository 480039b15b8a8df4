// Package browser owns the pool of reusable page-rendering workers.
//
// The pool has two independent limits: Size bounds how many workers exist
// (memory/process cost) and MaxConcurrency bounds how many may be checked out
// at the same time. Acquire waits on a weighted semaphore, never spins, and
// every checked-out worker is returned through Release exactly once.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"webresearch/internal/logging"
)

var (
	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrWorkerBroken marks a render failure caused by the worker itself
	// (crashed target, lost connection). The pool replaces such workers.
	ErrWorkerBroken = errors.New("worker broken")
)

// RenderRequest describes one navigation.
type RenderRequest struct {
	URL               string
	WaitForSelector   string        // optional readiness condition
	SelectorGrace     time.Duration // how long to wait for WaitForSelector
	NavigationTimeout time.Duration // bound on a single navigation
}

// Worker is a long-lived resource able to render one page at a time.
type Worker interface {
	ID() string
	// Render navigates to req.URL and returns the page markup.
	Render(ctx context.Context, req RenderRequest) (string, error)
	Close() error
}

// Factory creates workers and owns whatever they share (e.g. the browser process).
type Factory interface {
	NewWorker(ctx context.Context) (Worker, error)
	Close() error
}

// Config sizes the pool.
type Config struct {
	Size           int
	MaxConcurrency int // <= 0 or > Size means Size
	// ReplaceTimeout bounds creating a replacement for a broken worker.
	// On timeout the broken worker is kept. Zero means 10s.
	ReplaceTimeout time.Duration
}

// Stats is a point-in-time view of pool bookkeeping.
type Stats struct {
	Size        int
	Ceiling     int
	InUse       int
	PeakInUse   int
	Waiting     int
	Acquired    int64
	Replaced    int64
	DoubleFrees int64
}

type slot struct {
	worker     Worker
	inUse      bool
	lastUsedAt time.Time
}

// Pool hands out workers under a concurrency ceiling.
type Pool struct {
	factory        Factory
	size           int
	ceiling        int
	replaceTimeout time.Duration
	sem            *semaphore.Weighted
	idle           chan *slot

	mu     sync.Mutex
	slots  map[string]*slot
	inUse  int
	peak   int
	closed bool

	waiting     atomic.Int32
	acquired    atomic.Int64
	replaced    atomic.Int64
	doubleFrees atomic.Int64
}

// NewPool creates every worker up front. If any worker cannot be created the
// ones already created are closed and the error is returned.
func NewPool(ctx context.Context, cfg Config, factory Factory) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("browser: nil worker factory")
	}
	if cfg.Size < 1 {
		return nil, fmt.Errorf("browser: pool size must be >= 1, got %d", cfg.Size)
	}
	ceiling := cfg.MaxConcurrency
	if ceiling <= 0 || ceiling > cfg.Size {
		if ceiling > cfg.Size {
			logging.PoolWarn("concurrency ceiling %d exceeds pool size %d; clamping", ceiling, cfg.Size)
		}
		ceiling = cfg.Size
	}

	if cfg.ReplaceTimeout <= 0 {
		cfg.ReplaceTimeout = 10 * time.Second
	}

	p := &Pool{
		factory:        factory,
		size:           cfg.Size,
		ceiling:        ceiling,
		replaceTimeout: cfg.ReplaceTimeout,
		sem:            semaphore.NewWeighted(int64(ceiling)),
		idle:           make(chan *slot, cfg.Size),
		slots:          make(map[string]*slot, cfg.Size),
	}

	for i := 0; i < cfg.Size; i++ {
		w, err := factory.NewWorker(ctx)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("browser: create worker %d/%d: %w", i+1, cfg.Size, err)
		}
		s := &slot{worker: w, lastUsedAt: time.Now()}
		p.slots[w.ID()] = s
		p.idle <- s
	}

	logging.Pool("worker pool ready (size=%d, ceiling=%d)", p.size, p.ceiling)
	return p, nil
}

// Acquire checks out a worker, waiting until the ceiling has headroom.
// Callers must Release the worker; prefer With, which does so on every path.
func (p *Pool) Acquire(ctx context.Context) (Worker, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return nil, fmt.Errorf("browser: acquire: %w", err)
	}

	// Holding a permit guarantees an idle worker exists because the ceiling
	// never exceeds the pool size.
	var s *slot
	select {
	case s = <-p.idle:
	case <-ctx.Done():
		p.sem.Release(1)
		return nil, fmt.Errorf("browser: acquire: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.idle <- s
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	s.inUse = true
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	inUse := p.inUse
	p.mu.Unlock()

	p.acquired.Add(1)
	logging.PoolDebug("acquired worker %s (in_use=%d/%d)", s.worker.ID(), inUse, p.ceiling)
	return s.worker, nil
}

// Release returns a worker to the pool. Releasing a worker that is not
// checked out is a no-op.
func (p *Pool) Release(w Worker) {
	p.release(w, nil)
}

func (p *Pool) release(w Worker, cause error) {
	if w == nil {
		return
	}

	p.mu.Lock()
	s, ok := p.slots[w.ID()]
	if !ok || !s.inUse {
		p.mu.Unlock()
		p.doubleFrees.Add(1)
		logging.PoolDebug("ignoring release of worker %s: not checked out", w.ID())
		return
	}
	s.inUse = false
	s.lastUsedAt = time.Now()
	p.inUse--
	closed := p.closed
	p.mu.Unlock()

	if errors.Is(cause, ErrWorkerBroken) && !closed {
		p.replace(s)
	}

	p.idle <- s
	p.sem.Release(1)
	logging.PoolDebug("released worker %s", s.worker.ID())
}

type newWorkerResult struct {
	worker Worker
	err    error
}

// replace swaps a broken worker for a fresh one. The slot is not idle while
// this runs, so no other goroutine can observe it. Creation is bounded by
// replaceTimeout even when the factory ignores its context; a worker that
// arrives late is closed.
func (p *Pool) replace(s *slot) {
	old := s.worker

	ctx, cancel := context.WithTimeout(context.Background(), p.replaceTimeout)
	defer cancel()
	done := make(chan newWorkerResult, 1)
	go func() {
		w, err := p.factory.NewWorker(ctx)
		done <- newWorkerResult{worker: w, err: err}
	}()

	var fresh Worker
	select {
	case c := <-done:
		if c.err != nil {
			logging.PoolError("replace broken worker %s: %v (keeping it)", old.ID(), c.err)
			return
		}
		fresh = c.worker
	case <-ctx.Done():
		logging.PoolError("replace broken worker %s: timed out after %v (keeping it)", old.ID(), p.replaceTimeout)
		go func() {
			if c := <-done; c.err == nil && c.worker != nil {
				_ = c.worker.Close()
			}
		}()
		return
	}
	_ = old.Close()

	p.mu.Lock()
	delete(p.slots, old.ID())
	s.worker = fresh
	p.slots[fresh.ID()] = s
	p.mu.Unlock()

	p.replaced.Add(1)
	logging.PoolWarn("replaced broken worker %s with %s", old.ID(), fresh.ID())
}

// With runs fn with a checked-out worker and releases it on every exit path,
// including panics and cancellation of ctx.
func (p *Pool) With(ctx context.Context, fn func(ctx context.Context, w Worker) error) (err error) {
	w, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { p.release(w, err) }()
	return fn(ctx, w)
}

// Stats returns current bookkeeping.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:        p.size,
		Ceiling:     p.ceiling,
		InUse:       p.inUse,
		PeakInUse:   p.peak,
		Waiting:     int(p.waiting.Load()),
		Acquired:    p.acquired.Load(),
		Replaced:    p.replaced.Load(),
		DoubleFrees: p.doubleFrees.Load(),
	}
}

// Shutdown stops handing out workers, waits (bounded by ctx) for checked-out
// workers to come back, then closes every worker and the factory.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := true
	if err := p.sem.Acquire(ctx, int64(p.ceiling)); err != nil {
		drained = false
		logging.PoolWarn("shutdown: %d workers still in use, closing anyway", p.Stats().InUse)
	}

	p.closeAll()
	if drained {
		p.sem.Release(int64(p.ceiling))
	}
	logging.Pool("worker pool shut down")
	return p.factory.Close()
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	workers := make([]Worker, 0, len(p.slots))
	for _, s := range p.slots {
		workers = append(workers, s.worker)
	}
	p.mu.Unlock()

	for _, w := range workers {
		if err := w.Close(); err != nil {
			logging.PoolDebug("close worker %s: %v", w.ID(), err)
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
