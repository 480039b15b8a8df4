// Package fetch turns URLs into extracted documents using pooled browser
// workers. Fetch and the batch helpers never return errors: every failure
// becomes a Document with Success=false.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"webresearch/internal/browser"
	"webresearch/internal/extract"
	"webresearch/internal/logging"
	"webresearch/internal/retry"
)

// WorkerPool is the scoped-acquisition surface of browser.Pool.
type WorkerPool interface {
	With(ctx context.Context, fn func(ctx context.Context, w browser.Worker) error) error
}

// Config bounds a single fetch.
type Config struct {
	// NavigationTimeout bounds one navigation attempt.
	NavigationTimeout time.Duration
	// SelectorGrace bounds the optional readiness wait.
	SelectorGrace time.Duration
	// Budget bounds the whole fetch including retries and backoff.
	Budget time.Duration

	ProbeContentType bool
	ProbeTimeout     time.Duration
	UserAgent        string
}

// DefaultConfig returns fetch defaults.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 10 * time.Second,
		SelectorGrace:     2 * time.Second,
		Budget:            25 * time.Second,
		ProbeTimeout:      3 * time.Second,
	}
}

// Fetcher composes pool, extractor and retry policy.
type Fetcher struct {
	pool      WorkerPool
	extractor *extract.Extractor
	policy    retry.Policy
	client    *http.Client
	cfg       Config
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for content-type probes.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New creates a Fetcher. A nil policy means three attempts with a 500ms
// base delay, failing fast on errors IsRetryable rejects.
func New(pool WorkerPool, extractor *extract.Extractor, policy retry.Policy, cfg Config, opts ...Option) *Fetcher {
	if extractor == nil {
		extractor = extract.New(extract.DefaultConfig())
	}
	if policy == nil {
		policy = retry.NewExponential(retry.DefaultConfig(), retry.WithClassifier(IsRetryable))
	}
	f := &Fetcher{
		pool:      pool,
		extractor: extractor,
		policy:    policy,
		client:    &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:       cfg,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch renders and extracts one URL. It always returns a Document.
func (f *Fetcher) Fetch(ctx context.Context, req Request) extract.Document {
	if err := ValidateURL(req.URL); err != nil {
		logging.FetchDebug("rejecting %q: %v", req.URL, err)
		return extract.Failed(req.URL, err)
	}

	if f.cfg.ProbeContentType {
		if err := f.probe(ctx, req.URL); err != nil {
			logging.FetchDebug("probe rejected %s: %v", req.URL, err)
			return extract.Failed(req.URL, err)
		}
	}

	if f.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Budget)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryFetch, "fetch "+req.URL)
	defer timer.StopWithThreshold(f.cfg.NavigationTimeout)

	var (
		doc      extract.Document
		attempts int
	)
	err := retry.Do(ctx, f.policy, logging.CategoryFetch, "fetch "+req.URL, func(ctx context.Context, attempt int) error {
		attempts = attempt
		return f.pool.With(ctx, func(ctx context.Context, w browser.Worker) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &TransientError{URL: req.URL, Attempt: attempt, Err: fmt.Errorf("worker panic: %v", r)}
				}
			}()
			markup, err := w.Render(ctx, browser.RenderRequest{
				URL:               req.URL,
				WaitForSelector:   req.WaitForSelector,
				SelectorGrace:     f.cfg.SelectorGrace,
				NavigationTimeout: f.cfg.NavigationTimeout,
			})
			if err != nil {
				return &TransientError{URL: req.URL, Attempt: attempt, Err: err}
			}
			doc = f.extractor.Extract(markup, req.URL, req.options())
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, browser.ErrPoolClosed) {
			err = retry.Permanent(err)
		}
		logging.FetchWarn("fetch %s failed after %d attempt(s): %v", req.URL, attempts, err)
		failed := extract.Failed(req.URL, err)
		failed.Metadata[extract.MetaAttempts] = strconv.Itoa(attempts)
		return failed
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata[extract.MetaAttempts] = strconv.Itoa(attempts)
	logging.FetchDebug("fetched %s: %d chars via %s", req.URL, doc.ContentLength, doc.Metadata[extract.MetaExtraction])
	return doc
}

// probe issues a HEAD request and rejects known non-page media types.
// Probe transport failures are ignored; the browser gets its own chance.
func (f *Fetcher) probe(ctx context.Context, u string) error {
	timeout := f.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return &ValidationError{URL: u, Reason: err.Error()}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		logging.FetchDebug("probe %s: %v (continuing)", u, err)
		return nil
	}
	resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && blockedContentType(ct) {
		return &ValidationError{URL: u, Reason: fmt.Sprintf("content type %s is not a web page", ct)}
	}
	return nil
}
