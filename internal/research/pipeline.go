package research

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"webresearch/internal/extract"
	"webresearch/internal/llm"
	"webresearch/internal/logging"
	"webresearch/internal/memory"
	"webresearch/internal/search"
)

// WebFetcher fetches web pages in bounded windows, reporting each result as
// it completes. fetch.Batch implements it.
type WebFetcher interface {
	Each(ctx context.Context, urls []string, concurrency int, interItemDelay time.Duration, onDone func(i int, doc extract.Document))
}

// DocumentExtractor retrieves non-HTML documents without a browser.
// docs.Extractor implements it.
type DocumentExtractor interface {
	Extract(ctx context.Context, url string) extract.Document
}

// Config bounds a run.
type Config struct {
	MaxWebPages      int
	MaxDocuments     int
	BatchConcurrency int
	InterItemDelay   time.Duration
	// ExtractDeadline bounds the whole Extracting stage.
	ExtractDeadline time.Duration
	// Timeout bounds the whole run.
	Timeout time.Duration
	// RelevancePrefixChars is the page text prefix judged when a hit has
	// no snippet.
	RelevancePrefixChars int
	ProgressBuffer       int
	MemorySeedLimit      int
	// MaxSnippets bounds the snippets used by the fallback synthesis.
	MaxSnippets int
}

// DefaultConfig returns run defaults.
func DefaultConfig() Config {
	return Config{
		MaxWebPages:          5,
		MaxDocuments:         2,
		BatchConcurrency:     3,
		InterItemDelay:       250 * time.Millisecond,
		ExtractDeadline:      45 * time.Second,
		Timeout:              2 * time.Minute,
		RelevancePrefixChars: 1000,
		ProgressBuffer:       64,
		MemorySeedLimit:      3,
		MaxSnippets:          10,
	}
}

// Pipeline runs research queries. It holds no per-run state and is safe
// for concurrent use.
type Pipeline struct {
	search search.Provider
	model  llm.LanguageModel
	web    WebFetcher
	docs   DocumentExtractor
	memory memory.Store
	cfg    Config
	now    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMemory enables seeding from and persisting to a memory store.
func WithMemory(m memory.Store) Option {
	return func(p *Pipeline) { p.memory = m }
}

// New creates a pipeline.
func New(provider search.Provider, model llm.LanguageModel, web WebFetcher, docs DocumentExtractor, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}
	if cfg.ExtractDeadline <= 0 {
		cfg.ExtractDeadline = def.ExtractDeadline
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RelevancePrefixChars <= 0 {
		cfg.RelevancePrefixChars = def.RelevancePrefixChars
	}
	if cfg.ProgressBuffer <= 0 {
		cfg.ProgressBuffer = def.ProgressBuffer
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = def.MaxSnippets
	}
	p := &Pipeline{
		search: provider,
		model:  model,
		web:    web,
		docs:   docs,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type runOptions struct {
	progress func(Step)
}

// RunOption configures one run.
type RunOption func(*runOptions)

// WithProgress delivers every step transition to fn, in order, from a
// single goroutine. Steps are dropped rather than delayed when fn falls
// behind.
func WithProgress(fn func(Step)) RunOption {
	return func(o *runOptions) { o.progress = fn }
}

// Run executes one research query. It returns a run even when nothing
// useful was found. The error is non-nil only for a blank query or when the
// search itself fails, in which case the partial run is still returned.
func (p *Pipeline) Run(ctx context.Context, query string, opts ...RunOption) (*PipelineRun, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	var o runOptions
	for _, fn := range opts {
		fn(&o)
	}

	r := &runner{
		p:        p,
		progress: newProgress(o.progress, p.cfg.ProgressBuffer),
		run: &PipelineRun{
			ID:        uuid.NewString(),
			Query:     query,
			StartedAt: p.now(),
		},
	}
	defer r.finish()

	logging.Pipeline("run %s started: %q", r.run.ID, query)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	r.plan(ctx)

	cands, err := r.search(ctx)
	if err != nil {
		return r.run, err
	}

	web, docs := r.classify(cands)
	findings := r.extract(ctx, web, docs)
	r.synthesize(ctx, cands, findings)

	r.mark(StageDone, StatusCompleted, "research complete", map[string]any{
		"confidence": r.run.Confidence,
		"findings":   len(r.run.Findings),
	})
	return r.run, nil
}

// Stream runs query in the background. Steps arrive on the first channel,
// which is closed before the single Result is sent on the second.
func (p *Pipeline) Stream(ctx context.Context, query string) (<-chan Step, <-chan Result) {
	steps := make(chan Step, p.cfg.ProgressBuffer)
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		run, err := p.Run(ctx, query, WithProgress(func(s Step) {
			select {
			case steps <- s:
			default:
			}
		}))
		close(steps)
		results <- Result{Run: run, Err: err}
	}()
	return steps, results
}

// runner holds the state of one run. Only the goroutine executing Run
// touches run.Steps.
type runner struct {
	p        *Pipeline
	run      *PipelineRun
	progress *progress
}

func (r *runner) begin(stage Stage, description string) int {
	s := Step{Name: stage, Status: StatusRunning, Description: description, Timestamp: r.p.now()}
	r.run.Steps = append(r.run.Steps, s)
	r.progress.emit(s)
	return len(r.run.Steps) - 1
}

func (r *runner) end(idx int, status StepStatus, data map[string]any) {
	s := &r.run.Steps[idx]
	if data == nil {
		data = map[string]any{}
	}
	data["elapsed"] = r.p.now().Sub(s.Timestamp).Round(time.Millisecond).String()
	s.Status = status
	s.Data = data
	r.progress.emit(*s)
}

// mark appends a step that starts and finishes at once.
func (r *runner) mark(stage Stage, status StepStatus, description string, data map[string]any) {
	s := Step{Name: stage, Status: status, Description: description, Data: data, Timestamp: r.p.now()}
	r.run.Steps = append(r.run.Steps, s)
	r.progress.emit(s)
}

func (r *runner) finish() {
	r.run.FinishedAt = r.p.now()
	r.run.Duration = r.run.FinishedAt.Sub(r.run.StartedAt)
	r.run.DroppedEvents = r.progress.close()
	logging.Pipeline("run %s finished in %v: %d findings, confidence %.2f",
		r.run.ID, r.run.Duration.Round(time.Millisecond), len(r.run.Findings), r.run.Confidence)
}

func (r *runner) plan(ctx context.Context) {
	idx := r.begin(StagePlanning, "planning research approach")
	plan, err := r.p.model.Plan(ctx, r.run.Query)
	if err != nil {
		logging.PipelineWarn("planning failed, continuing without a plan: %v", err)
		r.end(idx, StatusError, map[string]any{"plan": "", "error": err.Error()})
		return
	}
	r.run.Plan = plan
	r.end(idx, StatusCompleted, map[string]any{"plan": plan})
}

func (r *runner) search(ctx context.Context) ([]search.Candidate, error) {
	idx := r.begin(StageSearching, "searching the web")
	cands, err := r.p.search.Search(ctx, r.run.Query)
	if err == nil {
		r.end(idx, StatusCompleted, map[string]any{"results": len(cands)})
		return cands, nil
	}

	r.end(idx, StatusError, map[string]any{"error": err.Error()})
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// The run deadline wins over the search; degrade to an empty result.
		logging.PipelineWarn("search cut off by the run timeout: %v", err)
		return nil, nil
	}

	logging.PipelineError("search failed: %v", err)
	fatal := &StageError{Stage: StageSearching, Err: err}
	r.mark(StageFailed, StatusError, fatal.Error(), map[string]any{"stage": string(StageSearching)})
	return nil, fatal
}

func (r *runner) classify(cands []search.Candidate) (web, docs []source) {
	idx := r.begin(StageClassifying, "classifying sources")
	web, docs, reports := classify(cands, r.p.cfg.MaxWebPages, r.p.cfg.MaxDocuments)
	r.run.Sources = append(r.run.Sources, reports...)

	dropped, skipped := 0, 0
	for _, rep := range reports {
		if rep.Status == SourceDropped {
			dropped++
		} else {
			skipped++
		}
	}
	r.end(idx, StatusCompleted, map[string]any{
		"web_pages": len(web),
		"documents": len(docs),
		"dropped":   dropped,
		"skipped":   skipped,
	})
	return web, docs
}
