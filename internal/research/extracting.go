package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"webresearch/internal/extract"
	"webresearch/internal/logging"
)

// outcome is the result of processing one source.
type outcome struct {
	done     bool
	report   SourceReport
	findings []Finding
}

// collector gathers outcomes until sealed. Work finishing after the seal is
// discarded.
type collector struct {
	mu       sync.Mutex
	sealed   bool
	outcomes []outcome
}

func (c *collector) set(i int, o outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	o.done = true
	c.outcomes[i] = o
}

func (c *collector) seal() []outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return append([]outcome(nil), c.outcomes...)
}

func (c *collector) isSealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// extract fetches web pages and documents in parallel under the stage
// deadline and returns the findings of relevant sources, including any
// seeded from memory. Items unfinished at the deadline are reported as
// timed out and the stage completes with what it has.
func (r *runner) extract(ctx context.Context, web, docs []source) []Finding {
	idx := r.begin(StageExtracting, fmt.Sprintf("extracting %d web pages and %d documents", len(web), len(docs)))

	seeded := r.seedFromMemory(ctx)

	stageCtx, cancel := context.WithTimeout(ctx, r.p.cfg.ExtractDeadline)
	defer cancel()

	sources := append(append([]source(nil), web...), docs...)
	c := &collector{outcomes: make([]outcome, len(sources))}

	var g errgroup.Group
	if len(web) > 0 {
		urls := make([]string, len(web))
		for i, s := range web {
			urls[i] = s.URL
		}
		g.Go(func() error {
			r.p.web.Each(stageCtx, urls, r.p.cfg.BatchConcurrency, r.p.cfg.InterItemDelay, func(i int, doc extract.Document) {
				g.Go(func() error {
					c.set(i, r.process(stageCtx, c, web[i], doc, OriginWeb))
					return nil
				})
			})
			return nil
		})
	}
	if len(docs) > 0 {
		g.Go(func() error {
			var dg errgroup.Group
			dg.SetLimit(r.p.cfg.BatchConcurrency)
			for j, s := range docs {
				dg.Go(func() error {
					doc := r.p.docs.Extract(stageCtx, s.URL)
					c.set(len(web)+j, r.process(stageCtx, c, s, doc, OriginDocument))
					return nil
				})
			}
			return dg.Wait()
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-stageCtx.Done():
		logging.PipelineWarn("extraction deadline reached: %v", context.Cause(stageCtx))
	}
	outcomes := c.seal()

	findings := append([]Finding(nil), seeded...)
	var succeeded, relevant, timedOut int
	for i, o := range outcomes {
		if !o.done {
			timedOut++
			o.report = sources[i].report(SourceTimedOut, "extraction deadline exceeded")
		}
		switch o.report.Status {
		case SourceRelevant:
			relevant++
			succeeded++
		case SourceIrrelevant:
			succeeded++
		}
		r.run.Sources = append(r.run.Sources, o.report)
		findings = append(findings, o.findings...)
	}
	r.run.RelevantSources = relevant
	r.run.Findings = findings

	r.end(idx, StatusCompleted, map[string]any{
		"attempted":     len(sources),
		"succeeded":     succeeded,
		"relevant":      relevant,
		"timed_out":     timedOut,
		"truncated":     timedOut > 0,
		"memory_seeded": len(seeded),
		"findings":      len(findings),
	})
	return findings
}

// process applies the relevance pre-check and, for relevant sources, key
// point extraction.
func (r *runner) process(ctx context.Context, c *collector, s source, doc extract.Document, origin string) outcome {
	// A fetch cut short by the stage deadline is a timeout, not a failure.
	if ctx.Err() != nil || c.isSealed() {
		return outcome{report: s.report(SourceTimedOut, "extraction deadline exceeded")}
	}
	if !doc.Success {
		return outcome{report: s.report(SourceFailed, doc.Error)}
	}

	text := relevanceText(s.Snippet, doc.MainText, r.p.cfg.RelevancePrefixChars)
	ok, err := r.p.model.IsRelevant(ctx, text, r.run.Query)
	if err != nil {
		logging.PipelineDebug("relevance check failed for %s: %v", s.URL, err)
		return outcome{report: s.report(SourceFailed, "relevance check: "+err.Error())}
	}
	if !ok {
		return outcome{report: s.report(SourceIrrelevant, "")}
	}

	points, err := r.p.model.ExtractKeyPoints(ctx, doc.MainText)
	if err != nil {
		logging.PipelineDebug("key point extraction failed for %s: %v", s.URL, err)
		return outcome{report: s.report(SourceFailed, "key points: "+err.Error())}
	}

	title := doc.Title
	if title == "" {
		title = s.Title
	}
	findings := make([]Finding, 0, len(points))
	for _, pt := range points {
		findings = append(findings, Finding{Text: pt, Source: s.URL, Title: title, Origin: origin})
	}
	logging.PipelineDebug("%s: %d findings", s.URL, len(findings))
	rep := s.report(SourceRelevant, "")
	rep.Reason = fmt.Sprintf("%d key points", len(points))
	return outcome{report: rep, findings: findings}
}

// relevanceText prefers the search snippet and falls back to a prefix of
// the page text.
func relevanceText(snippet, text string, prefix int) string {
	if s := strings.TrimSpace(snippet); s != "" {
		return s
	}
	r := []rune(strings.TrimSpace(text))
	if len(r) > prefix {
		r = r[:prefix]
	}
	return string(r)
}

// seedFromMemory turns prior syntheses into findings. Failures are logged
// and ignored.
func (r *runner) seedFromMemory(ctx context.Context) []Finding {
	if r.p.memory == nil || r.p.cfg.MemorySeedLimit <= 0 {
		return nil
	}
	results, err := r.p.memory.Search(ctx, r.run.Query, r.p.cfg.MemorySeedLimit)
	if err != nil {
		logging.PipelineWarn("memory recall failed: %v", err)
		return nil
	}
	var out []Finding
	for _, m := range results {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		out = append(out, Finding{
			Text:   text,
			Source: "memory:" + m.ID,
			Title:  m.Metadata["query"],
			Origin: OriginMemory,
		})
	}
	if len(out) > 0 {
		logging.Memory("seeded %d findings from memory for %q", len(out), r.run.Query)
	}
	return out
}
