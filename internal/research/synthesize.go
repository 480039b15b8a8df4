package research

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"webresearch/internal/logging"
	"webresearch/internal/search"
)

// NoFindingsText is the synthesis of a run that found nothing usable.
const NoFindingsText = "No relevant information was found for this query."

const memoryPersistTimeout = 5 * time.Second

// Synthesis paths recorded in step data.
const (
	pathFindings = "findings"
	pathSnippets = "snippets"
	pathNone     = "none"
)

func (r *runner) synthesize(ctx context.Context, cands []search.Candidate, findings []Finding) {
	idx := r.begin(StageSynthesizing, "synthesizing findings")
	data := map[string]any{}

	switch {
	case len(findings) > 0:
		data["path"] = pathFindings
		points := make([]string, len(findings))
		for i, f := range findings {
			points[i] = f.Text
		}
		text, err := r.p.model.Synthesize(ctx, r.run.Query, points)
		if err != nil {
			logging.PipelineWarn("synthesis failed, listing findings instead: %v", err)
			data["error"] = err.Error()
			text = listFindings(findings)
		}
		r.run.Synthesis = text
		r.run.Confidence = FindingsConfidence(r.run.RelevantSources)

	default:
		snippets := collectSnippets(cands, r.p.cfg.MaxSnippets)
		text, err := "", error(nil)
		if len(snippets) > 0 {
			text, err = r.p.model.Synthesize(ctx, r.run.Query, snippets)
		}
		if len(snippets) > 0 && err == nil {
			data["path"] = pathSnippets
			data["snippets"] = len(snippets)
			r.run.Synthesis = text
			r.run.Confidence = SnippetConfidence(len(snippets))
			break
		}
		if err != nil {
			logging.PipelineWarn("snippet synthesis failed: %v", err)
			data["error"] = err.Error()
		}
		data["path"] = pathNone
		r.run.Synthesis = NoFindingsText
		r.run.Confidence = NoFindingsConfidence()
	}
	data["confidence"] = r.run.Confidence

	if data["path"] != pathNone {
		data["memory_stored"] = r.persist(ctx)
	}
	r.end(idx, StatusCompleted, data)
}

// persist stores the synthesis for later runs. It outlives the run deadline
// by a short grace so a run cut off at the deadline is still remembered.
func (r *runner) persist(ctx context.Context) bool {
	if r.p.memory == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), memoryPersistTimeout)
	defer cancel()

	var sources []string
	for _, s := range r.run.Sources {
		if s.Status == SourceRelevant {
			sources = append(sources, s.URL)
		}
	}
	err := r.p.memory.Store(ctx, r.run.Synthesis, map[string]string{
		"query":      r.run.Query,
		"confidence": strconv.FormatFloat(r.run.Confidence, 'f', 2, 64),
		"sources":    strings.Join(sources, " "),
		"run_id":     r.run.ID,
	})
	if err != nil {
		logging.MemoryWarn("failed to persist synthesis: %v", err)
		return false
	}
	return true
}

func collectSnippets(cands []search.Candidate, limit int) []string {
	var out []string
	for _, c := range cands {
		if len(out) >= limit {
			break
		}
		if s := strings.TrimSpace(c.Snippet); s != "" {
			out = append(out, fmt.Sprintf("%s (%s)", s, c.URL))
		}
	}
	return out
}

func listFindings(findings []Finding) string {
	var sb strings.Builder
	sb.WriteString("Key findings:\n")
	for _, f := range findings {
		fmt.Fprintf(&sb, "- %s", f.Text)
		if f.Origin != OriginMemory && f.Source != "" {
			fmt.Fprintf(&sb, " (%s)", f.Source)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
