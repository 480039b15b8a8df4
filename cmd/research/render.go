package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"webresearch/internal/extract"
	"webresearch/internal/research"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var statusIcons = map[research.StepStatus]string{
	research.StatusPending:   "·",
	research.StatusRunning:   "…",
	research.StatusCompleted: "✓",
	research.StatusError:     "✗",
}

// formatStep renders one progress line.
func formatStep(s research.Step) string {
	icon := statusIcons[s.Status]
	var style lipgloss.Style
	switch s.Status {
	case research.StatusCompleted:
		style = doneStyle
	case research.StatusError:
		style = errorStyle
	default:
		style = runningStyle
	}

	line := fmt.Sprintf("%s %-12s %s", style.Render(icon), s.Name, s.Description)
	if s.Status == research.StatusRunning || len(s.Data) == 0 {
		return line
	}
	return line + " " + dimStyle.Render(formatData(s.Data))
}

// formatData renders step data as sorted key=value pairs, skipping long
// text values such as the plan.
func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok && (len(s) > 60 || strings.Contains(s, "\n")) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// renderRun renders the synthesis as terminal markdown followed by the
// relevant sources.
func renderRun(run *research.PipelineRun) string {
	var md strings.Builder
	md.WriteString(run.Synthesis)
	md.WriteString("\n\n## Sources\n\n")
	n := 0
	for _, s := range run.Sources {
		if s.Status != research.SourceRelevant {
			continue
		}
		n++
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&md, "%d. [%s](%s)\n", n, title, s.URL)
	}
	if n == 0 {
		md.WriteString("_No source passed the relevance check._\n")
	}

	body := md.String()
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
		if out, err := r.Render(body); err == nil {
			body = out
		}
	}

	footer := fmt.Sprintf("confidence %.2f · %d findings from %d relevant sources · %s",
		run.Confidence, len(run.Findings), run.RelevantSources, run.Duration.Round(1e6))
	return body + dimStyle.Render(footer) + "\n"
}

// formatDocument renders one fetch result line.
func formatDocument(d extract.Document) string {
	if !d.Success {
		return fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), d.URL, dimStyle.Render(d.Error))
	}
	title := d.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%s %s %s %s", doneStyle.Render("✓"), d.URL, title,
		dimStyle.Render(fmt.Sprintf("(%d chars, %s)", d.ContentLength, d.Metadata[extract.MetaExtraction])))
}
