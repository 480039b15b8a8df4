package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webresearch/internal/config"
	"webresearch/internal/extract"
	"webresearch/internal/research"
)

func TestFormatStep(t *testing.T) {
	running := formatStep(research.Step{Name: research.StageSearching, Status: research.StatusRunning, Description: "searching the web"})
	assert.Contains(t, running, "searching")
	assert.Contains(t, running, "searching the web")

	done := formatStep(research.Step{
		Name:        research.StageExtracting,
		Status:      research.StatusCompleted,
		Description: "extracting 5 web pages and 2 documents",
		Data:        map[string]any{"relevant": 3, "attempted": 7, "plan": strings.Repeat("long ", 30)},
	})
	assert.Contains(t, done, "attempted=7 relevant=3")
	assert.NotContains(t, done, "plan=")
}

func TestFormatDocument(t *testing.T) {
	ok := formatDocument(extract.Document{URL: "https://go.dev", Title: "Go", ContentLength: 42, Success: true,
		Metadata: map[string]string{extract.MetaExtraction: "landmark"}})
	assert.Contains(t, ok, "https://go.dev Go")
	assert.Contains(t, ok, "42 chars, landmark")

	failed := formatDocument(extract.Failed("https://bad.example", assert.AnError))
	assert.Contains(t, failed, "https://bad.example")
	assert.Contains(t, failed, assert.AnError.Error())
}

func TestRenderRunListsRelevantSources(t *testing.T) {
	run := &research.PipelineRun{
		Synthesis:  "Quantum computers use qubits.",
		Confidence: 0.75,
		Sources: []research.SourceReport{
			{URL: "https://a.example.com", Title: "Alpha", Status: research.SourceRelevant},
			{URL: "https://b.example.com", Status: research.SourceIrrelevant},
		},
		RelevantSources: 1,
		Duration:        1500 * time.Millisecond,
	}
	out := renderRun(run)
	assert.Contains(t, out, "Alpha")
	assert.NotContains(t, out, "b.example.com")
	assert.Contains(t, out, "confidence 0.75")
}

func TestApplyFlags(t *testing.T) {
	t.Cleanup(func() {
		maxWeb, maxDocs, runTimeout, noMemory = 5, 2, 2*time.Minute, false
	})
	require.NoError(t, rootCmd.ParseFlags([]string{"--max-web", "8", "--timeout", "3m", "--no-memory"}))

	cfg := config.Default()
	applyFlags(rootCmd, cfg)
	assert.Equal(t, 8, cfg.Pipeline.MaxWebPages)
	assert.Equal(t, 2, cfg.Pipeline.MaxDocuments)
	assert.Equal(t, 3*time.Minute, cfg.GetPipelineTimeout())
	assert.False(t, cfg.Memory.Enabled)
}

func TestPipelineConfigCarriesSnippetBound(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.MaxSnippets = 4
	cfg.Pipeline.MaxWebPages = 6

	got := pipelineConfig(cfg)
	assert.Equal(t, 4, got.MaxSnippets)
	assert.Equal(t, 6, got.MaxWebPages)
	assert.Equal(t, cfg.GetExtractDeadline(), got.ExtractDeadline)
	assert.Equal(t, cfg.Memory.SeedLimit, got.MemorySeedLimit)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, &research.PipelineRun{ID: "run-1", Query: "q", Confidence: 0.1}))
	assert.Contains(t, buf.String(), `"id": "run-1"`)
	assert.Contains(t, buf.String(), `"confidence": 0.1`)
}
