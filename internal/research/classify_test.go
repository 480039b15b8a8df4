package research

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"webresearch/internal/search"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want SourceKind
	}{
		{"https://en.wikipedia.org/wiki/Quantum_computing", KindWebPage},
		{"https://arxiv.org/pdf/quant-ph/9508027.pdf", KindDocument},
		{"https://example.com/notes.TXT", KindDocument},
		{"https://example.com/paper.pdf?download=1", KindDocument},
		{"https://example.com/release.zip", KindNonFetchable},
		{"https://example.com/diagram.png", KindNonFetchable},
		{"https://example.com/slides.pptx", KindNonFetchable},
		{"ftp://example.com/file", KindNonFetchable},
		{"not a url", KindNonFetchable},
		{"https://example.com/", KindWebPage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.url), tt.url)
	}
}

func TestClassifyCapsWebPages(t *testing.T) {
	web, docs, reports := classify(webCandidates(8), 5, 2)
	assert.Len(t, web, 5)
	assert.Empty(t, docs)
	assert.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, SourceSkipped, r.Status)
	}
	// search order is kept
	assert.Equal(t, "https://site0.example.com/quantum", web[0].URL)
	assert.Equal(t, "https://site4.example.com/quantum", web[4].URL)
}

func TestClassifyDropsAndDeduplicates(t *testing.T) {
	cands := []search.Candidate{
		{URL: "https://a.example.com/x"},
		{URL: "https://a.example.com/x"},
		{URL: "https://b.example.com/data.zip"},
		{URL: "https://c.example.com/p.pdf"},
		{URL: "https://d.example.com/q.pdf"},
	}
	web, docs, reports := classify(cands, 5, 1)
	assert.Len(t, web, 1)
	assert.Len(t, docs, 1)
	want := []SourceReport{
		{URL: "https://b.example.com/data.zip", Kind: KindNonFetchable, Status: SourceDropped, Reason: "not fetchable"},
		{URL: "https://d.example.com/q.pdf", Kind: KindDocument, Status: SourceSkipped, Reason: "document cap reached"},
	}
	if diff := cmp.Diff(want, reports); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyZeroCaps(t *testing.T) {
	web, docs, _ := classify(webCandidates(3), 0, 0)
	assert.Empty(t, web)
	assert.Empty(t, docs)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.1, NoFindingsConfidence())
	assert.InDelta(t, 0.45, FindingsConfidence(1), 1e-9)
	assert.InDelta(t, 0.75, FindingsConfidence(3), 1e-9)
	assert.Equal(t, 0.9, FindingsConfidence(6))
	assert.Equal(t, 0.9, FindingsConfidence(100))
	assert.InDelta(t, 0.25, SnippetConfidence(1), 1e-9)
	assert.Equal(t, 0.4, SnippetConfidence(50))
	assert.Equal(t, 0.1, SnippetConfidence(0))

	prev := 0.0
	for _, n := range []int{0, 1, 3, 6} {
		c := FindingsConfidence(n)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
}

func TestRelevanceText(t *testing.T) {
	assert.Equal(t, "snippet", relevanceText("  snippet ", "body text", 4))
	assert.Equal(t, "body", relevanceText("", "body text", 4))
	assert.Equal(t, "ünïc", relevanceText("", "ünïcode", 4))
}
