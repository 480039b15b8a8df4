package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!doctype html>
<html lang="en">
<head>
  <title>Quantum Error Correction Explained</title>
  <meta name="description" content="How surface codes protect qubits.">
  <meta name="author" content="A. Researcher">
  <meta property="og:site_name" content="Physics Weekly">
  <meta property="article:published_time" content="2024-03-01">
  <link rel="canonical" href="/articles/qec">
</head>
<body>
  <nav class="top-nav"><a href="/">Home</a> <a href="/news">News</a> <a href="/about">About</a></nav>
  <div class="sidebar"><a href="/ad">Buy our course now</a></div>
  <main>
    <h1>Quantum Error Correction</h1>
    <p>Quantum computers are fragile. Every qubit interacts with its environment and slowly loses the
    information it stores, a process known as decoherence.</p>
    <p>Surface codes spread one logical qubit across many physical qubits so that errors can be detected
    and corrected without measuring the encoded state directly.</p>
    <img src="/img/surface-code.png" alt="surface code lattice">
    <a href="https://arxiv.org/abs/quant-ph/9705052">Kitaev 1997</a>
    <span class="cite">[1]</span>
  </main>
  <footer class="footer">Copyright 2024 Physics Weekly</footer>
  <script>var tracking = true;</script>
</body>
</html>`

func TestExtractPrefersLandmark(t *testing.T) {
	e := New(DefaultConfig())
	doc := e.Extract(articlePage, "https://physics.example.com/articles/qec?ref=home", Options{})

	require.True(t, doc.Success)
	assert.Equal(t, "Quantum Error Correction Explained", doc.Title)
	assert.Equal(t, "landmark", doc.Metadata[MetaExtraction])
	assert.Contains(t, doc.MainText, "Surface codes spread one logical qubit")
	assert.NotContains(t, doc.MainText, "Buy our course")
	assert.NotContains(t, doc.MainText, "Copyright")
	assert.NotContains(t, doc.MainText, "tracking")
	assert.Equal(t, len([]rune(doc.MainText)), doc.ContentLength)
	assert.Contains(t, doc.Markdown, "Quantum Error Correction")
	assert.False(t, doc.ExtractedAt.IsZero())
}

func TestExtractMetadata(t *testing.T) {
	doc := New(DefaultConfig()).Extract(articlePage, "https://physics.example.com/articles/qec", Options{})

	assert.Equal(t, "How surface codes protect qubits.", doc.Metadata[MetaDescription])
	assert.Equal(t, "A. Researcher", doc.Metadata[MetaAuthor])
	assert.Equal(t, "Physics Weekly", doc.Metadata[MetaSiteName])
	assert.Equal(t, "2024-03-01", doc.Metadata[MetaPublished])
	assert.Equal(t, "en", doc.Metadata[MetaLang])
	assert.Equal(t, "https://physics.example.com/articles/qec", doc.Metadata[MetaCanonical])
	assert.Equal(t, "Physics Weekly", doc.Metadata["og:site_name"])
}

func TestExtractDensityWithoutLandmarks(t *testing.T) {
	body := strings.Repeat("Trapped ion systems reach high gate fidelities with long coherence times. ", 8)
	page := `<html><head><title>Ions</title></head><body>
		<div class="menu"><a href="/a">A</a><a href="/b">B</a><a href="/c">C</a></div>
		<div id="wrapper">
			<div class="links">` + strings.Repeat(`<a href="/x">A very long link list entry that repeats</a> `, 10) + `</div>
			<div class="story"><p>` + body + `</p></div>
		</div>
	</body></html>`

	doc := New(DefaultConfig()).Extract(page, "https://ions.example.org/", Options{})
	require.True(t, doc.Success)
	assert.Equal(t, "density", doc.Metadata[MetaExtraction])
	assert.Contains(t, doc.MainText, "Trapped ion systems")
	assert.NotContains(t, doc.MainText, "link list entry")
}

func TestExtractFallsBackToBodyText(t *testing.T) {
	page := "<html><head><title>Short</title></head><body><p>Just   a\n\n few   words.</p></body></html>"
	doc := New(DefaultConfig()).Extract(page, "https://tiny.example.com", Options{})

	require.True(t, doc.Success)
	assert.Equal(t, "fallback", doc.Metadata[MetaExtraction])
	assert.Equal(t, "Short", doc.Title)
	assert.Equal(t, "Just a few words.", doc.MainText)
	assert.Empty(t, doc.Markdown)
}

func TestExtractFallbackIsCapped(t *testing.T) {
	words := strings.Repeat("é ", 4000) // short words never reach the content threshold per block
	page := "<html><body><span>" + words + "</span></body></html>"
	e := New(Config{MaxFallbackChars: 100, MinContentLen: 1 << 20})
	doc := e.Extract(page, "https://big.example.com", Options{})

	require.True(t, doc.Success)
	assert.LessOrEqual(t, doc.ContentLength, 100)
	assert.Equal(t, "fallback", doc.Metadata[MetaExtraction])
}

func TestExtractNeverFailsOnGarbage(t *testing.T) {
	e := New(DefaultConfig())
	for _, markup := range []string{"", "   ", "<<<>>>", "<div><p>unclosed", "\x00\x01binary"} {
		doc := e.Extract(markup, "https://x.example.com", Options{Images: true, Links: true})
		assert.True(t, doc.Success, "markup %q", markup)
		assert.NotNil(t, doc.Metadata)
	}
}

func TestSideExtractions(t *testing.T) {
	doc := New(DefaultConfig()).Extract(articlePage, "https://physics.example.com/articles/qec", Options{
		Images: true,
		Links:  true,
		Selectors: map[string]string{
			"heading": "main h1",
			"cite":    "span.cite",
			"broken":  "div[role",
		},
	})
	require.True(t, doc.Success)

	require.Len(t, doc.Images, 1)
	assert.Equal(t, "https://physics.example.com/img/surface-code.png", doc.Images[0].Src)
	assert.Equal(t, "surface code lattice", doc.Images[0].Alt)

	var hrefs []string
	for _, l := range doc.Links {
		hrefs = append(hrefs, l.Href)
	}
	assert.Contains(t, hrefs, "https://arxiv.org/abs/quant-ph/9705052")
	assert.Contains(t, hrefs, "https://physics.example.com/news")

	assert.Equal(t, []string{"Quantum Error Correction"}, doc.Captures["heading"])
	assert.Equal(t, []string{"[1]"}, doc.Captures["cite"])
	_, ok := doc.Captures["broken"]
	assert.False(t, ok, "a bad selector is skipped without failing extraction")
}

func TestFromText(t *testing.T) {
	doc := New(DefaultConfig()).FromText("https://x.example.com/a.pdf", " Paper ", "line one\n\nline   two")
	assert.True(t, doc.Success)
	assert.Equal(t, "Paper", doc.Title)
	assert.Equal(t, "line one line two", doc.MainText)
	assert.Equal(t, "document", doc.Metadata[MetaExtraction])
}

func TestFailed(t *testing.T) {
	doc := Failed("https://down.example.com", assert.AnError)
	assert.False(t, doc.Success)
	assert.Equal(t, assert.AnError.Error(), doc.Error)
	assert.Zero(t, doc.ContentLength)
}
