// Package extract turns rendered page markup into a normalized Document.
//
// The main-content heuristic tries semantic landmarks first, then picks the
// container with the best text density. When neither yields text the page
// title plus whitespace-normalized body text (capped) is used instead.
// Side extractions (images, links, selector captures, markdown) are
// best-effort: each one swallows its own failure.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"webresearch/internal/logging"
)

// Options selects the optional side extractions for one call.
type Options struct {
	Images    bool
	Links     bool
	Selectors map[string]string // capture name -> selector
}

// Config tunes the extractor.
type Config struct {
	// MinContentLen is the shortest text a block needs to count as content.
	MinContentLen int
	// MaxFallbackChars caps the body text used when no main block is found.
	MaxFallbackChars int
	// Markdown enables sanitized markdown rendering of the main block.
	Markdown bool
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{
		MinContentLen:    140,
		MaxFallbackChars: 5000,
		Markdown:         true,
	}
}

// Extractor is safe for concurrent use.
type Extractor struct {
	cfg    Config
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MinContentLen <= 0 {
		cfg.MinContentLen = def.MinContentLen
	}
	if cfg.MaxFallbackChars <= 0 {
		cfg.MaxFallbackChars = def.MaxFallbackChars
	}
	return &Extractor{
		cfg:    cfg,
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract never fails: malformed markup degrades to fallback text, and only
// an internal fault produces Success=false.
func (e *Extractor) Extract(markup, sourceURL string, opts Options) (doc Document) {
	timer := logging.StartTimer(logging.CategoryExtract, "extract "+sourceURL)
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			logging.ExtractDebug("extract %s panicked: %v", sourceURL, r)
			doc = Failed(sourceURL, fmt.Errorf("extract: %v", r))
		}
	}()

	doc = Document{
		URL:         sourceURL,
		Metadata:    map[string]string{},
		ExtractedAt: time.Now(),
		Success:     true,
	}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return Failed(sourceURL, fmt.Errorf("parse markup: %w", err))
	}
	pageURL, _ := url.Parse(sourceURL)

	bestEffort(sourceURL, "metadata", func() {
		doc.Metadata = pageMetadata(root, pageURL)
	})
	doc.Title = pageTitle(root, doc.Metadata)

	nodes, method := mainContent(root, e.cfg.MinContentLen)
	if len(nodes) > 0 {
		parts := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if t := collectCleanText(n); t != "" {
				parts = append(parts, t)
			}
		}
		doc.MainText = strings.Join(parts, "\n\n")
		doc.Metadata[MetaExtraction] = method
	}

	if doc.MainText == "" {
		body := findFirst(root, atom.Body)
		if body == nil {
			body = root
		}
		text := collectCleanText(body)
		if text == "" {
			text = collectText(body)
		}
		doc.MainText = truncateRunes(text, e.cfg.MaxFallbackChars)
		doc.Metadata[MetaExtraction] = "fallback"
		nodes = nil
		logging.ExtractDebug("no main block on %s; using %d chars of body text", sourceURL, utf8.RuneCountInString(doc.MainText))
	}
	doc.ContentLength = utf8.RuneCountInString(doc.MainText)

	if e.cfg.Markdown && len(nodes) > 0 {
		bestEffort(sourceURL, "markdown", func() {
			doc.Markdown = e.markdown(nodes, sourceURL)
		})
	}
	if opts.Images {
		bestEffort(sourceURL, "images", func() {
			doc.Images = pageImages(root, pageURL)
		})
	}
	if opts.Links {
		bestEffort(sourceURL, "links", func() {
			doc.Links = pageLinks(root, pageURL)
		})
	}
	if len(opts.Selectors) > 0 {
		doc.Captures = make(map[string][]string, len(opts.Selectors))
		for name, sel := range opts.Selectors {
			bestEffort(sourceURL, "selector "+name, func() {
				nodes, err := querySelectorAll(root, sel)
				if err != nil {
					panic(err)
				}
				var texts []string
				for _, n := range nodes {
					if t := collectText(n); t != "" {
						texts = append(texts, t)
					}
				}
				doc.Captures[name] = texts
			})
		}
	}

	return doc
}

func (e *Extractor) markdown(nodes []*html.Node, sourceURL string) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(renderNode(n))
		sb.WriteByte('\n')
	}
	clean := e.policy.Sanitize(sb.String())
	md, err := e.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil {
		logging.ExtractDebug("markdown %s: %v", sourceURL, err)
		return ""
	}
	return strings.TrimSpace(md)
}

// FromText builds a Document from already-plain text such as a PDF body.
func (e *Extractor) FromText(sourceURL, title, text string) Document {
	normalized := strings.Join(strings.Fields(text), " ")
	return Document{
		URL:           sourceURL,
		Title:         strings.TrimSpace(title),
		MainText:      normalized,
		Metadata:      map[string]string{MetaExtraction: "document"},
		ExtractedAt:   time.Now(),
		ContentLength: utf8.RuneCountInString(normalized),
		Success:       true,
	}
}

// bestEffort runs fn and logs instead of propagating a panic.
func bestEffort(sourceURL, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ExtractDebug("%s on %s skipped: %v", what, sourceURL, r)
		}
	}()
	fn()
}
