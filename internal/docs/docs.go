// Package docs extracts text from downloadable documents (PDF, plain text)
// over plain HTTP. It does not use browser workers.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"webresearch/internal/extract"
	"webresearch/internal/fetch"
	"webresearch/internal/logging"
	"webresearch/internal/retry"
)

// ErrUnsupported is returned for document formats without a text extractor.
var ErrUnsupported = errors.New("unsupported document type")

// Config bounds document downloads.
type Config struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxTextChars int
	UserAgent    string
}

// DefaultConfig returns download defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      20 * time.Second,
		MaxBytes:     20 << 20,
		MaxTextChars: 20000,
		UserAgent:    "Mozilla/5.0 (compatible; webresearch/1.0)",
	}
}

// Extractor downloads and extracts documents.
type Extractor struct {
	client *http.Client
	text   *extract.Extractor
	policy retry.Policy
	cfg    Config
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// WithPolicy sets the retry policy for downloads.
func WithPolicy(p retry.Policy) Option {
	return func(e *Extractor) { e.policy = p }
}

// New creates a document extractor.
func New(cfg Config, text *extract.Extractor, opts ...Option) *Extractor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = def.MaxTextChars
	}
	if text == nil {
		text = extract.New(extract.DefaultConfig())
	}
	e := &Extractor{
		client: &http.Client{Timeout: cfg.Timeout},
		text:   text,
		policy: retry.NewExponential(retry.DefaultConfig(), retry.WithClassifier(fetch.IsRetryable)),
		cfg:    cfg,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type download struct {
	body        []byte
	contentType string
}

// Extract downloads rawURL and returns its text. It always returns a
// Document; failures have Success=false.
func (e *Extractor) Extract(ctx context.Context, rawURL string) extract.Document {
	if err := fetch.ValidateURL(rawURL); err != nil {
		return extract.Failed(rawURL, err)
	}

	timer := logging.StartTimer(logging.CategoryDocs, "document "+rawURL)
	defer timer.Stop()

	var dl download
	err := retry.Do(ctx, e.policy, logging.CategoryDocs, "download "+rawURL, func(ctx context.Context, attempt int) error {
		var err error
		dl, err = e.get(ctx, rawURL, attempt)
		return err
	})
	if err != nil {
		logging.DocsWarn("download %s: %v", rawURL, err)
		return extract.Failed(rawURL, err)
	}

	doc, err := e.decode(rawURL, dl)
	if err != nil {
		logging.DocsDebug("decode %s: %v", rawURL, err)
		failed := extract.Failed(rawURL, err)
		failed.Metadata[extract.MetaContentType] = dl.contentType
		return failed
	}
	logging.DocsDebug("extracted %d chars from %s (%s)", doc.ContentLength, rawURL, dl.contentType)
	return doc
}

func (e *Extractor) get(ctx context.Context, rawURL string, attempt int) (download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return download{}, &fetch.ValidationError{URL: rawURL, Reason: err.Error()}
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return download{}, &fetch.TransientError{URL: rawURL, Attempt: attempt, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return download{}, &fetch.TransientError{URL: rawURL, Attempt: attempt, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return download{}, retry.Permanent(fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBytes))
	if err != nil {
		return download{}, &fetch.TransientError{URL: rawURL, Attempt: attempt, Err: err}
	}
	return download{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

// kind picks an extractor from the media type, falling back to the
// URL extension when the server sends something generic.
func kind(rawURL, contentType string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "application/pdf":
		return "pdf"
	case mt == "text/html", mt == "application/xhtml+xml":
		return "html"
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return "text"
	}

	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return "pdf"
	case ".txt", ".md", ".csv", ".json", ".xml", ".rst", ".tex":
		return "text"
	case ".html", ".htm":
		return "html"
	}
	return ""
}

func (e *Extractor) decode(rawURL string, dl download) (extract.Document, error) {
	var doc extract.Document
	switch kind(rawURL, dl.contentType) {
	case "pdf":
		text, pages, err := pdfText(dl.body)
		if err != nil {
			return doc, err
		}
		doc = e.text.FromText(rawURL, titleFromText(text), truncate(text, e.cfg.MaxTextChars))
		doc.Metadata["pages"] = strconv.Itoa(pages)
	case "text":
		text := string(dl.body)
		doc = e.text.FromText(rawURL, titleFromText(text), truncate(text, e.cfg.MaxTextChars))
	case "html":
		doc = e.text.Extract(string(dl.body), rawURL, extract.Options{})
	default:
		return doc, fmt.Errorf("%w: %q", ErrUnsupported, dl.contentType)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata[extract.MetaContentType] = dl.contentType
	return doc, nil
}

// titleFromText uses the first non-empty line, capped at 200 runes.
func titleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncate(line, 200)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
