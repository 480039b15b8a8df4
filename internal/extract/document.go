package extract

import (
	"time"
)

// Document is the normalized result of extracting one page. A failed
// extraction is still a complete Document with Success=false and Error set,
// so callers aggregate results without special-casing failures.
type Document struct {
	URL           string              `json:"url"`
	Title         string              `json:"title"`
	MainText      string              `json:"main_text"`
	Markdown      string              `json:"markdown,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
	Images        []Image             `json:"images,omitempty"`
	Links         []Link              `json:"links,omitempty"`
	Captures      map[string][]string `json:"captures,omitempty"`
	ExtractedAt   time.Time           `json:"extracted_at"`
	ContentLength int                 `json:"content_length"`
	Success       bool                `json:"success"`
	Error         string              `json:"error,omitempty"`
}

// Image is an <img> found on the page.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Link is an anchor found on the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// Metadata keys set by the extractor.
const (
	MetaExtraction  = "extraction" // "density", "landmark", "fallback" or "document"
	MetaDescription = "description"
	MetaAuthor      = "author"
	MetaPublished   = "published"
	MetaSiteName    = "site_name"
	MetaLang        = "lang"
	MetaCanonical   = "canonical"
	MetaContentType = "content_type"
	MetaAttempts    = "attempts"
)

// Failed builds the fallback document for a URL that could not be fetched.
func Failed(url string, err error) Document {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Document{
		URL:         url,
		Metadata:    map[string]string{},
		ExtractedAt: time.Now(),
		Success:     false,
		Error:       msg,
	}
}

// Preview returns the first n runes of the main text.
func (d Document) Preview(n int) string {
	return truncateRunes(d.MainText, n)
}
