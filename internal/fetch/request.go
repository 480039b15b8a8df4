package fetch

import (
	"mime"
	"net/url"
	"strings"

	"webresearch/internal/extract"
)

// Request describes one fetch. It is built per call and never mutated.
type Request struct {
	URL             string
	WaitForSelector string
	ExtractImages   bool
	ExtractLinks    bool
	CustomSelectors map[string]string
}

// NewRequest returns a plain text-only request for u.
func NewRequest(u string) Request {
	return Request{URL: u}
}

func (r Request) options() extract.Options {
	return extract.Options{
		Images:    r.ExtractImages,
		Links:     r.ExtractLinks,
		Selectors: r.CustomSelectors,
	}
}

// ValidateURL accepts only absolute http and https URLs.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{URL: raw, Reason: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{URL: raw, Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return &ValidationError{URL: raw, Reason: "missing scheme"}
	default:
		return &ValidationError{URL: raw, Reason: "scheme " + u.Scheme + " not allowed"}
	}
	if u.Host == "" {
		return &ValidationError{URL: raw, Reason: "missing host"}
	}
	return nil
}

// blockedContentType reports whether a media type cannot be rendered as a page.
func blockedContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mt, "image/"),
		strings.HasPrefix(mt, "audio/"),
		strings.HasPrefix(mt, "video/"),
		strings.HasPrefix(mt, "font/"):
		return true
	}
	switch mt {
	case "application/pdf", "application/zip", "application/x-zip-compressed",
		"application/gzip", "application/x-gzip", "application/x-tar",
		"application/x-rar-compressed", "application/x-7z-compressed",
		"application/octet-stream", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return true
	}
	return false
}
