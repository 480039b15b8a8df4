// Package search defines the web search collaborator and a DuckDuckGo
// implementation that scrapes the HTML endpoint.
package search

import (
	"context"
	"errors"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("search: empty query")

// Candidate is one raw search hit before classification.
type Candidate struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Provider turns a keyword query into ranked candidates. A provider may
// retry internally; callers see one success or failure.
type Provider interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string) ([]Candidate, error)

// Search implements Provider.
func (f ProviderFunc) Search(ctx context.Context, query string) ([]Candidate, error) {
	return f(ctx, query)
}
