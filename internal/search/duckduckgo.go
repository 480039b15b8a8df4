package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"webresearch/internal/logging"
	"webresearch/internal/retry"
)

// DuckDuckGoConfig configures the DuckDuckGo provider.
type DuckDuckGoConfig struct {
	Endpoint   string
	MaxResults int
	QPS        float64 // requests per second across all callers of this provider
	Timeout    time.Duration
	UserAgent  string
}

// DuckDuckGo scrapes html.duckduckgo.com. Safe for concurrent use; all
// callers share one rate limiter.
type DuckDuckGo struct {
	cfg     DuckDuckGoConfig
	client  *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	strip   *bluemonday.Policy
}

// DuckDuckGoOption configures the provider.
type DuckDuckGoOption func(*DuckDuckGo)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) { d.client = c }
}

// WithRetryPolicy replaces the retry policy used for 429 and 5xx responses.
func WithRetryPolicy(p retry.Policy) DuckDuckGoOption {
	return func(d *DuckDuckGo) { d.policy = p }
}

// NewDuckDuckGo creates the provider.
func NewDuckDuckGo(cfg DuckDuckGoConfig, opts ...DuckDuckGoOption) *DuckDuckGo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://html.duckduckgo.com/html/"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	d := &DuckDuckGo{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
		policy: retry.NewExponential(retry.Config{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    8 * time.Second,
		}),
		strip: bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	timer := logging.StartTimer(logging.CategorySearch, "duckduckgo "+query)
	defer timer.Stop()

	var body []byte
	err := retry.Do(ctx, d.policy, logging.CategorySearch, "duckduckgo search", func(ctx context.Context, attempt int) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		var err error
		body, err = d.get(ctx, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	results, err := d.parse(body)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	logging.Search("duckduckgo returned %d results for %q", len(results), query)
	return results, nil
}

func (d *DuckDuckGo) get(ctx context.Context, query string) ([]byte, error) {
	u := d.cfg.Endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		logging.SearchWarn("duckduckgo HTTP %d; backing off", resp.StatusCode)
		return nil, fmt.Errorf("duckduckgo HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(fmt.Errorf("duckduckgo HTTP %d", resp.StatusCode))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}

// parse walks result blocks: div.result containing a.result__a (title and
// link) and .result__snippet. Sponsored blocks (result--ad) are skipped.
func (d *DuckDuckGo) parse(body []byte) ([]Candidate, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var out []Candidate
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= d.cfg.MaxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			classes := classSet(n)
			if classes["result"] {
				if !classes["result--ad"] {
					if c, ok := d.candidate(n); ok && !seen[c.URL] {
						seen[c.URL] = true
						out = append(out, c)
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func (d *DuckDuckGo) candidate(block *html.Node) (Candidate, bool) {
	var c Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			classes := classSet(n)
			switch {
			case n.Data == "a" && classes["result__a"]:
				c.URL = resultURL(attrVal(n, "href"))
				c.Title = d.plain(n)
			case classes["result__snippet"]:
				c.Snippet = d.plain(n)
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(block)
	return c, c.URL != "" && c.Title != ""
}

// plain renders n and strips all markup, leaving unescaped text.
func (d *DuckDuckGo) plain(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	text := html.UnescapeString(d.strip.Sanitize(sb.String()))
	return strings.Join(strings.Fields(text), " ")
}

// resultURL unwraps DuckDuckGo's /l/?uddg= redirect links.
func resultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func classSet(n *html.Node) map[string]bool {
	set := make(map[string]bool)
	for _, c := range strings.Fields(attrVal(n, "class")) {
		set[c] = true
	}
	return set
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
