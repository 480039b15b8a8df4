package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// selector is one compound part of a CSS selector. Supported forms:
// tag, .class, #id, tag.class, tag#id, [attr], [attr=val], and any
// space-separated chain of those (descendant combinator).
type selector struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasVal  bool
}

func parseSelector(raw string) ([]selector, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty selector")
	}
	out := make([]selector, 0, len(parts))
	for _, p := range parts {
		s, err := parseCompound(p)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", raw, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseCompound(p string) (selector, error) {
	var s selector
	if i := strings.IndexByte(p, '['); i >= 0 {
		if !strings.HasSuffix(p, "]") {
			return s, fmt.Errorf("unterminated attribute in %q", p)
		}
		inner := p[i+1 : len(p)-1]
		p = p[:i]
		if k, v, ok := strings.Cut(inner, "="); ok {
			s.attrKey = strings.TrimSpace(k)
			s.attrVal = strings.Trim(strings.TrimSpace(v), `"'`)
			s.hasVal = true
		} else {
			s.attrKey = strings.TrimSpace(inner)
		}
		if s.attrKey == "" {
			return s, fmt.Errorf("empty attribute name")
		}
	}
	if i := strings.IndexByte(p, '#'); i >= 0 {
		s.id = p[i+1:]
		p = p[:i]
	}
	if i := strings.IndexByte(p, '.'); i >= 0 {
		for _, c := range strings.Split(p[i+1:], ".") {
			if c != "" {
				s.classes = append(s.classes, c)
			}
		}
		p = p[:i]
	}
	s.tag = strings.ToLower(p)
	if s.tag == "*" {
		s.tag = ""
	}
	return s, nil
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if len(s.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range s.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if s.attrKey != "" {
		if s.hasVal {
			if attr(n, s.attrKey) != s.attrVal {
				return false
			}
		} else if !hasAttr(n, s.attrKey) {
			return false
		}
	}
	return true
}

// querySelectorAll returns the nodes matching raw, without duplicates.
func querySelectorAll(root *html.Node, raw string) ([]*html.Node, error) {
	chain, err := parseSelector(raw)
	if err != nil {
		return nil, err
	}

	matches := matchDescendants([]*html.Node{root}, chain[0], true)
	for _, part := range chain[1:] {
		matches = matchDescendants(matches, part, false)
	}
	return matches, nil
}

// matchDescendants collects nodes under the given roots that match s.
// Roots themselves are considered only when includeRoots is set.
func matchDescendants(roots []*html.Node, s selector, includeRoots bool) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if s.matches(n) && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		if includeRoots {
			walk(r)
			continue
		}
		for c := r.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	return out
}
