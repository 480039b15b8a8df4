package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplateHints are class/id fragments that mark chrome around content.
var boilerplateHints = []string{
	"nav", "menu", "footer", "header", "sidebar", "breadcrumb", "comment",
	"advert", "ad-", "ads", "sponsor", "promo", "cookie", "consent", "banner",
	"share", "social", "related", "newsletter", "subscribe", "popup", "modal",
}

// mainContent locates the dominant readable block. It prefers semantic
// landmarks (<main>, <article>) and falls back to text-density scoring.
// The returned method names which strategy matched; nil means neither did.
func mainContent(doc *html.Node, minLen int) (nodes []*html.Node, method string) {
	for _, tag := range []atom.Atom{atom.Main, atom.Article} {
		var hits []*html.Node
		for _, n := range findAll(doc, tag) {
			if isBoilerplate(n) {
				continue
			}
			if len(collectCleanText(n)) >= minLen {
				hits = append(hits, n)
			}
		}
		if len(hits) > 0 {
			return outermost(hits), "landmark"
		}
	}

	body := findFirst(doc, atom.Body)
	if body == nil {
		body = doc
	}
	if best := densestNode(body, minLen); best != nil {
		return []*html.Node{best}, "density"
	}
	return nil, ""
}

// outermost drops nodes nested inside another node of the list so text is
// not counted twice (an <article> inside <main>, say).
func outermost(nodes []*html.Node) []*html.Node {
	set := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	var out []*html.Node
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64
}

// densestNode scores every content container by
// density * logScale(textLen) * (1 - linkDensity) and returns the best one.
func densestNode(root *html.Node, minLen int) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode || isInvisible(n.DataAtom) || isBoilerplate(n) {
			return
		}
		if isContainer(n.DataAtom) {
			text := collectCleanText(n)
			if len(text) >= minLen {
				markupLen := len(renderNode(n))
				if markupLen == 0 {
					markupLen = 1
				}
				candidates = append(candidates, nodeScore{
					node:     n,
					textLen:  len(text),
					density:  float64(len(text)) / float64(markupLen),
					linkDens: float64(len(collectLinkText(n))) / float64(len(text)),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var best *nodeScore
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.linkDens > 0.5 {
			continue // mostly links
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.node
}

func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale++
	}
	return scale
}

func isContainer(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Td, atom.Body:
		return true
	}
	return false
}

func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Aside, atom.Form, atom.Header:
		return true
	}
	switch strings.ToLower(attr(n, "role")) {
	case "navigation", "banner", "contentinfo", "complementary", "dialog":
		return true
	}
	hint := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	if strings.TrimSpace(hint) == "" {
		return false
	}
	for _, tok := range strings.FieldsFunc(hint, func(r rune) bool { return r == ' ' || r == '_' }) {
		for _, h := range boilerplateHints {
			if tok == h || strings.HasPrefix(tok, h+"-") || (strings.HasSuffix(h, "-") && strings.HasPrefix(tok, h)) {
				return true
			}
		}
	}
	return false
}
