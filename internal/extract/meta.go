package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pageTitle prefers <title>, then og:title, then the first <h1>.
func pageTitle(doc *html.Node, meta map[string]string) string {
	if t := findFirst(doc, atom.Title); t != nil {
		if s := collectText(t); s != "" {
			return s
		}
	}
	if s := meta["og:title"]; s != "" {
		return s
	}
	if h := findFirst(doc, atom.H1); h != nil {
		return collectText(h)
	}
	return ""
}

// pageMetadata reads <meta>, <link rel=canonical> and <html lang>.
// OpenGraph properties keep their "og:" keys.
func pageMetadata(doc *html.Node, base *url.URL) map[string]string {
	meta := make(map[string]string)

	if h := findFirst(doc, atom.Html); h != nil {
		if lang := strings.TrimSpace(attr(h, "lang")); lang != "" {
			meta[MetaLang] = lang
		}
	}

	for _, m := range findAll(doc, atom.Meta) {
		key := strings.ToLower(strings.TrimSpace(attr(m, "property")))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(attr(m, "name")))
		}
		content := strings.Join(strings.Fields(attr(m, "content")), " ")
		if key == "" || content == "" {
			continue
		}
		switch {
		case key == "description", key == "og:description" && meta[MetaDescription] == "":
			meta[MetaDescription] = content
		case key == "author", key == "article:author" && meta[MetaAuthor] == "":
			meta[MetaAuthor] = content
		case key == "article:published_time", key == "date", key == "pubdate":
			if meta[MetaPublished] == "" {
				meta[MetaPublished] = content
			}
		case key == "og:site_name":
			meta[MetaSiteName] = content
		}
		if strings.HasPrefix(key, "og:") {
			meta[key] = content
		}
	}

	for _, l := range findAll(doc, atom.Link) {
		if strings.EqualFold(attr(l, "rel"), "canonical") {
			if href := resolve(base, attr(l, "href")); href != "" {
				meta[MetaCanonical] = href
			}
			break
		}
	}
	return meta
}

func pageImages(root *html.Node, base *url.URL) []Image {
	var out []Image
	seen := make(map[string]bool)
	for _, img := range findAll(root, atom.Img) {
		src := attr(img, "src")
		if src == "" {
			src = attr(img, "data-src")
		}
		if strings.HasPrefix(src, "data:") {
			continue
		}
		abs := resolve(base, src)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, Image{Src: abs, Alt: strings.TrimSpace(attr(img, "alt"))})
	}
	return out
}

func pageLinks(root *html.Node, base *url.URL) []Link {
	var out []Link
	seen := make(map[string]bool)
	for _, a := range findAll(root, atom.A) {
		href := strings.TrimSpace(attr(a, "href"))
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		abs := resolve(base, href)
		if abs == "" || seen[abs] {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		seen[abs] = true
		out = append(out, Link{Href: abs, Text: collectText(a)})
	}
	return out
}

// resolve makes ref absolute against base. Unparseable refs yield "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}
