package research

import (
	"net/url"
	"path"
	"strings"

	"webresearch/internal/search"
)

// source is a classified search hit.
type source struct {
	search.Candidate
	Kind SourceKind
}

var documentExts = map[string]bool{
	".pdf": true, ".txt": true, ".md": true, ".csv": true,
	".json": true, ".xml": true, ".rst": true, ".tex": true,
}

var nonFetchableExts = map[string]bool{
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".rar": true, ".7z": true,
	".exe": true, ".msi": true, ".dmg": true, ".iso": true, ".apk": true, ".deb": true, ".rpm": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true, ".ico": true, ".bmp": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true, ".flac": true,
	".doc": true, ".docx": true, ".ppt": true, ".pptx": true, ".xls": true, ".xlsx": true,
}

// Classify decides how a URL will be retrieved from its scheme and path
// extension.
func Classify(rawURL string) SourceKind {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return KindNonFetchable
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return KindNonFetchable
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case documentExts[ext]:
		return KindDocument
	case nonFetchableExts[ext]:
		return KindNonFetchable
	}
	return KindWebPage
}

// classify splits candidates into capped web and document sets, in search
// order. Duplicate URLs are ignored; everything left out gets a report.
func classify(cands []search.Candidate, maxWeb, maxDocs int) (web, docs []source, reports []SourceReport) {
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true

		s := source{Candidate: c, Kind: Classify(c.URL)}
		switch s.Kind {
		case KindNonFetchable:
			reports = append(reports, s.report(SourceDropped, "not fetchable"))
		case KindDocument:
			if len(docs) >= maxDocs {
				reports = append(reports, s.report(SourceSkipped, "document cap reached"))
				continue
			}
			docs = append(docs, s)
		default:
			if len(web) >= maxWeb {
				reports = append(reports, s.report(SourceSkipped, "web page cap reached"))
				continue
			}
			web = append(web, s)
		}
	}
	return web, docs, reports
}

func (s source) report(status SourceStatus, reason string) SourceReport {
	return SourceReport{URL: s.URL, Title: s.Title, Kind: s.Kind, Status: status, Reason: reason}
}
