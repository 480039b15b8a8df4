package research

// Confidence levels by synthesis path.
const (
	noFindingsConfidence = 0.1
	findingsBase         = 0.3
	findingsStep         = 0.15
	findingsCeiling      = 0.9
	snippetBase          = 0.2
	snippetStep          = 0.05
	snippetCeiling       = 0.4
)

// FindingsConfidence is the confidence of a synthesis built from findings
// of n relevant sources. It never decreases as n grows.
func FindingsConfidence(n int) float64 {
	if n < 0 {
		n = 0
	}
	return min(findingsCeiling, findingsBase+findingsStep*float64(n))
}

// SnippetConfidence is the confidence of a synthesis built only from search
// snippets.
func SnippetConfidence(snippets int) float64 {
	if snippets <= 0 {
		return noFindingsConfidence
	}
	return min(snippetCeiling, snippetBase+snippetStep*float64(snippets))
}

// NoFindingsConfidence is the confidence when nothing usable was found.
func NoFindingsConfidence() float64 { return noFindingsConfidence }
