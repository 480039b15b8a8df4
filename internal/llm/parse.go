package llm

import (
	"encoding/json"
	"strings"
	"unicode"
)

// parseRelevance reads the leading word of a yes/no answer.
func parseRelevance(resp string) (bool, error) {
	fields := strings.FieldsFunc(strings.ToLower(stripFences(resp)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return false, ErrUnparseable
	}
	switch fields[0] {
	case "yes", "relevant", "true", "y":
		return true, nil
	case "no", "irrelevant", "false", "n", "not":
		return false, nil
	}
	return false, ErrUnparseable
}

// parseList accepts a JSON string array or a bulleted/numbered list and
// returns the unique non-empty items in order.
func parseList(resp string) []string {
	body := strings.TrimSpace(stripFences(resp))

	var arr []string
	if strings.HasPrefix(body, "[") && json.Unmarshal([]byte(body), &arr) == nil {
		return dedupe(arr)
	}

	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		items = append(items, stripMarker(line))
	}
	return dedupe(items)
}

// stripMarker removes "- ", "* ", "• ", "1. " and "1) " list markers.
func stripMarker(line string) string {
	for _, p := range []string{"- ", "* ", "• ", "+ "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):])
		}
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
