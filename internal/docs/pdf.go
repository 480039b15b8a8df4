package docs

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfText returns the text of every page joined by blank lines, plus the
// page count. Pages whose content stream cannot be read are skipped.
func pdfText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", 0, fmt.Errorf("read pdf: %w", err)
	}

	var texts []string
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if t := contentStreamText(stream); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "", ctx.PageCount, fmt.Errorf("no extractable text in %d page(s)", ctx.PageCount)
	}
	return strings.Join(texts, "\n\n"), ctx.PageCount, nil
}

// contentStreamText walks a page content stream and collects the operands
// of the text-showing operators (Tj, TJ, ', "). Positioning operators
// become whitespace.
func contentStreamText(stream []byte) string {
	var (
		out     strings.Builder
		pending []string
	)
	flush := func(sep string) {
		if len(pending) == 0 {
			return
		}
		if sep != "" && out.Len() > 0 {
			out.WriteString(sep)
		}
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			s, n := literalString(stream[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			end := bytes.IndexByte(stream[i:], '>')
			if end < 0 {
				i = len(stream)
				continue
			}
			pending = append(pending, hexString(stream[i+1:i+end]))
			i += end + 1
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isRegular(c):
			start := i
			for i < len(stream) && isRegular(stream[i]) {
				i++
			}
			switch op := string(stream[start:i]); op {
			case "Tj", "TJ":
				flush("")
			case "'", "\"":
				flush("\n")
			case "Td", "TD", "Tm":
				if out.Len() > 0 {
					out.WriteByte(' ')
				}
			case "T*", "ET":
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
			default:
				if !isNumber(op) {
					pending = pending[:0]
				}
			}
		default:
			i++
		}
	}
	return normalizeSpace(out.String())
}

// literalString decodes a (...) string with nesting and escapes. It returns
// the decoded text and the number of bytes consumed.
func literalString(b []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return sb.String(), i
			}
			sb.WriteByte(c)
		case '\\':
			i++
			if i >= len(b) {
				break
			}
			e := b[i]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := 0
					for k := 0; k < 3 && i < len(b) && b[i] >= '0' && b[i] <= '7'; k++ {
						v = v*8 + int(b[i]-'0')
						i++
					}
					sb.WriteByte(byte(v))
					continue
				}
				sb.WriteByte(e)
			}
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

func hexString(b []byte) string {
	clean := make([]byte, 0, len(b))
	for _, c := range b {
		if !unicode.IsSpace(rune(c)) {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out, err := hex.DecodeString(string(clean))
	if err != nil {
		return ""
	}
	// Two-byte glyph ids with a zero high byte are common; drop the zeros.
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, string(out))
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

func normalizeSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = sb.Len() > 0
		case unicode.IsPrint(r):
			if space {
				sb.WriteByte(' ')
				space = false
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
