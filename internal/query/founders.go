package query

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ParseFounders splits a founders field into names. A list-encoded value such
// as "['Alice', 'Bob']" is parsed as a literal list of quoted strings. A
// single name, quoted or not, yields itself. When a list-encoded value cannot
// be parsed the raw text is split on commas and the parse error is returned
// alongside the fallback names.
func ParseFounders(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	if !strings.HasPrefix(s, "[") {
		if unq, ok := unquoteWhole(s); ok {
			return []string{unq}, nil
		}
		return []string{s}, nil
	}

	names, err := parseListLiteral(s)
	if err != nil {
		return splitCommas(s), err
	}
	return names, nil
}

// parseListLiteral parses a bracketed list of single- or double-quoted
// strings. None/null entries are skipped.
func parseListLiteral(s string) ([]string, error) {
	if !strings.HasSuffix(s, "]") {
		return nil, eris.New("founders: unterminated list")
	}
	body := s[1 : len(s)-1]

	var names []string
	i := 0
	for {
		i = skipSpace(body, i)
		if i >= len(body) {
			return names, nil
		}

		switch {
		case body[i] == '\'' || body[i] == '"':
			val, next, err := readQuoted(body, i)
			if err != nil {
				return nil, err
			}
			names = append(names, val)
			i = next
		case strings.HasPrefix(body[i:], "None"):
			i += len("None")
		case strings.HasPrefix(body[i:], "null"):
			i += len("null")
		default:
			return nil, eris.Errorf("founders: unexpected %q at offset %d", body[i], i)
		}

		i = skipSpace(body, i)
		if i >= len(body) {
			return names, nil
		}
		if body[i] != ',' {
			return nil, eris.Errorf("founders: expected ',' at offset %d", i)
		}
		i++
	}
}

// readQuoted reads a quoted string starting at body[start] and returns the
// unescaped value and the offset just past the closing quote.
func readQuoted(body string, start int) (string, int, error) {
	quote := body[start]
	var b strings.Builder
	for i := start + 1; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(body[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, eris.New("founders: unterminated string")
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func unquoteWhole(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	if (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// splitCommas is the fallback for malformed lists: brackets and stray quotes
// are stripped and empty tokens dropped.
func splitCommas(s string) []string {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.Trim(strings.TrimSpace(tok), `'"`)
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
