// Package names turns loosely structured model output into clean, sorted
// sets of candidate client names.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// bracketRe matches every bracketed fragment, across line breaks, shortest
// first.
var bracketRe = regexp.MustCompile(`(?s)\[.*?\]`)

const strayQuotes = "'\"`"

// Normalize scans the concatenated inputs for bracketed list literals such as
// ["Acme", 'Beta Corp'] and returns the sorted, de-duplicated union of their
// elements. Fragments that are not a list of quoted strings are skipped.
// The result is never nil.
func Normalize(raw ...string) []string {
	joined := strings.Join(raw, "\n")

	set := make(Set)
	for _, frag := range bracketRe.FindAllString(joined, -1) {
		items, err := parseList(frag)
		if err != nil {
			zap.L().Debug("names: skipping unparseable fragment",
				zap.String("fragment", preview(frag, 80)),
				zap.Error(err),
			)
			continue
		}
		for _, item := range items {
			set.Add(item)
		}
	}
	return set.Sorted()
}

// Clean trims whitespace and stray quote characters from a single name and
// puts it in Unicode NFC form. It returns "" for names that are empty after
// cleaning.
func Clean(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, strayQuotes)
	name = strings.TrimSpace(name)
	return norm.NFC.String(name)
}

// parseList parses a list literal of quoted strings. It accepts single or
// double quotes, backslash escapes inside a quoted string, comma separators
// and an optional trailing comma.
func parseList(frag string) ([]string, error) {
	if len(frag) < 2 || frag[0] != '[' || frag[len(frag)-1] != ']' {
		return nil, eris.New("names: not a bracketed fragment")
	}
	body := []rune(frag[1 : len(frag)-1])

	var items []string
	i := 0
	skipSpace := func() {
		for i < len(body) && unicode.IsSpace(body[i]) {
			i++
		}
	}

	for {
		skipSpace()
		if i >= len(body) {
			return items, nil
		}

		quote := body[i]
		if quote != '"' && quote != '\'' {
			return nil, eris.Errorf("names: unquoted element at offset %d", i)
		}
		i++

		var sb strings.Builder
		closed := false
		for i < len(body) {
			r := body[i]
			if r == '\\' && i+1 < len(body) {
				sb.WriteRune(body[i+1])
				i += 2
				continue
			}
			i++
			if r == quote {
				closed = true
				break
			}
			sb.WriteRune(r)
		}
		if !closed {
			return nil, eris.New("names: unterminated string")
		}
		items = append(items, sb.String())

		skipSpace()
		if i >= len(body) {
			return items, nil
		}
		if body[i] != ',' {
			return nil, eris.Errorf("names: expected ',' at offset %d", i)
		}
		i++
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
