// Package keys builds Redis keys for cached intent classifications.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const intentPrefix = "intent"

// Intent keys a classification by model, prompt revision, layer catalogue
// fingerprint and normalized query text. Case and whitespace differences in
// the query share a key.
func Intent(model string, promptRev int, catalog uint64, query string) string {
	text := NormalizeQuery(query)
	sum := xxhash.Sum64String(text)

	modelSafe := sanitize(strings.TrimSpace(model))
	const maxModelLen = 64
	if len(modelSafe) > maxModelLen {
		modelSafe = modelSafe[:maxModelLen]
	}
	return fmt.Sprintf("%s:%s:p%d:c=%016x:q=%016x", intentPrefix, modelSafe, promptRev, catalog, sum)
}

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sanitize(s string) string {
	if s == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
