package migration

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims s and converts it to NFC so that precomposed and decomposed
// Vietnamese input compare equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// headerKey folds a column header or sheet name for lookups. Case, spaces,
// underscores and dots are ignored.
func headerKey(s string) string {
	s = strings.ToLower(NormalizeText(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '_' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
