package match

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes recognized text for matching: lowercase, strip
// everything except letters, digits, hyphens, and whitespace, then collapse
// whitespace runs to single spaces and trim the ends.
//
// Normalize is pure and idempotent; empty input yields empty output, which
// the matcher treats as "no match possible".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			// Punctuation and symbols become separators rather than being
			// deleted, so "aspirin,500" keeps its word boundary.
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
