package dedup

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// Normalize lower-cases text, drops punctuation and symbols, and collapses
// whitespace runs into a single space.
func Normalize(text string) string {
	folded := lower.String(text)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns the Ratcliff/Obershelp ratio of the normalized texts,
// computed over characters. Empty input on either side yields 0.
func Similarity(a, b string) float64 {
	return normalizedSimilarity(Normalize(a), Normalize(b))
}

// normalizedSimilarity compares already normalized texts. The operands are
// ordered first so the ratio does not depend on argument order.
func normalizedSimilarity(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	return ratio(runes(a), runes(b))
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func ratio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return difflib.NewMatcher(a, b).Ratio()
}
