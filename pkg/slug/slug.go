// Package slug turns Portuguese display names into the ASCII identifiers used
// for locations and neighborhoods.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters without a combining mark to strip.
var folds = strings.NewReplacer("ı", "i", "ß", "ss", "æ", "ae", "ø", "o", "œ", "oe")

// Generate lowercases name, strips diacritics and joins the remaining
// alphanumeric runs with single hyphens: "Jardim Botânico" becomes
// "jardim-botanico".
func Generate(name string) string {
	s := strings.ToLower(name)
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = folds.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	gap := false
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			gap = b.Len() > 0
			continue
		}
		if gap {
			b.WriteByte('-')
			gap = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LocationID is the location filter value for a city: "São Paulo" becomes
// "sao-paulo".
func LocationID(city string) string {
	return Generate(city)
}
