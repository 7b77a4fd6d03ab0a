package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName produces the canonical form of a natural attribute
// (author name, book title, store name) used to build dedup keys:
// lowercased, diacritics stripped, whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = stripDiacritics(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var decorativeQuotes = regexp.MustCompile(`^["\x{201c}\x{201d}]+|["\x{201c}\x{201d}]+$`)

// StripQuoteMarks removes the decorative quotation marks sources wrap
// quote text in.
func StripQuoteMarks(s string) string {
	s = strings.TrimSpace(s)
	s = decorativeQuotes.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
