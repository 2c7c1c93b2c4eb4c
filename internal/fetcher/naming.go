package fetcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SafeName folds a title to a filesystem-safe form: diacritics stripped,
// path separators and shell-hostile characters replaced, whitespace
// collapsed.
func SafeName(title string) string {
	folded, _, err := transform.String(foldMarks, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range folded {
		switch {
		case r == '/' || r == '\\' || r == ':':
			r = '-'
		case strings.ContainsRune("*?\"<>|", r):
			continue
		case unicode.IsControl(r):
			continue
		}
		if unicode.IsSpace(r) {
			if lastSpace {
				continue
			}
			lastSpace = true
			b.WriteRune(' ')
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
