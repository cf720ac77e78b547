package chunk

import (
	"strings"
	"unicode"
)

// Normalize collapses whitespace runs into single spaces and trims the
// result. Punctuation is preserved since it carries semantic weight for
// embedding models.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	return b.String()
}
