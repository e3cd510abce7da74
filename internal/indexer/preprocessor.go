package indexer

import (
	"strings"
	"unicode"
)

// Preprocess prepares document text for chunking: control characters other than
// line breaks and tabs are dropped, runs of blanks collapse to one space, and
// paragraph breaks survive as a single newline.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace, pendingNewline := false, false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r == '\n':
			pendingNewline = true
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
		default:
			if b.Len() > 0 {
				if pendingNewline {
					b.WriteByte('\n')
				} else if pendingSpace {
					b.WriteByte(' ')
				}
			}
			pendingSpace, pendingNewline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}
