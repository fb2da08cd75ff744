package server

import (
	"strings"
	"unicode"
)

// splitFirst splits text on the first whitespace run into its first token
// and the trimmed remainder. The remainder keeps its internal spacing.
// Used both for (command head, argument tail) and for splitting argument
// tails like "<login> <text>".
func splitFirst(text string) (first, rest string) {
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}
