package helpers

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max runes, appending an ellipsis when
// anything was cut. Safe on multi-byte text.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// Snippet returns the first max runes of s collapsed onto one line, for log
// lines and search results.
func Snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	return Truncate(s, max)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
