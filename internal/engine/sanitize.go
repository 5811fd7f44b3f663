package engine

import "strings"

// Sanitize collapses internal whitespace runs to single spaces, trims the
// result, and enforces the character limit. When the text exceeds the limit
// it is cut at the limit and the trailing partial word is dropped at the
// last space; if no space falls within the limit the cut is hard.
// Independent of the provider and idempotent.
func Sanitize(text string, limit int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	runes := []rune(cleaned)
	if len(runes) <= limit {
		return cleaned
	}
	truncated := string(runes[:limit])
	if idx := strings.LastIndex(truncated, " "); idx >= 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
