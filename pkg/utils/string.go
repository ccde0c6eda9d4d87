package utils

// Truncate shortens s to at most maxLen runes, marking the cut with an
// ellipsis.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "…"
}
