package util

import "strings"

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FirstMeaningfulLine returns the first line with at least minLen
// non-space characters, or "" when none qualifies.
func FirstMeaningfulLine(s string, minLen int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= minLen {
			return line
		}
	}
	return ""
}

// Truncate cuts s to at most n bytes, appending "..." when it shortens.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
