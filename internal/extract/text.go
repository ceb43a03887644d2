package extract

import "strings"

// splitLines normalizes CRLF and lone CR endings, then splits. Line numbers
// everywhere in this package are 1-based indexes into the returned slice.
func splitLines(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// truncateName shortens s to at most max runes for use as a display name.
func truncateName(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}

// maskSpan blanks [start,end) in a byte slice so later scans of the same
// line cannot rematch an already-consumed token.
func maskSpan(line []byte, start, end int) {
	for i := start; i < end && i < len(line); i++ {
		line[i] = ' '
	}
}
