package extract

import (
	"sort"
	"strings"
)

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

// lineOf returns the 1-based line containing the byte offset.
func (ix *lineIndex) lineOf(offset int) int {
	return sort.Search(len(ix.starts), func(i int) bool {
		return ix.starts[i] > offset
	})
}

// skipString advances past a string literal starting at src[i] (a quote,
// double quote, or backtick), honoring backslash escapes. Returns the index
// just after the closing quote, or len(src) when unterminated.
func skipString(src string, i int) int {
	quote := src[i]
	i++
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1
		}
		i++
	}
	return i
}

// skipComment advances past a // or /* comment starting at src[i]. Returns
// the index just after the comment, or i when src[i] does not open one.
func skipComment(src string, i int) int {
	if i+1 >= len(src) || src[i] != '/' {
		return i
	}
	switch src[i+1] {
	case '/':
		for i < len(src) && src[i] != '\n' {
			i++
		}
		return i
	case '*':
		end := strings.Index(src[i+2:], "*/")
		if end < 0 {
			return len(src)
		}
		return i + 2 + end + 2
	}
	return i
}

// matchDelimiter returns the index just past the delimiter closing
// src[open], skipping string literals and comments. ok is false when the
// source ends before the delimiter closes.
func matchDelimiter(src string, open int) (end int, ok bool) {
	openCh := src[open]
	var closeCh byte
	switch openCh {
	case '(':
		closeCh = ')'
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	case '<':
		closeCh = '>'
	default:
		return open, false
	}

	depth := 0
	i := open
	for i < len(src) {
		switch c := src[i]; c {
		case '\'', '"', '`':
			i = skipString(src, i)
			continue
		case '/':
			if next := skipComment(src, i); next != i {
				i = next
				continue
			}
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
		i++
	}
	return len(src), false
}

// splitTopLevel splits s on sep at bracket depth zero, skipping string
// literals. Used for parameter lists and enum bodies.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	i := 0
	for i < len(s) {
		switch c := s[i]; c {
		case '\'', '"', '`':
			i = skipString(s, i)
			continue
		case '(', '{', '[', '<':
			depth++
		case ')', '}', ']', '>':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
		i++
	}
	parts = append(parts, s[start:])

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// delimiterBalance counts unclosed braces, parens, and brackets outside
// strings and comments. All zero means balanced source.
func delimiterBalance(src string) (braces, parens, brackets int) {
	i := 0
	for i < len(src) {
		switch c := src[i]; c {
		case '\'', '"', '`':
			i = skipString(src, i)
			continue
		case '/':
			if next := skipComment(src, i); next != i {
				i = next
				continue
			}
		case '{':
			braces++
		case '}':
			braces--
		case '(':
			parens++
		case ')':
			parens--
		case '[':
			brackets++
		case ']':
			brackets--
		}
		i++
	}
	return braces, parens, brackets
}

// depthAtLineStarts computes the brace depth in effect at the start of each
// line of body. Used to find class/interface members, which sit at depth
// one inside the body.
func depthAtLineStarts(body string) []int {
	depths := []int{0}
	depth := 0
	i := 0
	for i < len(body) {
		switch c := body[i]; c {
		case '\'', '"', '`':
			i = skipString(body, i)
			continue
		case '/':
			if next := skipComment(body, i); next != i {
				i = next
				continue
			}
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		case '\n':
			depths = append(depths, depth)
		}
		i++
	}
	return depths
}

// isIdentChar reports whether c can appear in an identifier.
func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
