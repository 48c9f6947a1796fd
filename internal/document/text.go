package document

import (
	"strings"
	"unicode"
)

// ExcerptContext is the number of characters kept on each side of a search match.
const ExcerptContext = 100

// CollapseWhitespace replaces every whitespace run with one space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CollapseRepeats shrinks runs of four or more identical characters to a
// single character. Shorter runs are kept.
func CollapseRepeats(s string) string {
	rs := []rune(s)
	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(rs); {
		j := i + 1
		for j < len(rs) && rs[j] == rs[i] {
			j++
		}
		n := j - i
		if n >= 4 {
			n = 1
		}
		for k := 0; k < n; k++ {
			out.WriteRune(rs[i])
		}
		i = j
	}
	return out.String()
}

// Excerpt finds the first case-insensitive occurrence of query in text and
// returns it with up to context characters on each side. An ellipsis marks
// each edge where text was cut.
func Excerpt(text, query string, context int) (string, bool) {
	rs := []rune(text)
	q := lowerRunes([]rune(query))
	idx := indexRunes(lowerRunes(rs), q)
	if idx < 0 {
		return "", false
	}

	start := max(0, idx-context)
	end := min(len(rs), idx+len(q)+context)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(rs[start:end]))
	if end < len(rs) {
		b.WriteString("...")
	}
	return b.String(), true
}

// lowerRunes lowercases rune by rune so indexes stay aligned with the input.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
