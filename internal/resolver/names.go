// Package resolver maps free-text author names to source identities and
// decides whether a publication's author list refers to a given person.
package resolver

import (
	"strings"
	"unicode"
)

// NormalizeName normalizes an author name for comparison:
//   - Converts to lowercase
//   - Detects and reorders "Last, First" format to "First Last"
//   - Removes all non-letter, non-space characters (apostrophes, periods, hyphens, etc.)
//   - Collapses multiple spaces to a single space
//   - Trims leading and trailing whitespace
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false

	for _, r := range name {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// Tokens splits a lower-cased name on whitespace.
func Tokens(name string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(name)))
}

// ContainsWord reports whether phrase occurs in text bounded on both sides by
// a non-word character or the text edge. Comparison is case-insensitive.
func ContainsWord(text, phrase string) bool {
	text = strings.ToLower(text)
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}

	for from := 0; from <= len(text)-len(phrase); {
		idx := strings.Index(text[from:], phrase)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(phrase)
		if wordBoundary(text, start, true) && wordBoundary(text, end, false) {
			return true
		}
		from = start + 1
	}
	return false
}

// wordBoundary reports whether the rune adjacent to pos (before it when
// before is true, at it otherwise) is absent or not a word character.
func wordBoundary(text string, pos int, before bool) bool {
	var r rune
	if before {
		if pos == 0 {
			return true
		}
		r = lastRune(text[:pos])
	} else {
		if pos >= len(text) {
			return true
		}
		r = []rune(text[pos:])[0]
	}
	return !isWordRune(r)
}

func lastRune(s string) rune {
	runes := []rune(s)
	return runes[len(runes)-1]
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// MatchesName reports whether candidate names the same person as query:
// either the full names are equal ignoring case, or every query token appears
// in candidate as a whole word.
func MatchesName(query, candidate string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return false
	}
	if q == c {
		return true
	}
	for _, tok := range strings.Fields(q) {
		if !ContainsWord(c, tok) {
			return false
		}
	}
	return true
}
