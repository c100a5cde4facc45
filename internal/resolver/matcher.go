package resolver

import (
	"strings"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// DefaultInstitutionMarkers are the affiliation substrings that identify the
// home institution.
var DefaultInstitutionMarkers = []string{"nanyang technological university", "nanyang", "ntu"}

// Matcher decides whether a publication's authors include a searched person.
// It is safe for concurrent use.
type Matcher struct {
	markers []string
}

// NewMatcher creates a matcher with the given institution markers.
// With no markers, DefaultInstitutionMarkers are used.
func NewMatcher(markers []string) *Matcher {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultInstitutionMarkers...)
	}
	return &Matcher{markers: cleaned}
}

// Markers returns a copy of the configured institution markers.
func (m *Matcher) Markers() []string {
	return append([]string(nil), m.markers...)
}

// HasInstitution reports whether text contains an institution marker.
func (m *Matcher) HasInstitution(text string) bool {
	text = strings.ToLower(text)
	if text == "" {
		return false
	}
	for _, marker := range m.markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Matches reports whether query names one of the authors.
//
// A whole-phrase occurrence of the full name in authorText is accepted.
// Otherwise every token must occur as a whole word. For two-token names
// where only the reversed order occurs ("Xu Hong" for "Hong Xu"), the match
// stands only if an author with exactly those tokens carries an institution
// affiliation, or, without structured authors, the author text itself
// mentions the institution.
func (m *Matcher) Matches(query, authorText string, authors []domain.Author) bool {
	name := strings.ToLower(strings.TrimSpace(query))
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return false
	}
	name = strings.Join(parts, " ")

	if authorText == "" && len(authors) > 0 {
		names := make([]string, 0, len(authors))
		for _, a := range authors {
			names = append(names, a.Name)
		}
		authorText = strings.Join(names, "; ")
	}
	text := strings.ToLower(authorText)

	if ContainsWord(text, name) {
		return true
	}
	for _, p := range parts {
		if !ContainsWord(text, p) {
			return false
		}
	}

	if len(parts) != 2 {
		return true
	}
	reversed := parts[1] + " " + parts[0]
	if !ContainsWord(text, reversed) {
		return true
	}

	if len(authors) == 0 {
		return m.HasInstitution(authorText)
	}
	for _, a := range authors {
		if sameTokens(a.Name, parts) && m.HasInstitution(a.Affiliation) {
			return true
		}
	}
	return false
}

// MatchesRecord applies Matches to a record's authors, then falls back to a
// whole-phrase match against the record's authors-in-school list.
func (m *Matcher) MatchesRecord(query string, r *domain.PublicationRecord) bool {
	if m.Matches(query, r.AuthorString(), r.AuthorsDetailed) {
		return true
	}
	return r.AuthorsInSchool != "" && ContainsWord(r.AuthorsInSchool, query)
}

// AuthorsInSchool lists query first, then every other author whose
// affiliation carries an institution marker or whose name is in known.
// Names are joined with "; ".
func (m *Matcher) AuthorsInSchool(query string, authors []domain.Author, known func(string) bool) string {
	out := []string{}
	seen := map[string]bool{}
	add := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(name))
	}

	add(query)
	for _, a := range authors {
		if m.HasInstitution(a.Affiliation) || (known != nil && known(a.Name)) {
			add(a.Name)
		}
	}
	return strings.Join(out, "; ")
}

func sameTokens(name string, parts []string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		switch r {
		case ';', ',', '|', '\\', '/', ' ', '\t', '\n':
			return true
		}
		return false
	})
	if len(tokens) == 0 {
		return false
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	want := make(map[string]bool, len(parts))
	for _, p := range parts {
		want[p] = true
	}
	if len(set) != len(want) {
		return false
	}
	for p := range want {
		if !set[p] {
			return false
		}
	}
	return true
}
