package domain

import "strings"

// SourceLabel records which external source provided a publication record.
// It is provenance used as a tie-break signal, never as identity.
type SourceLabel string

const (
	SourceORCID           SourceLabel = "ORCID"
	SourceGoogleScholar   SourceLabel = "Google Scholar"
	SourceCrossRef        SourceLabel = "CrossRef"
	SourceOpenAlex        SourceLabel = "OpenAlex"
	SourceSemanticScholar SourceLabel = "Semantic Scholar"
	SourceUnknown         SourceLabel = "Unknown"
)

// sourcePriority orders labels for merge tie-breaks. Lower wins.
var sourcePriority = map[SourceLabel]int{
	SourceORCID:         0,
	SourceGoogleScholar: 1,
	SourceCrossRef:      2,
	SourceOpenAlex:      3,
	SourceUnknown:       4,
}

// Priority returns the merge priority of the label. Labels outside the
// record provenance set rank with Unknown.
func (s SourceLabel) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return sourcePriority[SourceUnknown]
}

// String returns the string representation of the source label.
func (s SourceLabel) String() string {
	return string(s)
}

// ParseSourceLabel maps a free-form label onto a known SourceLabel.
// Matching is case-insensitive and ignores spaces, dashes and underscores.
func ParseSourceLabel(raw string) SourceLabel {
	key := strings.ToLower(raw)
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "orcid":
		return SourceORCID
	case "googlescholar", "scholar":
		return SourceGoogleScholar
	case "crossref":
		return SourceCrossRef
	case "openalex":
		return SourceOpenAlex
	case "semanticscholar", "s2":
		return SourceSemanticScholar
	default:
		return SourceUnknown
	}
}

// ProfileSource names the source that produced a whole-author signal for a
// bulk entity. These values are persisted with entity outcomes.
type ProfileSource string

const (
	ProfileSourceORCID         ProfileSource = "orcid"
	ProfileSourceGoogleScholar ProfileSource = "google_scholar"
	ProfileSourceOpenAlex      ProfileSource = "openalex"
)
