package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the layout used for search window boundaries.
const DateLayout = "2006-01-02"

// Default search window boundaries.
var (
	DefaultWindowStart = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	DefaultWindowEnd   = time.Date(2050, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// DateWindow is an inclusive publication date range used to filter works.
type DateWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultWindow returns the 2000-01-01 to 2050-12-31 window.
func DefaultWindow() DateWindow {
	return DateWindow{Start: DefaultWindowStart, End: DefaultWindowEnd}
}

// ParseWindow parses YYYY-MM-DD boundaries. Empty boundaries fall back to the
// default window's values.
func ParseWindow(start, end string) (DateWindow, error) {
	w := DefaultWindow()
	if s := strings.TrimSpace(start); s != "" {
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return DateWindow{}, NewValidationError("start_date", fmt.Sprintf("expected YYYY-MM-DD, got %q", start))
		}
		w.Start = t
	}
	if e := strings.TrimSpace(end); e != "" {
		t, err := time.Parse(DateLayout, e)
		if err != nil {
			return DateWindow{}, NewValidationError("end_date", fmt.Sprintf("expected YYYY-MM-DD, got %q", end))
		}
		w.End = t
	}
	if w.End.Before(w.Start) {
		return DateWindow{}, NewValidationError("end_date", "end date must not be before start date")
	}
	return w, nil
}

// StartYear returns the first year of the window.
func (w DateWindow) StartYear() int { return w.Start.Year() }

// EndYear returns the last year of the window.
func (w DateWindow) EndYear() int { return w.End.Year() }

// ContainsYear reports whether year falls inside the window's year range.
func (w DateWindow) ContainsYear(year int) bool {
	return year >= w.StartYear() && year <= w.EndYear()
}

// String returns the window as "start..end".
func (w DateWindow) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}

// FacultyEntity is one researcher handed to the bulk orchestrator.
type FacultyEntity struct {
	Name      string `json:"name" yaml:"name" validate:"required_without_all=ORCID ScholarID"`
	ORCID     string `json:"orcid,omitempty" yaml:"orcid,omitempty"`
	ScholarID string `json:"scholar_id,omitempty" yaml:"scholar_id,omitempty"`
	JoinYear  int    `json:"join_year,omitempty" yaml:"join_year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	JoinMonth int    `json:"join_month,omitempty" yaml:"join_month,omitempty" validate:"omitempty,gte=1,lte=12"`
}

// Identifier returns the most specific identifier of the entity:
// the ORCID, else the Scholar id, else the name.
func (e FacultyEntity) Identifier() string {
	switch {
	case e.ORCID != "":
		return e.ORCID
	case e.ScholarID != "":
		return e.ScholarID
	default:
		return e.Name
	}
}

// SearchWindow derives the entity's search window. An explicit override wins;
// otherwise the join date opens the window; otherwise the default applies.
func (e FacultyEntity) SearchWindow(override *DateWindow) DateWindow {
	if override != nil {
		return *override
	}
	if e.JoinYear > 0 {
		month := e.JoinMonth
		if month < 1 || month > 12 {
			month = 1
		}
		return DateWindow{
			Start: time.Date(e.JoinYear, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
			End:   DefaultWindowEnd,
		}
	}
	return DefaultWindow()
}

var orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)

// NormalizeORCID strips URL prefixes, quotes and angle brackets from an ORCID
// string and upper-cases the checksum character.
func NormalizeORCID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "<>\"' ")
	for _, prefix := range []string{"https://orcid.org/", "http://orcid.org/", "orcid.org/"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.Trim(s, "/<>\"' ")
	return strings.ToUpper(s)
}

// ValidORCID reports whether s is a normalized ORCID of the form 0000-0000-0000-000X.
func ValidORCID(s string) bool {
	return orcidPattern.MatchString(s)
}
