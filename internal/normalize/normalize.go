// Package normalize turns raw source candidates into canonical publication
// records.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

// CitationFieldOrder is the order in which citation count fields are read.
var CitationFieldOrder = []string{"Citation Count", "citation_count", "cited_by_count", "Cited By Count"}

// Normalize converts a candidate into a record. It reports false when the
// candidate has no usable publication year; such candidates are dropped.
func Normalize(c papersources.Candidate) (domain.PublicationRecord, bool) {
	date, year := candidateDate(c)
	if year == 0 {
		return domain.PublicationRecord{}, false
	}

	title := firstNonEmpty(c.ArticleTitle, c.Title, c.ChapterTitle, c.BookTitle)
	if title == "" {
		title = "Untitled"
	}

	source := c.Source
	if source == "" {
		source = domain.SourceUnknown
	}
	origin := c.CitationOrigin
	if origin == "" {
		origin = source
	}

	count, _ := CitationCount(c.CitationFields)

	rec := domain.PublicationRecord{
		Title:           title,
		DOI:             CanonicalDOI(c.DOI),
		Year:            year,
		PublicationDate: date,
		Authors:         candidateAuthors(c),
		AuthorsDetailed: append([]domain.Author(nil), c.AuthorList...),
		CitationCount:   count,
		Citations:       []domain.CitationSample{{Origin: origin, Count: count, Record: uuid.NewString()}},
		Source:          source,
		AuthorsInSchool: strings.TrimSpace(c.AuthorsInSchool),
	}

	switch c.Kind {
	case domain.KindBook:
		rec.Detail = domain.BookDetail{
			BookTitle: firstNonEmpty(c.BookTitle, title),
			Publisher: strings.TrimSpace(c.Publisher),
		}
	case domain.KindChapter:
		rec.Detail = domain.ChapterDetail{
			BookTitle:    strings.TrimSpace(c.BookTitle),
			ChapterTitle: firstNonEmpty(c.ChapterTitle, title),
			Publisher:    strings.TrimSpace(c.Publisher),
		}
	default:
		rec.Detail = domain.JournalDetail{JournalTitle: strings.TrimSpace(c.JournalTitle)}
	}
	return rec, true
}

// All normalizes every candidate and drops those without a usable year.
func All(cands []papersources.Candidate) []domain.PublicationRecord {
	out := make([]domain.PublicationRecord, 0, len(cands))
	for _, c := range cands {
		if rec, ok := Normalize(c); ok {
			out = append(out, rec)
		}
	}
	return out
}

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// CanonicalDOI strips resolver URL and "doi:" prefixes and surrounding
// whitespace. Case is preserved; comparisons should lower-case.
func CanonicalDOI(raw string) string {
	s := strings.TrimSpace(raw)
	for _, p := range doiPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return s
}

// CitationCount reads the citation fields in CitationFieldOrder and returns
// the rounded mean of every parseable value. Negative values count as zero.
// It reports false when no field could be parsed.
func CitationCount(fields map[string]string) (int, bool) {
	var sum float64
	n := 0
	for _, key := range CitationFieldOrder {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, ok := parseCount(raw)
		if !ok {
			continue
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(sum / float64(n))), true
}

func parseCount(raw string) (int, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return max(v, 0), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return max(int(f), 0), true
}

// SplitAuthors splits an author string on ";" after normalizing ", " to
// "; ", dropping blanks and repeats.
func SplitAuthors(s string) []string {
	s = strings.ReplaceAll(s, ", ", "; ")
	return dedupe(strings.Split(s, ";"))
}

func candidateAuthors(c papersources.Candidate) []string {
	if strings.TrimSpace(c.Authors) != "" {
		return SplitAuthors(c.Authors)
	}
	names := make([]string, 0, len(c.AuthorList))
	for _, a := range c.AuthorList {
		names = append(names, a.Name)
	}
	return dedupe(names)
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

var isoLike = regexp.MustCompile(`^(\d{4})(?:-(\d{1,2}))?(?:-(\d{1,2}))?$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
}

// ParseDate normalizes a free-form date to YYYY, YYYY-MM or YYYY-MM-DD and
// returns it with its year. ISO-like values keep their precision; values in
// other common layouts become full dates; otherwise a leading four-digit
// year is used. Unusable input returns "" and 0.
func ParseDate(raw string) (string, int) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0
	}

	if m := isoLike.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return FormatDate(year, month, day), year
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(domain.DateLayout), t.Year()
		}
	}

	if len(s) >= 4 {
		if year, err := strconv.Atoi(s[:4]); err == nil && year > 0 {
			return strconv.Itoa(year), year
		}
	}
	return "", 0
}

// FormatDate renders date parts as YYYY, YYYY-MM or YYYY-MM-DD. A month
// outside 1-12 or a day that does not exist in its month is treated as absent,
// and a day without a month is ignored.
func FormatDate(year, month, day int) string {
	if year <= 0 {
		return ""
	}
	if month < 1 || month > 12 {
		return fmt.Sprintf("%04d", year)
	}
	if day < 1 || time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Month() != time.Month(month) {
		return fmt.Sprintf("%04d-%02d", year, month)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func candidateDate(c papersources.Candidate) (string, int) {
	if date, year := ParseDate(c.RawDate); year > 0 {
		return date, year
	}
	if c.Year > 0 {
		return FormatDate(c.Year, c.Month, c.Day), c.Year
	}
	return "", 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
