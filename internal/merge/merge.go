// Package merge deduplicates normalized publication records across sources,
// partitions them by kind and orders them newest first.
package merge

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// Options configures an Engine.
type Options struct {
	// Strategy combines citation samples. Empty means StrategyMean.
	Strategy CitationStrategy

	// PreferredSource is used by StrategyPreferSource.
	PreferredSource domain.SourceLabel
}

// Engine merges duplicate records. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Strategy == "" {
		opts.Strategy = StrategyMean
	}
	return &Engine{opts: opts}
}

// Strategy returns the configured citation strategy.
func (e *Engine) Strategy() CitationStrategy {
	return e.opts.Strategy
}

// Key returns the identity of a record: its lower-cased DOI when present,
// else its lower-cased title with whitespace collapsed.
func Key(r *domain.PublicationRecord) string {
	if doi := strings.ToLower(strings.TrimSpace(r.DOI)); doi != "" {
		return "doi:" + doi
	}
	return "title:" + strings.Join(strings.Fields(strings.ToLower(r.Title)), " ")
}

// Merge combines two records with the same key. The first record's title and
// kind are kept; everything else is unioned or filled from the second.
func (e *Engine) Merge(a, b domain.PublicationRecord) domain.PublicationRecord {
	out := a.Clone()

	if b.Source.Priority() < out.Source.Priority() {
		out.Source = b.Source
	}

	out.Citations = unionSamples(out.Citations, b.Citations)
	out.CitationCount = e.opts.Strategy.Combine(out.Citations, e.opts.PreferredSource)

	out.Authors = unionStrings(out.Authors, b.Authors)
	out.AuthorsDetailed = unionAuthors(out.AuthorsDetailed, b.AuthorsDetailed)

	if laterDate(out.PublicationDate, b.PublicationDate) {
		out.PublicationDate = b.PublicationDate
		out.Year = b.Year
	}

	if out.DOI == "" {
		out.DOI = b.DOI
	}
	if out.AuthorsInSchool == "" {
		out.AuthorsInSchool = b.AuthorsInSchool
	}
	out.Detail = fillDetail(out.Detail, b.Detail)
	return out
}

// Dedupe merges records sharing a key. The result keeps first-seen order.
func (e *Engine) Dedupe(records []domain.PublicationRecord) []domain.PublicationRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.PublicationRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		if rec.Citations == nil {
			rec.Citations = []domain.CitationSample{{Origin: rec.Source, Count: rec.CitationCount, Record: uuid.NewString()}}
		}
		key := Key(&rec)
		if j, ok := index[key]; ok {
			out[j] = e.Merge(out[j], rec)
			continue
		}
		index[key] = len(out)
		out = append(out, rec.Clone())
	}
	return out
}

// Partition dedupes records, splits them by kind and sorts each list by
// publication date descending with undated records last.
func (e *Engine) Partition(records []domain.PublicationRecord) domain.Partitioned {
	var p domain.Partitioned
	for _, rec := range e.Dedupe(records) {
		switch rec.Kind() {
		case domain.KindBook:
			p.Book = append(p.Book, rec)
		case domain.KindChapter:
			p.Chapter = append(p.Chapter, rec)
		default:
			p.Journal = append(p.Journal, rec)
		}
	}
	SortByDateDesc(p.Journal)
	SortByDateDesc(p.Book)
	SortByDateDesc(p.Chapter)
	return p
}

// SortByDateDesc stable-sorts records newest first. Records without a
// parseable date go last.
func SortByDateDesc(records []domain.PublicationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return NewerFirst(records[i].PublicationDate, records[j].PublicationDate)
	})
}

// NewerFirst reports whether date a sorts before date b in newest-first
// order. Unparseable dates sort after every parseable one.
func NewerFirst(a, b string) bool {
	ta, okA := ParseDate(a)
	tb, okB := ParseDate(b)
	if okA && okB {
		return ta.After(tb)
	}
	return okA && !okB
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

// ParseDate parses YYYY, YYYY-MM or YYYY-MM-DD; missing parts are the first
// of the month or year.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// laterDate reports whether candidate should replace current: it is later,
// or names the same instant with more precision.
func laterDate(current, candidate string) bool {
	tc, okC := ParseDate(candidate)
	if !okC {
		return false
	}
	tr, okR := ParseDate(current)
	if !okR {
		return true
	}
	if tc.After(tr) {
		return true
	}
	return tc.Equal(tr) && len(strings.TrimSpace(candidate)) > len(strings.TrimSpace(current))
}

// unionSamples keeps one sample per contributing record, so merging a record
// with itself or with an earlier merge result adds nothing.
func unionSamples(a, b []domain.CitationSample) []domain.CitationSample {
	var out []domain.CitationSample
	seen := make(map[domain.CitationSample]bool, len(a)+len(b))
	for _, list := range [][]domain.CitationSample{a, b} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	var out []string
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionAuthors(a, b []domain.Author) []domain.Author {
	var out []domain.Author
	index := make(map[string]int, len(a)+len(b))
	for _, list := range [][]domain.Author{a, b} {
		for _, au := range list {
			key := strings.ToLower(strings.TrimSpace(au.Name))
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				if out[i].Affiliation == "" {
					out[i].Affiliation = au.Affiliation
				}
				if out[i].ORCID == "" {
					out[i].ORCID = au.ORCID
				}
				continue
			}
			index[key] = len(out)
			out = append(out, au)
		}
	}
	return out
}

// fillDetail fills empty fields of a from b. Titles and publishers carry
// across kinds; the kind of a is kept.
func fillDetail(a, b domain.Detail) domain.Detail {
	if b == nil {
		return a
	}
	if a == nil {
		a = domain.JournalDetail{}
	}

	bJournal, bBook, bChapter, bPublisher := detailFields(b)
	switch d := a.(type) {
	case domain.JournalDetail:
		if d.JournalTitle == "" {
			d.JournalTitle = bJournal
		}
		return d
	case domain.BookDetail:
		if d.BookTitle == "" {
			d.BookTitle = bBook
		}
		if d.Publisher == "" {
			d.Publisher = bPublisher
		}
		return d
	case domain.ChapterDetail:
		if d.BookTitle == "" {
			d.BookTitle = bBook
		}
		if d.ChapterTitle == "" {
			d.ChapterTitle = bChapter
		}
		if d.Publisher == "" {
			d.Publisher = bPublisher
		}
		return d
	}
	return a
}

func detailFields(d domain.Detail) (journal, book, chapter, publisher string) {
	switch v := d.(type) {
	case domain.JournalDetail:
		return v.JournalTitle, "", "", ""
	case domain.BookDetail:
		return "", v.BookTitle, "", v.Publisher
	case domain.ChapterDetail:
		return "", v.BookTitle, v.ChapterTitle, v.Publisher
	}
	return "", "", "", ""
}
