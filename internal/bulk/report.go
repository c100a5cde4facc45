package bulk

import (
	"sort"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/merge"
	"github.com/helixir/publication-aggregator/internal/normalize"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

// NewReport assembles a batch report from entity outcomes.
//
// Rows are attributed to the entity that produced them. A work that several
// entities share appears once, merged, under the first entity in input order.
// Each row list is sorted newest first.
func NewReport(outcomes []domain.EntityOutcome, engine *merge.Engine) domain.BatchReport {
	if engine == nil {
		engine = merge.New(merge.Options{})
	}

	report := domain.BatchReport{
		Total:    len(outcomes),
		Outcomes: outcomes,
		Profiles: []domain.AuthorProfile{},
		Failed:   []domain.FailedEntity{},
	}

	journal := newRowSet(engine)
	book := newRowSet(engine)
	chapter := newRowSet(engine)

	for i := range outcomes {
		o := &outcomes[i]
		switch o.State {
		case domain.EntityStateSucceeded:
			report.Succeeded++
		case domain.EntityStateFailed:
			report.Failed = append(report.Failed, domain.FailedEntity{
				Identifier: o.Entity.Identifier(),
				Error:      o.Error,
			})
			continue
		default:
			report.Failed = append(report.Failed, domain.FailedEntity{
				Identifier: o.Entity.Identifier(),
				Error:      "not processed",
			})
			continue
		}

		if o.Profile != nil {
			report.Profiles = append(report.Profiles, *o.Profile)
		}

		attr := attributionFor(o)
		journal.add(o.Records.Journal, attr)
		book.add(o.Records.Book, attr)
		chapter.add(o.Records.Chapter, attr)
	}

	report.Journal = journal.sorted()
	report.Book = book.sorted()
	report.Chapter = chapter.sorted()
	return report
}

func attributionFor(o *domain.EntityOutcome) domain.Attribution {
	return domain.Attribution{
		FacultyName:  o.Entity.Name,
		FacultyORCID: domain.NormalizeORCID(o.Entity.ORCID),
		JoinYear:     o.Entity.JoinYear,
		JoinMonth:    o.Entity.JoinMonth,
		StartYear:    startYear(o),
	}
}

// startYear is the first year the entity was searched from.
func startYear(o *domain.EntityOutcome) int {
	if !o.Window.Start.IsZero() {
		return o.Window.StartYear()
	}
	return o.Entity.SearchWindow(nil).StartYear()
}

// rowSet merges attributed records by identity key, keeping first-seen order.
type rowSet struct {
	engine *merge.Engine
	index  map[string]int
	rows   []domain.AttributedRecord
}

func newRowSet(engine *merge.Engine) *rowSet {
	return &rowSet{engine: engine, index: make(map[string]int)}
}

func (s *rowSet) add(records []domain.PublicationRecord, attr domain.Attribution) {
	for i := range records {
		key := merge.Key(&records[i])
		if j, ok := s.index[key]; ok {
			s.rows[j].Record = s.engine.Merge(s.rows[j].Record, records[i])
			continue
		}
		s.index[key] = len(s.rows)
		s.rows = append(s.rows, domain.AttributedRecord{Record: records[i].Clone(), Attribution: attr})
	}
}

func (s *rowSet) sorted() []domain.AttributedRecord {
	out := append([]domain.AttributedRecord(nil), s.rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return merge.NewerFirst(out[i].Record.PublicationDate, out[j].Record.PublicationDate)
	})
	if out == nil {
		out = []domain.AttributedRecord{}
	}
	return out
}

// normalizeInWindow normalizes candidates and drops those outside window.
func normalizeInWindow(candidates []papersources.Candidate, window domain.DateWindow) []domain.PublicationRecord {
	records := normalize.All(candidates)
	kept := records[:0]
	for _, r := range records {
		if window.ContainsYear(r.Year) {
			kept = append(kept, r)
		}
	}
	return kept
}
