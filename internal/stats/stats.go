// Package stats computes summary figures over partitioned publication records.
package stats

import (
	"sort"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// TopWorksLimit is the number of works listed in Summary.TopWorks.
const TopWorksLimit = 10

// trackedSources are always present in Summary.SourceCounts.
var trackedSources = []domain.SourceLabel{
	domain.SourceORCID,
	domain.SourceCrossRef,
	domain.SourceOpenAlex,
	domain.SourceGoogleScholar,
	domain.SourceUnknown,
}

// Work is one entry of the top-works ranking.
type Work struct {
	Title         string `json:"title"`
	CitationCount int    `json:"citation_count"`
}

// Summary holds aggregate figures for a result set.
type Summary struct {
	TotalCitations  int                        `json:"total_citations"`
	SourceCounts    map[domain.SourceLabel]int `json:"source_counts"`
	YearlyCitations map[int]int                `json:"yearly_citations"`
	TopWorks        []Work                     `json:"top_works"`
}

// Years returns the keys of YearlyCitations in ascending order.
func (s *Summary) Years() []int {
	years := make([]int, 0, len(s.YearlyCitations))
	for y := range s.YearlyCitations {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Compute summarizes records. Every year of window gets a YearlyCitations
// entry, zero when nothing was published that year; records outside the
// window still count towards the total, the source counts and the ranking.
// Labels outside the tracked set count as Unknown.
func Compute(p domain.Partitioned, window domain.DateWindow) Summary {
	s := Summary{
		SourceCounts:    make(map[domain.SourceLabel]int, len(trackedSources)),
		YearlyCitations: make(map[int]int),
		TopWorks:        []Work{},
	}
	for _, src := range trackedSources {
		s.SourceCounts[src] = 0
	}
	for y := window.StartYear(); y <= window.EndYear(); y++ {
		s.YearlyCitations[y] = 0
	}

	var ranking []Work
	for _, rec := range p.All() {
		cites := rec.CitationCount
		if cites < 0 {
			cites = 0
		}
		s.TotalCitations += cites

		if _, ok := s.YearlyCitations[rec.Year]; ok {
			s.YearlyCitations[rec.Year] += cites
		}

		if _, ok := s.SourceCounts[rec.Source]; ok {
			s.SourceCounts[rec.Source]++
		} else {
			s.SourceCounts[domain.SourceUnknown]++
		}

		title := rec.Title
		if title == "" {
			title = "Untitled"
		}
		ranking = append(ranking, Work{Title: title, CitationCount: cites})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].CitationCount > ranking[j].CitationCount
	})
	if len(ranking) > TopWorksLimit {
		ranking = ranking[:TopWorksLimit]
	}
	s.TopWorks = append(s.TopWorks, ranking...)
	return s
}

// ComputeReport summarizes the rows of a batch report.
func ComputeReport(r domain.BatchReport, window domain.DateWindow) Summary {
	var p domain.Partitioned
	for _, row := range r.Journal {
		p.Journal = append(p.Journal, row.Record)
	}
	for _, row := range r.Book {
		p.Book = append(p.Book, row.Record)
	}
	for _, row := range r.Chapter {
		p.Chapter = append(p.Chapter, row.Record)
	}
	return Compute(p, window)
}
