package stats

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
)

func rec(title string, year, cites int, src domain.SourceLabel) domain.PublicationRecord {
	return domain.PublicationRecord{
		Title:         title,
		Year:          year,
		CitationCount: cites,
		Source:        src,
		Detail:        domain.JournalDetail{},
	}
}

func TestCompute(t *testing.T) {
	window, err := domain.ParseWindow("2020-01-01", "2022-12-31")
	require.NoError(t, err)

	p := domain.Partitioned{
		Journal: []domain.PublicationRecord{
			rec("A", 2021, 10, domain.SourceORCID),
			rec("B", 2019, 4, domain.SourceCrossRef),
		},
		Book:    []domain.PublicationRecord{rec("C", 2022, 7, domain.SourceOpenAlex)},
		Chapter: []domain.PublicationRecord{rec("", 2021, 0, domain.SourceSemanticScholar)},
	}

	s := Compute(p, window)

	assert.Equal(t, 21, s.TotalCitations)
	assert.Equal(t, map[int]int{2020: 0, 2021: 10, 2022: 7}, s.YearlyCitations)
	assert.Equal(t, []int{2020, 2021, 2022}, s.Years())
	assert.Equal(t, 1, s.SourceCounts[domain.SourceORCID])
	assert.Equal(t, 1, s.SourceCounts[domain.SourceCrossRef])
	assert.Equal(t, 1, s.SourceCounts[domain.SourceOpenAlex])
	assert.Equal(t, 0, s.SourceCounts[domain.SourceGoogleScholar])
	assert.Equal(t, 1, s.SourceCounts[domain.SourceUnknown])

	require.Len(t, s.TopWorks, 4)
	assert.Equal(t, Work{Title: "A", CitationCount: 10}, s.TopWorks[0])
	assert.Equal(t, Work{Title: "C", CitationCount: 7}, s.TopWorks[1])
	assert.Equal(t, "Untitled", s.TopWorks[3].Title)
}

func TestCompute_TopWorksLimit(t *testing.T) {
	var journal []domain.PublicationRecord
	for i := 0; i < 15; i++ {
		journal = append(journal, rec(fmt.Sprintf("W%d", i), 2020, i, domain.SourceORCID))
	}

	s := Compute(domain.Partitioned{Journal: journal}, domain.DefaultWindow())
	require.Len(t, s.TopWorks, TopWorksLimit)
	assert.Equal(t, 14, s.TopWorks[0].CitationCount)
	assert.Equal(t, 5, s.TopWorks[9].CitationCount)
	assert.Len(t, s.YearlyCitations, 51)
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(domain.Partitioned{}, domain.DefaultWindow())
	assert.Zero(t, s.TotalCitations)
	assert.NotNil(t, s.TopWorks)
	assert.Empty(t, s.TopWorks)
}

func TestComputeReport(t *testing.T) {
	r := domain.BatchReport{
		Journal: []domain.AttributedRecord{{Record: rec("A", 2021, 3, domain.SourceORCID)}},
		Chapter: []domain.AttributedRecord{{Record: rec("B", 2021, 2, domain.SourceORCID)}},
	}
	s := ComputeReport(r, domain.DefaultWindow())
	assert.Equal(t, 5, s.TotalCitations)
	assert.Equal(t, 5, s.YearlyCitations[2021])
	assert.Equal(t, 2, s.SourceCounts[domain.SourceORCID])
}
