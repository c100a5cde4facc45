package merge

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/normalize"
)

func journal(title, doi, date string, source domain.SourceLabel, count int) domain.PublicationRecord {
	year := 0
	if t, ok := ParseDate(date); ok {
		year = t.Year()
	}
	return domain.PublicationRecord{
		Title:           title,
		DOI:             doi,
		Year:            year,
		PublicationDate: date,
		CitationCount:   count,
		Citations:       []domain.CitationSample{{Origin: source, Count: count, Record: uuid.NewString()}},
		Source:          source,
		Detail:          domain.JournalDetail{},
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	a := journal("Deep  Learning", "10.1/ABC", "2020", domain.SourceORCID, 0)
	b := journal("other", "10.1/abc", "2020", domain.SourceORCID, 0)
	assert.Equal(t, Key(&a), Key(&b))
	assert.Equal(t, "doi:10.1/abc", Key(&a))

	c := journal(" Deep   LEARNING ", "", "2020", domain.SourceORCID, 0)
	assert.Equal(t, "title:deep learning", Key(&c))
}

func TestEngine_Merge(t *testing.T) {
	t.Parallel()

	t.Run("mean of citations and higher priority source", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceOpenAlex, 20)
		b := journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 10)

		got := e.Merge(a, b)
		assert.Equal(t, 15, got.CitationCount)
		assert.Equal(t, domain.SourceCrossRef, got.Source)
		assert.Len(t, got.Citations, 2)
	})

	t.Run("more specific date wins on the same instant", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceORCID, 0)
		b := journal("Paper", "10.1/x", "2021-01-01", domain.SourceOpenAlex, 0)

		assert.Equal(t, "2021-01-01", e.Merge(a, b).PublicationDate)
		assert.Equal(t, "2021-01-01", e.Merge(b, a).PublicationDate)
	})

	t.Run("later date wins", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceORCID, 0)
		b := journal("Paper", "10.1/x", "2021-05-03", domain.SourceOpenAlex, 0)

		got := e.Merge(a, b)
		assert.Equal(t, "2021-05-03", got.PublicationDate)
		assert.Equal(t, 2021, got.Year)

		got = e.Merge(b, a)
		assert.Equal(t, "2021-05-03", got.PublicationDate)
	})

	t.Run("unparseable date never replaces", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "", "2020", domain.SourceORCID, 0)
		b := journal("Paper", "", "garbage", domain.SourceOpenAlex, 0)
		assert.Equal(t, "2020", e.Merge(a, b).PublicationDate)
	})

	t.Run("authors union in first-seen order", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceORCID, 0)
		a.Authors = []string{"A", "B"}
		a.AuthorsDetailed = []domain.Author{{Name: "A"}}
		b := journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 0)
		b.Authors = []string{"B", "C"}
		b.AuthorsDetailed = []domain.Author{{Name: "a", Affiliation: "NTU"}, {Name: "C"}}

		got := e.Merge(a, b)
		assert.Equal(t, []string{"A", "B", "C"}, got.Authors)
		assert.Equal(t, []domain.Author{{Name: "A", Affiliation: "NTU"}, {Name: "C"}}, got.AuthorsDetailed)
		assert.Equal(t, []string{"A", "B"}, a.Authors, "inputs are not mutated")
	})

	t.Run("empty detail fields filled", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceORCID, 0)
		b := journal("Paper", "10.1/x", "2021", domain.SourceOpenAlex, 0)
		b.Detail = domain.JournalDetail{JournalTitle: "Nature"}
		b.AuthorsInSchool = "Hong Xu"

		got := e.Merge(a, b)
		assert.Equal(t, "Nature", got.JournalTitle())
		assert.Equal(t, "Hong Xu", got.AuthorsInSchool)

		book := domain.PublicationRecord{Title: "B", Detail: domain.BookDetail{BookTitle: "B"}}
		chapter := domain.PublicationRecord{Title: "B", Detail: domain.ChapterDetail{BookTitle: "B", Publisher: "Wiley"}}
		merged := e.Merge(book, chapter)
		assert.Equal(t, domain.KindBook, merged.Kind())
		assert.Equal(t, "Wiley", merged.Publisher())
	})

	t.Run("equal counts from distinct records each contribute", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 10)
		b := journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 10)
		c := journal("Paper", "10.1/x", "2021", domain.SourceOpenAlex, 20)

		got := e.Merge(e.Merge(a, b), c)
		assert.Len(t, got.Citations, 3)
		assert.Equal(t, 13, got.CitationCount)
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		e := New(Options{})
		a := journal("Paper", "10.1/x", "2021", domain.SourceOpenAlex, 20)
		b := journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 10)

		once := e.Merge(a, b)
		twice := e.Merge(once, b)
		assert.Equal(t, once, twice)
	})
}

func TestCitationStrategy(t *testing.T) {
	t.Parallel()

	samples := []domain.CitationSample{
		{Origin: domain.SourceOpenAlex, Count: 20},
		{Origin: domain.SourceCrossRef, Count: 11},
	}

	assert.Equal(t, 16, StrategyMean.Combine(samples, ""))
	assert.Equal(t, 20, StrategyMax.Combine(samples, ""))
	assert.Equal(t, 11, StrategyPreferSource.Combine(samples, domain.SourceCrossRef))
	assert.Equal(t, 16, StrategyPreferSource.Combine(samples, domain.SourceSemanticScholar))
	assert.Equal(t, 0, StrategyMean.Combine(nil, ""))
	assert.Equal(t, 0, StrategyMean.Combine([]domain.CitationSample{{Count: -4}}, ""))

	e := New(Options{Strategy: StrategyMax})
	got := e.Merge(
		journal("Paper", "10.1/x", "2021", domain.SourceOpenAlex, 20),
		journal("Paper", "10.1/x", "2021", domain.SourceCrossRef, 10),
	)
	assert.Equal(t, 20, got.CitationCount)
}

func TestParseCitationStrategy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]CitationStrategy{
		"":              StrategyMean,
		"MEAN":          StrategyMean,
		" max ":         StrategyMax,
		"prefer_source": StrategyPreferSource,
	} {
		got, err := ParseCitationStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCitationStrategy("median")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngine_Partition(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	records := []domain.PublicationRecord{
		journal("Old", "10.1/old", "2019", domain.SourceOpenAlex, 1),
		journal("Deep Learning", "", "2021", domain.SourceOpenAlex, 3),
		journal("deep  learning", "", "2021-06", domain.SourceORCID, 5),
		journal("Undated", "10.1/u", "", domain.SourceCrossRef, 0),
		journal("New", "10.1/new", "2022-02-01", domain.SourceCrossRef, 2),
		journal("New dup", "10.1/NEW", "2022", domain.SourceOpenAlex, 4),
		{Title: "A Book", Year: 2020, PublicationDate: "2020", Source: domain.SourceORCID, Detail: domain.BookDetail{BookTitle: "A Book"}},
		{Title: "A Chapter", Year: 2020, PublicationDate: "2020", Source: domain.SourceORCID, Detail: domain.ChapterDetail{ChapterTitle: "A Chapter"}},
	}

	p := e.Partition(records)
	require.Len(t, p.Journal, 4)
	require.Len(t, p.Book, 1)
	require.Len(t, p.Chapter, 1)
	assert.Equal(t, 6, p.Len())

	titles := make([]string, 0, len(p.Journal))
	for _, r := range p.Journal {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"New", "Deep Learning", "Old", "Undated"}, titles)

	assert.Equal(t, 3, p.Journal[0].CitationCount)
	assert.Equal(t, domain.SourceCrossRef, p.Journal[0].Source)
	assert.Equal(t, "2022-02-01", p.Journal[0].PublicationDate)

	assert.Equal(t, domain.SourceORCID, p.Journal[1].Source)
	assert.Equal(t, "2021-06", p.Journal[1].PublicationDate)
	assert.Equal(t, 4, p.Journal[1].CitationCount)

	again := e.Partition(p.All())
	assert.Equal(t, p, again)
}

func TestEngine_Dedupe_SynthesizesMissingSamples(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	a := domain.PublicationRecord{Title: "x", DOI: "10.1/x", CitationCount: 10, Source: domain.SourceCrossRef}
	b := domain.PublicationRecord{Title: "x", DOI: "10.1/x", CitationCount: 20, Source: domain.SourceOpenAlex}

	got := e.Dedupe([]domain.PublicationRecord{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, 15, got[0].CitationCount)
}

func TestSortByDateDesc(t *testing.T) {
	t.Parallel()

	recs := []domain.PublicationRecord{
		{Title: "none"},
		{Title: "2020", PublicationDate: "2020"},
		{Title: "2021-03", PublicationDate: "2021-03"},
		{Title: "bad", PublicationDate: "20-20"},
		{Title: "2021-03-05", PublicationDate: "2021-03-05"},
	}
	SortByDateDesc(recs)

	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.Title)
	}
	assert.Equal(t, []string{"2021-03-05", "2021-03", "2020", "none", "bad"}, got)
}

func TestSortByDateDesc_NormalizedImpossibleDay(t *testing.T) {
	t.Parallel()

	feb, _ := normalize.ParseDate("2021-02-30")
	old, _ := normalize.ParseDate("2019")
	recs := []domain.PublicationRecord{
		{Title: "old", PublicationDate: old},
		{Title: "feb", PublicationDate: feb},
	}
	SortByDateDesc(recs)

	assert.Equal(t, "feb", recs[0].Title)
	assert.Equal(t, "2021-02", recs[0].PublicationDate)
	assert.True(t, laterDate(old, feb))
}
