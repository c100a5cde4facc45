// Package papersources provides interfaces and types for bibliographic source clients.
//
// Each external source (ORCID, CrossRef, OpenAlex, Semantic Scholar, Google Scholar)
// lives in its own subpackage and implements one or more of the capability
// interfaces defined here:
//
//   - WorkSource: returns per-work candidates for one author identity.
//   - ProfileSource: returns a whole-author citation total.
//   - CitationLookup: returns a citation count for one DOI.
//   - AuthorSearcher: resolves a free-text name to a source author.
//
// Example usage:
//
//	source := crossref.New(cfg, papersources.CitationChain{openalexClient})
//	candidates, err := source.Fetch(ctx, papersources.FetchParams{
//		Identity: papersources.Identity{Name: "Hong Xu"},
//		Window:   domain.DefaultWindow(),
//	})
package papersources

import (
	"context"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// Identity carries whatever is known about the author being queried.
// Adapters use the field they understand and ignore the rest.
type Identity struct {
	// Name is the free-text author name.
	Name string

	// ORCID is a normalized ORCID iD (0000-0000-0000-0000).
	ORCID string

	// OpenAlexID is an OpenAlex author id (A123...).
	OpenAlexID string

	// ScholarID is a Google Scholar user id or full profile URL.
	ScholarID string
}

// FetchParams defines one adapter query.
type FetchParams struct {
	Identity Identity
	Window   domain.DateWindow
}

// Candidate is a raw per-source publication record, before normalization.
// Adapters fill the fields their source provides and leave the rest zero.
type Candidate struct {
	// Source is the provenance label of the adapter that produced the candidate.
	Source domain.SourceLabel

	// RawType is the source-specific work type (e.g. "journal-article", "book-chapter").
	RawType string

	// Kind is the publication kind the adapter mapped RawType to.
	// Empty means journal.
	Kind domain.PublicationKind

	Title        string
	ArticleTitle string
	ChapterTitle string
	BookTitle    string

	// DOI in whatever form the source returned (URL, doi: prefix or bare).
	DOI string

	// Year, Month and Day are date parts; zero means absent.
	Year  int
	Month int
	Day   int

	// RawDate is a free-form date string used when parts are unavailable.
	RawDate string

	// Authors is an explicit author string. When empty, AuthorList is used.
	Authors    string
	AuthorList []domain.Author

	JournalTitle string
	Publisher    string

	// AuthorsInSchool is set by sources that know which listed authors
	// belong to the institution.
	AuthorsInSchool string

	// CitationFields holds citation counts keyed by the field name the source used.
	CitationFields map[string]string

	// CitationOrigin names the source that actually reported the count, which
	// differs from Source when a citation oracle was consulted.
	CitationOrigin domain.SourceLabel
}

// AuthorMatch is an author resolved by an AuthorSearcher.
type AuthorMatch struct {
	ID           string
	DisplayName  string
	ORCID        string
	CitedByCount int
	WorksCount   int
	HIndex       int
	I10Index     int
}

// WorkSource defines the interface for sources that return per-work candidates.
type WorkSource interface {
	// Fetch returns the candidates for the identity inside the window.
	// Implementations must respect context cancellation and return
	// domain errors (ExternalAPIError, NotFoundError) on failure.
	Fetch(ctx context.Context, params FetchParams) ([]Candidate, error)

	// Label returns the provenance label stamped on produced candidates.
	Label() domain.SourceLabel

	// Name returns a human-readable name for logging and metrics.
	Name() string

	// IsEnabled returns whether this source is currently enabled.
	IsEnabled() bool
}

// ProfileSource defines a whole-author signal source. The result is a single
// citation total and is never merged per publication.
type ProfileSource interface {
	// FetchCitationTotal returns the author's citation total, or nil when the
	// profile exists but exposes no total.
	FetchCitationTotal(ctx context.Context, id string) (*int, error)

	// Name returns a human-readable name for logging and metrics.
	Name() string

	// IsEnabled returns whether this source is currently enabled.
	IsEnabled() bool
}

// CitationLookup returns a citation count for a DOI.
type CitationLookup interface {
	// CitationCountByDOI returns domain.ErrNotFound when the DOI is unknown.
	CitationCountByDOI(ctx context.Context, doi string) (int, error)

	// Name returns a human-readable name for logging and metrics.
	Name() string
}

// AuthorSearcher resolves a free-text name to one author.
type AuthorSearcher interface {
	// SearchAuthor returns the best match for name, or a NotFoundError.
	SearchAuthor(ctx context.Context, name string) (*AuthorMatch, error)
}

// CitationChain consults lookups in order and returns the first count found.
// It never fails: an unresolvable DOI yields ok == false.
type CitationChain []CitationLookup

// Lookup returns the first count any lookup reports for doi, and the label of
// the lookup that answered.
func (c CitationChain) Lookup(ctx context.Context, doi string) (count int, origin domain.SourceLabel, ok bool) {
	if doi == "" {
		return 0, "", false
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		n, err := l.CitationCountByDOI(ctx, doi)
		if err == nil {
			return n, domain.ParseSourceLabel(l.Name()), true
		}
		if ctx.Err() != nil {
			return 0, "", false
		}
	}
	return 0, "", false
}
