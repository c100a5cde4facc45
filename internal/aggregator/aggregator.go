// Package aggregator runs a single-author search across every work source,
// then normalizes, deduplicates, filters and partitions the results.
package aggregator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/merge"
	"github.com/helixir/publication-aggregator/internal/normalize"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/papersources"
	"github.com/helixir/publication-aggregator/internal/resolver"
)

// IdentityResolver completes a partial author identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, known papersources.Identity) (papersources.Identity, error)
}

// SourceFetcher fetches candidates from the named sources concurrently.
type SourceFetcher interface {
	FetchSources(ctx context.Context, params papersources.FetchParams, labels []domain.SourceLabel) []papersources.SourceResult
}

// Deps holds the collaborators of an Aggregator.
type Deps struct {
	Sources  SourceFetcher
	Resolver IdentityResolver
	Engine   *merge.Engine
	Matcher  *resolver.Matcher
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// Aggregator is the single-search entry point.
// It is safe for concurrent use.
type Aggregator struct {
	sources  SourceFetcher
	resolver IdentityResolver
	engine   *merge.Engine
	matcher  *resolver.Matcher
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates an Aggregator. A nil Engine uses the mean citation strategy and
// a nil Matcher uses the default institution markers.
func New(deps Deps) *Aggregator {
	engine := deps.Engine
	if engine == nil {
		engine = merge.New(merge.Options{})
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = resolver.NewMatcher(nil)
	}
	return &Aggregator{
		sources:  deps.Sources,
		resolver: deps.Resolver,
		engine:   engine,
		matcher:  matcher,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "aggregator").Logger(),
	}
}

// Search aggregates the publications of the named author inside window.
// Source failures are logged and contribute no records; only an empty name,
// an inverted window or context cancellation produce an error.
func (a *Aggregator) Search(ctx context.Context, name string, window domain.DateWindow, dir *faculty.Directory) (domain.Partitioned, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Partitioned{}, domain.NewValidationError("name", "name is required")
	}
	return a.SearchIdentity(ctx, papersources.Identity{Name: name}, window, dir)
}

// SearchIdentity is Search for a caller that already knows some identifiers.
func (a *Aggregator) SearchIdentity(ctx context.Context, identity papersources.Identity, window domain.DateWindow, dir *faculty.Directory) (domain.Partitioned, error) {
	if window.End.Before(window.Start) {
		return domain.Partitioned{}, domain.NewValidationError("end_date", "end date must not be before start date")
	}

	start := time.Now()
	a.metrics.RecordSearchStarted()
	logger := observability.WithSearchContext(observability.LoggerFromContext(ctx, a.logger), identity.Name, window.String())

	id := identity
	if a.resolver != nil {
		resolved, err := a.resolver.Resolve(ctx, identity)
		switch {
		case err == nil:
			id = resolved
		case ctx.Err() != nil:
			return domain.Partitioned{}, ctx.Err()
		case errors.Is(err, domain.ErrInvalidInput):
			return domain.Partitioned{}, err
		default:
			// Name-only sources still run without a resolved identity.
			logger.Info().Err(err).Msg("author identity not resolved")
			id = resolved
		}
	}

	labels := sourcesFor(id)
	if len(labels) == 0 || a.sources == nil {
		a.metrics.RecordSearchCompleted(time.Since(start).Seconds())
		return domain.Partitioned{}, nil
	}

	results := a.sources.FetchSources(ctx, papersources.FetchParams{Identity: id, Window: window}, labels)
	if err := ctx.Err(); err != nil {
		return domain.Partitioned{}, err
	}

	var candidates []papersources.Candidate
	for _, res := range results {
		a.metrics.RecordSourceFetch(res.Source.String(), len(res.Candidates), res.Duration.Seconds(), res.Error)
		if res.Error != nil {
			srcLogger := observability.WithSourceContext(logger, res.Source.String())
			srcLogger.Warn().
				Err(res.Error).
				Dur("duration", res.Duration).
				Msg("source fetch failed")
			continue
		}
		candidates = append(candidates, res.Candidates...)
	}

	parts := a.Assemble(id.Name, candidates, window, dir)

	logger.Info().
		Int("candidates", len(candidates)).
		Int("journal", len(parts.Journal)).
		Int("book", len(parts.Book)).
		Int("chapter", len(parts.Chapter)).
		Dur("duration", time.Since(start)).
		Msg("search completed")
	a.metrics.RecordSearchCompleted(time.Since(start).Seconds())
	return parts, nil
}

// Assemble turns raw candidates into partitioned records: candidates are
// normalized and clipped to window, duplicates are merged, records whose
// authors do not match name are dropped, and authors in school are filled for
// records that did not come from ORCID.
func (a *Aggregator) Assemble(name string, candidates []papersources.Candidate, window domain.DateWindow, dir *faculty.Directory) domain.Partitioned {
	records := make([]domain.PublicationRecord, 0, len(candidates))
	var noYear, outOfWindow int
	for _, c := range candidates {
		rec, ok := normalize.Normalize(c)
		if !ok {
			noYear++
			continue
		}
		if !window.ContainsYear(rec.Year) {
			outOfWindow++
			continue
		}
		records = append(records, rec)
	}
	a.metrics.RecordNormalized(len(records))
	a.metrics.RecordDropped("no_year", noYear)
	a.metrics.RecordDropped("out_of_window", outOfWindow)

	merged := a.engine.Dedupe(records)
	a.metrics.RecordMerged(len(records) - len(merged))

	kept := merged[:0]
	for i := range merged {
		rec := merged[i]
		if name != "" && !a.matcher.MatchesRecord(name, &rec) {
			continue
		}
		if rec.Source != domain.SourceORCID && name != "" {
			rec.AuthorsInSchool = a.matcher.AuthorsInSchool(name, authorsOf(&rec), dir.IsKnownName)
		}
		kept = append(kept, rec)
	}
	a.metrics.RecordDropped("name_mismatch", len(merged)-len(kept))

	parts := a.engine.Partition(kept)
	a.metrics.RecordPartition(len(parts.Journal), len(parts.Book), len(parts.Chapter))
	return parts
}

// sourcesFor lists the work sources that can answer for id, in query order.
func sourcesFor(id papersources.Identity) []domain.SourceLabel {
	var labels []domain.SourceLabel
	if id.ORCID != "" {
		labels = append(labels, domain.SourceORCID)
	}
	if strings.TrimSpace(id.Name) != "" {
		labels = append(labels, domain.SourceCrossRef)
	}
	if id.OpenAlexID != "" {
		labels = append(labels, domain.SourceOpenAlex)
	}
	return labels
}

// authorsOf returns the structured authors of r, or its plain author names
// when no structured list is available.
func authorsOf(r *domain.PublicationRecord) []domain.Author {
	if len(r.AuthorsDetailed) > 0 {
		return r.AuthorsDetailed
	}
	out := make([]domain.Author, 0, len(r.Authors))
	for _, n := range r.Authors {
		out = append(out, domain.Author{Name: n})
	}
	return out
}
