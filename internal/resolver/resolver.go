package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

// Resolver fills in the source identities of an author.
type Resolver struct {
	orcid    papersources.AuthorSearcher
	openAlex papersources.AuthorSearcher
	logger   zerolog.Logger
}

// New creates a resolver. Either searcher may be nil.
func New(orcid, openAlex papersources.AuthorSearcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		orcid:    orcid,
		openAlex: openAlex,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve completes known with every identity the searchers can find.
// A known ORCID is authoritative and is never replaced by a name search.
// The ORCID name search runs before the OpenAlex author search; a Scholar id
// is passed through unchanged. Resolve returns an IdentityError when no
// identity at all is available.
func (r *Resolver) Resolve(ctx context.Context, known papersources.Identity) (papersources.Identity, error) {
	id := known
	id.Name = strings.TrimSpace(id.Name)
	id.ORCID = domain.NormalizeORCID(id.ORCID)

	if id.Name == "" && id.ORCID == "" && id.OpenAlexID == "" && id.ScholarID == "" {
		return id, domain.NewValidationError("name", "name or identifier is required")
	}

	var lastErr error
	if id.ORCID == "" && id.Name != "" && r.orcid != nil {
		match, err := r.orcid.SearchAuthor(ctx, id.Name)
		switch {
		case err == nil:
			id.ORCID = domain.NormalizeORCID(match.ID)
		case ctx.Err() != nil:
			return id, ctx.Err()
		default:
			lastErr = err
			r.logger.Debug().Err(err).Str("name", id.Name).Msg("orcid name search found nothing")
		}
	}

	if id.OpenAlexID == "" && id.Name != "" && r.openAlex != nil {
		match, err := r.openAlex.SearchAuthor(ctx, id.Name)
		switch {
		case err == nil:
			id.OpenAlexID = match.ID
		case ctx.Err() != nil:
			return id, ctx.Err()
		default:
			lastErr = err
			r.logger.Debug().Err(err).Str("name", id.Name).Msg("openalex author search found nothing")
		}
	}

	if id.ORCID == "" && id.OpenAlexID == "" && id.ScholarID == "" {
		reason := ""
		if lastErr != nil && !errors.Is(lastErr, domain.ErrNotFound) {
			reason = lastErr.Error()
		}
		return id, domain.NewIdentityError(id.Name, reason)
	}
	return id, nil
}
