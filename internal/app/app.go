// Package app assembles the aggregator's components from configuration. The
// server and the CLI share it so both run the same pipeline.
package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/aggregator"
	"github.com/helixir/publication-aggregator/internal/bulk"
	"github.com/helixir/publication-aggregator/internal/config"
	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/merge"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/papersources"
	"github.com/helixir/publication-aggregator/internal/papersources/crossref"
	"github.com/helixir/publication-aggregator/internal/papersources/openalex"
	"github.com/helixir/publication-aggregator/internal/papersources/orcid"
	"github.com/helixir/publication-aggregator/internal/papersources/scholar"
	"github.com/helixir/publication-aggregator/internal/papersources/semanticscholar"
	"github.com/helixir/publication-aggregator/internal/resolver"
)

// Components is the wired pipeline.
type Components struct {
	Registry     *papersources.Registry
	Resolver     *resolver.Resolver
	Engine       *merge.Engine
	Matcher      *resolver.Matcher
	Aggregator   *aggregator.Aggregator
	Orchestrator *bulk.Orchestrator
	Directory    *faculty.Directory
	Window       domain.DateWindow
}

// Build creates every source adapter and the services built on them.
// metrics may be nil.
func Build(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*Components, error) {
	strategy, err := merge.ParseCitationStrategy(cfg.Merge.CitationStrategy)
	if err != nil {
		return nil, err
	}
	engine := merge.New(merge.Options{
		Strategy:        strategy,
		PreferredSource: domain.ParseSourceLabel(cfg.Merge.PreferredSource),
	})

	window, err := DefaultWindow(cfg.Bulk)
	if err != nil {
		return nil, err
	}

	orcidRetry, err := RetryPolicy(cfg.Retry.ORCID)
	if err != nil {
		return nil, fmt.Errorf("retry.orcid: %w", err)
	}
	openAlexRetry, err := RetryPolicy(cfg.Retry.OpenAlex)
	if err != nil {
		return nil, fmt.Errorf("retry.openalex: %w", err)
	}
	openAlexRetry.Retryable = openalex.DefaultAuthorRetry().Retryable

	dir, err := faculty.LoadFile(cfg.Faculty.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load faculty roster: %w", err)
	}

	src := cfg.Sources

	openAlexClient := openalex.New(openalex.Config{
		BaseURL:     src.OpenAlex.BaseURL,
		Email:       src.OpenAlex.Mailto,
		Timeout:     src.OpenAlex.Timeout,
		RateLimit:   src.OpenAlex.RateLimit,
		BurstSize:   src.OpenAlex.Burst,
		PerPage:     src.OpenAlex.MaxResults,
		AuthorRetry: openAlexRetry,
		Enabled:     src.OpenAlex.Enabled,
	})

	s2Client := semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:   src.SemanticScholar.BaseURL,
		APIKey:    src.SemanticScholar.APIKey,
		Timeout:   src.SemanticScholar.Timeout,
		RateLimit: src.SemanticScholar.RateLimit,
		BurstSize: src.SemanticScholar.Burst,
		Enabled:   src.SemanticScholar.Enabled,
	}, nil)

	// OpenAlex answers first; Semantic Scholar only fills gaps.
	var orcidCitations, crossrefCitations papersources.CitationChain
	if src.OpenAlex.Enabled {
		orcidCitations = append(orcidCitations, openAlexClient)
		crossrefCitations = append(crossrefCitations, openAlexClient)
	}
	if src.SemanticScholar.Enabled {
		orcidCitations = append(orcidCitations, s2Client)
	}

	crossrefClient := crossref.New(crossref.Config{
		BaseURL:   src.CrossRef.BaseURL,
		Mailto:    src.CrossRef.Mailto,
		Timeout:   src.CrossRef.Timeout,
		RateLimit: src.CrossRef.RateLimit,
		BurstSize: src.CrossRef.Burst,
		Rows:      src.CrossRef.MaxResults,
		Enabled:   src.CrossRef.Enabled,
	}, crossrefCitations)

	enrich := orcid.Enrichment{Citations: orcidCitations}
	if src.CrossRef.Enabled {
		enrich.Authors = crossrefClient
		enrich.Publisher = crossrefClient
	}
	if src.OpenAlex.Enabled {
		enrich.PublisherFallback = openAlexClient
	}

	orcidClient := orcid.New(orcid.Config{
		BaseURL:    src.ORCID.BaseURL,
		Timeout:    src.ORCID.Timeout,
		RateLimit:  src.ORCID.RateLimit,
		BurstSize:  src.ORCID.Burst,
		SearchRows: src.ORCID.MaxResults,
		Enabled:    src.ORCID.Enabled,
	}, enrich, logger)

	scholarClient := scholar.New(scholar.Config{
		BaseURL:   src.Scholar.BaseURL,
		Timeout:   src.Scholar.Timeout,
		RateLimit: src.Scholar.RateLimit,
		BurstSize: src.Scholar.Burst,
		Enabled:   src.Scholar.Enabled,
	})

	registry := papersources.NewRegistry()
	registry.Register(orcidClient)
	registry.Register(crossrefClient)
	registry.Register(openAlexClient)

	var orcidSearch, openAlexSearch papersources.AuthorSearcher
	if src.ORCID.Enabled {
		orcidSearch = orcidClient
	}
	if src.OpenAlex.Enabled {
		openAlexSearch = openAlexClient
	}
	res := resolver.New(orcidSearch, openAlexSearch, logger)
	matcher := resolver.NewMatcher(cfg.Institution.Markers)

	agg := aggregator.New(aggregator.Deps{
		Sources:  registry,
		Resolver: res,
		Engine:   engine,
		Matcher:  matcher,
		Metrics:  metrics,
		Logger:   logger,
	})

	bulkDeps := bulk.Deps{
		ORCID:     orcidClient,
		OpenAlex:  openAlexSearch,
		Assembler: agg,
		Engine:    engine,
		Metrics:   metrics,
		Logger:    logger,
	}
	if src.Scholar.Enabled {
		bulkDeps.Scholar = scholarClient
	}
	orch := bulk.New(bulk.Config{
		Workers:    cfg.Bulk.Workers,
		ORCIDRetry: orcidRetry,
	}, bulkDeps)

	return &Components{
		Registry:     registry,
		Resolver:     res,
		Engine:       engine,
		Matcher:      matcher,
		Aggregator:   agg,
		Orchestrator: orch,
		Directory:    dir,
		Window:       window,
	}, nil
}

// DefaultWindow parses the configured default search window.
func DefaultWindow(cfg config.BulkConfig) (domain.DateWindow, error) {
	start, end, err := cfg.Window()
	if err != nil {
		return domain.DateWindow{}, err
	}
	if end.Before(start) {
		return domain.DateWindow{}, domain.NewValidationError("bulk.default_end", "must not be before default_start")
	}
	return domain.DateWindow{Start: start, End: end}, nil
}

// RetryPolicy converts a configured retry policy. Every error is retryable
// except context cancellation.
func RetryPolicy(cfg config.RetryPolicyConfig) (papersources.RetryPolicy, error) {
	var backoff papersources.BackoffFunc
	switch cfg.Backoff {
	case config.BackoffConstant, "":
		backoff = papersources.ConstantBackoff
	case config.BackoffLinear:
		backoff = papersources.LinearBackoff
	case config.BackoffExponential:
		backoff = papersources.ExponentialBackoff
	default:
		return papersources.RetryPolicy{}, domain.NewValidationError("backoff", fmt.Sprintf("unknown backoff %q", cfg.Backoff))
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return papersources.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   cfg.BaseDelay,
		Backoff:     backoff,
		Jitter:      papersources.UniformJitter(cfg.Jitter),
	}, nil
}

// ServerTimeouts returns the HTTP server timeouts with long-running searches
// and progress streams accounted for.
func ServerTimeouts(cfg config.ServerConfig) (read, write, idle time.Duration) {
	read = cfg.ReadTimeout
	write = cfg.WriteTimeout
	if cfg.SearchTimeout > 0 && write < cfg.SearchTimeout+time.Minute {
		write = cfg.SearchTimeout + time.Minute
	}
	return read, write, 2 * time.Minute
}
