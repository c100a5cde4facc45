// Package bulk processes lists of faculty entities with a bounded worker pool.
//
// Each entity walks a small state machine: its ORCID record is fetched with
// retries, and when that yields nothing the entity falls back to a Google
// Scholar profile total, then to an OpenAlex author profile. A failing entity
// never aborts the batch.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/merge"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

const (
	// DefaultWorkers is the number of entities processed concurrently.
	DefaultWorkers = 5

	// DefaultORCIDAttempts is the number of ORCID fetch attempts per entity.
	DefaultORCIDAttempts = 4

	// DefaultORCIDRetryDelay is the linear backoff unit between ORCID attempts.
	DefaultORCIDRetryDelay = 6 * time.Second

	// DefaultORCIDRetryJitter bounds the random delay added to each backoff.
	DefaultORCIDRetryJitter = 500 * time.Millisecond
)

// Failure messages recorded for entities that produced nothing.
const (
	msgNoFallback  = "No ORCID and fallback search returned no results"
	msgUnknownFail = "Unknown error"
)

// errEmptyRecord marks an ORCID fetch that succeeded with no usable works.
var errEmptyRecord = fmt.Errorf("ORCID record has %w", domain.ErrNoDisplayableData)

// DefaultORCIDRetry returns the per-entity ORCID retry policy:
// 4 attempts, waiting 6s*(attempt+1) plus up to 500ms of jitter.
func DefaultORCIDRetry() papersources.RetryPolicy {
	return papersources.RetryPolicy{
		MaxAttempts: DefaultORCIDAttempts,
		BaseDelay:   DefaultORCIDRetryDelay,
		Backoff:     papersources.LinearBackoff,
		Jitter:      papersources.UniformJitter(DefaultORCIDRetryJitter),
	}
}

// WorksFetcher lists the works of one ORCID record.
type WorksFetcher interface {
	Works(ctx context.Context, orcidID string, window domain.DateWindow) ([]papersources.Candidate, error)
}

// Assembler turns raw candidates into partitioned records.
// An empty name disables author-name filtering.
type Assembler interface {
	Assemble(name string, candidates []papersources.Candidate, window domain.DateWindow, dir *faculty.Directory) domain.Partitioned
}

// Config configures an Orchestrator.
type Config struct {
	// Workers is the number of entities processed concurrently.
	Workers int

	// ORCIDRetry is the retry policy for a single entity's ORCID fetch.
	ORCIDRetry papersources.RetryPolicy

	// Window overrides every entity's search window when set.
	Window *domain.DateWindow
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ORCIDRetry.MaxAttempts <= 0 {
		c.ORCIDRetry = DefaultORCIDRetry()
	}
}

// Deps holds the collaborators of an Orchestrator. Scholar and OpenAlex may be
// nil, which skips the corresponding fallback.
type Deps struct {
	ORCID     WorksFetcher
	Scholar   papersources.ProfileSource
	OpenAlex  papersources.AuthorSearcher
	Assembler Assembler
	Engine    *merge.Engine
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// EntityDoneFunc receives each entity's outcome as soon as it is terminal. It
// runs on the worker goroutine, so calls for one batch may be concurrent.
type EntityDoneFunc func(domain.EntityOutcome)

type entityDoneKey struct{}

// WithEntityDone attaches fn to ctx. Process calls it once per entity it ran,
// which lets one shared Orchestrator report progress per batch.
func WithEntityDone(ctx context.Context, fn EntityDoneFunc) context.Context {
	return context.WithValue(ctx, entityDoneKey{}, fn)
}

// EntityDoneFromContext returns the hook attached to ctx, or a no-op.
func EntityDoneFromContext(ctx context.Context) EntityDoneFunc {
	if fn, ok := ctx.Value(entityDoneKey{}).(EntityDoneFunc); ok && fn != nil {
		return fn
	}
	return func(domain.EntityOutcome) {}
}

// Orchestrator runs the per-entity pipeline over a batch.
type Orchestrator struct {
	config    Config
	orcid     WorksFetcher
	scholar   papersources.ProfileSource
	openAlex  papersources.AuthorSearcher
	assembler Assembler
	engine    *merge.Engine
	metrics   *observability.Metrics
	logger    zerolog.Logger
	validate  *validator.Validate
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	engine := deps.Engine
	if engine == nil {
		engine = merge.New(merge.Options{})
	}
	return &Orchestrator{
		config:    cfg,
		orcid:     deps.ORCID,
		scholar:   deps.Scholar,
		openAlex:  deps.OpenAlex,
		assembler: deps.Assembler,
		engine:    engine,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "bulk").Logger(),
		validate:  validator.New(),
	}
}

// Process runs every entity through the pipeline and assembles the report.
// window, when non-nil, overrides the configured window and every entity's
// own window. The directory supplies join dates and known names.
//
// Only input errors and context cancellation are returned; per-entity failures
// are listed in the report. On cancellation the report covers the entities
// that finished.
func (o *Orchestrator) Process(ctx context.Context, entities []domain.FacultyEntity, window *domain.DateWindow, dir *faculty.Directory) (domain.BatchReport, error) {
	if err := o.Validate(entities); err != nil {
		return domain.BatchReport{}, err
	}
	if window == nil {
		window = o.config.Window
	}
	if window != nil && window.End.Before(window.Start) {
		return domain.BatchReport{}, domain.NewValidationError("end_date", "end date must not be before start date")
	}

	start := time.Now()
	o.metrics.RecordBatchStarted()
	logger := observability.WithBatchContext(o.logger, observability.BatchIDFromContext(ctx), len(entities))
	logger.Info().Int("workers", o.config.Workers).Msg("batch started")

	onDone := EntityDoneFromContext(ctx)
	outcomes := make([]domain.EntityOutcome, len(entities))
	var g errgroup.Group
	g.SetLimit(o.config.Workers)

	for i, entity := range entities {
		outcomes[i] = domain.EntityOutcome{Index: i, Entity: entity, State: domain.EntityStatePending}
		if ctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			outcomes[i] = o.processEntity(ctx, logger, i, dir.Enrich(entity), window, dir)
			onDone(outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	report := NewReport(outcomes, o.engine)
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("batch completed")
	o.metrics.RecordBatchCompleted(time.Since(start).Seconds())

	return report, ctx.Err()
}

// Validate checks that the list is non-empty and every entity carries an
// identifier and a plausible join date.
func (o *Orchestrator) Validate(entities []domain.FacultyEntity) error {
	if len(entities) == 0 {
		return domain.NewValidationError("entities", "at least one entity is required")
	}
	for i := range entities {
		if err := o.validate.Struct(entities[i]); err != nil {
			return domain.NewValidationError(fmt.Sprintf("entities[%d]", i), err.Error())
		}
	}
	return nil
}

// processEntity runs one entity to a terminal state.
func (o *Orchestrator) processEntity(ctx context.Context, batchLogger zerolog.Logger, index int, entity domain.FacultyEntity, override *domain.DateWindow, dir *faculty.Directory) (out domain.EntityOutcome) {
	start := time.Now()
	o.metrics.RecordEntityStarted()
	logger := observability.WithEntityContext(batchLogger, index, entity.Identifier())

	window := entity.SearchWindow(override)
	out = domain.EntityOutcome{Index: index, Entity: entity, State: domain.EntityStatePending, Window: window}
	defer func() {
		out.Duration = time.Since(start)
		o.metrics.RecordEntityFinished(string(out.State), string(out.ProfileSource), out.Attempts)
	}()

	orcidID := domain.NormalizeORCID(entity.ORCID)

	var lastErr error
	if orcidID != "" && o.orcid != nil {
		out.State = domain.EntityStateFetching
		parts, attempts, err := o.fetchORCID(ctx, logger, &out, orcidID, window, dir)
		out.Attempts = attempts
		if err == nil {
			out.State = domain.EntityStateSucceeded
			out.ProfileSource = domain.ProfileSourceORCID
			out.Records = parts
			logger.Debug().Int("attempts", attempts).Int("records", parts.Len()).Msg("orcid record fetched")
			return out
		}
		lastErr = err
		if ctx.Err() != nil {
			out.State = domain.EntityStateFailed
			out.Error = ctx.Err().Error()
			return out
		}
		logger.Info().Err(err).Int("attempts", attempts).Msg("orcid failed, trying fallbacks")
	}

	if profile, ok := o.fallback(ctx, logger, &out, entity, orcidID); ok {
		profile.UsedFallback = orcidID != ""
		out.State = domain.EntityStateSucceeded
		out.ProfileSource = profile.ProfileSource
		out.Profile = profile
		return out
	}

	out.State = domain.EntityStateFailed
	switch {
	case ctx.Err() != nil:
		out.Error = ctx.Err().Error()
	case orcidID == "" || o.orcid == nil:
		out.Error = msgNoFallback
	case lastErr != nil:
		out.Error = lastErr.Error()
	default:
		out.Error = msgUnknownFail
	}
	logger.Warn().Str("error", out.Error).Msg("entity failed")
	return out
}

// fetchORCID fetches and assembles an ORCID record under the retry policy.
// A record without displayable works counts as a failed attempt.
func (o *Orchestrator) fetchORCID(ctx context.Context, logger zerolog.Logger, out *domain.EntityOutcome, orcidID string, window domain.DateWindow, dir *faculty.Directory) (domain.Partitioned, int, error) {
	var parts domain.Partitioned
	attempts, err := o.config.ORCIDRetry.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			out.State = domain.EntityStateRetry
			attemptLogger := observability.WithAttemptContext(logger, domain.SourceORCID.String(), attempt+1)
			attemptLogger.Debug().Msg("retrying orcid fetch")
		}
		candidates, err := o.orcid.Works(ctx, orcidID, window)
		if err != nil {
			return err
		}
		parts = o.assemble(candidates, window, dir)
		if parts.Len() == 0 {
			return errEmptyRecord
		}
		return nil
	})
	return parts, attempts, err
}

func (o *Orchestrator) assemble(candidates []papersources.Candidate, window domain.DateWindow, dir *faculty.Directory) domain.Partitioned {
	if o.assembler != nil {
		return o.assembler.Assemble("", candidates, window, dir)
	}
	return o.engine.Partition(normalizeInWindow(candidates, window))
}

// fallback tries the Scholar profile, then the OpenAlex author profile.
func (o *Orchestrator) fallback(ctx context.Context, logger zerolog.Logger, out *domain.EntityOutcome, entity domain.FacultyEntity, orcidID string) (*domain.AuthorProfile, bool) {
	if entity.ScholarID != "" && o.scholar != nil && o.scholar.IsEnabled() {
		out.State = domain.EntityStateFallbackScholar
		total, err := o.scholar.FetchCitationTotal(ctx, entity.ScholarID)
		switch {
		case err == nil && total != nil:
			return &domain.AuthorProfile{
				Name:          entity.Name,
				ORCID:         orcidID,
				ScholarID:     entity.ScholarID,
				ProfileSource: domain.ProfileSourceGoogleScholar,
				Citations:     total,
			}, true
		case err != nil && !errors.Is(err, domain.ErrSourceDisabled):
			logger.Info().Err(err).Msg("scholar fallback failed")
		default:
			logger.Info().Msg("scholar profile has no citation total")
		}
		if ctx.Err() != nil {
			return nil, false
		}
	}

	if entity.Name != "" && o.openAlex != nil {
		out.State = domain.EntityStateFallbackOpenAlex
		match, err := o.openAlex.SearchAuthor(ctx, entity.Name)
		if err != nil {
			logger.Info().Err(err).Msg("openalex fallback failed")
			return nil, false
		}
		citations := match.CitedByCount
		return &domain.AuthorProfile{
			Name:          entity.Name,
			ORCID:         orcidID,
			ScholarID:     entity.ScholarID,
			OpenAlexID:    match.ID,
			DisplayName:   match.DisplayName,
			ProfileSource: domain.ProfileSourceOpenAlex,
			Citations:     &citations,
			WorksCount:    match.WorksCount,
			HIndex:        match.HIndex,
			I10Index:      match.I10Index,
		}, true
	}
	return nil, false
}
