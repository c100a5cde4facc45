// Package service runs bulk batches in the background on behalf of the HTTP
// API and the Kafka request listener, persisting their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/bulk"
	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/events"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/repository"
)

// DefaultMaxEntities bounds the size of a single submitted batch.
const DefaultMaxEntities = 1000

// msgCancelled is stored on runs cancelled before they started.
const msgCancelled = "cancelled by request"

var errShuttingDown = fmt.Errorf("batch service is shutting down: %w", domain.ErrServiceUnavailable)

// Processor runs a batch of entities to completion.
type Processor interface {
	Validate(entities []domain.FacultyEntity) error
	Process(ctx context.Context, entities []domain.FacultyEntity, window *domain.DateWindow, dir *faculty.Directory) (domain.BatchReport, error)
}

// Config configures a BatchService.
type Config struct {
	// DefaultWindow is recorded on runs submitted without a window.
	DefaultWindow domain.DateWindow
	// MaxEntities bounds the size of one batch.
	MaxEntities int
}

// BatchService submits batches, runs them asynchronously and records their outcome.
type BatchService struct {
	config    Config
	repo      repository.BatchRepository
	processor Processor
	publisher events.Publisher
	directory *faculty.Directory
	logger    zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

// NewBatchService creates a BatchService. A nil publisher discards events and a
// nil directory is treated as empty.
func NewBatchService(cfg Config, repo repository.BatchRepository, processor Processor, publisher events.Publisher, dir *faculty.Directory, logger zerolog.Logger) *BatchService {
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = DefaultMaxEntities
	}
	if cfg.DefaultWindow.Start.IsZero() {
		cfg.DefaultWindow = domain.DefaultWindow()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if dir == nil {
		dir = faculty.Empty()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &BatchService{
		config:    cfg,
		repo:      repo,
		processor: processor,
		publisher: publisher,
		directory: dir,
		logger:    logger.With().Str("component", "batch_service").Logger(),
		baseCtx:   ctx,
		stop:      stop,
		running:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit validates and persists a new run, then starts it in the background.
// The returned run is in the queued state.
func (s *BatchService) Submit(ctx context.Context, entities []domain.FacultyEntity, window *domain.DateWindow) (*domain.BatchRun, error) {
	if len(entities) > s.config.MaxEntities {
		return nil, domain.NewValidationError("entities", fmt.Sprintf("at most %d entities per batch", s.config.MaxEntities))
	}
	if err := s.processor.Validate(entities); err != nil {
		return nil, err
	}
	if window != nil && window.End.Before(window.Start) {
		return nil, domain.NewValidationError("end_date", "end date must not be before start date")
	}
	if s.baseCtx.Err() != nil {
		return nil, errShuttingDown
	}

	recorded := s.config.DefaultWindow
	if window != nil {
		recorded = *window
	}
	run := domain.NewBatchRun(recorded, len(entities))
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	s.publish(ctx, run)

	runCtx, cancel := context.WithCancel(observability.WithBatchID(s.baseCtx, run.ID.String()))
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		runCtx = observability.WithRequestID(runCtx, requestID)
	}
	// Shutdown stops the base context under mu, so a run registered here is
	// either counted by wg before Wait starts or refused.
	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		cancel()
		if err := s.repo.UpdateStatus(context.WithoutCancel(ctx), run.ID, domain.BatchStatusCancelled, msgCancelled); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", run.ID.String()).Msg("failed to cancel batch refused at shutdown")
		}
		return nil, errShuttingDown
	}
	s.running[run.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.execute(runCtx, run.ID, entities, window)

	s.logger.Info().
		Str("batch_id", run.ID.String()).
		Int("entities", len(entities)).
		Msg("batch submitted")
	return run, nil
}

// Get returns a run with its report.
func (s *BatchService) Get(ctx context.Context, id uuid.UUID) (*domain.BatchRun, error) {
	return s.repo.Get(ctx, id)
}

// List returns runs matching the filter.
func (s *BatchService) List(ctx context.Context, filter repository.BatchFilter) ([]*domain.BatchRun, int64, error) {
	return s.repo.List(ctx, filter)
}

// Outcomes returns the per-entity outcome rows of a run.
func (s *BatchService) Outcomes(ctx context.Context, id uuid.UUID) ([]domain.OutcomeSummary, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Outcomes(ctx, id)
}

// Cancel stops a running batch, or marks a queued one cancelled. The running
// batch records the entities that finished before cancellation.
func (s *BatchService) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	return s.repo.UpdateStatus(ctx, id, domain.BatchStatusCancelled, msgCancelled)
}

// Shutdown cancels running batches and waits for them to record their results.
func (s *BatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stop()
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs one batch and stores its result. Persistence uses a context
// detached from cancellation so cancelled runs are still recorded.
func (s *BatchService) execute(ctx context.Context, id uuid.UUID, entities []domain.FacultyEntity, window *domain.DateWindow) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.running[id]; ok {
			cancel()
			delete(s.running, id)
		}
		s.mu.Unlock()
	}()

	logger := observability.LoggerFromContext(ctx, s.logger)
	storeCtx := context.WithoutCancel(ctx)

	if err := s.repo.UpdateStatus(storeCtx, id, domain.BatchStatusRunning, ""); err != nil {
		logger.Error().Err(err).Msg("failed to mark batch running")
		return
	}

	progressCtx := bulk.WithEntityDone(ctx, func(out domain.EntityOutcome) {
		s.recordProgress(storeCtx, logger, id, out)
	})
	report, err := s.processor.Process(progressCtx, entities, window, s.directory)

	status, errMsg := domain.BatchStatusCompleted, ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status, errMsg = domain.BatchStatusCancelled, msgCancelled
	default:
		status, errMsg = domain.BatchStatusFailed, err.Error()
	}

	if err := s.repo.SaveResult(storeCtx, id, report, status, errMsg); err != nil {
		logger.Error().Err(err).Msg("failed to save batch result")
		return
	}

	run, err := s.repo.Get(storeCtx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to reload batch")
		return
	}
	s.publish(storeCtx, run)

	logger.Info().
		Str("status", string(status)).
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failed)).
		Msg("batch finished")
}

// recordProgress bumps the stored counters for one finished entity so progress
// readers see the run advance before SaveResult writes the final totals.
func (s *BatchService) recordProgress(ctx context.Context, logger zerolog.Logger, id uuid.UUID, out domain.EntityOutcome) {
	err := s.repo.Update(ctx, id, func(run *domain.BatchRun) error {
		if run.Status.IsTerminal() {
			return nil
		}
		if out.Succeeded() {
			run.Succeeded++
		} else {
			run.Failed++
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Int("entity_index", out.Index).Msg("failed to record entity progress")
	}
}

func (s *BatchService) publish(ctx context.Context, run *domain.BatchRun) {
	if err := s.publisher.Publish(ctx, events.NewBatchEvent(run)); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", run.ID.String()).Msg("failed to publish batch event")
	}
}
