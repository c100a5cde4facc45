package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// BatchRepository handles bulk run persistence and lifecycle management.
type BatchRepository interface {
	// Create inserts a new run. The run must have an ID and at least one entity.
	// Returns domain.ErrAlreadyExists if a run with the same ID already exists.
	Create(ctx context.Context, run *domain.BatchRun) error

	// Get retrieves a run, including its stored report.
	// Returns domain.ErrNotFound if no matching run exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchRun, error)

	// Update locks the run row, applies fn and persists the result.
	// If fn returns an error nothing is written and that error is returned.
	Update(ctx context.Context, id uuid.UUID, fn func(*domain.BatchRun) error) error

	// UpdateStatus moves the run to status, recording errorMsg on failure or
	// cancellation. Invalid transitions return domain.ErrInvalidInput.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error

	// SaveResult stores the final report, its counters and one outcome row per
	// entity, and moves the run to status, atomically.
	SaveResult(ctx context.Context, id uuid.UUID, report domain.BatchReport, status domain.BatchStatus, errorMsg string) error

	// List retrieves runs matching the filter, newest first, with the total count.
	// Reports are not loaded.
	List(ctx context.Context, filter BatchFilter) ([]*domain.BatchRun, int64, error)

	// Outcomes returns the stored per-entity outcome rows in input order.
	Outcomes(ctx context.Context, id uuid.UUID) ([]domain.OutcomeSummary, error)
}

// BatchFilter specifies criteria for listing runs.
type BatchFilter struct {
	// Status filters by one or more statuses (optional).
	Status []domain.BatchStatus

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}
