package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// txBeginner is implemented by pools (*pgxpool.Pool, *database.DB) but not by pgx.Tx.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgUniqueViolation is the PostgreSQL unique_violation error code.
const pgUniqueViolation = "23505"

// validStatusTransitions defines the allowed status transitions for runs.
var validStatusTransitions = map[domain.BatchStatus][]domain.BatchStatus{
	domain.BatchStatusQueued: {
		domain.BatchStatusRunning,
		domain.BatchStatusFailed,
		domain.BatchStatusCancelled,
	},
	domain.BatchStatusRunning: {
		domain.BatchStatusCompleted,
		domain.BatchStatusFailed,
		domain.BatchStatusCancelled,
	},
}

const batchColumns = `id, status, window_start, window_end,
		total, succeeded, failed, error_message, report,
		created_at, started_at, completed_at`

// Compile-time interface verification.
var _ BatchRepository = (*PgBatchRepository)(nil)

// PgBatchRepository is a PostgreSQL implementation of BatchRepository.
type PgBatchRepository struct {
	db DBTX
}

// NewPgBatchRepository creates a new PostgreSQL batch repository.
func NewPgBatchRepository(db DBTX) *PgBatchRepository {
	return &PgBatchRepository{db: db}
}

// Create inserts a new run.
func (r *PgBatchRepository) Create(ctx context.Context, run *domain.BatchRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.ID == uuid.Nil {
		return domain.NewValidationError("id", "run ID is required")
	}
	if run.Total <= 0 {
		return domain.NewValidationError("total", "run must contain at least one entity")
	}

	query := `
		INSERT INTO batch_runs (
			id, status, window_start, window_end,
			total, succeeded, failed, error_message,
			created_at, started_at, completed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.Status, run.Window.Start, run.Window.End,
		run.Total, run.Succeeded, run.Failed, nullString(run.Error),
		run.CreatedAt, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("batch", run.ID.String())
		}
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (r *PgBatchRepository) Get(ctx context.Context, id uuid.UUID) (*domain.BatchRun, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_runs WHERE id = $1`

	run, err := scanBatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("batch", id.String())
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return run, nil
}

// Update locks the run with SELECT FOR UPDATE, applies fn and writes it back.
// On a pool the read and write are wrapped in their own transaction; on a
// pgx.Tx they join the caller's.
func (r *PgBatchRepository) Update(ctx context.Context, id uuid.UUID, fn func(*domain.BatchRun) error) error {
	return r.inTx(ctx, func(txRepo *PgBatchRepository) error {
		return txRepo.updateInTx(ctx, id, fn)
	})
}

// UpdateStatus moves the run to status.
func (r *PgBatchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	return r.Update(ctx, id, func(run *domain.BatchRun) error {
		return transition(run, status, errorMsg)
	})
}

// SaveResult stores the final report and outcome rows.
func (r *PgBatchRepository) SaveResult(ctx context.Context, id uuid.UUID, report domain.BatchReport, status domain.BatchStatus, errorMsg string) error {
	return r.inTx(ctx, func(txRepo *PgBatchRepository) error {
		err := txRepo.updateInTx(ctx, id, func(run *domain.BatchRun) error {
			if err := transition(run, status, errorMsg); err != nil {
				return err
			}
			stored := report
			stored.Outcomes = nil
			run.Report = &stored
			run.Total = report.Total
			run.Succeeded = report.Succeeded
			run.Failed = len(report.Failed)
			return nil
		})
		if err != nil {
			return err
		}
		return txRepo.insertOutcomes(ctx, id, report.Outcomes)
	})
}

// List retrieves runs matching the filter.
func (r *PgBatchRepository) List(ctx context.Context, filter BatchFilter) ([]*domain.BatchRun, int64, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	whereClause := "TRUE"
	var args []interface{}
	argIndex := 1

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		whereClause = fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", "))
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM batch_runs WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %w", err)
	}

	// The report column is left NULL in listings.
	selectQuery := fmt.Sprintf(`
		SELECT id, status, window_start, window_end,
			total, succeeded, failed, error_message, NULL::jsonb,
			created_at, started_at, completed_at
		FROM batch_runs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.BatchRun, 0, filter.Limit)
	for rows.Next() {
		run, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan batch: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating batches: %w", err)
	}

	return runs, totalCount, nil
}

// Outcomes returns the stored outcome rows of a run.
func (r *PgBatchRepository) Outcomes(ctx context.Context, id uuid.UUID) ([]domain.OutcomeSummary, error) {
	query := `
		SELECT entity_index, identifier, orcid, state, profile_source,
			attempts, journal_count, book_count, chapter_count,
			error_message, duration_ms
		FROM batch_entity_outcomes
		WHERE batch_id = $1
		ORDER BY entity_index`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.OutcomeSummary
	for rows.Next() {
		var (
			s             domain.OutcomeSummary
			orcid         *string
			profileSource *string
			errorMsg      *string
			durationMS    int64
		)
		if err := rows.Scan(
			&s.Index, &s.Identifier, &orcid, &s.State, &profileSource,
			&s.Attempts, &s.Journal, &s.Book, &s.Chapter,
			&errorMsg, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		s.ORCID = derefString(orcid)
		s.ProfileSource = domain.ProfileSource(derefString(profileSource))
		s.Error = derefString(errorMsg)
		s.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return out, nil
}

// inTx runs fn against a repository bound to a transaction, beginning one
// when r is bound to a pool.
func (r *PgBatchRepository) inTx(ctx context.Context, fn func(*PgBatchRepository) error) error {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return fn(r)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PgBatchRepository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// updateInTx performs SELECT FOR UPDATE + UPDATE within the current DBTX.
func (r *PgBatchRepository) updateInTx(ctx context.Context, id uuid.UUID, fn func(*domain.BatchRun) error) error {
	selectQuery := `SELECT ` + batchColumns + ` FROM batch_runs WHERE id = $1 FOR UPDATE`

	run, err := scanBatch(r.db.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("batch", id.String())
		}
		return fmt.Errorf("failed to query batch for update: %w", err)
	}

	if err := fn(run); err != nil {
		return err
	}

	var reportJSON []byte
	if run.Report != nil {
		reportJSON, err = json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
	}

	updateQuery := `
		UPDATE batch_runs SET
			status = $1,
			total = $2,
			succeeded = $3,
			failed = $4,
			error_message = $5,
			report = $6,
			started_at = $7,
			completed_at = $8
		WHERE id = $9`

	_, err = r.db.Exec(ctx, updateQuery,
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		nullString(run.Error),
		reportJSON,
		run.StartedAt,
		run.CompletedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}

	return nil
}

// insertOutcomes writes one row per outcome in a single round trip.
func (r *PgBatchRepository) insertOutcomes(ctx context.Context, id uuid.UUID, outcomes []domain.EntityOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	query := `
		INSERT INTO batch_entity_outcomes (
			batch_id, entity_index, identifier, orcid, state, profile_source,
			attempts, journal_count, book_count, chapter_count,
			error_message, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (batch_id, entity_index) DO UPDATE SET
			state = EXCLUDED.state,
			profile_source = EXCLUDED.profile_source,
			attempts = EXCLUDED.attempts,
			journal_count = EXCLUDED.journal_count,
			book_count = EXCLUDED.book_count,
			chapter_count = EXCLUDED.chapter_count,
			error_message = EXCLUDED.error_message,
			duration_ms = EXCLUDED.duration_ms`

	batch := &pgx.Batch{}
	for _, o := range outcomes {
		s := domain.Summarize(o)
		batch.Queue(query,
			id, s.Index, s.Identifier, nullString(s.ORCID), s.State, nullString(string(s.ProfileSource)),
			s.Attempts, s.Journal, s.Book, s.Chapter,
			nullString(s.Error), s.Duration.Milliseconds(),
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for i := range outcomes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert outcome %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert outcomes: %w", err)
	}
	return nil
}

// transition applies a validated status change and its timestamps.
func transition(run *domain.BatchRun, status domain.BatchStatus, errorMsg string) error {
	if !isValidStatusTransition(run.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s: %w",
			run.Status, status, domain.ErrInvalidInput)
	}

	run.Status = status
	now := time.Now().UTC()
	if status == domain.BatchStatusRunning && run.StartedAt == nil {
		run.StartedAt = &now
	}
	if status.IsTerminal() && run.CompletedAt == nil {
		run.CompletedAt = &now
	}
	if status == domain.BatchStatusFailed || status == domain.BatchStatusCancelled {
		run.Error = errorMsg
	}
	return nil
}

// isValidStatusTransition validates that a status transition is allowed.
func isValidStatusTransition(from, to domain.BatchStatus) bool {
	if from.IsTerminal() {
		return false
	}
	return slices.Contains(validStatusTransitions[from], to)
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// scanBatch scans one batch_runs row selected with batchColumns.
func scanBatch(row pgx.Row) (*domain.BatchRun, error) {
	var (
		run        domain.BatchRun
		errorMsg   *string
		reportJSON []byte
	)
	if err := row.Scan(
		&run.ID, &run.Status, &run.Window.Start, &run.Window.End,
		&run.Total, &run.Succeeded, &run.Failed, &errorMsg, &reportJSON,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt,
	); err != nil {
		return nil, err
	}

	run.Error = derefString(errorMsg)
	if len(reportJSON) > 0 {
		var report domain.BatchReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		run.Report = &report
	}

	return &run, nil
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
