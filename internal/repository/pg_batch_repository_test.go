package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
)

var batchColumnNames = []string{
	"id", "status", "window_start", "window_end",
	"total", "succeeded", "failed", "error_message", "report",
	"created_at", "started_at", "completed_at",
}

func newTestRun() *domain.BatchRun {
	run := domain.NewBatchRun(domain.DefaultWindow(), 3)
	run.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return run
}

func batchRows(run *domain.BatchRun, reportJSON []byte) *pgxmock.Rows {
	var errorMsg *string
	if run.Error != "" {
		errorMsg = &run.Error
	}
	return pgxmock.NewRows(batchColumnNames).AddRow(
		run.ID, run.Status, run.Window.Start, run.Window.End,
		run.Total, run.Succeeded, run.Failed, errorMsg, reportJSON,
		run.CreatedAt, run.StartedAt, run.CompletedAt,
	)
}

func TestIsValidStatusTransition(t *testing.T) {
	tests := []struct {
		from, to domain.BatchStatus
		expected bool
	}{
		{domain.BatchStatusQueued, domain.BatchStatusRunning, true},
		{domain.BatchStatusQueued, domain.BatchStatusCancelled, true},
		{domain.BatchStatusQueued, domain.BatchStatusCompleted, false},
		{domain.BatchStatusRunning, domain.BatchStatusCompleted, true},
		{domain.BatchStatusRunning, domain.BatchStatusFailed, true},
		{domain.BatchStatusRunning, domain.BatchStatusQueued, false},
		{domain.BatchStatusCompleted, domain.BatchStatusRunning, false},
		{domain.BatchStatusCancelled, domain.BatchStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidStatusTransition(tt.from, tt.to))
		})
	}
}

func TestPgBatchRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates run successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBatchRepository(mock)
		run := newTestRun()

		mock.ExpectExec("INSERT INTO batch_runs").
			WithArgs(
				run.ID, run.Status, run.Window.Start, run.Window.End,
				run.Total, 0, 0, pgxmock.AnyArg(),
				run.CreatedAt, pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, run))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validates input", func(t *testing.T) {
		repo := NewPgBatchRepository(nil)

		var validationErr *domain.ValidationError
		require.ErrorAs(t, repo.Create(ctx, nil), &validationErr)
		assert.Equal(t, "run", validationErr.Field)

		run := newTestRun()
		run.ID = uuid.Nil
		require.ErrorAs(t, repo.Create(ctx, run), &validationErr)
		assert.Equal(t, "id", validationErr.Field)

		run = newTestRun()
		run.Total = 0
		require.ErrorAs(t, repo.Create(ctx, run), &validationErr)
		assert.Equal(t, "total", validationErr.Field)
	})

	t.Run("duplicate ID maps to already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO batch_runs").
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

		err = NewPgBatchRepository(mock).Create(ctx, newTestRun())
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}

func TestPgBatchRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns run with report", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		run := newTestRun()
		run.Status = domain.BatchStatusCompleted
		run.Succeeded = 2
		run.Failed = 1
		report := domain.BatchReport{
			Journal: []domain.AttributedRecord{{
				Record:      domain.PublicationRecord{Title: "A Study", Year: 2021, Detail: domain.JournalDetail{JournalTitle: "J"}},
				Attribution: domain.Attribution{FacultyName: "Jane Roe", StartYear: 2000},
			}},
			Failed:    []domain.FailedEntity{{Identifier: "Bob", Error: "Unknown error"}},
			Succeeded: 2,
			Total:     3,
		}
		reportJSON, err := json.Marshal(report)
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \$1`).
			WithArgs(run.ID).
			WillReturnRows(batchRows(run, reportJSON))

		got, err := NewPgBatchRepository(mock).Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, domain.BatchStatusCompleted, got.Status)
		require.NotNil(t, got.Report)
		require.Len(t, got.Report.Journal, 1)
		assert.Equal(t, "J", got.Report.Journal[0].Record.JournalTitle())
		assert.Equal(t, "Jane Roe", got.Report.Journal[0].Attribution.FacultyName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing run maps to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(batchColumnNames))

		_, err = NewPgBatchRepository(mock).Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgBatchRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("queued to running sets started_at", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		run := newTestRun()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \$1 FOR UPDATE`).
			WithArgs(run.ID).
			WillReturnRows(batchRows(run, nil))
		mock.ExpectExec("UPDATE batch_runs SET").
			WithArgs(
				domain.BatchStatusRunning, 3, 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), run.ID,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, NewPgBatchRepository(mock).UpdateStatus(ctx, run.ID, domain.BatchStatusRunning, ""))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid transition is rejected without writing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		run := newTestRun()
		run.Status = domain.BatchStatusCompleted

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \$1 FOR UPDATE`).
			WithArgs(run.ID).
			WillReturnRows(batchRows(run, nil))
		mock.ExpectRollback()

		err = NewPgBatchRepository(mock).UpdateStatus(ctx, run.ID, domain.BatchStatusRunning, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgBatchRepository_SaveResult(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := newTestRun()
	run.Status = domain.BatchStatusRunning
	report := domain.BatchReport{
		Failed:    []domain.FailedEntity{{Identifier: "0000-0002-1825-0097", Error: "Unknown error"}},
		Succeeded: 2,
		Total:     3,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE id = \$1 FOR UPDATE`).
		WithArgs(run.ID).
		WillReturnRows(batchRows(run, nil))
	mock.ExpectExec("UPDATE batch_runs SET").
		WithArgs(
			domain.BatchStatusCompleted, 3, 2, 1, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), run.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewPgBatchRepository(mock).SaveResult(ctx, run.ID, report, domain.BatchStatusCompleted, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBatchRepository_List(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first, second := newTestRun(), newTestRun()
	second.Status = domain.BatchStatusRunning

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM batch_runs WHERE status IN \(\$1, \$2\)`).
		WithArgs(domain.BatchStatusQueued, domain.BatchStatusRunning).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	rows := pgxmock.NewRows(batchColumnNames)
	for _, run := range []*domain.BatchRun{first, second} {
		rows.AddRow(
			run.ID, run.Status, run.Window.Start, run.Window.End,
			run.Total, run.Succeeded, run.Failed, nil, nil,
			run.CreatedAt, run.StartedAt, run.CompletedAt,
		)
	}
	mock.ExpectQuery(`SELECT .* FROM batch_runs WHERE status IN \(\$1, \$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(domain.BatchStatusQueued, domain.BatchStatusRunning, defaultListLimit, 0).
		WillReturnRows(rows)

	runs, total, err := NewPgBatchRepository(mock).List(ctx, BatchFilter{
		Status: []domain.BatchStatus{domain.BatchStatusQueued, domain.BatchStatusRunning},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.BatchStatusRunning, runs[1].Status)
	assert.Nil(t, runs[0].Report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBatchRepository_Outcomes(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	orcid := "0000-0002-1825-0097"
	source := "google_scholar"
	failure := "No ORCID and fallback search returned no results"

	mock.ExpectQuery(`SELECT .* FROM batch_entity_outcomes WHERE batch_id = \$1 ORDER BY entity_index`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"entity_index", "identifier", "orcid", "state", "profile_source",
			"attempts", "journal_count", "book_count", "chapter_count",
			"error_message", "duration_ms",
		}).
			AddRow(0, orcid, &orcid, domain.EntityStateSucceeded, &source, 4, 0, 0, 0, nil, int64(1500)).
			AddRow(1, "Jane Roe", nil, domain.EntityStateFailed, nil, 0, 0, 0, 0, &failure, int64(20)))

	out, err := NewPgBatchRepository(mock).Outcomes(ctx, id)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.ProfileSourceGoogleScholar, out[0].ProfileSource)
	assert.Equal(t, 1500*time.Millisecond, out[0].Duration)
	assert.Equal(t, "", out[1].ORCID)
	assert.Equal(t, failure, out[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_Timestamps(t *testing.T) {
	run := newTestRun()

	require.NoError(t, transition(run, domain.BatchStatusRunning, "ignored"))
	require.NotNil(t, run.StartedAt)
	assert.Empty(t, run.Error)

	require.NoError(t, transition(run, domain.BatchStatusFailed, "boom"))
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, "boom", run.Error)

	err := transition(run, domain.BatchStatusRunning, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
