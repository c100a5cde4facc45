package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a persisted bulk run.
type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change state.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// BatchRun is a bulk run submitted through the service API.
type BatchRun struct {
	ID          uuid.UUID    `json:"id"`
	Status      BatchStatus  `json:"status"`
	Window      DateWindow   `json:"window"`
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Error       string       `json:"error,omitempty"`
	Report      *BatchReport `json:"report,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// NewBatchRun creates a queued run for total entities.
func NewBatchRun(window DateWindow, total int) *BatchRun {
	return &BatchRun{
		ID:        uuid.New(),
		Status:    BatchStatusQueued,
		Window:    window,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
}

// OutcomeSummary is the persisted row of one entity outcome.
type OutcomeSummary struct {
	Index         int           `json:"index"`
	Identifier    string        `json:"identifier"`
	ORCID         string        `json:"orcid,omitempty"`
	State         EntityState   `json:"state"`
	ProfileSource ProfileSource `json:"profile_source,omitempty"`
	Attempts      int           `json:"attempts"`
	Journal       int           `json:"journal"`
	Book          int           `json:"book"`
	Chapter       int           `json:"chapter"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Summarize reduces an outcome to its persisted summary.
func Summarize(o EntityOutcome) OutcomeSummary {
	return OutcomeSummary{
		Index:         o.Index,
		Identifier:    o.Entity.Identifier(),
		ORCID:         o.Entity.ORCID,
		State:         o.State,
		ProfileSource: o.ProfileSource,
		Attempts:      o.Attempts,
		Journal:       len(o.Records.Journal),
		Book:          len(o.Records.Book),
		Chapter:       len(o.Records.Chapter),
		Error:         o.Error,
		Duration:      o.Duration,
	}
}
