// Package events publishes batch lifecycle events to Kafka and consumes batch
// submissions from it.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// Event types published on the batch topic.
const (
	EventBatchSubmitted = "batch.submitted"
	EventBatchCompleted = "batch.completed"
	EventBatchFailed    = "batch.failed"
	EventBatchCancelled = "batch.cancelled"
)

// BatchEvent is the payload published for each batch state change.
type BatchEvent struct {
	EventID    uuid.UUID          `json:"event_id"`
	EventType  string             `json:"event_type"`
	BatchID    uuid.UUID          `json:"batch_id"`
	Status     domain.BatchStatus `json:"status"`
	Total      int                `json:"total"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Error      string             `json:"error,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewBatchEvent builds the event for run's current status.
func NewBatchEvent(run *domain.BatchRun) BatchEvent {
	return BatchEvent{
		EventID:    uuid.New(),
		EventType:  eventTypeFor(run.Status),
		BatchID:    run.ID,
		Status:     run.Status,
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Error:      run.Error,
		OccurredAt: time.Now().UTC(),
	}
}

func eventTypeFor(status domain.BatchStatus) string {
	switch status {
	case domain.BatchStatusCompleted:
		return EventBatchCompleted
	case domain.BatchStatusFailed:
		return EventBatchFailed
	case domain.BatchStatusCancelled:
		return EventBatchCancelled
	default:
		return EventBatchSubmitted
	}
}

// BatchRequest is a batch submission received from Kafka.
type BatchRequest struct {
	Entities  []domain.FacultyEntity `json:"entities"`
	StartDate string                 `json:"start_date,omitempty"`
	EndDate   string                 `json:"end_date,omitempty"`
}
