package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/publication-aggregator/internal/domain"
)

const (
	// sseQueryInterval is the default poll period of a progress stream.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration caps how long one progress stream stays open.
	sseMaxDuration = 4 * time.Hour
)

// Progress stream event names.
const (
	sseEventStarted  = "stream_started"
	sseEventProgress = "progress_update"
	sseEventFinished = "finished"
	sseEventTimeout  = "timeout"
)

// sseEvent is the data payload of every progress stream event.
type sseEvent struct {
	EventType string    `json:"event_type"`
	BatchID   string    `json:"batch_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// sseStream writes server-sent events, flushing after each one.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseStream{w: w, flusher: flusher}, true
}

func (s *sseStream) send(ev sseEvent) {
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.EventType, data)
	s.flusher.Flush()
}

// sendRun emits the run's current counters under eventType.
func (s *sseStream) sendRun(eventType string, run *domain.BatchRun, message string) {
	s.send(sseEvent{
		EventType: eventType,
		BatchID:   run.ID.String(),
		Status:    string(run.Status),
		Total:     run.Total,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
		Message:   message,
	})
}

// progressMark is the part of a run whose change is worth an event.
type progressMark struct {
	status    domain.BatchStatus
	succeeded int
	failed    int
}

func markOf(run *domain.BatchRun) progressMark {
	return progressMark{status: run.Status, succeeded: run.Succeeded, failed: run.Failed}
}

// streamProgress handles GET /batches/{batchID}/progress (SSE). It polls the
// run and emits an event whenever its status or entity counters move, then
// a final event once the run is terminal.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batch_id")
	if !ok {
		return
	}

	run, err := s.batches.Get(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if run.Status.IsTerminal() {
		stream.sendRun(sseEventFinished, run, "batch is in terminal state")
		return
	}
	stream.sendRun(sseEventStarted, run, "progress stream started")

	ctx := r.Context()
	deadline := time.NewTimer(sseMaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()

	last := markOf(run)
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			stream.send(sseEvent{
				EventType: sseEventTimeout,
				BatchID:   batchID.String(),
				Message:   "stream max duration exceeded",
			})
			return

		case <-ticker.C:
			current, err := s.batches.Get(ctx, batchID)
			if err != nil {
				s.logger.Error().Err(err).Str("batch_id", batchID.String()).Msg("failed to poll batch status")
				continue
			}

			if current.Status.IsTerminal() {
				stream.sendRun(sseEventFinished, current, "batch finished with status: "+string(current.Status))
				return
			}
			if mark := markOf(current); mark != last {
				last = mark
				stream.sendRun(sseEventProgress, current,
					fmt.Sprintf("%d of %d entities done", current.Succeeded+current.Failed, current.Total))
			}
		}
	}
}
