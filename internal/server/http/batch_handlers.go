package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/report"
	"github.com/helixir/publication-aggregator/internal/repository"
)

// submitBatchRequest is the JSON request body for submitting a bulk batch.
type submitBatchRequest struct {
	Entities  []domain.FacultyEntity `json:"entities" validate:"required,min=1,dive"`
	StartDate string                 `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string                 `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// submitBatch handles POST /batches.
// It queues a bulk run over the submitted entities and returns immediately.
func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var window *domain.DateWindow
	if req.StartDate != "" || req.EndDate != "" {
		parsed, err := domain.ParseWindow(req.StartDate, req.EndDate)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		window = &parsed
	}

	run, err := s.batches.Submit(r.Context(), req.Entities, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/batches/"+run.ID.String())
	writeJSON(w, http.StatusAccepted, domainBatchToResponse(run))
}

// getBatch handles GET /batches/{batchID}.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batch_id")
	if !ok {
		return
	}

	run, err := s.batches.Get(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainBatchToResponse(run))
}

// listBatches handles GET /batches.
// It returns a paginated list of runs, newest first, with an optional status filter.
func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	pg := pageFromQuery(r.URL.Query())

	filter := repository.BatchFilter{
		Limit:  pg.limit,
		Offset: pg.offset,
	}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.BatchStatus(statusParam)
		switch status {
		case domain.BatchStatusQueued, domain.BatchStatusRunning, domain.BatchStatusCompleted,
			domain.BatchStatusFailed, domain.BatchStatusCancelled:
			filter.Status = []domain.BatchStatus{status}
		default:
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	runs, totalCount, err := s.batches.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	batches := make([]batchResponse, len(runs))
	for i, run := range runs {
		batches[i] = domainBatchToResponse(run)
	}

	writeJSON(w, http.StatusOK, listBatchesResponse{
		Batches:       batches,
		NextPageToken: pg.nextToken(int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getBatchOutcomes handles GET /batches/{batchID}/outcomes.
func (s *Server) getBatchOutcomes(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batch_id")
	if !ok {
		return
	}

	outcomes, err := s.batches.Outcomes(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := outcomesResponse{
		BatchID:  batchID.String(),
		Outcomes: make([]outcomeResponse, len(outcomes)),
	}
	for i, o := range outcomes {
		resp.Outcomes[i] = domainOutcomeToResponse(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// cancelBatch handles DELETE /batches/{batchID}.
// A running batch stops after its in-flight entities and keeps their results.
func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batch_id")
	if !ok {
		return
	}

	run, err := s.batches.Get(ctx, batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if run.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "batch is already in terminal state")
		return
	}

	if err := s.batches.Cancel(ctx, batchID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cancelBatchResponse{
		Success: true,
		Message: "cancellation requested",
		Status:  string(run.Status),
	})
}

// getBatchReportCSV handles GET /batches/{batchID}/report/{kind}.
// kind is journal, book, chapter, profiles or failed.
func (s *Server) getBatchReportCSV(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batch_id")
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")

	run, err := s.batches.Get(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if run.Report == nil {
		writeError(w, http.StatusConflict, "batch has no report yet")
		return
	}

	for _, table := range report.BatchTables(*run.Report) {
		if table.Name != kind {
			continue
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+batchID.String()+"_"+kind+".csv\"")
		w.WriteHeader(http.StatusOK)
		if err := report.WriteCSV(w, table); err != nil {
			s.logger.Error().Err(err).Str("batch_id", batchID.String()).Msg("failed to write report CSV")
		}
		return
	}

	writeError(w, http.StatusNotFound, "unknown report table")
}
