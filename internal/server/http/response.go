package httpserver

import (
	"time"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/stats"
)

type windowResponse struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type countsResponse struct {
	Journal int `json:"journal"`
	Book    int `json:"book"`
	Chapter int `json:"chapter"`
	Total   int `json:"total"`
}

type searchResponse struct {
	Name    string             `json:"name"`
	Window  windowResponse     `json:"window"`
	Counts  countsResponse     `json:"counts"`
	Records domain.Partitioned `json:"records"`
	Stats   stats.Summary      `json:"stats"`
}

type batchResponse struct {
	BatchID     string          `json:"batch_id"`
	Status      string          `json:"status"`
	Window      windowResponse  `json:"window"`
	Total       int             `json:"total"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Error       string          `json:"error,omitempty"`
	Counts      *countsResponse `json:"counts,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Duration    string          `json:"duration,omitempty"`
}

type listBatchesResponse struct {
	Batches       []batchResponse `json:"batches"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalCount    int             `json:"total_count"`
}

type outcomeResponse struct {
	Index         int    `json:"index"`
	Identifier    string `json:"identifier"`
	ORCID         string `json:"orcid,omitempty"`
	State         string `json:"state"`
	ProfileSource string `json:"profile_source,omitempty"`
	Attempts      int    `json:"attempts"`
	Journal       int    `json:"journal"`
	Book          int    `json:"book"`
	Chapter       int    `json:"chapter"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

type outcomesResponse struct {
	BatchID  string            `json:"batch_id"`
	Outcomes []outcomeResponse `json:"outcomes"`
}

type cancelBatchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func windowToResponse(w domain.DateWindow) windowResponse {
	return windowResponse{
		StartDate: w.Start.Format(domain.DateLayout),
		EndDate:   w.End.Format(domain.DateLayout),
	}
}

func partitionedCounts(p domain.Partitioned) countsResponse {
	return countsResponse{
		Journal: len(p.Journal),
		Book:    len(p.Book),
		Chapter: len(p.Chapter),
		Total:   p.Len(),
	}
}

// nonNilPartitioned replaces nil kind lists so they encode as empty arrays.
func nonNilPartitioned(p domain.Partitioned) domain.Partitioned {
	if p.Journal == nil {
		p.Journal = []domain.PublicationRecord{}
	}
	if p.Book == nil {
		p.Book = []domain.PublicationRecord{}
	}
	if p.Chapter == nil {
		p.Chapter = []domain.PublicationRecord{}
	}
	return p
}

func domainBatchToResponse(run *domain.BatchRun) batchResponse {
	resp := batchResponse{
		BatchID:     run.ID.String(),
		Status:      string(run.Status),
		Window:      windowToResponse(run.Window),
		Total:       run.Total,
		Succeeded:   run.Succeeded,
		Failed:      run.Failed,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}

	if run.Report != nil {
		resp.Counts = &countsResponse{
			Journal: len(run.Report.Journal),
			Book:    len(run.Report.Book),
			Chapter: len(run.Report.Chapter),
			Total:   len(run.Report.Journal) + len(run.Report.Book) + len(run.Report.Chapter),
		}
	}

	if run.StartedAt != nil && run.CompletedAt != nil {
		resp.Duration = run.CompletedAt.Sub(*run.StartedAt).String()
	}

	return resp
}

func domainOutcomeToResponse(o domain.OutcomeSummary) outcomeResponse {
	return outcomeResponse{
		Index:         o.Index,
		Identifier:    o.Identifier,
		ORCID:         o.ORCID,
		State:         string(o.State),
		ProfileSource: string(o.ProfileSource),
		Attempts:      o.Attempts,
		Journal:       o.Journal,
		Book:          o.Book,
		Chapter:       o.Chapter,
		Error:         o.Error,
		DurationMS:    o.Duration.Milliseconds(),
	}
}
