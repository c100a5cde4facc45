package httpserver

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/repository"
)

func sampleRun(status domain.BatchStatus) *domain.BatchRun {
	run := domain.NewBatchRun(domain.DefaultWindow(), 2)
	run.Status = status
	return run
}

func TestSubmitBatch_Success(t *testing.T) {
	var gotEntities []domain.FacultyEntity
	var gotWindow *domain.DateWindow
	run := sampleRun(domain.BatchStatusQueued)
	batches := &fakeBatches{
		submitFn: func(_ context.Context, entities []domain.FacultyEntity, window *domain.DateWindow) (*domain.BatchRun, error) {
			gotEntities = entities
			gotWindow = window
			return run, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, jsonRequest(t, http.MethodPost, "/api/v1/batches", map[string]interface{}{
		"entities": []map[string]interface{}{
			{"name": "Jane Doe", "orcid": "0000-0002-1825-0097"},
			{"name": "John Roe", "join_year": 2015, "join_month": 8},
		},
		"start_date": "2015-01-01",
	}))

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "/api/v1/batches/"+run.ID.String(), rr.Header().Get("Location"))
	require.Len(t, gotEntities, 2)
	assert.Equal(t, "0000-0002-1825-0097", gotEntities[0].ORCID)
	assert.Equal(t, 2015, gotEntities[1].JoinYear)
	require.NotNil(t, gotWindow)
	assert.Equal(t, 2015, gotWindow.StartYear())
	assert.Equal(t, domain.DefaultWindowEnd, gotWindow.End)

	var resp batchResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, run.ID.String(), resp.BatchID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 2, resp.Total)
}

func TestSubmitBatch_NoWindow(t *testing.T) {
	windowSeen := true
	batches := &fakeBatches{
		submitFn: func(_ context.Context, entities []domain.FacultyEntity, window *domain.DateWindow) (*domain.BatchRun, error) {
			windowSeen = window != nil
			return domain.NewBatchRun(domain.DefaultWindow(), len(entities)), nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, jsonRequest(t, http.MethodPost, "/api/v1/batches", map[string]interface{}{
		"entities": []map[string]string{{"scholar_id": "abcDEF123"}},
	}))

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.False(t, windowSeen)
}

func TestSubmitBatch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "no entities", body: `{"entities":[]}`, want: "Entities failed min"},
		{name: "missing entities", body: `{}`, want: "Entities failed required"},
		{name: "entity without identifier", body: `{"entities":[{"join_year":2010}]}`, want: "Name failed required_without_all"},
		{name: "bad join month", body: `{"entities":[{"name":"Jane","join_month":13}]}`, want: "JoinMonth failed lte"},
		{name: "inverted window", body: `{"entities":[{"name":"Jane"}],"start_date":"2020-01-01","end_date":"2019-01-01"}`, want: "end date must not be before start date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			batches := &fakeBatches{
				submitFn: func(context.Context, []domain.FacultyEntity, *domain.DateWindow) (*domain.BatchRun, error) {
					called = true
					return nil, nil
				},
			}
			s := newTestServer(t, Deps{Batches: batches})

			rr := serveHTTP(s, httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
			assert.False(t, called)
		})
	}
}

func TestSubmitBatch_ServiceErrors(t *testing.T) {
	batches := &fakeBatches{
		submitFn: func(context.Context, []domain.FacultyEntity, *domain.DateWindow) (*domain.BatchRun, error) {
			return nil, domain.NewValidationError("entities", "at most 1 entities per batch")
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, jsonRequest(t, http.MethodPost, "/api/v1/batches", map[string]interface{}{
		"entities": []map[string]string{{"name": "A"}, {"name": "B"}},
	}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "at most 1 entities")
}

func TestGetBatch(t *testing.T) {
	run := sampleRun(domain.BatchStatusCompleted)
	started := run.CreatedAt.Add(time.Second)
	completed := started.Add(90 * time.Second)
	run.StartedAt = &started
	run.CompletedAt = &completed
	run.Succeeded = 2
	run.Report = &domain.BatchReport{
		Journal: []domain.AttributedRecord{{Record: domain.PublicationRecord{Title: "A"}}},
		Total:   2,
	}

	batches := &fakeBatches{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.BatchRun, error) {
			if id == run.ID {
				return run, nil
			}
			return nil, domain.NewNotFoundError("batch", id.String())
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	t.Run("found", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+run.ID.String(), nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp batchResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, 2, resp.Succeeded)
		assert.Equal(t, "1m30s", resp.Duration)
		require.NotNil(t, resp.Counts)
		assert.Equal(t, 1, resp.Counts.Journal)
		assert.Equal(t, "2000-01-01", resp.Window.StartDate)
	})

	t.Run("not found", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "batch_id must be a valid UUID")
	})
}

func TestListBatches(t *testing.T) {
	var gotFilter repository.BatchFilter
	batches := &fakeBatches{
		listFn: func(_ context.Context, filter repository.BatchFilter) ([]*domain.BatchRun, int64, error) {
			gotFilter = filter
			return []*domain.BatchRun{sampleRun(domain.BatchStatusRunning)}, 30, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches?status=running&page_size=10", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []domain.BatchStatus{domain.BatchStatusRunning}, gotFilter.Status)
	assert.Equal(t, 10, gotFilter.Limit)
	assert.Equal(t, 0, gotFilter.Offset)

	var resp listBatchesResponse
	decodeJSON(t, rr, &resp)
	assert.Len(t, resp.Batches, 1)
	assert.Equal(t, 30, resp.TotalCount)
	assert.Equal(t, page{limit: 10}.nextToken(30), resp.NextPageToken)
}

func TestListBatches_InvalidStatus(t *testing.T) {
	s := newTestServer(t, Deps{Batches: &fakeBatches{}})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches?status=exploded", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetBatchOutcomes(t *testing.T) {
	id := uuid.New()
	batches := &fakeBatches{
		outcomesFn: func(_ context.Context, got uuid.UUID) ([]domain.OutcomeSummary, error) {
			assert.Equal(t, id, got)
			return []domain.OutcomeSummary{
				{Index: 0, Identifier: "0000-0002-1825-0097", State: domain.EntityStateSucceeded, ProfileSource: domain.ProfileSourceORCID, Attempts: 1, Journal: 3, Duration: 1500 * time.Millisecond},
				{Index: 1, Identifier: "John Roe", State: domain.EntityStateFailed, Attempts: 4, Error: "no identity found"},
			}, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+id.String()+"/outcomes", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp outcomesResponse
	decodeJSON(t, rr, &resp)
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, "orcid", resp.Outcomes[0].ProfileSource)
	assert.Equal(t, int64(1500), resp.Outcomes[0].DurationMS)
	assert.Equal(t, "failed", resp.Outcomes[1].State)
	assert.Equal(t, "no identity found", resp.Outcomes[1].Error)
}

func TestCancelBatch(t *testing.T) {
	t.Run("running batch", func(t *testing.T) {
		run := sampleRun(domain.BatchStatusRunning)
		var cancelled uuid.UUID
		batches := &fakeBatches{
			getFn: func(context.Context, uuid.UUID) (*domain.BatchRun, error) { return run, nil },
			cancelFn: func(_ context.Context, id uuid.UUID) error {
				cancelled = id
				return nil
			},
		}
		s := newTestServer(t, Deps{Batches: batches})

		rr := serveHTTP(s, httptest.NewRequest(http.MethodDelete, "/api/v1/batches/"+run.ID.String(), nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, run.ID, cancelled)
		var resp cancelBatchResponse
		decodeJSON(t, rr, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "running", resp.Status)
	})

	t.Run("terminal batch", func(t *testing.T) {
		run := sampleRun(domain.BatchStatusCompleted)
		batches := &fakeBatches{
			getFn: func(context.Context, uuid.UUID) (*domain.BatchRun, error) { return run, nil },
			cancelFn: func(context.Context, uuid.UUID) error {
				t.Fatal("cancel must not be called for terminal batches")
				return nil
			},
		}
		s := newTestServer(t, Deps{Batches: batches})

		rr := serveHTTP(s, httptest.NewRequest(http.MethodDelete, "/api/v1/batches/"+run.ID.String(), nil))

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("unknown batch", func(t *testing.T) {
		s := newTestServer(t, Deps{Batches: &fakeBatches{}})

		rr := serveHTTP(s, httptest.NewRequest(http.MethodDelete, "/api/v1/batches/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetBatchReportCSV(t *testing.T) {
	run := sampleRun(domain.BatchStatusCompleted)
	run.Report = &domain.BatchReport{
		Journal: []domain.AttributedRecord{{
			Record: domain.PublicationRecord{
				Title:   "Graph Methods",
				Year:    2021,
				Authors: []string{"Jane Doe"},
				Source:  domain.SourceORCID,
				Detail:  domain.JournalDetail{JournalTitle: "Journal of Graphs"},
			},
			Attribution: domain.Attribution{FacultyName: "Jane Doe", StartYear: 2000},
		}},
		Failed: []domain.FailedEntity{{Identifier: "John Roe", Error: "no identity found"}},
	}
	pending := sampleRun(domain.BatchStatusRunning)

	batches := &fakeBatches{
		getFn: func(_ context.Context, id uuid.UUID) (*domain.BatchRun, error) {
			if id == pending.ID {
				return pending, nil
			}
			return run, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	t.Run("journal table", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+run.ID.String()+"/report/journal", nil))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		rows, err := csv.NewReader(strings.NewReader(rr.Body.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Contains(t, rows[1], "Graph Methods")
		assert.Contains(t, rows[1], "Jane Doe")
	})

	t.Run("failed table", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+run.ID.String()+"/report/failed", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "John Roe")
	})

	t.Run("unknown table", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+run.ID.String()+"/report/posters", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("no report yet", func(t *testing.T) {
		rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+pending.ID.String()+"/report/journal", nil))

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestStreamProgress_TerminalBatch(t *testing.T) {
	run := sampleRun(domain.BatchStatusCompleted)
	run.Succeeded = 2
	batches := &fakeBatches{
		getFn: func(context.Context, uuid.UUID) (*domain.BatchRun, error) { return run, nil },
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+run.ID.String()+"/progress", nil))

	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "event: "+sseEventFinished)
	assert.Contains(t, body, `"succeeded":2`)
	assert.Equal(t, 1, strings.Count(body, "event: "))
}

func TestStreamProgress_UntilTerminal(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	batches := &fakeBatches{
		getFn: func(context.Context, uuid.UUID) (*domain.BatchRun, error) {
			run := &domain.BatchRun{ID: id, Total: 2, Window: domain.DefaultWindow()}
			switch n := polls.Add(1); {
			case n == 1:
				run.Status = domain.BatchStatusQueued
			case n < 4:
				run.Status = domain.BatchStatusRunning
			default:
				run.Status = domain.BatchStatusCompleted
				run.Succeeded = 2
			}
			return run, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+id.String()+"/progress", nil))

	body := rr.Body.String()
	assert.Contains(t, body, "event: "+sseEventStarted)
	assert.Equal(t, 1, strings.Count(body, "event: "+sseEventProgress), body)
	assert.Contains(t, body, "event: "+sseEventFinished)
	assert.Less(t, strings.Index(body, sseEventStarted), strings.Index(body, sseEventFinished))
}

func TestStreamProgress_CounterUpdates(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	batches := &fakeBatches{
		getFn: func(context.Context, uuid.UUID) (*domain.BatchRun, error) {
			run := &domain.BatchRun{ID: id, Total: 3, Status: domain.BatchStatusRunning, Window: domain.DefaultWindow()}
			switch n := polls.Add(1); {
			case n <= 2:
			case n <= 4:
				run.Succeeded = 1
			case n == 5:
				run.Succeeded, run.Failed = 1, 1
			default:
				run.Status = domain.BatchStatusCompleted
				run.Succeeded, run.Failed = 2, 1
			}
			return run, nil
		},
	}
	s := newTestServer(t, Deps{Batches: batches})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+id.String()+"/progress", nil))

	body := rr.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: "+sseEventProgress), body)
	assert.Contains(t, body, "1 of 3 entities done")
	assert.Contains(t, body, "2 of 3 entities done")
	assert.Contains(t, body, `"failed":1`)
}

func TestStreamProgress_NotFound(t *testing.T) {
	s := newTestServer(t, Deps{Batches: &fakeBatches{}})

	rr := serveHTTP(s, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+uuid.NewString()+"/progress", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
