package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/bulk"
	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/events"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/repository"
)

// memRepo is an in-memory BatchRepository.
type memRepo struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]domain.BatchRun
	outcomes map[uuid.UUID][]domain.OutcomeSummary
	saved    chan uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		runs:     make(map[uuid.UUID]domain.BatchRun),
		outcomes: make(map[uuid.UUID][]domain.OutcomeSummary),
		saved:    make(chan uuid.UUID, 8),
	}
}

func (m *memRepo) Create(_ context.Context, run *domain.BatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return domain.NewAlreadyExistsError("batch", run.ID.String())
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*domain.BatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("batch", id.String())
	}
	return &run, nil
}

func (m *memRepo) Update(_ context.Context, id uuid.UUID, fn func(*domain.BatchRun) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.NewNotFoundError("batch", id.String())
	}
	if err := fn(&run); err != nil {
		return err
	}
	m.runs[id] = run
	return nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	return m.Update(ctx, id, func(run *domain.BatchRun) error {
		if run.Status.IsTerminal() {
			return domain.ErrInvalidInput
		}
		run.Status = status
		if status == domain.BatchStatusCancelled || status == domain.BatchStatusFailed {
			run.Error = errorMsg
		}
		return nil
	})
}

func (m *memRepo) SaveResult(ctx context.Context, id uuid.UUID, report domain.BatchReport, status domain.BatchStatus, errorMsg string) error {
	err := m.Update(ctx, id, func(run *domain.BatchRun) error {
		run.Status = status
		run.Error = errorMsg
		run.Succeeded = report.Succeeded
		run.Failed = len(report.Failed)
		r := report
		r.Outcomes = nil
		run.Report = &r
		return nil
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, o := range report.Outcomes {
		m.outcomes[id] = append(m.outcomes[id], domain.Summarize(o))
	}
	m.mu.Unlock()
	m.saved <- id
	return nil
}

func (m *memRepo) List(context.Context, repository.BatchFilter) ([]*domain.BatchRun, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.BatchRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, &run)
	}
	return out, int64(len(out)), nil
}

func (m *memRepo) Outcomes(_ context.Context, id uuid.UUID) ([]domain.OutcomeSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[id], nil
}

// fakeProcessor returns a fixed report, optionally blocking until cancelled.
// With firstDone and resume set it reports the first entity, closes firstDone
// and waits on resume before finishing the rest.
type fakeProcessor struct {
	block     bool
	started   chan struct{}
	firstDone chan struct{}
	resume    chan struct{}
	err       error

	mu     sync.Mutex
	gotCtx context.Context
}

func (p *fakeProcessor) lastCtx() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gotCtx
}

func (p *fakeProcessor) Validate(entities []domain.FacultyEntity) error {
	if len(entities) == 0 {
		return domain.NewValidationError("entities", "at least one entity is required")
	}
	return nil
}

func (p *fakeProcessor) Process(ctx context.Context, entities []domain.FacultyEntity, _ *domain.DateWindow, _ *faculty.Directory) (domain.BatchReport, error) {
	p.mu.Lock()
	p.gotCtx = ctx
	p.mu.Unlock()
	if p.started != nil {
		close(p.started)
	}
	outcomes := make([]domain.EntityOutcome, len(entities))
	for i, e := range entities {
		outcomes[i] = domain.EntityOutcome{Index: i, Entity: e, State: domain.EntityStateSucceeded}
	}
	if p.block {
		<-ctx.Done()
		return domain.BatchReport{Total: len(entities), Outcomes: outcomes[:0]}, ctx.Err()
	}
	onDone := bulk.EntityDoneFromContext(ctx)
	for i := range outcomes {
		onDone(outcomes[i])
		if i == 0 && p.firstDone != nil {
			close(p.firstDone)
			<-p.resume
		}
	}
	return domain.BatchReport{Total: len(entities), Succeeded: len(entities), Outcomes: outcomes}, p.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BatchEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.BatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func waitSaved(t *testing.T, repo *memRepo) uuid.UUID {
	t.Helper()
	select {
	case id := <-repo.saved:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("batch result was not saved")
		return uuid.Nil
	}
}

var entities = []domain.FacultyEntity{
	{Name: "Jane Roe", ORCID: "0000-0002-1825-0097"},
	{Name: "Bob Tan"},
}

func TestBatchService_SubmitRunsToCompletion(t *testing.T) {
	repo := newMemRepo()
	proc := &fakeProcessor{}
	pub := &recordingPublisher{}
	svc := NewBatchService(Config{}, repo, proc, pub, nil, zerolog.Nop())

	ctx := observability.WithRequestID(context.Background(), "req-1")
	run, err := svc.Submit(ctx, entities, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusQueued, run.Status)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, domain.DefaultWindow(), run.Window)

	assert.Equal(t, run.ID, waitSaved(t, repo))
	require.NoError(t, svc.Shutdown(context.Background()))

	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Succeeded)

	outcomes, err := svc.Outcomes(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)

	assert.Equal(t, run.ID.String(), observability.BatchIDFromContext(proc.lastCtx()))
	assert.Equal(t, "req-1", observability.RequestIDFromContext(proc.lastCtx()))
	assert.Equal(t, []string{events.EventBatchSubmitted, events.EventBatchCompleted}, pub.types())
}

func TestBatchService_CountersAdvanceDuringRun(t *testing.T) {
	repo := newMemRepo()
	proc := &fakeProcessor{firstDone: make(chan struct{}), resume: make(chan struct{})}
	svc := NewBatchService(Config{}, repo, proc, nil, nil, zerolog.Nop())

	run, err := svc.Submit(context.Background(), entities, nil)
	require.NoError(t, err)
	<-proc.firstDone

	mid, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusRunning, mid.Status)
	assert.Equal(t, 1, mid.Succeeded)
	assert.Equal(t, 0, mid.Failed)
	assert.Equal(t, 2, mid.Total)

	close(proc.resume)
	waitSaved(t, repo)
	require.NoError(t, svc.Shutdown(context.Background()))

	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Succeeded)
}

func TestBatchService_SubmitDuringShutdown(t *testing.T) {
	repo := newMemRepo()
	svc := NewBatchService(Config{}, repo, &fakeProcessor{}, nil, nil, zerolog.Nop())

	const submits = 6
	var wg sync.WaitGroup
	accepted := make(chan uuid.UUID, submits)
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := svc.Submit(context.Background(), entities, nil)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
				return
			}
			accepted <- run.ID
		}()
	}
	require.NoError(t, svc.Shutdown(context.Background()))
	wg.Wait()
	close(accepted)

	// Every accepted run was waited for by Shutdown or refused after it.
	for id := range accepted {
		got, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, got.Status.IsTerminal(), "run %s left in %s", id, got.Status)
	}
}

func TestBatchService_SubmitValidation(t *testing.T) {
	svc := NewBatchService(Config{MaxEntities: 1}, newMemRepo(), &fakeProcessor{}, nil, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Submit(ctx, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Submit(ctx, entities, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "over the entity limit")

	inverted := domain.DateWindow{Start: domain.DefaultWindowEnd, End: domain.DefaultWindowStart}
	_, err = svc.Submit(ctx, entities[:1], &inverted)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBatchService_ProcessorFailure(t *testing.T) {
	repo := newMemRepo()
	svc := NewBatchService(Config{}, repo, &fakeProcessor{err: errors.New("directory unavailable")}, nil, nil, zerolog.Nop())

	run, err := svc.Submit(context.Background(), entities, nil)
	require.NoError(t, err)
	waitSaved(t, repo)

	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, got.Status)
	assert.Equal(t, "directory unavailable", got.Error)
}

func TestBatchService_CancelRunning(t *testing.T) {
	repo := newMemRepo()
	proc := &fakeProcessor{block: true, started: make(chan struct{})}
	svc := NewBatchService(Config{}, repo, proc, nil, nil, zerolog.Nop())

	run, err := svc.Submit(context.Background(), entities, nil)
	require.NoError(t, err)
	<-proc.started

	require.NoError(t, svc.Cancel(context.Background(), run.ID))
	waitSaved(t, repo)

	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCancelled, got.Status)
	assert.Equal(t, msgCancelled, got.Error)
}

func TestBatchService_ShutdownCancelsAndRejects(t *testing.T) {
	repo := newMemRepo()
	proc := &fakeProcessor{block: true, started: make(chan struct{})}
	svc := NewBatchService(Config{}, repo, proc, nil, nil, zerolog.Nop())

	run, err := svc.Submit(context.Background(), entities, nil)
	require.NoError(t, err)
	<-proc.started

	require.NoError(t, svc.Shutdown(context.Background()))
	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCancelled, got.Status)

	_, err = svc.Submit(context.Background(), entities, nil)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestBatchService_CancelFinishedIsRejected(t *testing.T) {
	repo := newMemRepo()
	svc := NewBatchService(Config{}, repo, &fakeProcessor{}, nil, nil, zerolog.Nop())

	run, err := svc.Submit(context.Background(), entities, nil)
	require.NoError(t, err)
	waitSaved(t, repo)
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.ErrorIs(t, svc.Cancel(context.Background(), run.ID), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Cancel(context.Background(), uuid.New()), domain.ErrNotFound)
}
