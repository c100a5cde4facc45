package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_pubagg_new")

	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestDuration)
	assert.NotNil(t, m.SourceCandidates)
	assert.NotNil(t, m.SearchesStarted)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.RecordsNormalized)
	assert.NotNil(t, m.RecordsDropped)
	assert.NotNil(t, m.RecordsMerged)
	assert.NotNil(t, m.BatchesStarted)
	assert.NotNil(t, m.EntitiesProcessed)
	assert.NotNil(t, m.EntitiesInFlight)
	assert.NotNil(t, m.EventsPublished)
}

func TestRecordSourceFetch(t *testing.T) {
	m := NewMetrics("test_pubagg_source_fetch")

	m.RecordSourceFetch("ORCID", 3, 0.2, nil)
	m.RecordSourceFetch("ORCID", 0, 0.1, nil)
	m.RecordSourceFetch("CrossRef", 0, 1.5, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("ORCID", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("ORCID", "empty")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("CrossRef", "error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SourceCandidates.WithLabelValues("ORCID")))
}

func TestRecordSearch(t *testing.T) {
	m := NewMetrics("test_pubagg_search")

	m.RecordSearchStarted()
	m.RecordSearchCompleted(2.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesCompleted))

	histCount, err := getHistogramSampleCount(m.SearchDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordRecords(t *testing.T) {
	m := NewMetrics("test_pubagg_records")

	m.RecordNormalized(10)
	m.RecordDropped("no_year", 2)
	m.RecordDropped("name_mismatch", 0)
	m.RecordMerged(3)
	m.RecordPartition(4, 1, 2)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.RecordsNormalized))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsDropped.WithLabelValues("no_year")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RecordsMerged))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.RecordsByKind.WithLabelValues("journal")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsByKind.WithLabelValues("chapter")))
}

func TestRecordBatchAndEntities(t *testing.T) {
	m := NewMetrics("test_pubagg_batch")

	m.RecordBatchStarted()
	m.RecordEntityStarted()
	m.RecordEntityStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EntitiesInFlight))

	m.RecordEntityFinished("succeeded", "orcid", 1)
	m.RecordEntityFinished("failed", "", 4)
	m.RecordBatchCompleted(12)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.EntitiesInFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EntitiesProcessed.WithLabelValues("succeeded", "orcid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchesCompleted))

	histCount, err := getHistogramSampleCount(m.EntityAttempts)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_pubagg_events")

	m.RecordEventPublished("batch.completed", nil)
	m.RecordEventPublished("batch.completed", errors.New("broker down"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("batch.completed", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("batch.completed", "error")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSourceFetch("ORCID", 1, 1, nil)
		m.RecordSearchStarted()
		m.RecordSearchCompleted(1)
		m.RecordNormalized(1)
		m.RecordDropped("no_year", 1)
		m.RecordMerged(1)
		m.RecordPartition(1, 1, 1)
		m.RecordBatchStarted()
		m.RecordBatchCompleted(1)
		m.RecordEntityStarted()
		m.RecordEntityFinished("failed", "", 0)
		m.RecordEventPublished("x", nil)
	})
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
