package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the publication aggregator.
// Metrics are organized by subsystem: sources, searches, records, batches and
// entities. All counters and histograms are registered via promauto with the
// default Prometheus registry.
//
// Every Record method is a no-op on a nil *Metrics.
type Metrics struct {
	// SourceRequestsTotal counts adapter fetches, labeled by source and outcome
	// ("ok", "empty", "error").
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestDuration observes adapter fetch duration in seconds, labeled by source.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceCandidates counts raw candidates returned, labeled by source.
	SourceCandidates *prometheus.CounterVec

	// SearchesStarted counts single-author searches initiated.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts single-author searches that returned a result.
	SearchesCompleted prometheus.Counter

	// SearchDuration observes single-author search duration in seconds.
	SearchDuration prometheus.Histogram

	// RecordsNormalized counts candidates that became records.
	RecordsNormalized prometheus.Counter

	// RecordsDropped counts candidates discarded, labeled by reason
	// ("no_year", "out_of_window", "name_mismatch").
	RecordsDropped *prometheus.CounterVec

	// RecordsMerged counts records folded into an existing duplicate.
	RecordsMerged prometheus.Counter

	// RecordsByKind counts published records, labeled by kind.
	RecordsByKind *prometheus.CounterVec

	// BatchesStarted counts bulk batches initiated.
	BatchesStarted prometheus.Counter

	// BatchesCompleted counts bulk batches that ran to completion.
	BatchesCompleted prometheus.Counter

	// BatchDuration observes bulk batch duration in seconds.
	BatchDuration prometheus.Histogram

	// EntitiesProcessed counts finished entities, labeled by final state and
	// profile source.
	EntitiesProcessed *prometheus.CounterVec

	// EntityAttempts observes the number of ORCID attempts per entity.
	EntityAttempts prometheus.Histogram

	// EntitiesInFlight tracks entities currently being processed.
	EntitiesInFlight prometheus.Gauge

	// EventsPublished counts events written to the message bus, labeled by
	// event type and outcome.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of source adapter fetches",
		}, []string{"source", "outcome"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of source adapter fetches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		SourceCandidates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_candidates_total",
			Help:      "Total number of raw candidates returned by sources",
		}, []string{"source"}),

		// Searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of single-author searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of single-author searches completed",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of single-author searches in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		// Records
		RecordsNormalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Total number of candidates normalized into records",
		}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Total number of candidates dropped",
		}, []string{"reason"}),
		RecordsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_merged_total",
			Help:      "Total number of duplicate records merged",
		}),
		RecordsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of merged records published, by kind",
		}, []string{"kind"}),

		// Batches
		BatchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of bulk batches started",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of bulk batches completed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of bulk batches in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Entities
		EntitiesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_processed_total",
			Help:      "Total number of bulk entities processed",
		}, []string{"state", "profile_source"}),
		EntityAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entity_orcid_attempts",
			Help:      "Number of ORCID attempts per bulk entity",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		EntitiesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_in_flight",
			Help:      "Number of bulk entities currently being processed",
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published",
		}, []string{"event_type", "outcome"}),
	}
}

// RecordSourceFetch records one adapter fetch.
func (m *Metrics) RecordSourceFetch(source string, candidates int, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case candidates == 0:
		outcome = "empty"
	}
	m.SourceRequestsTotal.WithLabelValues(source, outcome).Inc()
	m.SourceRequestDuration.WithLabelValues(source).Observe(durationSeconds)
	m.SourceCandidates.WithLabelValues(source).Add(float64(candidates))
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted() {
	if m == nil {
		return
	}
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordNormalized records candidates that became records.
func (m *Metrics) RecordNormalized(count int) {
	if m == nil {
		return
	}
	m.RecordsNormalized.Add(float64(count))
}

// RecordDropped records candidates discarded for reason.
func (m *Metrics) RecordDropped(reason string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.RecordsDropped.WithLabelValues(reason).Add(float64(count))
}

// RecordMerged records duplicates folded into existing records.
func (m *Metrics) RecordMerged(count int) {
	if m == nil || count == 0 {
		return
	}
	m.RecordsMerged.Add(float64(count))
}

// RecordPartition records published records by kind.
func (m *Metrics) RecordPartition(journal, book, chapter int) {
	if m == nil {
		return
	}
	m.RecordsByKind.WithLabelValues("journal").Add(float64(journal))
	m.RecordsByKind.WithLabelValues("book").Add(float64(book))
	m.RecordsByKind.WithLabelValues("chapter").Add(float64(chapter))
}

// RecordBatchStarted records that a batch has started.
func (m *Metrics) RecordBatchStarted() {
	if m == nil {
		return
	}
	m.BatchesStarted.Inc()
}

// RecordBatchCompleted records that a batch has completed.
func (m *Metrics) RecordBatchCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.BatchesCompleted.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordEntityStarted marks an entity as in flight.
func (m *Metrics) RecordEntityStarted() {
	if m == nil {
		return
	}
	m.EntitiesInFlight.Inc()
}

// RecordEntityFinished records an entity's final state.
func (m *Metrics) RecordEntityFinished(state, profileSource string, attempts int) {
	if m == nil {
		return
	}
	m.EntitiesInFlight.Dec()
	m.EntitiesProcessed.WithLabelValues(state, profileSource).Inc()
	m.EntityAttempts.Observe(float64(attempts))
}

// RecordEventPublished records an event publish attempt.
func (m *Metrics) RecordEventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}
