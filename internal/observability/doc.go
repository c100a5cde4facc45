// Package observability holds the zerolog logger factory, the Prometheus
// collectors and the context helpers that carry request and batch ids.
//
// Binaries build one logger at startup and hand it down; packages derive
// sub-loggers with the With*Context helpers:
//
//	logger := observability.NewLogger(observability.LoggingConfig{Level: "debug", Component: "pubcount"})
//	logger = observability.WithBatchContext(logger, batchID, len(entities))
//	logger.Info().Msg("batch started")
//
// Field names used across the service: request_id, batch_id, entity,
// entity_index, author, window, source and attempt.
//
// Metrics are registered once per namespace with promauto. Every Record*
// method is a no-op on a nil *Metrics, so components take metrics as an
// optional dependency:
//
//	metrics := observability.NewMetrics("pubagg")
//	metrics.RecordSourceFetch("CrossRef", 42, 1.3, nil)
package observability
