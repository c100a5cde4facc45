package observability

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	batchIDKey   contextKey = "batch_id"
)

// WithRequestID stores the HTTP request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithBatchID stores the bulk batch id on ctx.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchIDFromContext returns the batch id, or "" when none is set.
func BatchIDFromContext(ctx context.Context) string {
	return stringValue(ctx, batchIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// LoggerFromContext returns base with every id carried by ctx attached under
// its key name.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	fields := base.With()
	for _, key := range []contextKey{requestIDKey, batchIDKey} {
		if id := stringValue(ctx, key); id != "" {
			fields = fields.Str(string(key), id)
		}
	}
	return fields.Logger()
}
