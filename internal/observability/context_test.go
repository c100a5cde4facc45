package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRequestID(ctx, "req-123")

		result := RequestIDFromContext(ctx)
		assert.Equal(t, "req-123", result)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		ctx := context.Background()
		result := RequestIDFromContext(ctx)
		assert.Equal(t, "", result)
	})
}

func TestBatchIDContext(t *testing.T) {
	t.Run("stores and retrieves batch ID", func(t *testing.T) {
		ctx := WithBatchID(context.Background(), "batch-42")
		assert.Equal(t, "batch-42", BatchIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", BatchIDFromContext(context.Background()))
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")

	assert.Equal(t, "second", RequestIDFromContext(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	t.Run("adds ids present in context", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithBatchID(WithRequestID(context.Background(), "req-1"), "batch-1")

		logger := LoggerFromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("hello")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.Equal(t, "req-1", logEntry["request_id"])
		assert.Equal(t, "batch-1", logEntry["batch_id"])
	})

	t.Run("leaves logger untouched without ids", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("hello")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		_, hasRequest := logEntry["request_id"]
		_, hasBatch := logEntry["batch_id"]
		assert.False(t, hasRequest)
		assert.False(t, hasBatch)
	})
}
