package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects the level, encoding and destination of a logger.
type LoggingConfig struct {
	// Level is a zerolog level name; "warning" is accepted for warn.
	// Unknown or empty values mean info.
	Level string

	// Format is json, or console/pretty for human-readable output.
	Format string

	// Output is stdout or stderr. Writer, when set, takes precedence.
	Output string
	Writer io.Writer

	// AddSource records the caller file and line.
	AddSource bool

	// TimeFormat defaults to RFC 3339.
	TimeFormat string

	// Component is attached to every entry when set.
	Component string
}

// DefaultLoggingConfig logs JSON at info level to stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a zerolog logger from cfg.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	ctx := zerolog.New(logWriter(cfg)).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

func logWriter(cfg LoggingConfig) io.Writer {
	out := cfg.Writer
	if out == nil {
		out = os.Stdout
		if strings.EqualFold(cfg.Output, "stderr") {
			out = os.Stderr
		}
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	default:
		return out
	}
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithRequestContext adds the request ID to a logger.
func WithRequestContext(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().
		Str("request_id", requestID).
		Logger()
}

// WithSearchContext adds single-author search fields to a logger.
func WithSearchContext(logger zerolog.Logger, name, window string) zerolog.Logger {
	return logger.With().
		Str("author", name).
		Str("window", window).
		Logger()
}

// WithSourceContext adds the source label to a logger.
func WithSourceContext(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().
		Str("source", source).
		Logger()
}

// WithBatchContext adds bulk batch fields to a logger.
func WithBatchContext(logger zerolog.Logger, batchID string, total int) zerolog.Logger {
	return logger.With().
		Str("batch_id", batchID).
		Int("batch_size", total).
		Logger()
}

// WithEntityContext adds bulk entity fields to a logger.
func WithEntityContext(logger zerolog.Logger, index int, identifier string) zerolog.Logger {
	return logger.With().
		Int("entity_index", index).
		Str("entity", identifier).
		Logger()
}

// WithAttemptContext adds the retry attempt number to a logger.
func WithAttemptContext(logger zerolog.Logger, source string, attempt int) zerolog.Logger {
	return logger.With().
		Str("source", source).
		Int("attempt", attempt).
		Logger()
}
