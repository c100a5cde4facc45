package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/observability"
)

// Submitter accepts batch submissions.
type Submitter interface {
	Submit(ctx context.Context, entities []domain.FacultyEntity, window *domain.DateWindow) (*domain.BatchRun, error)
}

// messageReader is the subset of *kafka.Reader used by Listener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ListenerConfig holds configuration for the batch request listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic batch requests are read from.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Listener consumes batch requests from Kafka and submits them.
type Listener struct {
	reader    messageReader
	submitter Submitter
	logger    zerolog.Logger
}

// NewListener creates a new batch request listener.
func NewListener(cfg ListenerConfig, submitter Submitter, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     3 * time.Second,
		Logger:      observability.NewPrintfLogger(logger, "kafka_reader", zerolog.DebugLevel),
		ErrorLogger: observability.NewPrintfLogger(logger, "kafka_reader", zerolog.ErrorLevel),
	})
	return newListener(reader, submitter, logger)
}

func newListener(r messageReader, submitter Submitter, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:    r,
		submitter: submitter,
		logger:    logger.With().Str("component", "batch_listener").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting batch request listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("batch request listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received batch request")

		l.handle(ctx, msg.Value)
	}
}

// handle decodes and submits one request. Bad requests are logged and dropped.
func (l *Listener) handle(ctx context.Context, value []byte) {
	var req BatchRequest
	if err := json.Unmarshal(value, &req); err != nil {
		l.logger.Error().Err(err).
			Str("raw_value", string(value)).
			Msg("failed to unmarshal batch request")
		return
	}

	var window *domain.DateWindow
	if req.StartDate != "" || req.EndDate != "" {
		w, err := domain.ParseWindow(req.StartDate, req.EndDate)
		if err != nil {
			l.logger.Error().Err(err).Msg("rejected batch request with invalid window")
			return
		}
		window = &w
	}

	run, err := l.submitter.Submit(ctx, req.Entities, window)
	if err != nil {
		l.logger.Error().Err(err).
			Int("entities", len(req.Entities)).
			Msg("failed to submit batch request")
		return
	}

	l.logger.Info().
		Str("batch_id", run.ID.String()).
		Int("entities", run.Total).
		Msg("submitted batch from Kafka")
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing batch request listener")
	return l.reader.Close()
}
