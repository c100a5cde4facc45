// Package main provides the entry point for the publication aggregator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/app"
	"github.com/helixir/publication-aggregator/internal/config"
	"github.com/helixir/publication-aggregator/internal/database"
	"github.com/helixir/publication-aggregator/internal/events"
	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/internal/repository"
	httpserver "github.com/helixir/publication-aggregator/internal/server/http"
	"github.com/helixir/publication-aggregator/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		Component:  "server",
	})
	logger.Info().Msg("publication-aggregator server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		metricsPath = cfg.Metrics.Path
	}

	components, err := app.Build(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	logger.Info().
		Int("faculty_entries", components.Directory.Len()).
		Str("default_window", components.Window.String()).
		Msg("pipeline assembled")

	publisher := newPublisher(cfg, metrics, logger)
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	deps := httpserver.Deps{
		Searcher:  components.Aggregator,
		Directory: components.Directory,
		Logger:    logger,
	}

	var batches *service.BatchService
	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info().Msg("database connection established")

		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				return err
			}
		}

		batches = service.NewBatchService(service.Config{
			DefaultWindow: components.Window,
			MaxEntities:   cfg.Bulk.MaxEntities,
		}, repository.NewPgBatchRepository(db), components.Orchestrator, publisher, components.Directory, logger)

		deps.Batches = batches
		deps.Health = db
	} else {
		logger.Warn().Msg("database disabled; batch endpoints are unavailable")
	}

	errCh := make(chan error, 2)

	var listener *events.Listener
	if batches != nil && cfg.Kafka.Enabled && cfg.Kafka.RequestTopic != "" {
		listener = events.NewListener(events.ListenerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.RequestTopic,
			GroupID: cfg.Kafka.GroupID,
		}, batches, logger)

		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("batch request listener error: %w", err)
			}
		}()
	}

	read, write, idle := app.ServerTimeouts(cfg.Server)
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     read,
		WriteTimeout:    write,
		IdleTimeout:     idle,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SearchTimeout:   cfg.Server.SearchTimeout,
		DefaultWindow:   components.Window,
		MetricsPath:     metricsPath,
	}
	httpSrv := httpserver.NewServer(httpCfg, deps)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Bool("batches", batches != nil).
		Bool("request_listener", listener != nil).
		Msg("publication-aggregator is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down publication-aggregator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("batch request listener close error")
		}
	}

	if batches != nil {
		if err := batches.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("running batches did not finish before shutdown timeout")
		}
	}

	logger.Info().Msg("publication-aggregator shutdown complete")
	return nil
}

// newPublisher returns the Kafka publisher when Kafka is enabled.
func newPublisher(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) events.Publisher {
	if !cfg.Kafka.Enabled {
		return events.NopPublisher{}
	}
	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Msg("kafka publisher configured")
	return events.NewKafkaPublisher(events.PublisherConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, metrics, logger)
}

// migrate applies pending migrations from path, or from the embedded set when
// path is empty.
func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	var (
		migrator *database.Migrator
		err      error
	)
	if path == "" {
		migrator, err = database.NewEmbeddedMigrator(db, logger)
	} else {
		migrator, err = database.NewMigrator(db, path, logger)
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
