// Package main provides a CLI tool for the batch store migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/config"
	"github.com/helixir/publication-aggregator/internal/database"
	"github.com/helixir/publication-aggregator/internal/observability"
)

// action is one migration command selected on the command line.
type action struct {
	name  string
	apply func(m *database.Migrator) error
}

// flags holds the parsed command line.
type flags struct {
	up       bool
	down     bool
	steps    int
	version  bool
	force    int
	path     string
	embedded bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var f flags
	fs.BoolVar(&f.up, "up", false, "Run all pending migrations")
	fs.BoolVar(&f.down, "down", false, "Roll back all migrations")
	fs.IntVar(&f.steps, "steps", 0, "Run N migration steps (positive=up, negative=down)")
	fs.BoolVar(&f.version, "version", false, "Print the current migration version")
	fs.IntVar(&f.force, "force", -1, "Force set migration version (use to recover from failed migrations)")
	fs.StringVar(&f.path, "path", "", "Override the migrations directory path")
	fs.BoolVar(&f.embedded, "embedded", false, "Use the migrations compiled into the binary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	act, err := selectAction(f)
	if err != nil {
		fs.Usage()
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Component:  "migrate",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := openMigrator(db, migrationSource(cfg.Database.MigrationPath, f), logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	logger.Info().Str("action", act.name).Msg("running migration action")
	if act.apply != nil {
		if err := act.apply(migrator); err != nil {
			return fmt.Errorf("%s: %w", act.name, err)
		}
	}
	printVersion(migrator, logger)
	return nil
}

// selectAction returns the single action named by the flags.
func selectAction(f flags) (action, error) {
	var actions []action
	if f.up {
		actions = append(actions, action{name: "up", apply: (*database.Migrator).Up})
	}
	if f.down {
		actions = append(actions, action{name: "down", apply: (*database.Migrator).Down})
	}
	if f.steps != 0 {
		n := f.steps
		actions = append(actions, action{name: "steps", apply: func(m *database.Migrator) error { return m.Steps(n) }})
	}
	if f.version {
		actions = append(actions, action{name: "version"})
	}
	if f.force >= 0 {
		v := f.force
		actions = append(actions, action{name: "force", apply: func(m *database.Migrator) error { return m.Force(v) }})
	}

	switch len(actions) {
	case 0:
		return action{}, errors.New("no action specified; use one of -up, -down, -steps N, -version, -force V")
	case 1:
		return actions[0], nil
	default:
		return action{}, errors.New("specify only one action at a time")
	}
}

// migrationSource resolves the migrations directory. An empty result selects
// the embedded migrations.
func migrationSource(configured string, f flags) string {
	if f.embedded {
		return ""
	}
	if f.path != "" {
		return f.path
	}
	return configured
}

func openMigrator(db *database.DB, dir string, logger zerolog.Logger) (*database.Migrator, error) {
	var (
		m   *database.Migrator
		err error
	)
	if dir == "" {
		logger.Info().Msg("using embedded migrations")
		m, err = database.NewEmbeddedMigrator(db, logger)
	} else {
		logger.Info().Str("path", dir).Msg("using migrations directory")
		m, err = database.NewMigrator(db, dir, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
