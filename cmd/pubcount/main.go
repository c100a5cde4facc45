// Package main provides pubcount, the command-line front end of the
// publication aggregator.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/publication-aggregator/internal/app"
	"github.com/helixir/publication-aggregator/internal/config"
	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/observability"
)

// Version is set at build time via ldflags
var Version = "dev"

// Output formats.
const (
	formatJSON  = "json"
	formatTable = "table"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
	format     string

	// logOut receives diagnostics so stdout stays parseable.
	logOut io.Writer
}

// environment is the loaded configuration and the pipeline built from it.
type environment struct {
	cfg        *config.Config
	components *app.Components
	logger     zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{logOut: stderr}
	root := &cobra.Command{
		Use:   "pubcount",
		Short: "Count and list a researcher's publications across bibliographic sources",
		Long: `pubcount queries ORCID, CrossRef, OpenAlex and Semantic Scholar (and
optionally Google Scholar), merges the results and splits them into journal
articles, books and book chapters.

Output is JSON by default; --format table prints a human-readable summary.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.format {
			case formatJSON, formatTable:
				return nil
			default:
				return fmt.Errorf("unknown format %q (want %s or %s)", opts.format, formatJSON, formatTable)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a config file (default: search ./config.yaml, ./config)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the configuration; missing files are ignored")
	pf.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	pf.StringVar(&opts.format, "format", formatJSON, "Output format: json or table")

	root.AddCommand(newSearchCmd(opts), newStatsCmd(opts), newBulkCmd(opts))
	return root
}

// load reads the environment file and the configuration, then builds the pipeline.
func (o *globalOptions) load() (*environment, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stderr",
		Writer:     o.logOut,
		TimeFormat: time.RFC3339,
		Component:  "pubcount",
	})

	components, err := app.Build(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, components: components, logger: logger}, nil
}

// resolveWindow parses --start/--end, filling an omitted side from def.
func resolveWindow(start, end string, def domain.DateWindow) (domain.DateWindow, error) {
	if strings.TrimSpace(start) == "" {
		start = def.Start.Format(domain.DateLayout)
	}
	if strings.TrimSpace(end) == "" {
		end = def.End.Format(domain.DateLayout)
	}
	return domain.ParseWindow(start, end)
}
