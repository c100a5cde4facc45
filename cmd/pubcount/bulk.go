package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/report"
	"github.com/helixir/publication-aggregator/internal/stats"
)

// bulkOptions are the flags of the bulk command.
type bulkOptions struct {
	start  string
	end    string
	out    string
	prefix string
}

// bulkResult is the JSON output of the bulk command.
type bulkResult struct {
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    []domain.FailedEntity `json:"failed"`
	Counts    kindCounts            `json:"counts"`
	Profiles  int                   `json:"profiles"`
	Stats     stats.Summary         `json:"stats"`
	Files     []string              `json:"files"`
	Cancelled bool                  `json:"cancelled,omitempty"`
}

func newBulkCmd(g *globalOptions) *cobra.Command {
	var bo bulkOptions
	cmd := &cobra.Command{
		Use:   "bulk FILE",
		Short: "Process a list of faculty members and write the combined tables",
		Long: `Process every faculty member listed in FILE (YAML or JSON) and write one CSV
per publication kind plus the profile and failure tables.

Each entry names a faculty member by name, ORCID or Google Scholar id and
may carry a join year and month:

  entities:
    - name: Hong Xu
      orcid: 0000-0002-1825-0097
      join_year: 2015
      join_month: 8
    - scholar_id: AbCdEfGhIJ

Without --start/--end every entity is searched from its join date, or over
the configured window when the join date is unknown. Interrupting the run
still writes the tables for the entities that finished.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := g.load()
			if err != nil {
				return err
			}
			res, err := runBulk(cmd.Context(), env, args[0], bo)
			if err != nil {
				return err
			}
			if g.format == formatTable {
				return writeBulkTable(cmd.OutOrStdout(), res)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&bo.start, "start", "", "Override every entity's window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&bo.end, "end", "", "Override every entity's window end, YYYY-MM-DD")
	cmd.Flags().StringVar(&bo.out, "out", "reports", "Directory the CSV tables are written to")
	cmd.Flags().StringVar(&bo.prefix, "prefix", "", "File name prefix for the CSV tables")
	return cmd
}

// runBulk processes the entity file and writes the report tables.
func runBulk(ctx context.Context, env *environment, path string, bo bulkOptions) (*bulkResult, error) {
	entities, err := loadEntities(path)
	if err != nil {
		return nil, err
	}

	var override *domain.DateWindow
	window := env.components.Window
	if bo.start != "" || bo.end != "" {
		w, err := resolveWindow(bo.start, bo.end, env.components.Window)
		if err != nil {
			return nil, err
		}
		override = &w
		window = w
	}

	// Listed entities count as faculty for attribution alongside the roster.
	dir := faculty.NewBuilder().
		Merge(env.components.Directory).
		AddEntities(entities).
		Build()

	env.logger.Info().
		Int("entities", len(entities)).
		Str("file", path).
		Msg("bulk run starting")

	rep, err := env.components.Orchestrator.Process(ctx, entities, override, dir)
	cancelled := errors.Is(err, context.Canceled)
	if err != nil && !cancelled {
		return nil, err
	}

	paths, err := report.WriteCSVFiles(bo.out, bo.prefix, report.BatchTables(rep))
	if err != nil {
		return nil, err
	}
	env.logger.Info().Strs("files", paths).Msg("wrote batch tables")

	failed := rep.Failed
	if failed == nil {
		failed = []domain.FailedEntity{}
	}
	return &bulkResult{
		Total:     rep.Total,
		Succeeded: rep.Succeeded,
		Failed:    failed,
		Counts: kindCounts{
			Journal: len(rep.Journal),
			Book:    len(rep.Book),
			Chapter: len(rep.Chapter),
			Total:   len(rep.Journal) + len(rep.Book) + len(rep.Chapter),
		},
		Profiles:  len(rep.Profiles),
		Stats:     stats.ComputeReport(rep, window),
		Files:     paths,
		Cancelled: cancelled,
	}, nil
}

func writeBulkTable(w io.Writer, res *bulkResult) error {
	fmt.Fprintf(w, "processed %d of %d entities (%d failed)\n", res.Succeeded, res.Total, len(res.Failed))
	fmt.Fprintf(w, "journal rows: %d  book rows: %d  chapter rows: %d  profiles: %d\n",
		res.Counts.Journal, res.Counts.Book, res.Counts.Chapter, res.Profiles)
	if res.Cancelled {
		fmt.Fprintln(w, "run interrupted; tables cover finished entities only")
	}

	if len(res.Failed) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ENTITY\tERROR")
		for _, f := range res.Failed {
			fmt.Fprintf(tw, "%s\t%s\n", f.Identifier, f.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	for _, p := range res.Files {
		fmt.Fprintln(w, p)
	}
	return nil
}
