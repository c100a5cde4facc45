package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
	"github.com/helixir/publication-aggregator/internal/report"
	"github.com/helixir/publication-aggregator/internal/stats"
)

// searchTitleMaxLen truncates titles in table output.
const searchTitleMaxLen = 70

// searchOptions are the flags of the search and stats commands.
type searchOptions struct {
	start  string
	end    string
	orcid  string
	out    string
	prefix string
}

// kindCounts is the per-kind record count of a result.
type kindCounts struct {
	Journal int `json:"journal"`
	Book    int `json:"book"`
	Chapter int `json:"chapter"`
	Total   int `json:"total"`
}

// searchResult is the JSON output of the search command.
type searchResult struct {
	Name    string             `json:"name"`
	Window  string             `json:"window"`
	Counts  kindCounts         `json:"counts"`
	Records domain.Partitioned `json:"records"`
	Stats   stats.Summary      `json:"stats"`
	Files   []string           `json:"files,omitempty"`
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var so searchOptions
	cmd := &cobra.Command{
		Use:   "search NAME",
		Short: "Aggregate one author's publications",
		Long: `Search every enabled source for one author, merge duplicates and split
the result into journal articles, books and book chapters.

Examples:
  pubcount search "Hong Xu"
  pubcount search "Hong Xu" --orcid 0000-0002-1825-0097 --start 2015-01-01
  pubcount search "Hong Xu" --out reports --prefix xu_`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := g.load()
			if err != nil {
				return err
			}
			res, err := runSearch(cmd.Context(), env, args[0], so)
			if err != nil {
				return err
			}
			if g.format == formatTable {
				return writeSearchTable(cmd.OutOrStdout(), res)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	addSearchFlags(cmd, &so)
	cmd.Flags().StringVar(&so.out, "out", "", "Also write one CSV file per kind into this directory")
	cmd.Flags().StringVar(&so.prefix, "prefix", "", "File name prefix for --out")
	return cmd
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var so searchOptions
	cmd := &cobra.Command{
		Use:   "stats NAME",
		Short: "Summarize one author's citations",
		Long: `Run a search and print its citation summary: the total, the record count
per source, citations per publication year and the most cited works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := g.load()
			if err != nil {
				return err
			}
			res, err := runSearch(cmd.Context(), env, args[0], so)
			if err != nil {
				return err
			}
			if g.format == formatTable {
				return writeStatsTable(cmd.OutOrStdout(), res.Stats)
			}
			return writeJSON(cmd.OutOrStdout(), res.Stats)
		},
	}
	addSearchFlags(cmd, &so)
	return cmd
}

func addSearchFlags(cmd *cobra.Command, so *searchOptions) {
	cmd.Flags().StringVar(&so.start, "start", "", "Window start, YYYY-MM-DD (default: configured window)")
	cmd.Flags().StringVar(&so.end, "end", "", "Window end, YYYY-MM-DD (default: configured window)")
	cmd.Flags().StringVar(&so.orcid, "orcid", "", "Known ORCID of the author; skips identity resolution")
}

// runSearch aggregates one author and optionally writes the CSV tables.
func runSearch(ctx context.Context, env *environment, name string, so searchOptions) (*searchResult, error) {
	window, err := resolveWindow(so.start, so.end, env.components.Window)
	if err != nil {
		return nil, err
	}

	identity := papersources.Identity{Name: strings.TrimSpace(name)}
	if so.orcid != "" {
		identity.ORCID = domain.NormalizeORCID(so.orcid)
		if !domain.ValidORCID(identity.ORCID) {
			return nil, domain.NewValidationError("orcid", fmt.Sprintf("invalid ORCID %q", so.orcid))
		}
	}
	if identity.Name == "" && identity.ORCID == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}

	parts, err := env.components.Aggregator.SearchIdentity(ctx, identity, window, env.components.Directory)
	if err != nil {
		return nil, err
	}

	res := &searchResult{
		Name:    identity.Name,
		Window:  window.String(),
		Counts:  countsOf(parts),
		Records: parts,
		Stats:   stats.Compute(parts, window),
	}

	if so.out != "" {
		paths, err := report.WriteCSVFiles(so.out, so.prefix, report.SearchTables(parts))
		if err != nil {
			return nil, err
		}
		env.logger.Info().Strs("files", paths).Msg("wrote search tables")
		res.Files = paths
	}
	return res, nil
}

func countsOf(p domain.Partitioned) kindCounts {
	return kindCounts{
		Journal: len(p.Journal),
		Book:    len(p.Book),
		Chapter: len(p.Chapter),
		Total:   p.Len(),
	}
}

func writeSearchTable(w io.Writer, res *searchResult) error {
	fmt.Fprintf(w, "%s  %s\n", res.Name, res.Window)
	fmt.Fprintf(w, "journal: %d  book: %d  chapter: %d  total: %d\n\n",
		res.Counts.Journal, res.Counts.Book, res.Counts.Chapter, res.Counts.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tYEAR\tCITED\tSOURCE\tTITLE")
	for _, kind := range domain.AllKinds {
		records := res.Records.Of(kind)
		for i := range records {
			r := &records[i]
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", kind, yearString(r.Year), r.CitationCount, r.Source, truncate(r.Title, searchTitleMaxLen))
		}
	}
	return tw.Flush()
}

func writeStatsTable(w io.Writer, s stats.Summary) error {
	fmt.Fprintf(w, "Total citations: %d\n\n", s.TotalCitations)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRECORDS")
	for _, src := range sortedSources(s.SourceCounts) {
		fmt.Fprintf(tw, "%s\t%d\n", src, s.SourceCounts[src])
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "YEAR\tCITATIONS")
	for _, y := range s.Years() {
		fmt.Fprintf(tw, "%d\t%d\n", y, s.YearlyCitations[y])
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "CITED\tTOP WORK")
	for _, work := range s.TopWorks {
		fmt.Fprintf(tw, "%d\t%s\n", work.CitationCount, truncate(work.Title, searchTitleMaxLen))
	}
	return tw.Flush()
}

func yearString(y int) string {
	if y == 0 {
		return "-"
	}
	return fmt.Sprint(y)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
