// Package report lays publication records out in the canonical output
// columns and writes them as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// Canonical column sets per publication kind.
var (
	JournalColumns = []string{
		"All Authors", "Authors in School", "Article Title", "Article DOI", "Year",
		"Journal Title", "Publication Date", "Citation Count", "Source",
	}
	BookColumns = []string{
		"Authors", "Authors in School", "Book Title", "Year", "Publisher",
		"Citation Count", "Publication Date", "Source",
	}
	ChapterColumns = []string{
		"Authors", "Authors in School", "Book Title", "Chapter Title", "Year",
		"Publisher", "Citation Count", "Publication Date", "Source",
	}

	// AttributionColumns prefix every bulk row.
	AttributionColumns = []string{"Professor Name", "Professor ORCID", "Join Year", "Join Month", "Start Year"}

	ProfileColumns = []string{
		"Professor Name", "Professor ORCID", "Scholar Value", "Profile Source", "Profile OpenAlex ID",
		"Citations", "Works Count", "H-Index", "i10-Index", "Used Fallback",
	}

	FailedColumns = []string{"Identifier", "Error"}
)

// Table is a named header plus rows of cells.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Columns returns the canonical column set of kind.
func Columns(kind domain.PublicationKind) []string {
	switch kind {
	case domain.KindBook:
		return BookColumns
	case domain.KindChapter:
		return ChapterColumns
	default:
		return JournalColumns
	}
}

// Row lays rec out in the canonical columns of its kind.
func Row(rec *domain.PublicationRecord) []string {
	year := itoa(rec.Year)
	cites := strconv.Itoa(rec.CitationCount)
	source := rec.Source.String()

	switch rec.Kind() {
	case domain.KindBook:
		return []string{
			rec.AuthorString(), rec.AuthorsInSchool, rec.BookTitle(), year, rec.Publisher(),
			cites, rec.PublicationDate, source,
		}
	case domain.KindChapter:
		return []string{
			rec.AuthorString(), rec.AuthorsInSchool, rec.BookTitle(), rec.ChapterTitle(), year,
			rec.Publisher(), cites, rec.PublicationDate, source,
		}
	default:
		return []string{
			rec.AuthorString(), rec.AuthorsInSchool, rec.Title, rec.DOI, year,
			rec.JournalTitle(), rec.PublicationDate, cites, source,
		}
	}
}

// SearchTables returns one table per kind for a single-author search.
func SearchTables(p domain.Partitioned) []Table {
	tables := make([]Table, 0, len(domain.AllKinds))
	for _, kind := range domain.AllKinds {
		records := p.Of(kind)
		t := Table{Name: kind.String(), Header: Columns(kind), Rows: make([][]string, 0, len(records))}
		for i := range records {
			t.Rows = append(t.Rows, Row(&records[i]))
		}
		tables = append(tables, t)
	}
	return tables
}

// BatchTables returns the per-kind tables of a batch report, prefixed with
// attribution columns, followed by the profile and failure tables.
func BatchTables(r domain.BatchReport) []Table {
	rowsByKind := map[domain.PublicationKind][]domain.AttributedRecord{
		domain.KindJournal: r.Journal,
		domain.KindBook:    r.Book,
		domain.KindChapter: r.Chapter,
	}

	tables := make([]Table, 0, len(domain.AllKinds)+2)
	for _, kind := range domain.AllKinds {
		rows := rowsByKind[kind]
		t := Table{
			Name:   kind.String(),
			Header: concat(AttributionColumns, Columns(kind)),
			Rows:   make([][]string, 0, len(rows)),
		}
		for i := range rows {
			t.Rows = append(t.Rows, concat(attributionRow(rows[i].Attribution), Row(&rows[i].Record)))
		}
		tables = append(tables, t)
	}

	profiles := Table{Name: "profiles", Header: ProfileColumns, Rows: make([][]string, 0, len(r.Profiles))}
	for _, p := range r.Profiles {
		citations := ""
		if p.Citations != nil {
			citations = strconv.Itoa(*p.Citations)
		}
		usedFallback := "No"
		if p.UsedFallback {
			usedFallback = "Yes"
		}
		profiles.Rows = append(profiles.Rows, []string{
			p.Name, p.ORCID, p.ScholarID, string(p.ProfileSource), p.OpenAlexID,
			citations, itoa(p.WorksCount), itoa(p.HIndex), itoa(p.I10Index), usedFallback,
		})
	}
	tables = append(tables, profiles)

	failed := Table{Name: "failed", Header: FailedColumns, Rows: make([][]string, 0, len(r.Failed))}
	for _, f := range r.Failed {
		failed.Rows = append(failed.Rows, []string{f.Identifier, f.Error})
	}
	return append(tables, failed)
}

// WriteCSV writes t as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write %s header: %w", t.Name, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write %s rows: %w", t.Name, err)
	}
	return nil
}

// WriteCSVFiles writes each table to <dir>/<prefix><name>.csv and returns
// the written paths.
func WriteCSVFiles(dir, prefix string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, prefix+t.Name+".csv")
		if err := writeFile(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func attributionRow(a domain.Attribution) []string {
	return []string{a.FacultyName, a.FacultyORCID, itoa(a.JoinYear), itoa(a.JoinMonth), itoa(a.StartYear)}
}

// itoa formats n, leaving zero (unknown) blank.
func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
