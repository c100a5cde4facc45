package faculty

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/helixir/publication-aggregator/internal/domain"
)

var joinColumns = []string{"join date", "join year", "join", "join_date", "join_year", "joindate"}

var joinDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2-Jan-2006",
	"2 January 2006",
	"January 2006",
	"2006-01",
}

// LoadCSV reads a roster with a header row. The name column is the last
// header containing "name" or "employee", the ORCID column is the last one
// containing "orcid", and the join column is the first of "Join Date",
// "Join Year", "Join" and their snake-case forms. Join values may be a year
// or a date.
func LoadCSV(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("reading roster header: %w", err)
	}

	nameCol, orcidCol, joinCol := -1, -1, -1
	for i, h := range header {
		low := strings.ToLower(strings.TrimSpace(h))
		if strings.Contains(low, "orcid") {
			orcidCol = i
		}
		if strings.Contains(low, "name") || strings.Contains(low, "employee") {
			nameCol = i
		}
	}
	for _, want := range joinColumns {
		for i, h := range header {
			if strings.ToLower(strings.TrimSpace(h)) == want {
				joinCol = i
				break
			}
		}
		if joinCol >= 0 {
			break
		}
	}
	if nameCol < 0 && orcidCol < 0 {
		return nil, domain.NewValidationError("roster", "no name or orcid column in header")
	}

	b := NewBuilder()
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading roster line %d: %w", line, err)
		}
		b.Add(cell(rec, nameCol), cell(rec, orcidCol), ParseJoinDate(cell(rec, joinCol)))
	}
	return b.Build(), nil
}

// LoadFile reads a roster from path, choosing the format by extension:
// .yaml and .yml are YAML, anything else is CSV. An empty path yields an
// empty directory.
func LoadFile(path string) (*Directory, error) {
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return LoadCSV(f)
	}
}

// rosterFile is the YAML roster layout.
type rosterFile struct {
	Faculty []domain.FacultyEntity `yaml:"faculty"`
}

// LoadYAML reads a roster of the form
//
//	faculty:
//	  - name: Hong Xu
//	    orcid: 0000-0002-1825-0097
//	    join_year: 2015
//	    join_month: 8
func LoadYAML(r io.Reader) (*Directory, error) {
	var f rosterFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding roster: %w", err)
	}
	return NewBuilder().AddEntities(f.Faculty).Build(), nil
}

// ParseJoinDate parses a bare year or a date. Unparseable values give the
// zero JoinDate.
func ParseJoinDate(raw string) JoinDate {
	s := strings.TrimSpace(raw)
	if s == "" {
		return JoinDate{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if y := int(f); y >= 1900 && y <= 2100 {
			return JoinDate{Year: y}
		}
		return JoinDate{}
	}
	for _, layout := range joinDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return JoinDate{Year: t.Year(), Month: int(t.Month())}
		}
	}
	return JoinDate{}
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
