package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
)

func writeEntityFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEntities(t *testing.T) {
	want := []domain.FacultyEntity{
		{Name: "Hong Xu", ORCID: "0000-0002-1825-0097", JoinYear: 2015, JoinMonth: 8},
		{ScholarID: "AbCdEfGhIJ"},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml mapping",
			file: "entities.yaml",
			content: `entities:
  - name: " Hong Xu "
    orcid: https://orcid.org/0000-0002-1825-0097
    join_year: 2015
    join_month: 8
  - scholar_id: AbCdEfGhIJ
`,
		},
		{
			name: "yaml list",
			file: "entities.yml",
			content: `- name: Hong Xu
  orcid: 0000-0002-1825-0097
  join_year: 2015
  join_month: 8
- scholar_id: AbCdEfGhIJ
`,
		},
		{
			name:    "json list",
			file:    "entities.json",
			content: `[{"name":"Hong Xu","orcid":"0000-0002-1825-0097","join_year":2015,"join_month":8},{"scholar_id":"AbCdEfGhIJ"}]`,
		},
		{
			name: "roster layout",
			file: "roster.yaml",
			content: `faculty:
  - name: Hong Xu
    orcid: 0000-0002-1825-0097
    join_year: 2015
    join_month: 8
  - scholar_id: AbCdEfGhIJ
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadEntities(writeEntityFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadEntities_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "empty", content: "", want: "is empty"},
		{name: "scalar", content: "just a string\n", want: "must hold a list"},
		{name: "malformed", content: "entities: [\n", want: "parse entity file"},
		{name: "wrong field type", content: "- join_year: soon\n", want: "decode entities"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadEntities(writeEntityFile(t, "entities.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
