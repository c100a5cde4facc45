package main

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sortedSources returns the labels of counts, most records first.
func sortedSources(counts map[domain.SourceLabel]int) []domain.SourceLabel {
	labels := make([]domain.SourceLabel, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}
