package papersources

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// SourceResult holds the result of a fetch from one source.
type SourceResult struct {
	// Source identifies which source provided the result.
	Source domain.SourceLabel

	// Candidates contains the fetched candidates if the fetch succeeded.
	Candidates []Candidate

	// Error contains the error if the fetch failed.
	Error error

	// Duration is the time the fetch took.
	Duration time.Duration
}

// Registry manages work sources and coordinates concurrent fetches.
// It provides thread-safe registration and retrieval of sources,
// as well as concurrent fetch operations across multiple sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceLabel]WorkSource
	order   []domain.SourceLabel
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceLabel]WorkSource),
	}
}

// Register adds a source to the registry.
// If a source with the same label already exists, it will be replaced
// and keep its original position.
func (r *Registry) Register(source WorkSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := source.Label()
	if _, exists := r.sources[label]; !exists {
		r.order = append(r.order, label)
	}
	r.sources[label] = source
}

// Get returns a source by label, or nil if not found.
func (r *Registry) Get(label domain.SourceLabel) WorkSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[label]
}

// AllSources returns all registered sources in registration order.
// The returned slice is a snapshot.
func (r *Registry) AllSources() []WorkSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]WorkSource, 0, len(r.order))
	for _, label := range r.order {
		sources = append(sources, r.sources[label])
	}
	return sources
}

// EnabledSources returns only enabled sources in registration order.
func (r *Registry) EnabledSources() []WorkSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]WorkSource, 0, len(r.order))
	for _, label := range r.order {
		if s := r.sources[label]; s.IsEnabled() {
			sources = append(sources, s)
		}
	}
	return sources
}

// FetchAll fetches from all enabled sources concurrently.
func (r *Registry) FetchAll(ctx context.Context, params FetchParams) []SourceResult {
	return r.FetchSources(ctx, params, nil)
}

// FetchSources fetches from specific sources concurrently.
// If labels is empty, all enabled sources are used. Unknown and disabled
// labels are skipped. Results come back in source order, not completion
// order, and carry errors unfiltered.
func (r *Registry) FetchSources(ctx context.Context, params FetchParams, labels []domain.SourceLabel) []SourceResult {
	var sources []WorkSource

	if len(labels) == 0 {
		sources = r.EnabledSources()
	} else {
		r.mu.RLock()
		sources = make([]WorkSource, 0, len(labels))
		for _, l := range labels {
			if source, ok := r.sources[l]; ok && source.IsEnabled() {
				sources = append(sources, source)
			}
		}
		r.mu.RUnlock()
	}

	if len(sources) == 0 {
		return nil
	}

	results := make([]SourceResult, len(sources))
	var g errgroup.Group

	for i, source := range sources {
		g.Go(func() error {
			start := time.Now()
			candidates, err := source.Fetch(ctx, params)
			results[i] = SourceResult{
				Source:     source.Label(),
				Candidates: candidates,
				Error:      err,
				Duration:   time.Since(start),
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
