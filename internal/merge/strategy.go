package merge

import (
	"fmt"
	"math"
	"strings"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// CitationStrategy selects how citation samples of merged records combine
// into one count.
type CitationStrategy string

const (
	// StrategyMean takes the rounded mean of all samples.
	StrategyMean CitationStrategy = "mean"

	// StrategyMax takes the largest sample.
	StrategyMax CitationStrategy = "max"

	// StrategyPreferSource takes the preferred source's sample when present
	// and the mean otherwise.
	StrategyPreferSource CitationStrategy = "prefer_source"
)

// ParseCitationStrategy parses a strategy name. An empty name is the mean.
func ParseCitationStrategy(s string) (CitationStrategy, error) {
	switch CitationStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyMean:
		return StrategyMean, nil
	case StrategyMax:
		return StrategyMax, nil
	case StrategyPreferSource:
		return StrategyPreferSource, nil
	default:
		return "", domain.NewValidationError("citation_strategy", fmt.Sprintf("unknown strategy %q", s))
	}
}

// Combine reduces samples to a single non-negative count.
func (s CitationStrategy) Combine(samples []domain.CitationSample, preferred domain.SourceLabel) int {
	if len(samples) == 0 {
		return 0
	}

	switch s {
	case StrategyMax:
		best := 0
		for _, c := range samples {
			best = max(best, c.Count)
		}
		return best
	case StrategyPreferSource:
		for _, c := range samples {
			if c.Origin == preferred {
				return max(c.Count, 0)
			}
		}
	}

	var sum float64
	for _, c := range samples {
		sum += float64(max(c.Count, 0))
	}
	return int(math.Round(sum / float64(len(samples))))
}
