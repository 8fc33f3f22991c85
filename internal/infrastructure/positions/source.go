// Package positions adapts raw config entries into canonical
// positions. Amounts and dates arrive as localized text and go through
// the normalizer; fields that fail to parse are carried as invalid
// values so the pipeline rejects the item instead of the loader
// crashing the pass.
package positions

import (
	"context"
	"math"

	"loanperf/internal/domain"
	"loanperf/internal/infrastructure/config"
	"loanperf/internal/normalize"
)

type ConfigSource struct {
	list     []domain.Position
	excluded map[string]bool
}

func FromConfig(entries []config.PositionEntry) *ConfigSource {
	s := &ConfigSource{excluded: make(map[string]bool)}
	for _, e := range entries {
		s.list = append(s.list, toPosition(e))
		if e.Incomplete {
			s.excluded[e.ID] = true
		}
	}
	return s
}

func toPosition(e config.PositionEntry) domain.Position {
	p := domain.Position{
		ID:       e.ID,
		Currency: e.Currency,
	}

	p.Principal = amountOrNaN(e.Principal)
	p.AnnualRatePercent = amountOrNaN(e.AnnualRatePercent)
	p.CollateralQuantity = amountOrNaN(e.CollateralQuantity)
	if d, ok := normalize.ParseDate(e.ReferenceDate); ok {
		p.ReferenceDate = d
	}
	return p
}

// amountOrNaN keeps parse failures visible to Validate instead of
// silently zeroing them.
func amountOrNaN(text string) float64 {
	if v, ok := normalize.ParseAmount(text); ok {
		return v
	}
	return math.NaN()
}

func (s *ConfigSource) ListPositions(ctx context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, len(s.list))
	copy(out, s.list)
	return out, nil
}

func (s *ConfigSource) IsExcluded(p domain.Position) bool {
	return s.excluded[p.ID]
}

// Currencies returns the distinct currencies over all entries, for the
// provider's single current-price call.
func (s *ConfigSource) Currencies() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range s.list {
		if p.Currency == "" {
			continue
		}
		if _, dup := seen[p.Currency]; dup {
			continue
		}
		seen[p.Currency] = struct{}{}
		out = append(out, p.Currency)
	}
	return out
}
