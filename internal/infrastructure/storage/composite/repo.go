package composite

import (
	"context"

	"loanperf/internal/application/port"
	"loanperf/internal/domain"
)

type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveResult(ctx, it, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveTotals(ctx, ts, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveHistoricalPrice(ctx, dateKey, currency, price); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadHistoricalPrices merges facts from all backends; the first
// backend to report a (date, currency) wins.
func (r *Repo) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	seen := map[string]struct{}{}
	var out []port.HistoricalPrice
	var firstErr error
	for _, repo := range r.repos {
		facts, err := repo.LoadHistoricalPrices(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, f := range facts {
			key := f.DateKey + ":" + f.Currency
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, f)
		}
	}
	return out, firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
