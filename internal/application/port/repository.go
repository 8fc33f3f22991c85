package port

import (
	"context"

	"loanperf/internal/domain"
)

// Repository persists analysis output and historical prices. All
// methods are best-effort from the pipeline's point of view: a storage
// failure never fails an item.
type Repository interface {
	// Result operations
	SaveResult(ctx context.Context, it domain.Item, ts int64) error

	// Portfolio snapshot operations
	SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error

	// Historical price operations. Historical prices are immutable
	// facts, so persisted entries warm-start the price cache across
	// process restarts.
	SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error
	LoadHistoricalPrices(ctx context.Context) ([]HistoricalPrice, error)

	// Connection management
	Close() error
}

// HistoricalPrice is one persisted historical price fact. DateKey is
// the provider's dd-mm-yyyy form; Currency is lowercase ISO-4217.
type HistoricalPrice struct {
	DateKey  string
	Currency string
	Price    float64
}
