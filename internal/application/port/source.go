package port

import (
	"context"

	"loanperf/internal/domain"
)

// PositionSource produces the positions for one processing pass. The
// core does not revalidate beyond domain.Position.Validate.
type PositionSource interface {
	ListPositions(ctx context.Context) ([]domain.Position, error)

	// IsExcluded marks a position not yet ready for analysis (e.g. an
	// incomplete record). True means never submit, never count.
	IsExcluded(p domain.Position) bool
}
