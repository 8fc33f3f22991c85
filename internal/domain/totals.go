package domain

// PortfolioTotals is the aggregate view over all items. It is always
// recomputed from scratch, never patched incrementally, so it stays
// consistent when items complete out of order.
type PortfolioTotals struct {
	TotalNet           float64
	OutperformingCount int
	AnalyzedCount      int
	TotalPositionValue float64
	TotalPositions     int
}

// Aggregate folds the currently published item snapshots into portfolio
// totals. isExcluded marks positions not yet ready for analysis; nil
// means nothing is excluded. Calling it twice with unchanged items
// yields identical totals.
func Aggregate(items []Item, isExcluded func(Position) bool) PortfolioTotals {
	var t PortfolioTotals
	for _, it := range items {
		if isExcluded != nil && isExcluded(it.Position) {
			continue
		}
		t.TotalPositions++

		switch it.State {
		case StateResult:
			t.AnalyzedCount++
			if it.Result != nil {
				t.TotalNet += it.Result.NetResult
				if it.Result.Outperforming {
					t.OutperformingCount++
				}
				t.TotalPositionValue += it.Position.Principal
			}
		case StateFailed:
			t.AnalyzedCount++
		}
	}
	return t
}
