package domain

import "errors"

// ErrZeroHistoricalPrice rejects a division by zero upstream: a zero
// historical price is bad input, not a computable result.
var ErrZeroHistoricalPrice = errors.New("historical price is zero")

// PerformanceResult compares holding the collateral against the
// interest cost of the loan. Derived, never mutated after creation.
type PerformanceResult struct {
	BTCValueChange   float64
	BTCPercentChange float64
	InterestCost     float64
	NetResult        float64
	Outperforming    bool
	HistoricalPrice  float64
	CurrentPrice     float64
}

// ComputePerformance derives the comparison metric from a loan record
// and two prices. Pure: same inputs yield identical outputs.
func ComputePerformance(principal, annualRatePercent, historicalPrice, currentPrice float64) (PerformanceResult, error) {
	if historicalPrice == 0 {
		return PerformanceResult{}, ErrZeroHistoricalPrice
	}

	valueChange := principal * (currentPrice/historicalPrice - 1)
	interestCost := principal * (annualRatePercent / 100)

	return PerformanceResult{
		BTCValueChange:   valueChange,
		BTCPercentChange: (currentPrice - historicalPrice) / historicalPrice * 100,
		InterestCost:     interestCost,
		NetResult:        valueChange - interestCost,
		Outperforming:    valueChange > interestCost,
		HistoricalPrice:  historicalPrice,
		CurrentPrice:     currentPrice,
	}, nil
}
