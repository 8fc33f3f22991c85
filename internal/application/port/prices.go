package port

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PriceService is the upstream price provider boundary. Both calls are
// rate-limited and unreliable; errors may or may not carry a status
// code, so callers still run heuristic throttle detection on them.
type PriceService interface {
	// FetchCurrentPrices returns the current collateral price in every
	// currency the provider quotes, from a single call.
	FetchCurrentPrices(ctx context.Context) (map[string]float64, error)

	// FetchHistoricalPrice returns the collateral price on the given
	// date in the given currency.
	FetchHistoricalPrice(ctx context.Context, date time.Time, currency string) (float64, error)
}

// UpstreamError is a failed provider call. StatusCode is 0 when the
// failure happened below HTTP (timeouts, DNS, connection resets).
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from an error chain, 0 if none.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
