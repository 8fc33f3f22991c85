package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Position is one collateralized loan record subject to performance
// analysis. It is immutable once handed to the pipeline.
type Position struct {
	ID                 string
	Currency           string // ISO-4217, e.g. "EUR"
	Principal          float64
	AnnualRatePercent  float64
	ReferenceDate      time.Time
	CollateralQuantity float64
}

// FieldError reports a malformed Position field. It is terminal for the
// item that carries it.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("position field %s: %s", e.Field, e.Reason)
}

// Validate checks the fields the pipeline depends on. A Position that
// fails validation becomes a Failed item, never a crash.
func (p Position) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &FieldError{Field: "id", Reason: "empty"}
	}
	if strings.TrimSpace(p.Currency) == "" {
		return &FieldError{Field: "currency", Reason: "empty"}
	}
	if math.IsNaN(p.Principal) || p.Principal < 0 {
		return &FieldError{Field: "principal", Reason: "not a non-negative number"}
	}
	if math.IsNaN(p.AnnualRatePercent) || p.AnnualRatePercent < 0 {
		return &FieldError{Field: "annual_rate_percent", Reason: "not a non-negative number"}
	}
	if math.IsNaN(p.CollateralQuantity) || p.CollateralQuantity <= 0 {
		return &FieldError{Field: "collateral_quantity", Reason: "not a positive number"}
	}
	if p.ReferenceDate.IsZero() {
		return &FieldError{Field: "reference_date", Reason: "missing or unparsable"}
	}
	return nil
}
