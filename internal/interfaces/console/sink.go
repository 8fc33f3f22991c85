package console

import (
	"fmt"
	"time"

	"loanperf/internal/domain"
)

// Sink prints item transitions and portfolio totals as plain lines.
// The remaining func, when set, annotates throttle lines with the
// coordinator's countdown; the 1s display tick lives here, not in the
// core.
type Sink struct {
	remaining func() time.Duration
}

func NewSink(remaining func() time.Duration) *Sink {
	return &Sink{remaining: remaining}
}

func (s *Sink) PublishLoading(id string) {
	fmt.Printf("%-12s analyzing...\n", id)
}

func (s *Sink) PublishResult(id string, res domain.PerformanceResult) {
	verdict := "underperforming"
	if res.Outperforming {
		verdict = "outperforming"
	}
	fmt.Printf("%-12s net %+.2f (value %+.2f, interest %.2f) %s\n",
		id, res.NetResult, res.BTCValueChange, res.InterestCost, verdict)
}

func (s *Sink) PublishError(id string, reason string) {
	fmt.Printf("%-12s failed: %s\n", id, reason)
}

func (s *Sink) PublishThrottled(id string) {
	if s.remaining != nil {
		if left := s.remaining(); left > 0 {
			fmt.Printf("%-12s throttled, retrying in %ds\n", id, int(left.Round(time.Second).Seconds()))
			return
		}
	}
	fmt.Printf("%-12s throttled, queued for retry\n", id)
}

func (s *Sink) PublishPortfolioTotals(t domain.PortfolioTotals) {
	fmt.Printf("portfolio: net %+.2f | %d/%d outperforming | %d/%d analyzed | value %.2f\n",
		t.TotalNet, t.OutperformingCount, t.TotalPositions, t.AnalyzedCount,
		t.TotalPositions, t.TotalPositionValue)
}
