package port

import "loanperf/internal/domain"

// Sink receives one-way item and portfolio notifications. The core
// never waits for acknowledgement; implementations must tolerate
// redundant totals publishes.
type Sink interface {
	PublishLoading(id string)
	PublishResult(id string, res domain.PerformanceResult)
	PublishError(id string, reason string)
	PublishThrottled(id string)
	PublishPortfolioTotals(t domain.PortfolioTotals)
}

// MultiSink fans notifications out to several sinks.
type MultiSink []Sink

func (m MultiSink) PublishLoading(id string) {
	for _, s := range m {
		s.PublishLoading(id)
	}
}

func (m MultiSink) PublishResult(id string, res domain.PerformanceResult) {
	for _, s := range m {
		s.PublishResult(id, res)
	}
}

func (m MultiSink) PublishError(id string, reason string) {
	for _, s := range m {
		s.PublishError(id, reason)
	}
}

func (m MultiSink) PublishThrottled(id string) {
	for _, s := range m {
		s.PublishThrottled(id)
	}
}

func (m MultiSink) PublishPortfolioTotals(t domain.PortfolioTotals) {
	for _, s := range m {
		s.PublishPortfolioTotals(t)
	}
}
