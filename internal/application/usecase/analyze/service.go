// Package analyze drives each position through the fetch pipeline:
// acquire current price, acquire historical price, compute performance,
// publish. Throttled fetches park the item with the rate-limit
// coordinator for one shared retry instead of failing it.
package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"loanperf/internal/application/cache"
	"loanperf/internal/application/port"
	"loanperf/internal/application/ratelimit"
	"loanperf/internal/application/throttle"
	"loanperf/internal/domain"
)

// DefaultItemDelay spaces consecutive item fetches within one pass, on
// top of the throttler's own inter-request spacing.
const DefaultItemDelay = time.Second

type ServiceDeps struct {
	Source      port.PositionSource
	Prices      port.PriceService
	Cache       *cache.PriceCache
	Throttler   *throttle.Throttler
	Coordinator *ratelimit.Coordinator
	Sink        port.Sink
	Repo        port.Repository
	ItemDelay   time.Duration
}

// Service is the per-item state machine plus the single worker that
// feeds it. One position yields at most one in-flight item at a time.
type Service struct {
	deps ServiceDeps

	mu    sync.Mutex
	items map[string]*item
	order []string

	retries chan []string
	sleep   func(time.Duration)
}

func NewService(deps ServiceDeps) *Service {
	if deps.ItemDelay <= 0 {
		deps.ItemDelay = DefaultItemDelay
	}
	s := &Service{
		deps:    deps,
		items:   make(map[string]*item),
		retries: make(chan []string, 16),
		sleep:   time.Sleep,
	}
	deps.Coordinator.OnResolve(s.enqueueRetries)
	return s
}

// enqueueRetries hands the coordinator's drained pending set back to
// the worker. Runs on the cooldown timer goroutine, so it never
// processes items itself.
func (s *Service) enqueueRetries(ids []string) {
	if len(ids) == 0 {
		return
	}
	select {
	case s.retries <- ids:
		log.Info().Int("items", len(ids)).Msg("cooldown over, resubmitting parked items")
	default:
		log.Warn().Int("items", len(ids)).Msg("retry queue full, dropping resubmission")
	}
}

// Run performs one pass over the position source, then stays alive to
// resubmit items the coordinator hands back. Stopping means no new
// items are fed; in-flight provider calls run to completion.
func (s *Service) Run(ctx context.Context) error {
	positions, err := s.deps.Source.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	first := true
	for _, pos := range positions {
		if s.deps.Source.IsExcluded(pos) {
			log.Debug().Str("id", pos.ID).Msg("position excluded, skipping")
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			s.sleep(s.deps.ItemDelay)
		}
		first = false
		s.process(ctx, pos, false)
	}

	for {
		select {
		case <-ctx.Done():
			s.deps.Coordinator.Stop()
			return ctx.Err()
		case ids := <-s.retries:
			s.resubmit(ctx, ids)
		}
	}
}

// resubmit re-runs parked items after a cooldown, spaced like a normal
// pass.
func (s *Service) resubmit(ctx context.Context, ids []string) {
	for i, id := range ids {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		it, ok := s.items[id]
		var pos domain.Position
		if ok {
			pos = it.pos
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		if i > 0 {
			s.sleep(s.deps.ItemDelay)
		}
		s.process(ctx, pos, true)
	}
}

// process drives one position through the pipeline. viaRetry marks the
// coordinator's resubmission path, the only one allowed past the
// processed marker (and only out of AwaitingRetry).
func (s *Service) process(ctx context.Context, pos domain.Position, viaRetry bool) {
	s.mu.Lock()
	it, ok := s.items[pos.ID]
	if !ok {
		it = &item{pos: pos, state: domain.StateQueued}
		s.items[pos.ID] = it
		s.order = append(s.order, pos.ID)
	}
	if it.processed && !(viaRetry && it.state == domain.StateAwaitingRetry) {
		s.mu.Unlock()
		log.Debug().Str("id", pos.ID).Str("state", it.state.String()).Msg("duplicate submission ignored")
		return
	}
	it.processed = true
	it.state = domain.StateLoading
	it.result = nil
	it.reason = ""
	s.mu.Unlock()

	s.deps.Sink.PublishLoading(pos.ID)
	s.publishTotals()

	if err := pos.Validate(); err != nil {
		s.fail(pos.ID, fmt.Sprintf("validation: %v", err))
		return
	}

	currentPrice, err := s.currentPrice(ctx, pos.Currency)
	if err != nil {
		s.settleFetchError(pos.ID, err)
		return
	}

	historicalPrice, err := s.historicalPrice(ctx, pos.ReferenceDate, pos.Currency)
	if err != nil {
		s.settleFetchError(pos.ID, err)
		return
	}

	res, err := domain.ComputePerformance(pos.Principal, pos.AnnualRatePercent, historicalPrice, currentPrice)
	if err != nil {
		s.fail(pos.ID, fmt.Sprintf("computation: %v", err))
		return
	}

	s.mu.Lock()
	it.state = domain.StateResult
	it.result = &res
	snap := it.snapshot()
	s.mu.Unlock()

	s.deps.Sink.PublishResult(pos.ID, res)
	if err := s.deps.Repo.SaveResult(ctx, snap, time.Now().UnixMilli()); err != nil {
		log.Warn().Err(err).Str("id", pos.ID).Msg("persist result failed")
	}
	s.publishTotals()

	log.Info().
		Str("id", pos.ID).
		Float64("net", res.NetResult).
		Bool("outperforming", res.Outperforming).
		Msg("position analyzed")
}

// currentPrice returns the current price for one currency, consulting
// the shared cache slot before going to the provider.
func (s *Service) currentPrice(ctx context.Context, currency string) (float64, error) {
	prices, ok := s.deps.Cache.Current()
	if !ok {
		s.deps.Throttler.Acquire()
		var err error
		prices, err = s.deps.Prices.FetchCurrentPrices(ctx)
		if err != nil {
			return 0, err
		}
		s.deps.Cache.SetCurrent(prices)
	}

	p, there := prices[strings.ToLower(currency)]
	if !there {
		return 0, fmt.Errorf("currency %q not quoted by provider", currency)
	}
	return p, nil
}

// historicalPrice returns the price on the reference date, using the
// never-expiring historical cache as the sole deduplication point.
// Newly fetched facts are persisted so later runs start warm.
func (s *Service) historicalPrice(ctx context.Context, date time.Time, currency string) (float64, error) {
	if p, ok := s.deps.Cache.Historical(date, currency); ok {
		return p, nil
	}

	s.deps.Throttler.Acquire()
	p, err := s.deps.Prices.FetchHistoricalPrice(ctx, date, currency)
	if err != nil {
		return 0, err
	}
	s.deps.Cache.SetHistorical(date, currency, p)
	if err := s.deps.Repo.SaveHistoricalPrice(ctx, cache.DateKey(date), strings.ToLower(currency), p); err != nil {
		log.Warn().Err(err).Msg("persist historical price failed")
	}
	return p, nil
}

// settleFetchError decides whether a provider failure parks the item
// for retry (throttling, explicit or heuristic) or fails it
// terminally. Failures never leak into other queued items.
func (s *Service) settleFetchError(id string, err error) {
	if s.deps.Throttler.Suspect(err, port.StatusCode(err)) {
		s.mu.Lock()
		if it, ok := s.items[id]; ok {
			it.state = domain.StateAwaitingRetry
		}
		s.mu.Unlock()

		s.deps.Coordinator.Park(id)
		s.deps.Sink.PublishThrottled(id)
		s.publishTotals()

		log.Warn().Str("id", id).Dur("cooldown_left", s.deps.Coordinator.Remaining()).
			Msg("throttled, item parked for retry")
		return
	}
	s.fail(id, fmt.Sprintf("upstream: %v", err))
}

func (s *Service) fail(id, reason string) {
	s.mu.Lock()
	it, ok := s.items[id]
	var snap domain.Item
	if ok {
		it.state = domain.StateFailed
		it.result = nil
		it.reason = reason
		snap = it.snapshot()
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.deps.Sink.PublishError(id, reason)
	if err := s.deps.Repo.SaveResult(context.Background(), snap, time.Now().UnixMilli()); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("persist failure failed")
	}
	s.publishTotals()

	log.Warn().Str("id", id).Str("reason", reason).Msg("position failed")
}

// publishTotals recomputes portfolio totals from scratch from the
// currently published item states and pushes them out. Called after
// every item transition; safe to call redundantly.
func (s *Service) publishTotals() {
	totals := domain.Aggregate(s.Items(), s.deps.Source.IsExcluded)
	s.deps.Sink.PublishPortfolioTotals(totals)
	if err := s.deps.Repo.SaveTotals(context.Background(), time.Now().UnixMilli(), totals); err != nil {
		log.Warn().Err(err).Msg("persist totals failed")
	}
}

// WarmHistoricalCache seeds the historical tier from persisted facts.
func (s *Service) WarmHistoricalCache(ctx context.Context) {
	facts, err := s.deps.Repo.LoadHistoricalPrices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load persisted historical prices failed")
		return
	}
	for _, f := range facts {
		s.deps.Cache.SeedHistorical(f.DateKey, f.Currency, f.Price)
	}
	if len(facts) > 0 {
		log.Info().Int("prices", len(facts)).Msg("historical cache warmed from storage")
	}
}
