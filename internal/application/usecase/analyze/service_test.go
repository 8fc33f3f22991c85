package analyze

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"loanperf/internal/application/cache"
	"loanperf/internal/application/port"
	"loanperf/internal/application/ratelimit"
	"loanperf/internal/application/throttle"
	"loanperf/internal/domain"
)

type fakeSource struct {
	positions []domain.Position
	excluded  map[string]bool
}

func (f *fakeSource) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return f.positions, nil
}

func (f *fakeSource) IsExcluded(p domain.Position) bool {
	return f.excluded[p.ID]
}

type fakePrices struct {
	mu           sync.Mutex
	current      map[string]float64
	currentErrs  []error // consumed one per call, then success
	historical   float64
	histErrs     []error
	currentCalls int
	histCalls    int
}

func (f *fakePrices) FetchCurrentPrices(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	if len(f.currentErrs) > 0 {
		err := f.currentErrs[0]
		f.currentErrs = f.currentErrs[1:]
		return nil, err
	}
	return f.current, nil
}

func (f *fakePrices) FetchHistoricalPrice(ctx context.Context, date time.Time, currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histCalls++
	if len(f.histErrs) > 0 {
		err := f.histErrs[0]
		f.histErrs = f.histErrs[1:]
		return 0, err
	}
	return f.historical, nil
}

type fakeSink struct {
	mu        sync.Mutex
	loading   []string
	results   map[string]domain.PerformanceResult
	errored   map[string]string
	throttled []string
	totals    []domain.PortfolioTotals
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		results: make(map[string]domain.PerformanceResult),
		errored: make(map[string]string),
	}
}

func (f *fakeSink) PublishLoading(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = append(f.loading, id)
}

func (f *fakeSink) PublishResult(id string, res domain.PerformanceResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = res
}

func (f *fakeSink) PublishError(id string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[id] = reason
}

func (f *fakeSink) PublishThrottled(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throttled = append(f.throttled, id)
}

func (f *fakeSink) PublishPortfolioTotals(t domain.PortfolioTotals) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals = append(f.totals, t)
}

func (f *fakeSink) lastTotals() domain.PortfolioTotals {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.totals) == 0 {
		return domain.PortfolioTotals{}
	}
	return f.totals[len(f.totals)-1]
}

type fakeRepo struct {
	mu         sync.Mutex
	results    []domain.Item
	historical []port.HistoricalPrice
}

func (f *fakeRepo) SaveResult(ctx context.Context, it domain.Item, ts int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, it)
	return nil
}

func (f *fakeRepo) SaveTotals(ctx context.Context, ts int64, t domain.PortfolioTotals) error {
	return nil
}

func (f *fakeRepo) SaveHistoricalPrice(ctx context.Context, dateKey, currency string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historical = append(f.historical, port.HistoricalPrice{DateKey: dateKey, Currency: currency, Price: price})
	return nil
}

func (f *fakeRepo) LoadHistoricalPrices(ctx context.Context) ([]port.HistoricalPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historical, nil
}

func (f *fakeRepo) Close() error { return nil }

func testPosition() domain.Position {
	return domain.Position{
		ID:                 "loan-1",
		Currency:           "EUR",
		Principal:          10000,
		AnnualRatePercent:  12.5,
		ReferenceDate:      time.Date(2024, 11, 24, 0, 0, 0, 0, time.UTC),
		CollateralQuantity: 0.25,
	}
}

func newTestService(src *fakeSource, prices *fakePrices, sink *fakeSink, cooldown time.Duration) (*Service, *fakeRepo) {
	repo := &fakeRepo{}
	s := NewService(ServiceDeps{
		Source:      src,
		Prices:      prices,
		Cache:       cache.New(15 * time.Minute),
		Throttler:   throttle.New(nil),
		Coordinator: ratelimit.New(cooldown),
		Sink:        sink,
		Repo:        repo,
		ItemDelay:   time.Millisecond,
	})
	s.sleep = func(time.Duration) {}
	return s, repo
}

func TestEndToEndResult(t *testing.T) {
	src := &fakeSource{positions: []domain.Position{testPosition()}}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, repo := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)

	res, ok := sink.results["loan-1"]
	if !ok {
		t.Fatalf("no result published, errors: %v", sink.errored)
	}
	if res.BTCValueChange != 5000 {
		t.Errorf("btcValueChange = %v, want 5000", res.BTCValueChange)
	}
	if res.InterestCost != 1250 {
		t.Errorf("interestCost = %v, want 1250", res.InterestCost)
	}
	if res.NetResult != 3750 {
		t.Errorf("netResult = %v, want 3750", res.NetResult)
	}
	if !res.Outperforming {
		t.Error("outperforming = false, want true")
	}

	it, _ := s.Item("loan-1")
	if it.State != domain.StateResult {
		t.Errorf("state = %v, want result", it.State)
	}

	totals := sink.lastTotals()
	if totals.TotalNet != 3750 || totals.AnalyzedCount != 1 || totals.TotalPositions != 1 {
		t.Errorf("totals = %+v", totals)
	}

	if len(repo.results) != 1 {
		t.Errorf("persisted %d results, want 1", len(repo.results))
	}
	if len(repo.historical) != 1 || repo.historical[0].DateKey != "24-11-2024" {
		t.Errorf("persisted historical = %v", repo.historical)
	}
}

func TestDuplicateSubmissionIsNoOp(t *testing.T) {
	src := &fakeSource{positions: []domain.Position{testPosition()}}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)
	s.process(context.Background(), testPosition(), false)

	if prices.currentCalls != 1 || prices.histCalls != 1 {
		t.Errorf("fetch calls = %d/%d, want 1/1", prices.currentCalls, prices.histCalls)
	}
	if len(sink.loading) != 1 {
		t.Errorf("loading published %d times, want 1", len(sink.loading))
	}
}

func TestCurrentCacheSharedAcrossItems(t *testing.T) {
	a := testPosition()
	b := testPosition()
	b.ID = "loan-2"
	b.ReferenceDate = a.ReferenceDate // same date+currency hits the historical cache too

	src := &fakeSource{positions: []domain.Position{a, b}}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), a, false)
	s.process(context.Background(), b, false)

	if prices.currentCalls != 1 {
		t.Errorf("current fetched %d times for two items, want 1", prices.currentCalls)
	}
	if prices.histCalls != 1 {
		t.Errorf("historical fetched %d times for same (date,currency), want 1", prices.histCalls)
	}
}

func TestZeroHistoricalPriceFails(t *testing.T) {
	src := &fakeSource{}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 0}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)

	it, _ := s.Item("loan-1")
	if it.State != domain.StateFailed {
		t.Fatalf("state = %v, want failed", it.State)
	}
	if _, published := sink.results["loan-1"]; published {
		t.Error("zero historical price must never publish a result")
	}
}

func TestInvalidPositionFails(t *testing.T) {
	pos := testPosition()
	pos.Currency = ""

	src := &fakeSource{}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), pos, false)

	it, _ := s.Item("loan-1")
	if it.State != domain.StateFailed {
		t.Fatalf("state = %v, want failed", it.State)
	}
	if prices.currentCalls != 0 {
		t.Error("invalid position must not reach the provider")
	}
}

func TestThrottleParksAndResubmits(t *testing.T) {
	src := &fakeSource{}
	prices := &fakePrices{
		current:     map[string]float64{"eur": 90000},
		historical:  60000,
		currentErrs: []error{&port.UpstreamError{StatusCode: 429, Body: "too many requests"}},
	}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, 30*time.Millisecond)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)

	it, _ := s.Item("loan-1")
	if it.State != domain.StateAwaitingRetry {
		t.Fatalf("state after throttle = %v, want awaiting_retry", it.State)
	}
	if len(sink.throttled) != 1 {
		t.Fatalf("throttled published %d times, want 1", len(sink.throttled))
	}

	// cooldown expiry hands the pending set back for resubmission
	select {
	case ids := <-s.retries:
		s.resubmit(context.Background(), ids)
	case <-time.After(time.Second):
		t.Fatal("coordinator never resolved")
	}

	it, _ = s.Item("loan-1")
	if it.State != domain.StateResult {
		t.Fatalf("state after retry = %v, want result", it.State)
	}
	if s.deps.Coordinator.PendingCount() != 0 {
		t.Error("pending set should be empty after resolution")
	}
}

func TestUpstreamErrorIsTerminal(t *testing.T) {
	src := &fakeSource{}
	prices := &fakePrices{
		current:     map[string]float64{"eur": 90000},
		historical:  60000,
		currentErrs: []error{errors.New("invalid json")},
	}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)

	it, _ := s.Item("loan-1")
	if it.State != domain.StateFailed {
		t.Fatalf("state = %v, want failed", it.State)
	}
	if s.deps.Coordinator.Limited() {
		t.Error("plain upstream error must not trigger the coordinator")
	}
}

func TestResetReturnsToQueued(t *testing.T) {
	src := &fakeSource{}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	s.process(context.Background(), testPosition(), false)
	s.Reset("loan-1")

	it, _ := s.Item("loan-1")
	if it.State != domain.StateQueued || it.Result != nil || it.Reason != "" {
		t.Errorf("after reset: %+v, want clean queued item", it)
	}

	// forced reprocessing goes through the full pipeline again
	s.process(context.Background(), testPosition(), false)
	it, _ = s.Item("loan-1")
	if it.State != domain.StateResult {
		t.Errorf("state after reprocess = %v, want result", it.State)
	}
}

func TestRunSkipsExcludedPositions(t *testing.T) {
	a := testPosition()
	b := testPosition()
	b.ID = "loan-2"

	src := &fakeSource{
		positions: []domain.Position{a, b},
		excluded:  map[string]bool{"loan-2": true},
	}
	prices := &fakePrices{current: map[string]float64{"eur": 90000}, historical: 60000}
	sink := newFakeSink()
	s, _ := newTestService(src, prices, sink, time.Minute)
	defer s.deps.Coordinator.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if it, ok := s.Item("loan-1"); ok && it.State.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loan-1 never reached a terminal state")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if _, ok := s.Item("loan-2"); ok {
		t.Error("excluded position must never be submitted")
	}
	totals := sink.lastTotals()
	if totals.TotalPositions != 1 {
		t.Errorf("totalPositions = %d, want 1 (excluded never counts)", totals.TotalPositions)
	}
}
