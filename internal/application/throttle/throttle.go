// Package throttle spaces outbound provider calls and sniffs
// throttling evidence out of ambiguous failures.
package throttle

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// MinSpacing is courtesy spacing between any two outbound calls,
	// not the real rate-limit defense.
	MinSpacing = 50 * time.Millisecond

	windowSize = 10

	burstWindow = 30 * time.Second
	burstMax    = 5

	heuristicWindow = 60 * time.Second
	heuristicMax    = 3
)

// defaultIndicators are substrings that mark a provider failure as
// disguised throttling. Transport-level failures ("failed to fetch",
// "cors policy") are included because the provider frequently reports
// throttling that way instead of an explicit 429.
var defaultIndicators = []string{
	"429",
	"too many requests",
	"rate limit",
	"quota exceeded",
	"failed to fetch",
	"network error",
	"cors policy",
}

// IndicatorFunc decides whether a single call result looks throttled.
// Pluggable so the indicator list can be tuned without touching
// pipeline logic.
type IndicatorFunc func(err error, statusCode int) bool

// DefaultIndicators matches an explicit HTTP 429 or any known
// throttle-ish substring in the error text.
func DefaultIndicators() IndicatorFunc {
	return Indicators(defaultIndicators...)
}

// Indicators builds an IndicatorFunc from a custom substring list.
func Indicators(subs ...string) IndicatorFunc {
	lowered := make([]string, len(subs))
	for i, s := range subs {
		lowered[i] = strings.ToLower(s)
	}
	return func(err error, statusCode int) bool {
		if statusCode == 429 {
			return true
		}
		if err == nil {
			return false
		}
		msg := strings.ToLower(err.Error())
		for _, s := range lowered {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// Throttler enforces minimum inter-request spacing and keeps a rolling
// window of recent request timestamps for burst heuristics.
type Throttler struct {
	limiter   *rate.Limiter
	indicator IndicatorFunc

	mu     sync.Mutex
	recent []time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func New(indicator IndicatorFunc) *Throttler {
	if indicator == nil {
		indicator = DefaultIndicators()
	}
	return &Throttler{
		limiter:   rate.NewLimiter(rate.Every(MinSpacing), 1),
		indicator: indicator,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Acquire blocks until the minimum spacing since the previous call has
// elapsed, then records the request timestamp. The spacing sleep
// always completes; it carries no cancellation semantics.
func (t *Throttler) Acquire() {
	r := t.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		t.sleep(d)
	}
	t.record(t.now())
}

func (t *Throttler) record(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = append(t.recent, ts)
	if len(t.recent) > windowSize {
		t.recent = t.recent[len(t.recent)-windowSize:]
	}
}

func (t *Throttler) callsWithin(d time.Duration) int {
	cutoff := t.now().Add(-d)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, ts := range t.recent {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// TooFast flags a burst: more than 5 of the last 10 requests landed in
// the trailing 30 seconds. Fires even without any provider signal.
func (t *Throttler) TooFast() bool {
	return t.callsWithin(burstWindow) > burstMax
}

// Suspect scans one failed call for throttling evidence: the indicator
// predicate, a tight recent call history, or a flagged burst. Known to
// misfire under legitimate light bursts; callers treat it as a
// transient signal, never a terminal one.
func (t *Throttler) Suspect(err error, statusCode int) bool {
	if t.indicator(err, statusCode) {
		return true
	}
	if t.callsWithin(heuristicWindow) > heuristicMax {
		return true
	}
	return t.TooFast()
}
