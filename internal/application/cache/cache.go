// Package cache holds the two-tier price cache: a single shared
// current-price slot with a short expiry, and an unbounded historical
// map that never expires.
package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultCurrentTTL is how long one current-price fetch stays valid.
const DefaultCurrentTTL = 15 * time.Minute

// DateKey formats a date the way the historical tier (and the
// provider's history endpoint) keys it.
func DateKey(date time.Time) string {
	return date.Format("02-01-2006")
}

type histKey struct {
	date     string
	currency string
}

// PriceCache deduplicates provider calls. The current slot is shared
// across all currencies returned by one call; historical entries are
// immutable facts and accumulate for the process lifetime.
type PriceCache struct {
	mu sync.Mutex

	current   map[string]float64
	fetchedAt time.Time
	ttl       time.Duration

	historical map[histKey]float64

	now func() time.Time
}

func New(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultCurrentTTL
	}
	return &PriceCache{
		ttl:        ttl,
		historical: make(map[histKey]float64),
		now:        time.Now,
	}
}

// NewWithClock is for tests that need to drive the expiry window.
func NewWithClock(ttl time.Duration, now func() time.Time) *PriceCache {
	c := New(ttl)
	c.now = now
	return c
}

// Current returns the shared current-price map if it is still inside
// the expiry window.
func (c *PriceCache) Current() (map[string]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentValidLocked() {
		return nil, false
	}
	out := make(map[string]float64, len(c.current))
	for k, v := range c.current {
		out[k] = v
	}
	return out, true
}

// SetCurrent overwrites the single slot unconditionally and stamps
// fetchedAt. No merging with a previous fetch.
func (c *PriceCache) SetCurrent(prices map[string]float64) {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[strings.ToLower(k)] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = cp
	c.fetchedAt = c.now()
}

// CurrentValid reports whether the current slot is fresh.
func (c *PriceCache) CurrentValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentValidLocked()
}

func (c *PriceCache) currentValidLocked() bool {
	if c.current == nil {
		return false
	}
	return c.now().Sub(c.fetchedAt) < c.ttl
}

// Historical returns a cached historical price. Callers must check
// here before issuing a network call; this lookup is the sole
// deduplication point for historical requests.
func (c *PriceCache) Historical(date time.Time, currency string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.historical[histKey{DateKey(date), strings.ToLower(currency)}]
	return v, ok
}

// SetHistorical records a historical price. Write-once in practice;
// rewriting the same value is a no-op.
func (c *PriceCache) SetHistorical(date time.Time, currency string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historical[histKey{DateKey(date), strings.ToLower(currency)}] = price
}

// SeedHistorical preloads persisted entries, keyed by the provider
// date form and lowercase currency.
func (c *PriceCache) SeedHistorical(dateKey, currency string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historical[histKey{dateKey, strings.ToLower(currency)}] = price
}

// HistoricalLen reports how many historical facts are cached.
func (c *PriceCache) HistoricalLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.historical)
}
