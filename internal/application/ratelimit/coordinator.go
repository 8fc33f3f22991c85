// Package ratelimit holds the process-wide throttling state machine:
// Normal -> Limited(cooldown) -> Normal, with a bounded set of items
// parked for resubmission while limited.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultCooldown is how long requests pause after a throttle signal.
const DefaultCooldown = 60 * time.Second

// ResolveFunc receives the full pending set, in registration order,
// exactly once per Limited episode.
type ResolveFunc func(ids []string)

// Coordinator tracks whether the provider is currently throttling.
// Re-triggering while already limited cancels and restarts the
// cooldown (last throttle wins) instead of stacking timers; without
// that, overlapping throttle signals double-resolve the pending set.
type Coordinator struct {
	mu        sync.Mutex
	cooldown  time.Duration
	limited   bool
	limitedAt time.Time
	gen       uint64
	pending   map[string]struct{}
	order     []string
	timer     *time.Timer
	onResolve ResolveFunc

	now func() time.Time
}

func New(cooldown time.Duration) *Coordinator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Coordinator{
		cooldown: cooldown,
		pending:  make(map[string]struct{}),
		now:      time.Now,
	}
}

// OnResolve registers the resolution callback. Wire it before the
// first trigger; the coordinator invokes it outside its own lock.
func (c *Coordinator) OnResolve(f ResolveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResolve = f
}

// Trigger enters (or re-enters) the Limited state and (re)arms the
// cooldown timer.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggerLocked()
}

func (c *Coordinator) triggerLocked() {
	c.limited = true
	c.limitedAt = c.now()
	c.gen++
	gen := c.gen

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cooldown, func() { c.resolve(gen) })
}

// Park registers an item that failed due to throttling, entering the
// Limited state if not already there. The item is resubmitted on
// resolution instead of being failed.
func (c *Coordinator) Park(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, there := c.pending[id]; !there {
		c.pending[id] = struct{}{}
		c.order = append(c.order, id)
	}
	c.triggerLocked()
}

func (c *Coordinator) resolve(gen uint64) {
	c.mu.Lock()
	if !c.limited || gen != c.gen {
		// a later trigger superseded this timer
		c.mu.Unlock()
		return
	}
	c.limited = false
	c.timer = nil
	ids := c.order
	c.order = nil
	c.pending = make(map[string]struct{})
	cb := c.onResolve
	c.mu.Unlock()

	if cb != nil {
		cb(ids)
	}
}

// Limited reports whether the provider is currently considered
// throttled.
func (c *Coordinator) Limited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limited
}

// Remaining exposes the cooldown countdown for observability. Zero
// when not limited. Any display tick belongs to the presentation
// layer, not here.
func (c *Coordinator) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.limited {
		return 0
	}
	left := c.cooldown - c.now().Sub(c.limitedAt)
	if left < 0 {
		return 0
	}
	return left
}

// PendingCount reports how many items await resubmission.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop tears down the armed timer without resolving. Parked items are
// discarded unconsumed; used on shutdown only.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++ // invalidate an already-fired timer racing for the lock
	c.limited = false
	c.order = nil
	c.pending = make(map[string]struct{})
}
