package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveDrainsOnce(t *testing.T) {
	c := New(30 * time.Millisecond)

	var mu sync.Mutex
	var got [][]string
	c.OnResolve(func(ids []string) {
		mu.Lock()
		got = append(got, ids)
		mu.Unlock()
	})

	c.Park("loan-1")
	c.Park("loan-2")
	c.Park("loan-1") // duplicate park is a no-op

	if !c.Limited() {
		t.Fatal("coordinator should be limited after Park")
	}
	if n := c.PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("resolution fired %d times, want exactly once", len(got))
	}
	if len(got[0]) != 2 || got[0][0] != "loan-1" || got[0][1] != "loan-2" {
		t.Errorf("drained ids = %v, want [loan-1 loan-2]", got[0])
	}
	if c.Limited() {
		t.Error("coordinator should be back to normal after resolution")
	}
	if c.PendingCount() != 0 {
		t.Error("pending set should be cleared by resolution")
	}
}

func TestRetriggerRearmsWithoutStacking(t *testing.T) {
	cooldown := 60 * time.Millisecond
	c := New(cooldown)

	var fires int32
	var firedAt atomic.Value
	c.OnResolve(func(ids []string) {
		atomic.AddInt32(&fires, 1)
		firedAt.Store(time.Now())
	})

	c.Trigger()
	time.Sleep(30 * time.Millisecond)
	second := time.Now()
	c.Trigger() // re-enter while limited: cancel + restart, last throttle wins

	time.Sleep(2 * cooldown)

	if n := atomic.LoadInt32(&fires); n != 1 {
		t.Fatalf("resolution fired %d times, want exactly once", n)
	}
	at := firedAt.Load().(time.Time)
	if at.Before(second.Add(cooldown - 10*time.Millisecond)) {
		t.Errorf("resolution fired %v after second trigger, want >= %v", at.Sub(second), cooldown)
	}
}

func TestRemainingCountdown(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()
	clock := time.Date(2024, 11, 24, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	if c.Remaining() != 0 {
		t.Error("Remaining should be zero while normal")
	}

	c.Trigger()
	clock = clock.Add(20 * time.Second)
	if got := c.Remaining(); got != 40*time.Second {
		t.Errorf("Remaining = %v, want 40s", got)
	}

	clock = clock.Add(2 * time.Minute)
	if got := c.Remaining(); got != 0 {
		t.Errorf("Remaining past cooldown = %v, want 0", got)
	}
}

func TestStopSuppressesResolution(t *testing.T) {
	c := New(20 * time.Millisecond)

	var fires int32
	c.OnResolve(func(ids []string) { atomic.AddInt32(&fires, 1) })

	c.Park("loan-1")
	c.Stop()

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fires); n != 0 {
		t.Errorf("resolution fired %d times after Stop, want none", n)
	}
}
