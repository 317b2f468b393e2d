package fetcher

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum spacing between requests to the same host.
// Every caller sharing a Throttle shares the per-host "last request" time.
type Throttle struct {
	delay time.Duration
	now   func() time.Time
	sleep Sleeper

	mu    sync.Mutex
	hosts map[string]*hostThrottle
}

type hostThrottle struct {
	mu        sync.Mutex
	lastFetch time.Time
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.now = now }
}

// WithThrottleSleeper replaces the blocking sleep.
func WithThrottleSleeper(s Sleeper) ThrottleOption {
	return func(t *Throttle) { t.sleep = s }
}

// NewThrottle creates a Throttle with the given per-host delay.
func NewThrottle(delay time.Duration, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		delay: delay,
		now:   time.Now,
		sleep: SleepContext,
		hosts: make(map[string]*hostThrottle),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Wait blocks until a request to host may be sent, then records it.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	if t == nil || t.delay <= 0 {
		return nil
	}

	t.mu.Lock()
	h, ok := t.hosts[host]
	if !ok {
		h = &hostThrottle{}
		t.hosts[host] = h
	}
	t.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastFetch.IsZero() {
		if elapsed := t.now().Sub(h.lastFetch); elapsed < t.delay {
			if err := t.sleep(ctx, t.delay-elapsed); err != nil {
				return err
			}
		}
	}
	h.lastFetch = t.now()
	return nil
}
