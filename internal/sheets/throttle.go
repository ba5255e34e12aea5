package sheets

// throttle.go bounds how hard a batch hits a sheet source.
//
// At most maxConcurrent fetches run at once, and consecutive fetches start
// at least minInterval apart, which keeps published-page hosts from rate
// limiting a long batch. A fetch that cannot get a slot within maxWait
// fails with ErrThrottled.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// ErrThrottled is returned when no fetch slot frees up within the wait limit.
var ErrThrottled = errors.New("too many concurrent sheet fetches")

// DefaultMaxConcurrentFetches is the default limit for parallel fetches.
const DefaultMaxConcurrentFetches = 4

// DefaultMaxWait is how long to wait for a slot before failing.
const DefaultMaxWait = time.Minute

// Throttle limits concurrent fetches and paces their start times.
type Throttle struct {
	semaphore   chan struct{}
	maxWait     time.Duration
	minInterval time.Duration

	mu     sync.Mutex
	active int
	next   time.Time
}

// NewThrottle creates a throttle. minInterval may be zero.
func NewThrottle(maxConcurrent int, minInterval, maxWait time.Duration) *Throttle {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Throttle{
		semaphore:   make(chan struct{}, maxConcurrent),
		maxWait:     maxWait,
		minInterval: minInterval,
	}
}

// Acquire takes a fetch slot and waits out the pacing interval.
// The caller must Release after a nil return.
func (t *Throttle) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, t.maxWait)
	defer cancel()

	select {
	case t.semaphore <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrThrottled
	}

	t.mu.Lock()
	t.active++
	now := time.Now()
	start := now
	if t.next.After(now) {
		start = t.next
	}
	t.next = start.Add(t.minInterval)
	t.mu.Unlock()

	if delay := time.Until(start); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			t.Release()
			return ctx.Err()
		}
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (t *Throttle) Release() {
	t.mu.Lock()
	t.active--
	t.mu.Unlock()
	<-t.semaphore
}

// ActiveCount returns the number of fetches holding a slot.
func (t *Throttle) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Available returns the number of free slots.
func (t *Throttle) Available() int {
	return cap(t.semaphore) - len(t.semaphore)
}

// WaitForDrain blocks until no fetch holds a slot or ctx ends.
func (t *Throttle) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if t.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ThrottleStatus is a snapshot for monitoring.
type ThrottleStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current throttle state.
func (t *Throttle) Status() ThrottleStatus {
	return ThrottleStatus{
		Active:        t.ActiveCount(),
		Available:     t.Available(),
		MaxConcurrent: cap(t.semaphore),
	}
}

// Throttled wraps src so every Fetch goes through t.
func Throttled(src Source, t *Throttle) Source {
	return throttledSource{src: src, t: t}
}

type throttledSource struct {
	src Source
	t   *Throttle
}

func (s throttledSource) Fetch(ctx context.Context, sh Sheet) (grid.Grid, error) {
	if err := s.t.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.t.Release()
	return s.src.Fetch(ctx, sh)
}
