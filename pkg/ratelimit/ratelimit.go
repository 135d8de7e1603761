package ratelimit

import (
	"context"
	"time"
)

// Clock abstracts time so the window can be driven by tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Limiter admits at most Limit operations in any trailing Window. It is a
// sliding window, not a token bucket: bursts up to Limit are allowed as long
// as the window has room.
//
// One Limiter must be shared by every caller of the quota-constrained API.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock
	onWait func(time.Duration)

	// lock is a one-slot semaphore guarding grants. Waiting for it honours
	// context cancellation, which sync.Mutex cannot.
	lock   chan struct{}
	grants []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithWaitHook registers a callback invoked with every suspension duration.
func WithWaitHook(fn func(time.Duration)) Option {
	return func(l *Limiter) {
		l.onWait = fn
	}
}

// NewLimiter creates a limiter admitting limit operations per window.
// If limit or window is <= 0, the limiter does not block.
func NewLimiter(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		clock:  RealClock,
		lock:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.limit > 0 {
		l.grants = make([]time.Time, 0, l.limit)
	}
	return l
}

// Acquire blocks until one more operation fits in the window, then records
// it. The lock is held while suspended, so callers are admitted in the order
// they obtained the lock. On cancellation no grant is recorded.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.limit <= 0 || l.window <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.lock <- struct{}{}:
	}
	defer func() { <-l.lock }()

	now := l.clock.Now()
	l.prune(now)

	if len(l.grants) >= l.limit {
		wait := l.window - now.Sub(l.grants[0])
		if wait > 0 {
			if l.onWait != nil {
				l.onWait(wait)
			}
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = l.clock.Now()
		l.prune(now)
	}

	l.grants = append(l.grants, now)
	return nil
}

// InWindow returns the number of grants inside the current window.
func (l *Limiter) InWindow() int {
	l.lock <- struct{}{}
	defer func() { <-l.lock }()
	l.prune(l.clock.Now())
	return len(l.grants)
}

// prune drops grants older than the window. Grants are appended in time
// order so the expired ones are always a prefix.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.grants) && now.Sub(l.grants[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}
