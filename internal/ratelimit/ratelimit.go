// Package ratelimit implements sliding-window request limiting over a pluggable store.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidWindow = errors.New("invalid window")
	ErrKeyRequired   = errors.New("key is required")
	ErrStoreRequired = errors.New("store is required")
)

// Store keeps hit timestamps per key.
type Store interface {
	// RecordIfAllowed atomically records a hit if fewer than limit hits fall within window.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int, error)
	// Release removes one hit recorded at exactly at, if there is one.
	Release(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Result contains the result of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter allows at most limit hits per key within a sliding window.
type Limiter struct {
	name   string
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a limiter. name namespaces its keys inside a shared store.
func New(name string, store Store, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	return &Limiter{
		name:   name,
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

func (l *Limiter) Name() string {
	return l.name
}

// Allow consumes one slot for key if one is free.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := l.now()
	allowed, count, err := l.store.RecordIfAllowed(ctx, l.key(key), now, l.window, l.limit)
	if err != nil {
		return nil, err
	}

	return l.result(allowed, count, now), nil
}

// Reserve consumes a slot like Allow and returns a func that gives it back.
// Callers that only want to count some outcomes reserve up front and release
// the rest, so concurrent requests cannot all slip past a nearly full window.
func (l *Limiter) Reserve(ctx context.Context, key string) (*Result, func(context.Context) error, error) {
	if key == "" {
		return nil, nil, ErrKeyRequired
	}

	now := l.now()
	k := l.key(key)
	allowed, count, err := l.store.RecordIfAllowed(ctx, k, now, l.window, l.limit)
	if err != nil {
		return nil, nil, err
	}

	release := func(context.Context) error { return nil }
	if allowed {
		release = func(ctx context.Context) error {
			return l.store.Release(ctx, k, now)
		}
	}

	return l.result(allowed, count, now), release, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return l.store.Delete(ctx, l.key(key))
}

func (l *Limiter) key(key string) string {
	return "rl:" + l.name + ":" + key
}

func (l *Limiter) result(allowed bool, count int, now time.Time) *Result {
	return &Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: max(0, l.limit-count),
		ResetAt:   now.Add(l.window),
	}
}
