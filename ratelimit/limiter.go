// Package ratelimit implements a fixed-window rate limiter: a named limiter
// registry, Limit factories, a testable clock, and a Store contract with
// memory and cache-backed implementations.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Record is the persisted shape of one bucket.
type Record struct {
	Key     string
	Hits    int
	ResetAt int64 // unix seconds
}

// Expired reports whether the record's window has elapsed as of now.
func (r *Record) Expired(now time.Time) bool {
	return r.ResetAt <= now.Unix()
}

// Limit describes one window: MaxAttempts hits permitted per Decay, scoped
// to Key. An Unlimited limit bypasses tracking entirely.
type Limit struct {
	MaxAttempts int
	Decay       time.Duration
	Key         string
	Unlimited   bool
}

// PerMinute returns a Limit allowing maxAttempts hits per minute.
func PerMinute(maxAttempts int) Limit { return Limit{MaxAttempts: maxAttempts, Decay: time.Minute} }

// PerHour returns a Limit allowing maxAttempts hits per hour.
func PerHour(maxAttempts int) Limit { return Limit{MaxAttempts: maxAttempts, Decay: time.Hour} }

// PerDay returns a Limit allowing maxAttempts hits per day.
func PerDay(maxAttempts int) Limit { return Limit{MaxAttempts: maxAttempts, Decay: 24 * time.Hour} }

// Custom returns a Limit with an arbitrary decay window.
func Custom(maxAttempts int, decay time.Duration) Limit {
	return Limit{MaxAttempts: maxAttempts, Decay: decay}
}

// None returns a Limit that bypasses rate limiting entirely.
func None() Limit { return Limit{Unlimited: true} }

// By returns a copy of the Limit scoped to key (e.g. an IP address or user
// id), following the builder style the middleware layer composes limiters
// with.
func (l Limit) By(key string) Limit {
	l.Key = key
	return l
}

// NamedFunc resolves a per-request Limit from request context, letting
// route middleware register limiters like "per IP" or "per user" under a
// name.
type NamedFunc func(ctx context.Context) Limit

// Registry maps limiter names to resolver functions.
type Registry struct {
	limiters map[string]NamedFunc
}

// NewRegistry creates an empty named-limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]NamedFunc)}
}

// Register adds a named limiter resolver.
func (r *Registry) Register(name string, fn NamedFunc) {
	r.limiters[name] = fn
}

// Resolve looks up a named limiter and evaluates it against ctx.
func (r *Registry) Resolve(ctx context.Context, name string) (Limit, bool) {
	fn, ok := r.limiters[name]
	if !ok {
		return Limit{}, false
	}
	return fn(ctx), true
}

// RateLimiter implements the fixed-window algorithm against a pluggable
// Store.
type RateLimiter struct {
	store Store
	now   func() time.Time
}

// New creates a RateLimiter backed by store, using time.Now by default.
func New(store Store) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// SetClock overrides the limiter's notion of "now", required for
// deterministic window-expiry tests. A MemoryStore or CacheStore backing
// the limiter is switched to the same clock, so its expiry checks agree.
func (r *RateLimiter) SetClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
		switch s := r.store.(type) {
		case *MemoryStore:
			s.mu.Lock()
			s.now = clock
			s.mu.Unlock()
		case *CacheStore:
			s.now = clock
		}
	}
}

// Hit records one attempt against key, creating a fresh window (hits=1) if
// no record exists or the prior window has expired, otherwise incrementing
// within the existing window. Returns the post-increment hit count and the
// window's reset time. Store write failures are fail-closed: the hit is
// not considered recorded and the error is returned.
func (r *RateLimiter) Hit(ctx context.Context, key string, decay time.Duration) (int, time.Time, error) {
	now := r.now()
	rec, found, _ := r.get(ctx, key, now)

	if !found {
		resetAt := now.Add(decay)
		if err := r.store.Set(ctx, key, 1, resetAt.Unix()); err != nil {
			return 0, time.Time{}, fmt.Errorf("razy: ratelimit hit: %w", err)
		}
		return 1, resetAt, nil
	}

	rec.Hits++
	if err := r.store.Set(ctx, key, rec.Hits, rec.ResetAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("razy: ratelimit hit: %w", err)
	}
	return rec.Hits, time.Unix(rec.ResetAt, 0), nil
}

// TooManyAttempts reports whether key's current window has reached
// maxAttempts, without recording a new hit. A store read error is treated
// as an absent record (fail-open) rather than returned to the caller.
func (r *RateLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	rec, found, _ := r.get(ctx, key, r.now())
	if !found {
		return false, nil
	}
	return rec.Hits >= maxAttempts, nil
}

// Attempts returns the current hit count for key, 0 if absent, expired, or
// the store read failed (fail-open).
func (r *RateLimiter) Attempts(ctx context.Context, key string) (int, error) {
	rec, found, _ := r.get(ctx, key, r.now())
	if !found {
		return 0, nil
	}
	return rec.Hits, nil
}

// Remaining returns how many hits key has left before max is reached.
func (r *RateLimiter) Remaining(ctx context.Context, key string, max int) (int, error) {
	attempts, err := r.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	remaining := max - attempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// AvailableIn returns the duration until key's window resets, 0 if there is
// no active record or the store read failed (fail-open).
func (r *RateLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	rec, found, _ := r.get(ctx, key, r.now())
	if !found {
		return 0, nil
	}
	d := time.Unix(rec.ResetAt, 0).Sub(r.now())
	if d < 0 {
		d = 0
	}
	return d, nil
}

// ResetAt returns the time key's window resets, the zero Time if there is
// no active record or the store read failed (fail-open).
func (r *RateLimiter) ResetAt(ctx context.Context, key string) (time.Time, error) {
	rec, found, _ := r.get(ctx, key, r.now())
	if !found {
		return time.Time{}, nil
	}
	return time.Unix(rec.ResetAt, 0), nil
}

// Clear deletes key's record, resetting it to an untouched state.
func (r *RateLimiter) Clear(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("razy: ratelimit clear: %w", err)
	}
	return nil
}

// get fetches a record, treating an expired one as absent. A store read
// error is also treated as absent (fail-open): a transient store outage
// should let requests through, not fail them.
func (r *RateLimiter) get(ctx context.Context, key string, now time.Time) (*Record, bool, error) {
	rec, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, false, nil
	}
	if !found || rec.Expired(now) {
		return nil, false, nil
	}
	return rec, true, nil
}
