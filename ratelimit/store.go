package ratelimit

import "context"

// Store persists per-key hit counts and window reset times for a RateLimiter.
type Store interface {
	Get(ctx context.Context, key string) (*Record, bool, error)
	Set(ctx context.Context, key string, hits int, resetAt int64) error
	Delete(ctx context.Context, key string) error
}
