package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore delegates to a Redis-compatible cache, honouring
// TTL = max(1, reset_at - now) so an expired bucket is evicted by the cache
// itself rather than lingering.
type CacheStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewCacheStore wraps client. Every key is namespaced under prefix (e.g.
// "razy:ratelimit:") to avoid collisions with unrelated cache users.
func NewCacheStore(client *redis.Client, prefix string) *CacheStore {
	return &CacheStore{client: client, prefix: prefix, now: time.Now}
}

func (s *CacheStore) key(key string) string { return s.prefix + key }

func (s *CacheStore) Get(ctx context.Context, key string) (*Record, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("razy: ratelimit cache get: %w", err)
	}
	if len(res) == 0 {
		return nil, false, nil
	}
	hits, err1 := strconv.Atoi(res["hits"])
	resetAt, err2 := strconv.ParseInt(res["reset_at"], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, false, nil
	}
	rec := &Record{Key: key, Hits: hits, ResetAt: resetAt}
	if rec.Expired(s.now()) {
		_ = s.client.Del(ctx, s.key(key)).Err()
		return nil, false, nil
	}
	return rec, true, nil
}

func (s *CacheStore) Set(ctx context.Context, key string, hits int, resetAt int64) error {
	ttl := time.Duration(resetAt-s.now().Unix()) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(key), "hits", hits, "reset_at", resetAt)
	pipe.Expire(ctx, s.key(key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("razy: ratelimit cache set: %w", err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("razy: ratelimit cache delete: %w", err)
	}
	return nil
}
