package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// erroringStore simulates a transient store outage (e.g. a Redis blip) on
// every read, to exercise the query methods' fail-open behavior.
type erroringStore struct{}

func (erroringStore) Get(ctx context.Context, key string) (*Record, bool, error) {
	return nil, false, errors.New("store unreachable")
}
func (erroringStore) Set(ctx context.Context, key string, hits int, resetAt int64) error {
	return nil
}
func (erroringStore) Delete(ctx context.Context, key string) error { return nil }

func TestHitIncrementsWithinWindow(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	n, _, err := r.Hit(ctx, "ip:1.1.1.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, _, err = r.Hit(ctx, "ip:1.1.1.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	attempts, err := r.Attempts(ctx, "ip:1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWindowResetsAfterDecay(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	now := time.Unix(1_000_000, 0)
	r.SetClock(func() time.Time { return now })

	_, _, err := r.Hit(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	_, _, err = r.Hit(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	attempts, err := r.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	now = now.Add(11 * time.Second)
	n, _, err := r.Hit(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a hit after window expiry should reset to 1")
}

func TestTooManyAttempts(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	for i := 0; i < 3; i++ {
		_, _, err := r.Hit(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	tooMany, err := r.TooManyAttempts(ctx, "k", 3)
	require.NoError(t, err)
	assert.True(t, tooMany)

	tooMany, err = r.TooManyAttempts(ctx, "k", 4)
	require.NoError(t, err)
	assert.False(t, tooMany)
}

func TestRemainingAndResetAt(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())
	now := time.Unix(2_000_000, 0)
	r.SetClock(func() time.Time { return now })

	_, _, err := r.Hit(ctx, "k", 30*time.Second)
	require.NoError(t, err)

	remaining, err := r.Remaining(ctx, "k", 5)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	resetAt, err := r.ResetAt(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Second), resetAt)
}

func TestClearResetsBucket(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore())

	_, _, err := r.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, r.Clear(ctx, "k"))

	attempts, err := r.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)
}

func TestQueryMethodsFailOpenOnStoreReadError(t *testing.T) {
	ctx := context.Background()
	r := New(erroringStore{})

	tooMany, err := r.TooManyAttempts(ctx, "k", 3)
	require.NoError(t, err)
	assert.False(t, tooMany, "a store read error must not be mistaken for an exceeded limit")

	attempts, err := r.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)

	availableIn, err := r.AvailableIn(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, availableIn)

	resetAt, err := r.ResetAt(ctx, "k")
	require.NoError(t, err)
	assert.True(t, resetAt.IsZero())
}

func TestUnlimitedLimitBypassesTracking(t *testing.T) {
	limit := None()
	assert.True(t, limit.Unlimited)
}

func TestLimitFactoriesAndBy(t *testing.T) {
	limit := PerMinute(3).By("1.1.1.1")
	assert.Equal(t, 3, limit.MaxAttempts)
	assert.Equal(t, time.Minute, limit.Decay)
	assert.Equal(t, "1.1.1.1", limit.Key)
}

func TestNamedLimiterRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("api", func(ctx context.Context) Limit {
		return PerMinute(3).By("1.1.1.1")
	})

	limit, ok := reg.Resolve(context.Background(), "api")
	require.True(t, ok)
	assert.Equal(t, 3, limit.MaxAttempts)

	_, ok = reg.Resolve(context.Background(), "missing")
	assert.False(t, ok)
}
