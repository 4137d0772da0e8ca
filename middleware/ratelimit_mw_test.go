package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/razyhq/razy/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// erroringStore simulates a transient store outage (e.g. a Redis blip) on
// every read, leaving writes to succeed.
type erroringStore struct{}

func (erroringStore) Get(ctx context.Context, key string) (*ratelimit.Record, bool, error) {
	return nil, false, errors.New("store unreachable")
}
func (erroringStore) Set(ctx context.Context, key string, hits int, resetAt int64) error {
	return nil
}
func (erroringStore) Delete(ctx context.Context, key string) error { return nil }

func newRateLimitMiddleware(maxAttempts int) *RateLimitMiddleware {
	reg := ratelimit.NewRegistry()
	reg.Register("login", func(ctx context.Context) ratelimit.Limit {
		return ratelimit.PerMinute(maxAttempts).By("1.2.3.4")
	})
	return &RateLimitMiddleware{
		Limiter:     ratelimit.New(ratelimit.NewMemoryStore()),
		Registry:    reg,
		LimiterName: "login",
	}
}

func TestRateLimitMiddlewareAllowsWithinLimit(t *testing.T) {
	mw := newRateLimitMiddleware(3)
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	ctx := NewContext(w, r, nil, nil)

	res, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddlewareBlocksOverLimit(t *testing.T) {
	mw := newRateLimitMiddleware(3)

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		w := httptest.NewRecorder()
		ctx := NewContext(w, r, nil, nil)
		_, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
			return &Result{Status: 200}, nil
		})
		require.NoError(t, err)
	}

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	ctx := NewContext(w, r, nil, nil)

	called := false
	res, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareFailsOpenOnStoreReadError(t *testing.T) {
	reg := ratelimit.NewRegistry()
	reg.Register("login", func(ctx context.Context) ratelimit.Limit {
		return ratelimit.PerMinute(3).By("1.2.3.4")
	})
	mw := &RateLimitMiddleware{
		Limiter:     ratelimit.New(erroringStore{}),
		Registry:    reg,
		LimiterName: "login",
	}

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	ctx := NewContext(w, r, nil, nil)

	called := false
	res, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err, "a transient store read error must not fail the request")
	assert.True(t, called, "the request should pass through when the store can't be read")
	assert.Equal(t, 200, res.Status)
}

func TestRateLimitMiddlewareBypassesUnregisteredLimiter(t *testing.T) {
	mw := &RateLimitMiddleware{
		Limiter:     ratelimit.New(ratelimit.NewMemoryStore()),
		Registry:    ratelimit.NewRegistry(),
		LimiterName: "missing",
	}
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	ctx := NewContext(w, r, nil, nil)

	called := false
	_, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRateLimitMiddlewareCustomExceededHandler(t *testing.T) {
	mw := newRateLimitMiddleware(1)
	mw.OnExceeded = func(ctx *Context, limit ratelimit.Limit) (*Result, error) {
		return &Result{Status: 503}, nil
	}

	r1 := httptest.NewRequest(http.MethodPost, "/login", nil)
	ctx1 := NewContext(httptest.NewRecorder(), r1, nil, nil)
	_, err := mw.Handle(ctx1, func(ctx *Context) (*Result, error) { return &Result{Status: 200}, nil })
	require.NoError(t, err)

	r2 := httptest.NewRequest(http.MethodPost, "/login", nil)
	ctx2 := NewContext(httptest.NewRecorder(), r2, nil, nil)
	res, err := mw.Handle(ctx2, func(ctx *Context) (*Result, error) { return &Result{Status: 200}, nil })
	require.NoError(t, err)
	assert.Equal(t, 503, res.Status)
}
