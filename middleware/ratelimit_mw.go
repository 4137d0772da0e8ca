package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/razyhq/razy/ratelimit"
)

// rateLimitRejectionsTotal counts requests RateLimitMiddleware turned away,
// by limiter name.
var rateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "razy_ratelimit_rejections_total",
	Help: "Requests rejected by RateLimitMiddleware, by limiter name.",
}, []string{"limiter"})

// RateLimitMiddleware enforces a named limiter against every request it
// wraps. An unregistered name, or one resolving to an unlimited Limit,
// passes the request through untouched.
type RateLimitMiddleware struct {
	Limiter     *ratelimit.RateLimiter
	Registry    *ratelimit.Registry
	LimiterName string

	// OnExceeded, if set, replaces the default 429 response once
	// X-RateLimit-*/Retry-After headers have already been written.
	OnExceeded func(ctx *Context, limit ratelimit.Limit) (*Result, error)
}

func (m *RateLimitMiddleware) Handle(ctx *Context, next Next) (*Result, error) {
	limit, ok := m.Registry.Resolve(ctx.Request.Context(), m.LimiterName)
	if !ok || limit.Unlimited {
		return next(ctx)
	}

	key := m.LimiterName + ":" + limit.Key
	reqCtx := ctx.Request.Context()

	tooMany, err := m.Limiter.TooManyAttempts(reqCtx, key, limit.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if tooMany {
		rateLimitRejectionsTotal.WithLabelValues(m.LimiterName).Inc()
		retryAfter, err := m.Limiter.AvailableIn(reqCtx, key)
		if err != nil {
			return nil, err
		}
		if ctx.Writer != nil {
			h := ctx.Writer.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxAttempts))
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		}
		if m.OnExceeded != nil {
			return m.OnExceeded(ctx, limit)
		}
		return &Result{Status: http.StatusTooManyRequests}, nil
	}

	_, resetAt, err := m.Limiter.Hit(reqCtx, key, limit.Decay)
	if err != nil {
		return nil, err
	}
	remaining, err := m.Limiter.Remaining(reqCtx, key, limit.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if ctx.Writer != nil {
		h := ctx.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxAttempts))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}

	return next(ctx)
}
