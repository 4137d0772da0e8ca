package dispatch

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	razy "github.com/razyhq/razy"
	"github.com/razyhq/razy/middleware"
	"github.com/razyhq/razy/route"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "razy_dispatch_requests_total",
		Help: "Total HTTP requests handled by RouteDispatcher, by distributor and status.",
	}, []string{"distributor", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "razy_dispatch_request_duration_seconds",
		Help:    "Request handling latency from domain resolution through final write.",
		Buckets: prometheus.DefBuckets,
	}, []string{"distributor"})

	shadowCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "razy_dispatch_shadow_cycles_total",
		Help: "Requests aborted because shadow-route resolution detected a cycle.",
	})
)

// ErrorHook is invoked on a handler panic or a final-handler error, after
// the session has already been saved by SessionMiddleware.
type ErrorHook func(ctx *middleware.Context, err error)

// DistributorRuntime bundles the per-distributor pieces ServeHTTP needs
// once domain resolution has selected a distributor.
type DistributorRuntime struct {
	Table            *route.Table
	Loader           *ClosureLoader
	GlobalMiddleware []middleware.Middleware
	// RouteMiddleware resolves the route-level middleware stack appended
	// after GlobalMiddleware for a matched binding. May be nil.
	RouteMiddleware func(b *route.RouteBinding) []middleware.Middleware
	ErrorHook       ErrorHook
	// Fallback serves requests with no matching route, instead of a bare
	// 404, when the distributor's config sets fallback:true.
	Fallback http.Handler
}

// DomainResolver maps a request's host/path to a distributor id and the
// matched path prefix.
type DomainResolver interface {
	Resolve(host, path string) (razy.DistributorID, string, error)
}

// RouteDispatcher is the HTTP entry point: domain lookup, route match,
// middleware chain, closure invocation.
type RouteDispatcher struct {
	Resolver DomainResolver
	Runtimes map[razy.DistributorID]*DistributorRuntime
	Logger   *slog.Logger
}

// NewRouteDispatcher creates a dispatcher over an already-populated runtime
// map.
func NewRouteDispatcher(resolver DomainResolver, runtimes map[razy.DistributorID]*DistributorRuntime, logger *slog.Logger) *RouteDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteDispatcher{Resolver: resolver, Runtimes: runtimes, Logger: logger}
}

func (d *RouteDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	host := r.Host

	distID, _, err := d.Resolver.Resolve(host, r.URL.Path)
	if err != nil {
		requestsTotal.WithLabelValues("unbound", "404").Inc()
		http.NotFound(w, r)
		return
	}

	runtime, ok := d.Runtimes[distID]
	if !ok {
		requestsTotal.WithLabelValues(distID.String(), "404").Inc()
		http.NotFound(w, r)
		return
	}
	defer func() {
		requestDuration.WithLabelValues(distID.String()).Observe(time.Since(start).Seconds())
	}()

	binding, args, err := runtime.Table.Match(host, r.Method, r.URL.Path)
	if err != nil {
		if runtime.Fallback != nil {
			requestsTotal.WithLabelValues(distID.String(), "fallback").Inc()
			runtime.Fallback.ServeHTTP(w, r)
			return
		}
		requestsTotal.WithLabelValues(distID.String(), "404").Inc()
		http.NotFound(w, r)
		return
	}

	binding, err = d.resolveShadowChain(host, r.Method, runtime.Table, binding)
	if err != nil {
		shadowCyclesTotal.Inc()
		requestsTotal.WithLabelValues(distID.String(), "500").Inc()
		d.Logger.Error("shadow route cycle", "host", host, "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ctx := middleware.NewContext(w, r, binding, args)

	var routeMW []middleware.Middleware
	if runtime.RouteMiddleware != nil {
		routeMW = runtime.RouteMiddleware(binding)
	}

	final := func(ctx *middleware.Context) (*middleware.Result, error) {
		h, ok := runtime.Loader.Load(ctx.Module, ctx.ClosurePath)
		if !ok {
			return nil, fmt.Errorf("razy: no handler registered for module %q closure %q", ctx.Module, ctx.ClosurePath)
		}
		return h(ctx)
	}
	chain := middleware.Compose(runtime.GlobalMiddleware, routeMW, final)

	result, handlerErr := d.runRecovered(ctx, chain, runtime.ErrorHook)
	status := writeResult(w, result, handlerErr)
	requestsTotal.WithLabelValues(distID.String(), fmt.Sprintf("%d", status)).Inc()
}

// runRecovered invokes chain and converts a panic into a 500 Result,
// forwarding it to errorHook. The panic is caught here, above
// SessionMiddleware in the chain, so SessionMiddleware's own deferred
// Save has already run by the time recover() sees it.
func (d *RouteDispatcher) runRecovered(ctx *middleware.Context, chain middleware.Next, hook ErrorHook) (result *middleware.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			panicErr := fmt.Errorf("razy: handler panic: %v", rec)
			if hook != nil {
				hook(ctx, panicErr)
			}
			result = &middleware.Result{Status: http.StatusInternalServerError}
			err = nil
		}
	}()
	result, err = chain(ctx)
	if err != nil && hook != nil {
		hook(ctx, err)
	}
	return result, err
}

// resolveShadowChain follows binding.Shadow targets until it reaches a
// non-shadow binding, detecting revisits with a per-call visited set.
func (d *RouteDispatcher) resolveShadowChain(host, method string, table *route.Table, binding *route.RouteBinding) (*route.RouteBinding, error) {
	visited := make(map[string]bool)
	for binding.Type == route.TypeShadow {
		key := binding.Shadow.TargetModule + "\x00" + binding.Shadow.TargetClosurePath
		if visited[key] {
			return nil, fmt.Errorf("%w: %s", razy.ErrShadowCycle, key)
		}
		visited[key] = true

		next, found := table.FindRoute(host, method, binding.Shadow.TargetClosurePath)
		if !found {
			// No further binding registered under that pattern: treat the
			// shadow target itself as the resolved (module, closure_path),
			// preserving the originally captured arguments.
			resolved := *binding
			resolved.Type = route.TypeStandard
			resolved.ModuleCode = binding.Shadow.TargetModule
			resolved.ClosurePath = binding.Shadow.TargetClosurePath
			resolved.Shadow = nil
			return &resolved, nil
		}
		binding = next
	}
	return binding, nil
}

func writeResult(w http.ResponseWriter, result *middleware.Result, err error) int {
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent
	}
	for k, values := range result.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(result.Body) > 0 {
		_, _ = w.Write(result.Body)
	}
	return status
}
