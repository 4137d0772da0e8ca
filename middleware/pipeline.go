// Package middleware implements the onion-style interceptor pipeline and
// the three built-in middlewares (session, CSRF, rate limit).
package middleware

import (
	"net/http"

	"github.com/razyhq/razy/route"
)

// Context is the read/write bag threaded through one middleware chain. It
// carries the matched route, module, closure path, arguments, method, and
// shadow flag, plus an open-ended Values map — populated by built-ins like
// SessionMiddleware (key "session") and left for callers to stash whatever
// else a custom middleware needs.
type Context struct {
	Request *http.Request
	Writer  http.ResponseWriter

	Route       *route.RouteBinding
	Module      string
	ClosurePath string
	Arguments   []string
	Method      string
	Type        route.RouteType
	IsShadow    bool

	Values map[string]any
}

// NewContext builds a Context from a matched binding and its capture
// arguments.
func NewContext(w http.ResponseWriter, r *http.Request, b *route.RouteBinding, args []string) *Context {
	ctx := &Context{
		Request:   r,
		Writer:    w,
		Method:    r.Method,
		Arguments: args,
		Values:    make(map[string]any),
	}
	if b != nil {
		ctx.Route = b
		ctx.Module = b.ModuleCode
		ctx.ClosurePath = b.ClosurePath
		ctx.Type = b.Type
		ctx.IsShadow = b.Type == route.TypeShadow
	}
	return ctx
}

// Result is what a middleware chain or final handler produces. Returning a
// non-nil Result without calling next is how a middleware short-circuits
// the chain.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Next invokes the remainder of the pipeline.
type Next func(ctx *Context) (*Result, error)

// Middleware is any interceptor in the chain. It may inspect/mutate ctx
// before calling next, decline to call next to short-circuit, and
// inspect/mutate the Result next returns.
type Middleware interface {
	Handle(ctx *Context, next Next) (*Result, error)
}

// MiddlewareFunc adapts a plain function to Middleware.
type MiddlewareFunc func(ctx *Context, next Next) (*Result, error)

func (f MiddlewareFunc) Handle(ctx *Context, next Next) (*Result, error) { return f(ctx, next) }

// Compose builds one Next out of global middleware, then route-level
// middleware, then final, in that registration order: global middleware
// applies to every route, and route-level middleware is appended after it.
// Middlewares run outside-in; next-returns unwind in reverse.
func Compose(global, routeMW []Middleware, final Next) Next {
	next := final
	for i := len(routeMW) - 1; i >= 0; i-- {
		mw := routeMW[i]
		prev := next
		next = func(ctx *Context) (*Result, error) { return mw.Handle(ctx, prev) }
	}
	for i := len(global) - 1; i >= 0; i-- {
		mw := global[i]
		prev := next
		next = func(ctx *Context) (*Result, error) { return mw.Handle(ctx, prev) }
	}
	return next
}
