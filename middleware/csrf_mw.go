package middleware

import (
	"net/http"

	"github.com/razyhq/razy/csrf"
)

// CsrfMiddleware validates the session-stored token on state-changing
// requests. GET/HEAD/OPTIONS always pass through untouched, as does any
// route whose pattern is listed in Excluded (e.g. webhook endpoints that
// can't carry a browser-minted token).
type CsrfMiddleware struct {
	// Manager resolves the token manager for the current request's
	// session. Most callers build it from SessionOf(ctx).
	Manager func(ctx *Context) *csrf.Manager

	// Excluded lists route patterns skipped regardless of method.
	Excluded map[string]bool

	// Extractor is consulted last, after the _token form field and the
	// X-CSRF-TOKEN header, when both come back empty.
	Extractor func(r *http.Request) string

	// OnReject, if set, replaces the default 419 response on mismatch.
	OnReject func(ctx *Context) (*Result, error)
}

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

func (m *CsrfMiddleware) Handle(ctx *Context, next Next) (*Result, error) {
	if safeMethods[ctx.Method] {
		return next(ctx)
	}
	if ctx.Route != nil && m.Excluded[ctx.Route.Pattern.Raw] {
		return next(ctx)
	}

	mgr := m.Manager(ctx)
	token := m.extract(ctx.Request)

	ok, err := mgr.Validate(ctx.Request.Context(), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		if m.OnReject != nil {
			return m.OnReject(ctx)
		}
		return &Result{Status: 419}, nil
	}
	return next(ctx)
}

func (m *CsrfMiddleware) extract(r *http.Request) string {
	if v := r.FormValue("_token"); v != "" {
		return v
	}
	if v := r.Header.Get("X-CSRF-TOKEN"); v != "" {
		return v
	}
	if m.Extractor != nil {
		return m.Extractor(r)
	}
	return ""
}
