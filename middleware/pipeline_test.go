package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *Context {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	return NewContext(w, r, nil, nil)
}

func TestComposeRunsGlobalBeforeRouteBeforeFinal(t *testing.T) {
	var order []string
	record := func(name string) MiddlewareFunc {
		return func(ctx *Context, next Next) (*Result, error) {
			order = append(order, name+":before")
			res, err := next(ctx)
			order = append(order, name+":after")
			return res, err
		}
	}

	global := []Middleware{record("g1"), record("g2")}
	routeMW := []Middleware{record("r1")}
	final := func(ctx *Context) (*Result, error) {
		order = append(order, "final")
		return &Result{Status: 200}, nil
	}

	chain := Compose(global, routeMW, final)
	res, err := chain(newTestContext())
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t,
		[]string{"g1:before", "g2:before", "r1:before", "final", "r1:after", "g2:after", "g1:after"},
		order,
	)
}

func TestComposeShortCircuitSkipsDownstream(t *testing.T) {
	reached := false
	blocker := MiddlewareFunc(func(ctx *Context, next Next) (*Result, error) {
		return &Result{Status: 403}, nil
	})
	final := func(ctx *Context) (*Result, error) {
		reached = true
		return &Result{Status: 200}, nil
	}

	chain := Compose(nil, []Middleware{blocker}, final)
	res, err := chain(newTestContext())
	require.NoError(t, err)
	assert.Equal(t, 403, res.Status)
	assert.False(t, reached, "final handler must not run once a middleware short-circuits")
}

func TestNewContextWithoutBinding(t *testing.T) {
	ctx := newTestContext()
	assert.NotNil(t, ctx.Values)
	assert.Nil(t, ctx.Route)
}
