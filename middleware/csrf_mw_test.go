package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/razyhq/razy/csrf"
	"github.com/razyhq/razy/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCsrfSession(t *testing.T) *session.Session {
	t.Helper()
	driver := session.NewMemoryDriver()
	sess := session.New(driver, session.DefaultConfig())
	require.NoError(t, sess.Start(context.Background(), ""))
	return sess
}

func TestCsrfMiddlewarePassesThroughSafeMethods(t *testing.T) {
	sess := newCsrfSession(t)
	mw := &CsrfMiddleware{Manager: func(ctx *Context) *csrf.Manager { return csrf.New(sess, false) }}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := NewContext(httptest.NewRecorder(), r, nil, nil)
	ctx.Method = http.MethodGet

	called := false
	_, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCsrfMiddlewareRejectsMissingToken(t *testing.T) {
	sess := newCsrfSession(t)
	mw := &CsrfMiddleware{Manager: func(ctx *Context) *csrf.Manager { return csrf.New(sess, false) }}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	ctx := NewContext(httptest.NewRecorder(), r, nil, nil)
	ctx.Method = http.MethodPost

	called := false
	res, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 419, res.Status)
}

func TestCsrfMiddlewareAcceptsValidFormToken(t *testing.T) {
	sess := newCsrfSession(t)
	mgr := csrf.New(sess, false)
	tok, err := mgr.Token(context.Background())
	require.NoError(t, err)

	mw := &CsrfMiddleware{Manager: func(ctx *Context) *csrf.Manager { return mgr }}

	form := url.Values{"_token": {tok}}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx := NewContext(httptest.NewRecorder(), r, nil, nil)
	ctx.Method = http.MethodPost

	called := false
	_, err = mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCsrfMiddlewareAcceptsHeaderToken(t *testing.T) {
	sess := newCsrfSession(t)
	mgr := csrf.New(sess, false)
	tok, err := mgr.Token(context.Background())
	require.NoError(t, err)

	mw := &CsrfMiddleware{Manager: func(ctx *Context) *csrf.Manager { return mgr }}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-CSRF-TOKEN", tok)
	ctx := NewContext(httptest.NewRecorder(), r, nil, nil)
	ctx.Method = http.MethodPost

	called := false
	_, err = mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		called = true
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCsrfMiddlewareCustomRejectHandler(t *testing.T) {
	sess := newCsrfSession(t)
	mw := &CsrfMiddleware{
		Manager: func(ctx *Context) *csrf.Manager { return csrf.New(sess, false) },
		OnReject: func(ctx *Context) (*Result, error) {
			return &Result{Status: 400}, nil
		},
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	ctx := NewContext(httptest.NewRecorder(), r, nil, nil)
	ctx.Method = http.MethodPost

	res, err := mw.Handle(ctx, func(ctx *Context) (*Result, error) {
		return &Result{Status: 200}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 400, res.Status)
}
