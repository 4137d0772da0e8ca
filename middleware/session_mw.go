package middleware

import (
	"net/http"

	"github.com/razyhq/razy/session"
)

// sessionValuesKey is where SessionMiddleware stashes the live *session.Session
// in Context.Values, for CsrfMiddleware and handlers downstream to reach.
const sessionValuesKey = "session"

// SessionMiddleware starts a session before next runs and saves it
// unconditionally afterward — including when next panics or returns an
// error — so a session is never silently dropped mid-request. It reads the
// incoming cookie named Config.Name if present, and always rewrites the
// cookie on the way out since Save/Regenerate may have changed the id.
type SessionMiddleware struct {
	Driver Driver
	Config session.Config
}

// Driver is an alias of session.Driver, the interface SessionMiddleware
// depends on, named here so callers can pass a *session.MemoryDriver, *session.FileDriver,
// *session.DBDriver, or *session.NullDriver interchangeably.
type Driver = session.Driver

// SessionOf retrieves the *session.Session SessionMiddleware placed on ctx,
// for downstream middleware/handlers.
func SessionOf(ctx *Context) (*session.Session, bool) {
	v, ok := ctx.Values[sessionValuesKey]
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok
}

func (m *SessionMiddleware) Handle(ctx *Context, next Next) (result *Result, err error) {
	cookieID := ""
	if ctx.Request != nil {
		if c, cerr := ctx.Request.Cookie(m.Config.Name); cerr == nil {
			cookieID = c.Value
		}
	}

	sess := session.New(m.Driver, m.Config)
	if startErr := sess.Start(ctx.Request.Context(), cookieID); startErr != nil {
		return nil, startErr
	}
	ctx.Values[sessionValuesKey] = sess

	defer func() {
		rec := recover()

		if saveErr := sess.Save(ctx.Request.Context()); saveErr != nil && err == nil && rec == nil {
			err = saveErr
		}
		if ctx.Writer != nil {
			http.SetCookie(ctx.Writer, &http.Cookie{
				Name:     m.Config.Name,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if rec != nil {
			panic(rec)
		}
	}()

	return next(ctx)
}
