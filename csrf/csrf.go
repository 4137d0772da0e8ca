// Package csrf implements a session-backed, constant-time-validated token
// manager issued per session.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/razyhq/razy/session"
)

// ReservedKey is the session attribute key the token is stored under.
const ReservedKey = "_csrf_token"

// Manager issues and validates CSRF tokens against one session.
type Manager struct {
	sess   *session.Session
	rotate bool
}

// New creates a Manager backed by sess. If rotate is true, Validate
// regenerates the token after a successful comparison.
func New(sess *session.Session, rotate bool) *Manager {
	return &Manager{sess: sess, rotate: rotate}
}

// Token returns the session's current token, starting the session
// transparently and minting a token on first access.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if !m.sess.Started() {
		if err := m.sess.Start(ctx, ""); err != nil {
			return "", fmt.Errorf("razy: csrf start session: %w", err)
		}
	}
	if v, ok := m.sess.Get(ReservedKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	return m.Regenerate(ctx)
}

// Regenerate discards the current token and mints a fresh one.
func (m *Manager) Regenerate(ctx context.Context) (string, error) {
	if !m.sess.Started() {
		if err := m.sess.Start(ctx, ""); err != nil {
			return "", fmt.Errorf("razy: csrf start session: %w", err)
		}
	}
	tok, err := generateToken()
	if err != nil {
		return "", err
	}
	m.sess.Set(ReservedKey, tok)
	return tok, nil
}

// Validate compares submitted against the stored token in constant time.
// On a successful match, if rotation is enabled the token is regenerated
// so the validated value can never be replayed.
func (m *Manager) Validate(ctx context.Context, submitted string) (bool, error) {
	tok, err := m.Token(ctx)
	if err != nil {
		return false, err
	}
	if tok == "" || submitted == "" {
		return false, nil
	}
	match := subtle.ConstantTimeCompare([]byte(tok), []byte(submitted)) == 1
	if match && m.rotate {
		if _, err := m.Regenerate(ctx); err != nil {
			return true, err
		}
	}
	return match, nil
}

// generateToken produces a 32-byte random value, URL-safe base64 encoded
// without padding.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("razy: generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
