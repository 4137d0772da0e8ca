package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"time"
)

// Config controls cookie lifetime and garbage-collection probability.
type Config struct {
	Name          string
	Lifetime      time.Duration
	GCMaxLifetime int // seconds
	GCProbability int
	GCDivisor     int
}

// DefaultConfig returns a Config with a 1/100 GC probability.
func DefaultConfig() Config {
	return Config{
		Name:          "RAZY_SESSION",
		Lifetime:      2 * time.Hour,
		GCMaxLifetime: 1440,
		GCProbability: 1,
		GCDivisor:     100,
	}
}

// Session implements the state machine Unstarted -> Started via Start, back
// to Unstarted (persisted) via Save or (purged) via Destroy. A Session
// instance must not be shared across requests.
type Session struct {
	driver  Driver
	cfg     Config
	randInt func(n int) int // overridable for deterministic GC-probability tests

	id         string
	started    bool
	attributes map[string]any
	flashNew   map[string]struct{}
	flashOld   map[string]struct{}
	flashData  map[string]any
}

// New creates a Session bound to driver/cfg. Call Start before use.
func New(driver Driver, cfg Config) *Session {
	return &Session{
		driver:  driver,
		cfg:     cfg,
		randInt: mrand.Intn,
	}
}

// ID returns the current session id, empty until Start has run.
func (s *Session) ID() string { return s.id }

// Started reports whether the session is currently in the Started state.
func (s *Session) Started() bool { return s.started }

// Start transitions Unstarted -> Started. Calling Start while already
// started is a no-op (reentrant). If id is empty, a fresh 160-bit random
// hex id is minted; otherwise the driver is consulted for an existing
// record under id.
func (s *Session) Start(ctx context.Context, id string) error {
	if s.started {
		return nil
	}
	if id == "" {
		newID, err := generateID()
		if err != nil {
			return err
		}
		id = newID
	}

	data, err := s.driver.Read(ctx, id)
	if err != nil {
		// Store errors are fail-soft for reads:
		// treat as an empty session rather than propagating.
		data = map[string]any{}
	}

	s.id = id
	s.attributes = asMap(data["attributes"])
	s.flashData = asMap(data["flash_data"])
	s.flashOld = asSet(data["flash_old"])
	s.flashNew = make(map[string]struct{})
	s.started = true

	s.maybeGC(ctx)
	return nil
}

// maybeGC invokes driver.GC with probability GCProbability/GCDivisor.
func (s *Session) maybeGC(ctx context.Context) {
	divisor := s.cfg.GCDivisor
	if divisor <= 0 {
		divisor = 100
	}
	prob := s.cfg.GCProbability
	if prob <= 0 {
		prob = 1
	}
	if s.randInt(divisor) < prob {
		_, _ = s.driver.GC(ctx, s.cfg.GCMaxLifetime)
	}
}

// Get reads an attribute.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.attributes[key]
	return v, ok
}

// Set writes an attribute.
func (s *Session) Set(key string, value any) {
	if s.attributes == nil {
		s.attributes = make(map[string]any)
	}
	s.attributes[key] = value
}

// Delete removes an attribute.
func (s *Session) Delete(key string) {
	delete(s.attributes, key)
}

// Flash stores a value that survives exactly one subsequent request: it is
// added to the new generation, removed from the old generation (so it
// isn't aged out on the very next Save), and written into flash_data.
func (s *Session) Flash(key string, value any) {
	if s.flashData == nil {
		s.flashData = make(map[string]any)
	}
	s.flashData[key] = value
	s.flashNew[key] = struct{}{}
	delete(s.flashOld, key)
}

// FlashGet reads a flash value.
func (s *Session) FlashGet(key string) (any, bool) {
	v, ok := s.flashData[key]
	return v, ok
}

// Reflash re-keeps every old-generation flash key for one more request by
// merging flash_old into flash_new.
func (s *Session) Reflash() {
	for k := range s.flashOld {
		s.flashNew[k] = struct{}{}
	}
}

// Keep re-keeps a specific subset of old-generation flash keys.
func (s *Session) Keep(keys ...string) {
	for _, k := range keys {
		if _, ok := s.flashOld[k]; ok {
			s.flashNew[k] = struct{}{}
		}
	}
}

// Save ages flash data (old-generation keys are purged from flash_data
// unless Reflash or Keep re-kept them into the new generation, then new
// becomes old, and new is cleared) before persisting, then
// transitions Started -> Unstarted.
func (s *Session) Save(ctx context.Context) error {
	for k := range s.flashOld {
		if _, keep := s.flashNew[k]; !keep {
			delete(s.flashData, k)
		}
	}
	s.flashOld = s.flashNew
	s.flashNew = make(map[string]struct{})

	data := map[string]any{
		"attributes": s.attributes,
		"flash_data": s.flashData,
		"flash_old":  setToSlice(s.flashOld),
	}
	if err := s.driver.Write(ctx, s.id, data); err != nil {
		// StoreIOError: fail-soft on write, caller is expected to log.
		return fmt.Errorf("razy: session save: %w", err)
	}
	s.started = false
	return nil
}

// Destroy purges the session from the driver and resets local state,
// transitioning Started -> Unstarted (purged).
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.driver.Destroy(ctx, s.id); err != nil {
		return fmt.Errorf("razy: session destroy: %w", err)
	}
	s.attributes = nil
	s.flashData = nil
	s.flashOld = nil
	s.flashNew = nil
	s.started = false
	return nil
}

// Regenerate mints a fresh id. If destroyOld is true the old record is
// deleted from the driver before the next Save writes under the new id.
func (s *Session) Regenerate(ctx context.Context, destroyOld bool) (string, error) {
	newID, err := generateID()
	if err != nil {
		return "", err
	}
	if destroyOld {
		if err := s.driver.Destroy(ctx, s.id); err != nil {
			return "", fmt.Errorf("razy: session regenerate: %w", err)
		}
	}
	s.id = newID
	return newID, nil
}

// generateID produces a 160-bit (20 byte) cryptographically random id,
// hex-encoded to 40 characters.
func generateID() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("razy: generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func asMap(v any) map[string]any {
	if v == nil {
		return make(map[string]any)
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return make(map[string]any)
}

func asSet(v any) map[string]struct{} {
	out := make(map[string]struct{})
	switch vv := v.(type) {
	case []string:
		for _, k := range vv {
			out[k] = struct{}{}
		}
	case []any:
		for _, k := range vv {
			if s, ok := k.(string); ok {
				out[s] = struct{}{}
			}
		}
	}
	return out
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
