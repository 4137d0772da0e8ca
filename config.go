package razy

import "time"

// DistributorConfig is the per-distributor settings shape. Only the shape
// is defined here; loading it from a file or flags is left to the
// embedding application.
type DistributorConfig struct {
	Dist           string            `json:"dist" yaml:"dist"`
	Modules        map[string]string `json:"modules" yaml:"modules"`
	ExcludeModule  []string          `json:"exclude_module,omitempty" yaml:"exclude_module,omitempty"`
	Greedy         bool              `json:"greedy,omitempty" yaml:"greedy,omitempty"`
	Fallback       bool              `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	ModulePath     string            `json:"module_path,omitempty" yaml:"module_path,omitempty"`
	InternalBridge InternalBridgeConfig `json:"internal_bridge,omitempty" yaml:"internal_bridge,omitempty"`
}

// InternalBridgeConfig controls the HTTP bridge endpoint on one distributor.
type InternalBridgeConfig struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Allow   map[string]bool `json:"allow" yaml:"allow"`
	Secret  string          `json:"secret" yaml:"secret"` //nolint:gosec // G117: config field, not a literal secret
	Path    string          `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultBridgePath is used when InternalBridgeConfig.Path is empty.
const DefaultBridgePath = "/__internal/bridge"

// EffectivePath returns the configured bridge path, defaulting if unset.
func (c InternalBridgeConfig) EffectivePath() string {
	if c.Path == "" {
		return DefaultBridgePath
	}
	return c.Path
}

// SitesConfig is the process-wide host mapping.
type SitesConfig struct {
	// Domains maps a host to a map of path prefix -> "dist_code@tag".
	Domains map[string]map[string]string `json:"domains" yaml:"domains"`
	// Alias maps an alias host to a canonical host.
	Alias map[string]string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// SessionConfig is the cookie/driver configuration shape.
type SessionConfig struct {
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	Lifetime      time.Duration `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	Path          string        `json:"path,omitempty" yaml:"path,omitempty"`
	Domain        string        `json:"domain,omitempty" yaml:"domain,omitempty"`
	Secure        bool          `json:"secure,omitempty" yaml:"secure,omitempty"`
	HTTPOnly      bool          `json:"httpOnly,omitempty" yaml:"httpOnly,omitempty"`
	SameSite      string        `json:"sameSite,omitempty" yaml:"sameSite,omitempty"`
	GCMaxLifetime int           `json:"gc_max_lifetime,omitempty" yaml:"gc_max_lifetime,omitempty"`
	GCProbability int           `json:"gc_probability,omitempty" yaml:"gc_probability,omitempty"`
	GCDivisor     int           `json:"gc_divisor,omitempty" yaml:"gc_divisor,omitempty"`
}

// DefaultSessionCookieName is the cookie name used when SessionConfig.Name
// is empty, matching the source's RAZY_SESSION default.
const DefaultSessionCookieName = "RAZY_SESSION"

// DefaultSessionConfig returns a SessionConfig with a 1/100 GC probability.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Name:          DefaultSessionCookieName,
		Lifetime:      2 * time.Hour,
		Path:          "/",
		HTTPOnly:      true,
		SameSite:      "Lax",
		GCMaxLifetime: 1440,
		GCProbability: 1,
		GCDivisor:     100,
	}
}
