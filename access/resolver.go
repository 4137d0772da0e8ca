// Package access implements domain binding: resolving an inbound request's
// Host header (through alias indirection) and path to the distributor and
// path prefix that owns it.
package access

import (
	"fmt"
	"sort"
	"strings"

	razy "github.com/razyhq/razy"
)

// Resolver answers host/path -> distributor lookups from a SitesConfig.
type Resolver struct {
	sites razy.SitesConfig
	// prefixesByHost caches each host's path prefixes sorted longest-first
	// so Resolve always picks the most specific match.
	prefixesByHost map[string][]string
}

// NewResolver indexes sites for repeated Resolve calls.
func NewResolver(sites razy.SitesConfig) *Resolver {
	r := &Resolver{sites: sites, prefixesByHost: make(map[string][]string, len(sites.Domains))}
	for host, paths := range sites.Domains {
		prefixes := make([]string, 0, len(paths))
		for p := range paths {
			prefixes = append(prefixes, p)
		}
		sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
		r.prefixesByHost[host] = prefixes
	}
	return r
}

// Resolve maps host (after alias indirection) and path to the distributor
// id bound to the longest matching path prefix, along with that prefix.
func (r *Resolver) Resolve(host, path string) (razy.DistributorID, string, error) {
	canonical := host
	if target, ok := r.sites.Alias[host]; ok {
		canonical = target
	}

	paths, ok := r.sites.Domains[canonical]
	if !ok {
		return razy.DistributorID{}, "", fmt.Errorf("razy: host %q: %w", host, razy.ErrDistributorNotFound)
	}

	for _, prefix := range r.prefixesByHost[canonical] {
		if prefix == "/" || strings.HasPrefix(path, prefix) {
			id, err := ParseDistributorID(paths[prefix])
			if err != nil {
				return razy.DistributorID{}, "", err
			}
			return id, prefix, nil
		}
	}
	return razy.DistributorID{}, "", fmt.Errorf("razy: host %q has no path prefix matching %q: %w", host, path, razy.ErrDistributorNotFound)
}

// ParseDistributorID parses the canonical "code@tag" form used throughout
// sites config and bridge envelopes.
func ParseDistributorID(s string) (razy.DistributorID, error) {
	code, tag, found := strings.Cut(s, "@")
	if !found || code == "" {
		return razy.DistributorID{}, fmt.Errorf("razy: malformed distributor id %q", s)
	}
	return razy.NewDistributorID(code, tag), nil
}
