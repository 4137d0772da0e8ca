package access

import (
	"errors"
	"testing"

	razy "github.com/razyhq/razy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSites() razy.SitesConfig {
	return razy.SitesConfig{
		Domains: map[string]map[string]string{
			"example.com": {
				"/":      "main@default",
				"/admin": "admin@default",
			},
		},
		Alias: map[string]string{
			"www.example.com": "example.com",
		},
	}
}

func TestResolvePicksLongestMatchingPrefix(t *testing.T) {
	r := NewResolver(testSites())

	id, prefix, err := r.Resolve("example.com", "/admin/users")
	require.NoError(t, err)
	assert.Equal(t, "admin", id.Code)
	assert.Equal(t, "/admin", prefix)

	id, prefix, err = r.Resolve("example.com", "/blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, "main", id.Code)
	assert.Equal(t, "/", prefix)
}

func TestResolveFollowsAlias(t *testing.T) {
	r := NewResolver(testSites())
	id, _, err := r.Resolve("www.example.com", "/")
	require.NoError(t, err)
	assert.Equal(t, "main", id.Code)
	assert.Equal(t, "default", id.Tag)
}

func TestResolveUnknownHostFails(t *testing.T) {
	r := NewResolver(testSites())
	_, _, err := r.Resolve("unknown.example", "/")
	assert.True(t, errors.Is(err, razy.ErrDistributorNotFound))
}

func TestParseDistributorIDRejectsMalformed(t *testing.T) {
	_, err := ParseDistributorID("no-at-sign")
	assert.Error(t, err)
}

func TestParseDistributorIDDefaultsTagWhenEmpty(t *testing.T) {
	id, err := ParseDistributorID("code@")
	require.NoError(t, err)
	assert.Equal(t, "default", id.Tag)
}
