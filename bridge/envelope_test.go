package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministicRegardlessOfMapKeyOrder(t *testing.T) {
	secret := []byte("shared-secret")
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}

	sig1, err := Sign(secret, "caller@default", "vendor/mod", "cmd", []any{a}, "nonce", 100)
	require.NoError(t, err)
	sig2, err := Sign(secret, "caller@default", "vendor/mod", "cmd", []any{b}, "nonce", 100)
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
}

func TestVerifyAcceptsMatchingSignature(t *testing.T) {
	secret := []byte("shared-secret")
	sig, err := Sign(secret, "caller@default", "vendor/mod", "cmd", []any{"a"}, "nonce", 100)
	require.NoError(t, err)

	req := Request{
		Caller: "caller@default", Module: "vendor/mod", Command: "cmd",
		Args: []any{"a"}, Nonce: "nonce", Timestamp: 100, Signature: sig,
	}
	ok, err := Verify(secret, req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedArgs(t *testing.T) {
	secret := []byte("shared-secret")
	sig, err := Sign(secret, "caller@default", "vendor/mod", "cmd", []any{"a"}, "nonce", 100)
	require.NoError(t, err)

	req := Request{
		Caller: "caller@default", Module: "vendor/mod", Command: "cmd",
		Args: []any{"tampered"}, Nonce: "nonce", Timestamp: 100, Signature: sig,
	}
	ok, err := Verify(secret, req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	sig, err := Sign([]byte("secret-a"), "caller@default", "vendor/mod", "cmd", nil, "nonce", 100)
	require.NoError(t, err)

	req := Request{
		Caller: "caller@default", Module: "vendor/mod", Command: "cmd",
		Nonce: "nonce", Timestamp: 100, Signature: sig,
	}
	ok, err := Verify([]byte("secret-b"), req)
	require.NoError(t, err)
	assert.False(t, ok)
}
