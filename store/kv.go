// Package store provides generic key-value persistence abstractions. The
// file driver in package session delegates its durable writes to FileStore
// here; the other session drivers and the ratelimit stores do not use this
// package.
package store

import "context"

// KVStore is a minimal byte-oriented key-value contract. Both the memory
// and file backends below satisfy it.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key currently stored, for GC sweeps.
	Keys(ctx context.Context) ([]string, error)
}
