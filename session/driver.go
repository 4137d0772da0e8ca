// Package session implements the session state machine, flash data
// lifecycle, and the pluggable Driver persistence contract.
package session

import "context"

// Driver is the pluggable persistence contract a Session reads from and
// writes to. Implementations: Memory (tests), File (atomic
// rename), DB (Postgres upsert), and Null (discards writes).
type Driver interface {
	Open() error
	Close() error
	// Read returns the stored attribute map for id, or an empty map if no
	// record exists.
	Read(ctx context.Context, id string) (map[string]any, error)
	Write(ctx context.Context, id string, data map[string]any) error
	Destroy(ctx context.Context, id string) error
	// GC deletes records whose last write is older than
	// now - maxLifetimeSeconds, returning the count deleted.
	GC(ctx context.Context, maxLifetimeSeconds int) (int, error)
}
