package session

import "context"

// NullDriver discards every write and always reads back an empty map. It
// exists for callers that want session semantics (flash, attributes) for
// the lifetime of one request without any cross-request persistence.
type NullDriver struct{}

func (NullDriver) Open() error  { return nil }
func (NullDriver) Close() error { return nil }

func (NullDriver) Read(_ context.Context, _ string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (NullDriver) Write(_ context.Context, _ string, _ map[string]any) error { return nil }
func (NullDriver) Destroy(_ context.Context, _ string) error                 { return nil }
func (NullDriver) GC(_ context.Context, _ int) (int, error)                  { return 0, nil }
