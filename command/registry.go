// Package command implements per-module command tables (API and bridge)
// and the in-process event dispatcher.
package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Handler is a bound command body: it receives the caller identity and the
// positional arguments forwarded from the invoker.
type Handler func(ctx context.Context, caller string, args []any) (any, error)

// entry is one registered command.
type entry struct {
	closurePath     string
	handler         Handler
	internallyBound bool
}

// APIGate decides whether caller may invoke command against the API
// surface. BridgeGate is the cross-process equivalent, keyed by the
// source distributor rather than a caller module.
type APIGate func(caller, command string) bool
type BridgeGate func(sourceDistributor, command string) bool
type ErrorHook func(command string, err error)

// Registry holds one module's api_commands and bridge_commands tables plus
// the internal-binding table commands registered with a leading "#" are
// also placed into, so the owning controller can invoke them like a local
// method.
type Registry struct {
	mu sync.RWMutex

	apiCommands    map[string]*entry
	bridgeCommands map[string]*entry
	internal       map[string]*entry

	apiGate    APIGate
	bridgeGate BridgeGate
	onError    ErrorHook
}

// NewRegistry creates an empty command registry for one module. gate
// functions default to always-allow if nil; onError defaults to a no-op.
func NewRegistry(apiGate APIGate, bridgeGate BridgeGate, onError ErrorHook) *Registry {
	if apiGate == nil {
		apiGate = func(string, string) bool { return true }
	}
	if bridgeGate == nil {
		bridgeGate = func(string, string) bool { return true }
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Registry{
		apiCommands:    make(map[string]*entry),
		bridgeCommands: make(map[string]*entry),
		internal:       make(map[string]*entry),
		apiGate:        apiGate,
		bridgeGate:     bridgeGate,
		onError:        onError,
	}
}

// RegisterAPI adds a command to the API table. A name beginning with "#" is
// stripped and the command is registered under the bare name in the API
// table, with internally_bound set so the owning controller can also call
// it directly by that bare name.
func (r *Registry) RegisterAPI(name, closurePath string, h Handler) error {
	return r.register(r.apiCommands, name, closurePath, h)
}

// RegisterBridge adds a command to the bridge table (cross-process calls
// only; never internally bound).
func (r *Registry) RegisterBridge(name, closurePath string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bridgeCommands[name]; exists {
		return fmt.Errorf("razy: bridge command %q already registered", name)
	}
	r.bridgeCommands[name] = &entry{closurePath: closurePath, handler: h}
	return nil
}

func (r *Registry) register(table map[string]*entry, name, closurePath string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	internal := false
	if strings.HasPrefix(name, "#") {
		name = strings.TrimPrefix(name, "#")
		internal = true
	}
	if _, exists := table[name]; exists {
		return fmt.Errorf("razy: command %q already registered", name)
	}
	e := &entry{closurePath: closurePath, handler: h, internallyBound: internal}
	table[name] = e
	if internal {
		if _, exists := r.internal[name]; exists {
			return fmt.Errorf("razy: internal command %q already bound", name)
		}
		r.internal[name] = e
	}
	return nil
}

// CallAPI invokes an in-process API command. A command not found returns
// (nil, nil) — absence is reported as "no result", not as an error,
// matching the in-process CommandNotFound/AccessDenied semantics (both
// resolve to null to the caller; only the bridge surfaces structured error
// codes).
func (r *Registry) CallAPI(ctx context.Context, caller, command string, args []any) (any, error) {
	return r.call(ctx, r.apiCommands, r.apiGate, caller, command, args)
}

// CallBridge invokes a bridge command on behalf of sourceDistributor. It
// reports which null-producing path was taken through its two bools
// (found, allowed), so the bridge server can answer COMMAND_NOT_FOUND or
// ACCESS_DENIED.
func (r *Registry) CallBridge(ctx context.Context, sourceDistributor, command string, args []any) (any, bool, bool, error) {
	r.mu.RLock()
	e, found := r.bridgeCommands[command]
	r.mu.RUnlock()
	if !found {
		return nil, false, false, nil
	}
	if !r.bridgeGate(sourceDistributor, command) {
		return nil, true, false, nil
	}
	if e.handler == nil {
		return nil, true, true, nil
	}
	res, err := e.handler(ctx, sourceDistributor, args)
	if err != nil {
		r.onError(command, err)
		return nil, true, true, nil
	}
	return res, true, true, nil
}

// InternalCall invokes a "#"-bound command as if it were a local method on
// the controller, bypassing the API permission gate (it is only reachable
// from within the owning module).
func (r *Registry) InternalCall(ctx context.Context, caller, command string, args []any) (any, bool, error) {
	r.mu.RLock()
	e, found := r.internal[command]
	r.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	if e.handler == nil {
		return nil, true, nil
	}
	res, err := e.handler(ctx, caller, args)
	if err != nil {
		r.onError(command, err)
		return nil, true, err
	}
	return res, true, nil
}

func (r *Registry) call(ctx context.Context, table map[string]*entry, gate func(string, string) bool, caller, command string, args []any) (any, error) {
	r.mu.RLock()
	e, found := table[command]
	r.mu.RUnlock()
	if !found {
		return nil, nil
	}
	if !gate(caller, command) {
		return nil, nil
	}
	if e.handler == nil {
		return nil, nil
	}
	res, err := e.handler(ctx, caller, args)
	if err != nil {
		r.onError(command, err)
		return nil, nil
	}
	return res, nil
}

// ClosurePath returns the registered closure path for a command, for
// ClosureLoader-style deferred binding, along with whether the command is
// internally bound.
func (r *Registry) ClosurePath(command string) (path string, internal bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, found := r.apiCommands[command]; found {
		return e.closurePath, e.internallyBound, true
	}
	if e, found := r.bridgeCommands[command]; found {
		return e.closurePath, false, true
	}
	return "", false, false
}
