// Package dispatch wires the route table, middleware pipeline, and closure
// loader together into the per-request entry point.
package dispatch

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/razyhq/razy/middleware"
)

// HandlerFunc is the terminal body a route's closure path resolves to.
type HandlerFunc func(ctx *middleware.Context) (*middleware.Result, error)

// ClosureLoader defers route-handler resolution until first invocation:
// modules register handlers under their own closure_path during Load, and
// the dispatcher only looks them up when a request actually matches.
type ClosureLoader struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc // "moduleCode\x00closurePath" -> handler
}

// NewClosureLoader creates an empty loader.
func NewClosureLoader() *ClosureLoader {
	return &ClosureLoader{handlers: make(map[string]HandlerFunc)}
}

func closureKey(moduleCode, closurePath string) string { return moduleCode + "\x00" + closurePath }

// Register binds a closure path within moduleCode to h. Re-registering the
// same (module, path) overwrites the previous binding, mirroring a module
// reloading its own routes.
func (l *ClosureLoader) Register(moduleCode, closurePath string, h HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[closureKey(moduleCode, closurePath)] = h
}

// Load resolves a previously registered handler.
func (l *ClosureLoader) Load(moduleCode, closurePath string) (HandlerFunc, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handlers[closureKey(moduleCode, closurePath)]
	return h, ok
}

// BindMethod adapts a controller's exported method of the same signature as
// HandlerFunc into one, by name, via reflection, resolving a
// single-identifier closure_path to a controller method.
func BindMethod(controller any, methodName string) (HandlerFunc, error) {
	v := reflect.ValueOf(controller)
	m := v.MethodByName(methodName)
	if !m.IsValid() {
		return nil, fmt.Errorf("razy: no method %q on %T", methodName, controller)
	}

	handlerType := reflect.TypeOf((*HandlerFunc)(nil)).Elem()
	if !m.Type().ConvertibleTo(handlerType) {
		return nil, fmt.Errorf("razy: method %q on %T has signature %s, want %s", methodName, controller, m.Type(), handlerType)
	}

	fn, _ := m.Interface().(func(*middleware.Context) (*middleware.Result, error))
	return fn, nil
}
