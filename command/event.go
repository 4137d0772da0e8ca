package command

import (
	"context"
	"fmt"
	"sync"
)

// EventHandler receives the firing module's arguments and returns a result
// to be collected by the firer.
type EventHandler func(ctx context.Context, args []any) (any, error)

type listenerKey struct {
	listeningModule string
	sourceModule    string
	eventName       string
}

// EventDispatcher resolves listen/fire calls across every module of one
// distributor. Listener uniqueness is per (listening_module, source_module,
// event_name): the same module may listen to the same event from two
// different sources, but not register twice for the same source.
type EventDispatcher struct {
	mu        sync.RWMutex
	listeners map[listenerKey]EventHandler
	// bySource indexes listener keys by (sourceModule, eventName) so Fire
	// doesn't need to scan every registration.
	bySource map[string][]listenerKey
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		listeners: make(map[listenerKey]EventHandler),
		bySource:  make(map[string][]listenerKey),
	}
}

func sourceKey(sourceModule, eventName string) string { return sourceModule + ":" + eventName }

// Listen registers listeningModule's interest in sourceModule's eventName.
func (d *EventDispatcher) Listen(listeningModule, sourceModule, eventName string, h EventHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := listenerKey{listeningModule: listeningModule, sourceModule: sourceModule, eventName: eventName}
	if _, exists := d.listeners[key]; exists {
		return fmt.Errorf("razy: module %q already listens for %s:%s", listeningModule, sourceModule, eventName)
	}
	d.listeners[key] = h
	sk := sourceKey(sourceModule, eventName)
	d.bySource[sk] = append(d.bySource[sk], key)
	return nil
}

// Unlisten removes a previously registered listener, used by a module's
// Destroy to release its registrations at teardown.
func (d *EventDispatcher) Unlisten(listeningModule, sourceModule, eventName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := listenerKey{listeningModule: listeningModule, sourceModule: sourceModule, eventName: eventName}
	delete(d.listeners, key)
	sk := sourceKey(sourceModule, eventName)
	keys := d.bySource[sk]
	for i, k := range keys {
		if k == key {
			d.bySource[sk] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
}

// Fire invokes every listener registered against (source, eventName) and
// collects their results in registration order. A listener handler error
// does not halt the fan-out; it is attached to that entry's slot in the
// returned error slice, mirroring per-listener isolation during fan-out.
func (d *EventDispatcher) Fire(ctx context.Context, source, eventName string, args []any) ([]any, []error) {
	d.mu.RLock()
	keys := append([]listenerKey(nil), d.bySource[sourceKey(source, eventName)]...)
	handlers := make([]EventHandler, len(keys))
	for i, k := range keys {
		handlers[i] = d.listeners[k]
	}
	d.mu.RUnlock()

	results := make([]any, len(handlers))
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		res, err := h(ctx, args)
		results[i] = res
		errs[i] = err
	}
	return results, errs
}
