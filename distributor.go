package razy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ModuleState tracks where a module sits in the init -> load -> ready ->
// destroy lifecycle.
type ModuleState int

const (
	StateUnloaded ModuleState = iota
	StateInit
	StateLoaded
	StateReady
	StateDestroyed
)

func (s ModuleState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoaded:
		return "load"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unloaded"
	}
}

// Module is the lifecycle contract a module bundle implements. Route,
// command, and event registration happens inside Init/Load; Ready runs once
// all of a module's declared dependencies have themselves reached Ready.
type Module interface {
	Info() ModuleInfo
	// Dependencies returns the module codes that must reach Ready before
	// this module's own Ready is invoked.
	Dependencies() []string
	Init(d *Distributor) error
	Load(d *Distributor) error
	Ready(d *Distributor) error
	Destroy(d *Distributor) error
}

type moduleEntry struct {
	module Module
	state  ModuleState
}

// Distributor owns every shared resource for one (code, tag) runtime: its
// module registry and the state threaded explicitly into request handling.
// There is no process-wide singleton — callers construct one Distributor
// per isolated site and pass it down explicitly rather than reaching for
// global mutable state.
type Distributor struct {
	ID     DistributorID
	Config DistributorConfig
	Logger *slog.Logger

	mu          sync.RWMutex
	modules     map[string]*moduleEntry
	bootOrder   []string
	onReadyHook map[string][]func() error
	frozen      bool
}

// NewDistributor creates a Distributor in the pre-boot state. Route
// registration (and therefore module Init/Load) may only happen before
// Boot freezes it.
func NewDistributor(id DistributorID, cfg DistributorConfig, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		ID:          id,
		Config:      cfg,
		Logger:      logger.With("distributor", id.String()),
		modules:     make(map[string]*moduleEntry),
		onReadyHook: make(map[string][]func() error),
	}
}

// Register adds a module to the boot graph. It must be called before Boot.
func (d *Distributor) Register(m Module) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("razy: distributor %s already booted, cannot register %s", d.ID, m.Info().Code)
	}
	code := m.Info().Code
	if _, exists := d.modules[code]; exists {
		return fmt.Errorf("razy: module %q already registered: %w", code, ErrRouteConflict)
	}
	d.modules[code] = &moduleEntry{module: m, state: StateUnloaded}
	return nil
}

// OnReady registers a callback fired synchronously right after moduleCode
// transitions to StateReady, letting a dependent module defer setup until
// another module has fully booted.
func (d *Distributor) OnReady(moduleCode string, cb func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReadyHook[moduleCode] = append(d.onReadyHook[moduleCode], cb)
}

// Boot runs every registered module through Init -> Load, then Ready in
// dependency order (a topological sort over Dependencies()), and freezes
// the distributor against further registration. Route tables built during
// Init/Load become read-mostly once Boot returns.
func (d *Distributor) Boot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return fmt.Errorf("razy: distributor %s already booted", d.ID)
	}

	order, err := d.topoSort()
	if err != nil {
		return err
	}

	for _, code := range order {
		entry := d.modules[code]
		if err := entry.module.Init(d); err != nil {
			return fmt.Errorf("razy: module %q init: %w", code, err)
		}
		entry.state = StateInit
	}
	for _, code := range order {
		entry := d.modules[code]
		if err := entry.module.Load(d); err != nil {
			return fmt.Errorf("razy: module %q load: %w", code, err)
		}
		entry.state = StateLoaded
	}
	for _, code := range order {
		entry := d.modules[code]
		if err := entry.module.Ready(d); err != nil {
			return fmt.Errorf("razy: module %q ready: %w", code, err)
		}
		entry.state = StateReady
		for _, cb := range d.onReadyHook[code] {
			if err := cb(); err != nil {
				return fmt.Errorf("razy: module %q onReady hook: %w", code, err)
			}
		}
	}

	d.bootOrder = order
	d.frozen = true
	d.Logger.Info("distributor booted", "modules", len(order))
	return nil
}

// Teardown destroys modules in reverse boot order.
func (d *Distributor) Teardown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for i := len(d.bootOrder) - 1; i >= 0; i-- {
		code := d.bootOrder[i]
		entry := d.modules[code]
		if err := entry.module.Destroy(d); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("razy: module %q destroy: %w", code, err)
		}
		entry.state = StateDestroyed
	}
	return firstErr
}

// Module looks up a registered module by code.
func (d *Distributor) Module(code string) (Module, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.modules[code]
	if !ok {
		return nil, false
	}
	return entry.module, true
}

// State reports a module's current lifecycle state.
func (d *Distributor) State(code string) ModuleState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.modules[code]
	if !ok {
		return StateUnloaded
	}
	return entry.state
}

// topoSort orders modules so every dependency precedes its dependents.
// Callers must hold d.mu.
func (d *Distributor) topoSort() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(d.modules))
	order := make([]string, 0, len(d.modules))

	var visit func(code string, path []string) error
	visit = func(code string, path []string) error {
		switch color[code] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("razy: module dependency cycle: %v", append(path, code))
		}
		color[code] = gray
		entry, ok := d.modules[code]
		if !ok {
			return fmt.Errorf("razy: %w: %s (dependency of %v)", ErrModuleNotFound, code, path)
		}
		for _, dep := range entry.module.Dependencies() {
			if err := visit(dep, append(path, code)); err != nil {
				return err
			}
		}
		color[code] = black
		order = append(order, code)
		return nil
	}

	codes := make([]string, 0, len(d.modules))
	for code := range d.modules {
		codes = append(codes, code)
	}
	// Deterministic base order before the DFS so ties (independent
	// modules) boot in the same order across runs.
	sort.Strings(codes)
	for _, code := range codes {
		if err := visit(code, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
