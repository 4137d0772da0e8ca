package route

import (
	"fmt"
	"sort"
	"sync"

	"github.com/razyhq/razy"
)

// RouteType distinguishes how a binding's handler is ultimately reached.
type RouteType int

const (
	TypeStandard RouteType = iota
	TypeLazy
	TypeScript
	TypeShadow
)

func (t RouteType) String() string {
	switch t {
	case TypeLazy:
		return "lazy"
	case TypeScript:
		return "script"
	case TypeShadow:
		return "shadow"
	default:
		return "standard"
	}
}

// ShadowTarget names the module/closure a shadow RouteBinding delegates to.
type ShadowTarget struct {
	TargetModule      string
	TargetClosurePath string
}

// RouteBinding is one entry in the composite routing table.
type RouteBinding struct {
	Host        string
	Pattern     *Pattern
	Method      string // GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS, or "*"
	ModuleCode  string
	ClosurePath string
	Type        RouteType
	Shadow      *ShadowTarget

	regOrder int
}

// ArgNames returns the binding's ordered capture group names.
func (b *RouteBinding) ArgNames() []string { return b.Pattern.ArgNames() }

// Table is the compiled, per-distributor composite routing index built
// from many modules. It is read-mostly after a distributor's boot phase
//: registration takes a write lock, Match takes a read lock.
type Table struct {
	mu       sync.RWMutex
	bindings []*RouteBinding
	byKey    map[string]*RouteBinding // "host\x00method\x00patternRaw" -> binding
	seq      int
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{byKey: make(map[string]*RouteBinding)}
}

func tableKey(host, method, patternRaw string) string {
	return host + "\x00" + method + "\x00" + patternRaw
}

// AddRoute registers an absolute route. Returns ErrRouteConflict if the
// (host, method, pattern) triple is already bound, or ErrPatternSyntax if
// the pattern fails to compile.
func (t *Table) AddRoute(host, method, pattern, moduleCode, closurePath string) (*RouteBinding, error) {
	return t.add(host, method, pattern, moduleCode, closurePath, TypeStandard, nil)
}

// AddShadowRoute registers a shadow binding. If targetClosurePath is empty,
// pattern itself is stored as the target path.
func (t *Table) AddShadowRoute(host, method, pattern, targetModule, targetClosurePath string) (*RouteBinding, error) {
	if targetClosurePath == "" {
		targetClosurePath = pattern
	}
	return t.add(host, method, pattern, "", "", TypeShadow, &ShadowTarget{
		TargetModule:      targetModule,
		TargetClosurePath: targetClosurePath,
	})
}

func (t *Table) add(host, method, pattern, moduleCode, closurePath string, typ RouteType, shadow *ShadowTarget) (*RouteBinding, error) {
	compiled, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := tableKey(host, method, pattern)
	if _, exists := t.byKey[key]; exists {
		return nil, fmt.Errorf("%w: %s %s %s", razy.ErrRouteConflict, host, method, pattern)
	}

	binding := &RouteBinding{
		Host:        host,
		Pattern:     compiled,
		Method:      method,
		ModuleCode:  moduleCode,
		ClosurePath: closurePath,
		Type:        typ,
		Shadow:      shadow,
		regOrder:    t.seq,
	}
	t.seq++
	t.byKey[key] = binding
	t.bindings = append(t.bindings, binding)
	sort.SliceStable(t.bindings, func(i, j int) bool { return less(t.bindings[i], t.bindings[j]) })
	return binding, nil
}

// less orders bindings by specificity: literal segments outrank token
// segments, longer literal prefixes outrank shorter ones, and among
// equally specific patterns an exact method beats "*"; ties fall back to
// registration order.
func less(a, b *RouteBinding) bool {
	if a.Pattern.literalPrefixLen != b.Pattern.literalPrefixLen {
		return a.Pattern.literalPrefixLen > b.Pattern.literalPrefixLen
	}
	if a.Pattern.tokenCount != b.Pattern.tokenCount {
		return a.Pattern.tokenCount < b.Pattern.tokenCount
	}
	aWild, bWild := a.Method == "*", b.Method == "*"
	if aWild != bWild {
		return !aWild
	}
	return a.regOrder < b.regOrder
}

// Match scans the table in specificity order and returns the first binding
// whose host, method, and pattern all match. host must already be resolved
// (e.g. via an alias lookup) before calling Match.
func (t *Table) Match(host, method, path string) (*RouteBinding, []string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, b := range t.bindings {
		if b.Host != "" && b.Host != host {
			continue
		}
		if b.Method != method && b.Method != "*" {
			continue
		}
		if args, ok := b.Pattern.Match(path); ok {
			return b, args, nil
		}
	}
	return nil, nil, razy.ErrRouteNotFound
}

// FindRoute looks up the exact binding registered for (host, method,
// pattern) without performing capture matching. Used by the dispatcher to
// resolve a shadow target's closure path against the table, so that a
// shadow pointing at another shadow's pattern is itself detected.
func (t *Table) FindRoute(host, method, pattern string) (*RouteBinding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.byKey[tableKey(host, method, pattern)]
	if !ok && method != "*" {
		b, ok = t.byKey[tableKey(host, "*", pattern)]
	}
	return b, ok
}

// LazyTree is a nested map from path segments to handler closure paths (or
// further nested maps). The special key "@self" binds the parent segment
// itself.
type LazyTree map[string]any

// AddLazyRoute expands a nested LazyTree into absolute routes under the
// module's alias prefix (e.g. alias "blog" + tree {"posts": {"@self":
// "list.php", "(:d)": "show.php"}} expands to "/blog/posts" and
// "/blog/posts/(:d)").
func (t *Table) AddLazyRoute(host, method, alias string, tree LazyTree, moduleCode string) error {
	base := "/" + alias
	return t.expandLazy(host, method, base, tree, moduleCode)
}

func (t *Table) expandLazy(host, method, base string, tree LazyTree, moduleCode string) error {
	for key, val := range tree {
		switch v := val.(type) {
		case string:
			pattern := base
			if key != "@self" {
				pattern = base + "/" + key
			}
			if _, err := t.AddRoute(host, method, pattern, moduleCode, v); err != nil {
				return err
			}
		case LazyTree:
			next := base
			if key != "@self" {
				next = base + "/" + key
			}
			if err := t.expandLazy(host, method, next, v, moduleCode); err != nil {
				return err
			}
		case map[string]any:
			next := base
			if key != "@self" {
				next = base + "/" + key
			}
			if err := t.expandLazy(host, method, next, LazyTree(v), moduleCode); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: lazy route leaf for %q must be a string or nested map", razy.ErrPatternSyntax, key)
		}
	}
	return nil
}

// Bindings returns a snapshot of all registered bindings, in specificity
// order.
func (t *Table) Bindings() []*RouteBinding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*RouteBinding, len(t.bindings))
	copy(out, t.bindings)
	return out
}
