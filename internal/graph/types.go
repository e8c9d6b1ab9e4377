package graph

import (
	"fmt"
	"sort"
	"sync"
)

// TypeInfo describes a node type. Base names the parent type, or "" for roots
// of the hierarchy.
type TypeInfo struct {
	Name string
	Base string
}

// Types is the registry of node types the codec can reconstruct. A type name
// is the only schema information an envelope carries.
type Types struct {
	mu    sync.RWMutex
	types map[string]TypeInfo
}

// NewTypes creates an empty type registry.
func NewTypes() *Types {
	return &Types{types: make(map[string]TypeInfo)}
}

// Register adds a type. The base type must already be registered.
func (t *Types) Register(info TypeInfo) error {
	if info.Name == "" {
		return fmt.Errorf("type name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.types[info.Name]; ok {
		return fmt.Errorf("type %q already registered", info.Name)
	}
	if info.Base != "" {
		if _, ok := t.types[info.Base]; !ok {
			return fmt.Errorf("type %q: unknown base %q", info.Name, info.Base)
		}
	}
	t.types[info.Name] = info
	return nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (t *Types) MustRegister(infos ...TypeInfo) {
	for _, info := range infos {
		if err := t.Register(info); err != nil {
			panic(err)
		}
	}
}

// Known reports whether name is registered.
func (t *Types) Known(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.types[name]
	return ok
}

// IsA reports whether name is want or derives from it. An empty want matches
// any registered type.
func (t *Types) IsA(name, want string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.types[name]
	if !ok {
		return false
	}
	if want == "" {
		return true
	}
	for {
		if info.Name == want {
			return true
		}
		if info.Base == "" {
			return false
		}
		info, ok = t.types[info.Base]
		if !ok {
			return false
		}
	}
}

// Names returns the registered type names, sorted.
func (t *Types) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.types))
	for name := range t.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
