// Package binding defines how a kind of content item is derived: the
// extension it is recognized by, the source written for new items, and the
// process/unprocess pair converting between source text and artifact.
package binding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/envelope"
	"github.com/zjrosen/assetcache/internal/graph"
)

// Env is the context handle passed to every transform. It replaces ambient
// globals: the collection new artifacts are attached to, the index resolving
// owner names, the type registry, and the envelope codec.
type Env struct {
	Parent *graph.Collection
	Index  *graph.Index
	Types  *graph.Types
	Codec  *envelope.Codec
}

// NewEnv builds an Env whose parent collection is named parent.
func NewEnv(types *graph.Types, parent string) *Env {
	ix := graph.NewIndex()
	return &Env{
		Parent: ix.Collection(parent),
		Index:  ix,
		Types:  types,
		Codec:  envelope.New(types),
	}
}

// ProcessFunc derives an artifact from source text.
type ProcessFunc func(ctx context.Context, env *Env, src []byte) (*graph.Node, error)

// UnprocessFunc serializes an artifact back to source text. Processing the
// result must yield an artifact equal to the input.
type UnprocessFunc func(ctx context.Context, env *Env, node *graph.Node) ([]byte, error)

// Binding ties one kind of source to its transforms.
type Binding struct {
	// Extension without the leading dot, e.g. "obj".
	Extension string

	// Description is shown by the kinds command.
	Description string

	// DefaultSource is written when a new item of this kind is created.
	DefaultSource []byte

	Process   ProcessFunc
	Unprocess UnprocessFunc
}

// Validate checks that the binding is complete.
func (b Binding) Validate() error {
	if NormalizeExtension(b.Extension) == "" {
		return fmt.Errorf("binding extension is required")
	}
	if b.Process == nil || b.Unprocess == nil {
		return fmt.Errorf("binding %q: process and unprocess are required", b.Extension)
	}
	return nil
}

// NormalizeExtension lowercases ext and strips a leading dot.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ExtensionOf returns the normalized extension of path.
func ExtensionOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || strings.ContainsAny(path[i:], `/\`) {
		return ""
	}
	return NormalizeExtension(path[i+1:])
}

// Registry holds the bindings, one per extension.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Register adds b. Registering the same extension twice is an error.
func (r *Registry) Register(b Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	ext := NormalizeExtension(b.Extension)
	b.Extension = ext

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[ext]; exists {
		return fmt.Errorf("binding for %q already registered", ext)
	}
	r.bindings[ext] = b
	return nil
}

// Lookup returns the binding for ext, with or without the leading dot.
func (r *Registry) Lookup(ext string) (Binding, error) {
	ext = NormalizeExtension(ext)
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[ext]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q", asset.ErrUnknownKind, ext)
	}
	return b, nil
}

// ForPath returns the binding for path's extension.
func (r *Registry) ForPath(path string) (Binding, error) {
	return r.Lookup(ExtensionOf(path))
}

// Handles reports whether a binding exists for path's extension.
func (r *Registry) Handles(path string) bool {
	_, err := r.ForPath(path)
	return err == nil
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.bindings))
	for ext := range r.bindings {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Bindings returns all bindings sorted by extension.
func (r *Registry) Bindings() []Binding {
	exts := r.Extensions()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(exts))
	for _, ext := range exts {
		out = append(out, r.bindings[ext])
	}
	return out
}
