// Package kinds holds the built-in content kinds and the node types their
// artifacts use.
package kinds

import (
	"fmt"

	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
)

// Built-in node types.
const (
	TypeAsset    = "Asset"
	TypeMesh     = "Mesh"
	TypeMaterial = "Material"
	TypeBounds   = "Bounds"
)

// RegisterTypes adds the built-in node types to types.
func RegisterTypes(types *graph.Types) error {
	for _, info := range []graph.TypeInfo{
		{Name: TypeAsset},
		{Name: TypeMesh, Base: TypeAsset},
		{Name: TypeMaterial, Base: TypeAsset},
		{Name: TypeBounds},
	} {
		if err := types.Register(info); err != nil {
			return fmt.Errorf("registering type %s: %w", info.Name, err)
		}
	}
	return nil
}

// Options tune the built-in bindings.
type Options struct {
	// PrettyEnvelopes makes the asset kind write indented JSON.
	PrettyEnvelopes bool
}

// Builtin returns the built-in bindings.
func Builtin(opts Options) []binding.Binding {
	return []binding.Binding{
		Obj(),
		Envelope(opts.PrettyEnvelopes),
	}
}

// Register adds the built-in bindings to reg. A non-empty enabled list limits
// registration to those extensions.
func Register(reg *binding.Registry, opts Options, enabled []string) error {
	allow := make(map[string]bool, len(enabled))
	for _, ext := range enabled {
		allow[binding.NormalizeExtension(ext)] = true
	}
	for _, b := range Builtin(opts) {
		if len(allow) > 0 && !allow[b.Extension] {
			continue
		}
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}
