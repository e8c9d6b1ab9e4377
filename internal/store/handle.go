package store

import (
	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/graph"
)

// Handle is a non-owning reference to an installed artifact. The zero Handle
// refers to nothing.
type Handle struct {
	id         asset.ID
	node       *graph.Node
	generation uint64
	store      *Store
}

// ID returns the item the handle refers to.
func (h Handle) ID() asset.ID { return h.id }

// Node returns the artifact. Callers must not mutate it.
func (h Handle) Node() *graph.Node { return h.node }

// Generation returns the install generation the handle was taken from.
func (h Handle) Generation() uint64 { return h.generation }

// Valid reports whether the handle refers to an artifact at all.
func (h Handle) Valid() bool { return h.node != nil }

// Stale reports whether the artifact has since been replaced or evicted.
func (h Handle) Stale() bool {
	if h.store == nil {
		return true
	}
	return h.store.currentGeneration(h.id) != h.generation
}
