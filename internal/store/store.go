// Package store holds the one live artifact of each item. Entries are keyed
// by identifier and handed out as generation-stamped handles so consumers can
// tell when the artifact they hold has been replaced or evicted.
package store

import (
	"fmt"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/graph"
	"github.com/zjrosen/assetcache/internal/log"
)

// Locator answers the identity questions the store needs. It is satisfied by
// *identity.Registry.
type Locator interface {
	Contains(id asset.ID) bool
	ResolveByPath(path string) (asset.ID, error)
}

// TeardownFunc releases an artifact leaving the store, typically by detaching
// it from its owner collection.
type TeardownFunc func(id asset.ID, node *graph.Node)

type entry struct {
	node       *graph.Node
	generation uint64
}

// Store is the artifact store. Put and Evict are serialized by one mutex.
type Store struct {
	mu         sync.Mutex
	cache      *gocache.Cache
	locator    Locator
	teardown   TeardownFunc
	generation uint64
}

// Option configures a Store.
type Option func(*Store)

// WithTeardown sets the function called for every artifact that is replaced,
// evicted, or discarded.
func WithTeardown(fn TeardownFunc) Option {
	return func(s *Store) { s.teardown = fn }
}

// New creates an empty store. Entries never expire.
func New(locator Locator, opts ...Option) *Store {
	s := &Store{
		cache:   gocache.New(gocache.NoExpiration, 0),
		locator: locator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lookup(id asset.ID) (entry, bool) {
	value, found := s.cache.Get(string(id))
	if !found {
		return entry{}, false
	}
	e, ok := value.(entry)
	if !ok {
		log.Error(log.CatStore, "wrong type assertion when getting entry", "id", id)
		return entry{}, false
	}
	return e, true
}

// Get returns a handle to id's artifact. It never derives one.
func (s *Store) Get(id asset.ID) (Handle, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Handle{}, false
	}
	return Handle{id: id, node: e.node, generation: e.generation, store: s}, true
}

// Put installs node as id's artifact, tearing down any previous one. If id
// has no location record the node is torn down instead and
// ErrUnknownIdentifier is returned, so a put that lost a race with removal
// never resurrects the item.
func (s *Store) Put(id asset.ID, node *graph.Node) (Handle, error) {
	if node == nil {
		return Handle{}, fmt.Errorf("put %s: nil artifact", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.locator.Contains(id) {
		s.release(id, node)
		log.Warn(log.CatStore, "Discarded artifact for unregistered item", "id", id)
		return Handle{}, fmt.Errorf("put %s: %w", id, asset.ErrUnknownIdentifier)
	}

	if prev, ok := s.lookup(id); ok && prev.node != node {
		s.release(id, prev.node)
	}
	s.generation++
	e := entry{node: node, generation: s.generation}
	s.cache.Set(string(id), e, gocache.NoExpiration)
	log.Debug(log.CatStore, "Installed artifact", "id", id, "type", node.Type(), "generation", e.generation)
	return Handle{id: id, node: node, generation: e.generation, store: s}, nil
}

// Evict removes id's artifact without replacement. It reports whether an
// artifact was present.
func (s *Store) Evict(id asset.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.lookup(id)
	if !ok {
		return false
	}
	s.cache.Delete(string(id))
	s.release(id, prev.node)
	log.Debug(log.CatStore, "Evicted artifact", "id", id)
	return true
}

// Flush evicts every artifact.
func (s *Store) Flush() {
	for _, id := range s.IDs() {
		s.Evict(id)
	}
}

func (s *Store) release(id asset.ID, node *graph.Node) {
	if s.teardown != nil && node != nil {
		s.teardown(id, node)
	}
}

// Contains reports whether the item registered at path has a live artifact.
// Paths are compared in normalized form.
func (s *Store) Contains(path string) bool {
	id, err := s.locator.ResolveByPath(path)
	if err != nil {
		return false
	}
	_, ok := s.lookup(id)
	return ok
}

// Has reports whether id has a live artifact.
func (s *Store) Has(id asset.ID) bool {
	_, ok := s.lookup(id)
	return ok
}

// Len returns the number of live artifacts.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// IDs returns the identifiers with live artifacts, sorted.
func (s *Store) IDs() []asset.ID {
	items := s.cache.Items()
	ids := make([]asset.ID, 0, len(items))
	for k := range items {
		ids = append(ids, asset.ID(k))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) currentGeneration(id asset.ID) uint64 {
	e, ok := s.lookup(id)
	if !ok {
		return 0
	}
	return e.generation
}
