package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/assetcache/internal/asset"
)

// Index maps collection names to collections. Nodes find their owner through
// it rather than holding a pointer to the collection.
type Index struct {
	mu   sync.RWMutex
	cols map[string]*Collection
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{cols: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (ix *Index) Collection(name string) *Collection {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.cols[name]; ok {
		return c
	}
	c := &Collection{name: name, members: make(map[asset.ID]*Node)}
	ix.cols[name] = c
	return c
}

// Lookup returns the named collection without creating it.
func (ix *Index) Lookup(name string) (*Collection, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.cols[name]
	return c, ok
}

// Drop forgets a collection. Nodes still naming it can no longer be detached.
func (ix *Index) Drop(name string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.cols, name)
}

// CanDetach reports, as a DetachError, why n could not be cleanly removed
// from its owner: no owner, an owner the index no longer knows, lost
// membership, or other members still referencing it.
func (ix *Index) CanDetach(n *Node) error {
	c, err := ix.resolveOwner(n)
	if err != nil {
		return err
	}
	if deps := c.Dependents(n.uuid); len(deps) > 0 {
		return &asset.DetachError{
			ID:     n.uuid,
			Owner:  c.name,
			Reason: fmt.Sprintf("referenced by %d item(s): %v", len(deps), deps),
		}
	}
	return nil
}

// Detach unlinks n from its owner without checking dependents. Replacing an
// artifact during a rebuild uses this, since the new root keeps the UUID.
func (ix *Index) Detach(n *Node) error {
	c, err := ix.resolveOwner(n)
	if err != nil {
		return err
	}
	c.remove(n)
	return nil
}

func (ix *Index) resolveOwner(n *Node) (*Collection, error) {
	if n == nil {
		return nil, &asset.DetachError{Reason: "nil node"}
	}
	if n.owner == "" {
		return nil, &asset.DetachError{ID: n.uuid, Reason: "node has no owner"}
	}
	c, ok := ix.Lookup(n.owner)
	if !ok {
		return nil, &asset.DetachError{ID: n.uuid, Owner: n.owner, Reason: "owner collection not found"}
	}
	if !c.Contains(n) {
		return nil, &asset.DetachError{ID: n.uuid, Owner: n.owner, Reason: "node is not a member of its owner"}
	}
	return c, nil
}

// Collection is a structural parent of artifact roots, keyed by UUID.
type Collection struct {
	name    string
	mu      sync.RWMutex
	members map[asset.ID]*Node
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Attach makes n a member. A previous member with the same UUID loses its
// membership. Nodes owned by another collection, or without a UUID, are
// rejected.
func (c *Collection) Attach(n *Node) error {
	if n.uuid == "" {
		return fmt.Errorf("attach %s to %s: node has no uuid", n.typ, c.name)
	}
	if n.owner != "" && n.owner != c.name {
		return fmt.Errorf("attach %s to %s: already owned by %s", n.uuid, c.name, n.owner)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.members[n.uuid]; ok && prev != n {
		prev.owner = ""
	}
	c.members[n.uuid] = n
	n.owner = c.name
	return nil
}

// remove drops n only if it is still the member stored under its UUID.
func (c *Collection) remove(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.members[n.uuid]; ok && cur == n {
		delete(c.members, n.uuid)
	}
	n.owner = ""
}

// Contains reports whether n itself (not just its UUID) is a member.
func (c *Collection) Contains(n *Node) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.members[n.uuid]
	return ok && cur == n
}

// Get returns the member with the given UUID.
func (c *Collection) Get(id asset.ID) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.members[id]
	return n, ok
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Dependents returns the members, other than id itself, holding a reference
// to id. The result is sorted.
func (c *Collection) Dependents(id asset.ID) []asset.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var deps []asset.ID
	for memberID, n := range c.members {
		if memberID == id {
			continue
		}
		for _, ref := range n.Refs() {
			if ref == id {
				deps = append(deps, memberID)
				break
			}
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}
