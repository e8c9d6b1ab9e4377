// Package graph implements the in-memory artifact: a typed property tree whose
// nodes carry a type name, an optional item UUID, and insertion-ordered typed
// fields. Structural parents are modeled as named collections reached through
// an Index, so nodes hold only a weak back-reference (the collection name).
package graph

import (
	"fmt"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zjrosen/assetcache/internal/asset"
)

// Field is one named value of a node, in declaration order.
type Field struct {
	Name  string
	Value Value
}

// Node is a typed composite value. Root nodes of artifacts carry the item's
// UUID; nested nodes usually do not.
type Node struct {
	typ    string
	uuid   asset.ID
	fields *orderedmap.OrderedMap[string, Value]
	owner  string
}

// NewNode creates an empty node of the given type.
func NewNode(typ string) *Node {
	return &Node{
		typ:    typ,
		fields: orderedmap.New[string, Value](),
	}
}

// Type returns the node's type name.
func (n *Node) Type() string { return n.typ }

// UUID returns the item identifier embedded in the node, if any.
func (n *Node) UUID() asset.ID { return n.uuid }

// SetUUID embeds an item identifier in the node.
func (n *Node) SetUUID(id asset.ID) { n.uuid = id }

// Owner returns the name of the collection the node is attached to, or "".
func (n *Node) Owner() string { return n.owner }

// Set assigns a field. New fields are appended; existing fields keep their
// position. It returns n for chaining.
func (n *Node) Set(name string, v Value) *Node {
	n.fields.Set(name, v)
	return n
}

// Get returns the named field.
func (n *Node) Get(name string) (Value, bool) {
	return n.fields.Get(name)
}

// Delete removes the named field.
func (n *Node) Delete(name string) {
	n.fields.Delete(name)
}

// Len returns the number of fields.
func (n *Node) Len() int { return n.fields.Len() }

// Fields returns the fields in declaration order.
func (n *Node) Fields() []Field {
	out := make([]Field, 0, n.fields.Len())
	for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Field{Name: pair.Key, Value: pair.Value})
	}
	return out
}

// Refs returns every item reference reachable from the node, in field order.
func (n *Node) Refs() []asset.ID {
	return n.collectRefs(nil)
}

func (n *Node) collectRefs(out []asset.ID) []asset.ID {
	for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
		out = pair.Value.collectRefs(out)
	}
	return out
}

// Validate checks the whole tree for values that cannot be persisted.
func (n *Node) Validate() error {
	if n.typ == "" {
		return fmt.Errorf("node has no type")
	}
	if !utf8.ValidString(n.typ) {
		return fmt.Errorf("type name %q is not valid UTF-8", n.typ)
	}
	for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "" {
			return fmt.Errorf("%s: empty field name", n.typ)
		}
		if !utf8.ValidString(pair.Key) {
			return fmt.Errorf("%s: field name %q is not valid UTF-8", n.typ, pair.Key)
		}
		if err := pair.Value.Validate(); err != nil {
			return fmt.Errorf("%s.%s: %w", n.typ, pair.Key, err)
		}
	}
	return nil
}

// Clone returns a detached deep copy. The copy has no owner.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := NewNode(n.typ)
	c.uuid = n.uuid
	for pair := n.fields.Oldest(); pair != nil; pair = pair.Next() {
		c.fields.Set(pair.Key, pair.Value.clone())
	}
	return c
}

// Equal reports whether two trees are observably the same: type, UUID, and
// fields in the same order with equal values. Ownership is not compared.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typ != b.typ || a.uuid != b.uuid || a.fields.Len() != b.fields.Len() {
		return false
	}
	pa, pb := a.fields.Oldest(), b.fields.Oldest()
	for pa != nil && pb != nil {
		if pa.Key != pb.Key || !pa.Value.Equal(pb.Value) {
			return false
		}
		pa, pb = pa.Next(), pb.Next()
	}
	return pa == nil && pb == nil
}
