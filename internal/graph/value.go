package graph

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/zjrosen/assetcache/internal/asset"
)

// ValueKind tags the representation held by a Value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindList   ValueKind = "list"
	KindNode   ValueKind = "node"
	KindRef    ValueKind = "ref"
)

// IsValid returns true if k is a recognized ValueKind.
func (k ValueKind) IsValid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindList, KindNode, KindRef:
		return true
	}
	return false
}

// Value is one typed field value: a primitive, a list of values, a nested
// composite node, or a reference to another item by ID.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	flt  float64
	flag bool
	list []Value
	node *Node
	ref  asset.ID
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value { return Value{kind: KindInt, num: i} }
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }
func Ref(id asset.ID) Value { return Value{kind: KindRef, ref: id} }
func NodeValue(n *Node) Value { return Value{kind: KindNode, node: n} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Floats builds a list of float values.
func Floats(fs ...float64) Value {
	items := make([]Value, len(fs))
	for i, f := range fs {
		items[i] = Float(f)
	}
	return List(items...)
}

// Kind returns the value's kind. The zero Value has an empty kind.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.flt, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }
func (v Value) AsRef() (asset.ID, bool) { return v.ref, v.kind == KindRef }
func (v Value) AsNode() (*Node, bool) { return v.node, v.kind == KindNode && v.node != nil }

// AsList returns a copy of the list items.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// Len returns the number of list items, or zero for non-lists.
func (v Value) Len() int {
	if v.kind != KindList {
		return 0
	}
	return len(v.list)
}

// Validate checks that the value can be persisted: known kinds, UTF-8
// strings, finite floats, and non-nil nested nodes.
func (v Value) Validate() error {
	switch v.kind {
	case KindString:
		if !utf8.ValidString(v.str) {
			return fmt.Errorf("string %q is not valid UTF-8", v.str)
		}
		return nil
	case KindInt, KindBool, KindRef:
		return nil
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return fmt.Errorf("float value %v is not finite", v.flt)
		}
		return nil
	case KindList:
		for i, item := range v.list {
			if err := item.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	case KindNode:
		if v.node == nil {
			return fmt.Errorf("node value is nil")
		}
		return v.node.Validate()
	default:
		return fmt.Errorf("unknown value kind %q", v.kind)
	}
}

// Equal reports whether two values are observably the same.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt
	case KindBool:
		return v.flag == o.flag
	case KindRef:
		return v.ref == o.ref
	case KindNode:
		return Equal(v.node, o.node)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// clone deep-copies nested lists and nodes.
func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		v.list = items
	case KindNode:
		v.node = v.node.Clone()
	}
	return v
}

// collectRefs appends every reference reachable from v.
func (v Value) collectRefs(out []asset.ID) []asset.ID {
	switch v.kind {
	case KindRef:
		out = append(out, v.ref)
	case KindList:
		for _, item := range v.list {
			out = item.collectRefs(out)
		}
	case KindNode:
		if v.node != nil {
			out = v.node.collectRefs(out)
		}
	}
	return out
}
