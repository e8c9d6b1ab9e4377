// Package envelope reads and writes artifacts as JSON envelopes. An envelope
// holds a list of items; every item carries its type name, its UUID, and
// insertion-ordered fields tagged with their value kind, so a registered type
// name is all the schema a reader needs.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/graph"
	"github.com/zjrosen/assetcache/internal/log"
)

const (
	// Format identifies assetcache envelopes.
	Format = "assetcache.envelope"
	// Version is the envelope version written by Save.
	Version = 1
)

type wireEnvelope struct {
	Format  string     `json:"format"`
	Version int        `json:"version"`
	Items   []wireNode `json:"items"`
}

type wireNode struct {
	Type   string                                    `json:"type"`
	UUID   string                                    `json:"uuid,omitempty"`
	Fields *orderedmap.OrderedMap[string, wireValue] `json:"fields"`
}

type wireValue struct {
	Kind  graph.ValueKind `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// Codec converts between artifacts and envelopes.
type Codec struct {
	types *graph.Types
}

// New creates a codec that reconstructs the types registered in types.
func New(types *graph.Types) *Codec {
	return &Codec{types: types}
}

// Types returns the type registry used for reconstruction.
func (c *Codec) Types() *graph.Types { return c.types }

// Load parses data, which must hold exactly one root item of type want (or a
// type derived from it). When owner is non-nil and the root carries a UUID,
// the root is attached to owner. Nothing is attached on failure.
func (c *Codec) Load(data []byte, owner *graph.Collection, want string) (*graph.Node, error) {
	var env wireEnvelope
	if err := decode(data, &env); err != nil {
		return nil, err
	}
	if env.Format != Format {
		return nil, &asset.SyntaxError{Err: fmt.Errorf("unexpected format %q", env.Format)}
	}
	if env.Version < 1 || env.Version > Version {
		return nil, &asset.SyntaxError{Err: fmt.Errorf("unsupported version %d", env.Version)}
	}
	if len(env.Items) != 1 {
		return nil, &asset.ArityError{Count: len(env.Items)}
	}

	root, err := c.decodeNode(env.Items[0])
	if err != nil {
		return nil, err
	}
	if !c.types.IsA(root.Type(), want) {
		return nil, &asset.TypeMismatchError{Want: want, Got: root.Type()}
	}

	if owner != nil && root.UUID() != "" {
		if err := owner.Attach(root); err != nil {
			return nil, fmt.Errorf("attaching %s: %w", root.UUID(), err)
		}
	}
	log.Debug(log.CatCodec, "Loaded envelope", "type", root.Type(), "uuid", root.UUID(), "fields", root.Len())
	return root, nil
}

// Save serializes node as a single-item envelope. Output is deterministic:
// saving a loaded envelope reproduces it byte for byte.
func (c *Codec) Save(node *graph.Node, pretty bool) ([]byte, error) {
	if node == nil {
		return nil, fmt.Errorf("save: nil node")
	}
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	item, err := encodeNode(node)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	data, err := json.Marshal(wireEnvelope{Format: Format, Version: Version, Items: []wireNode{item}})
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	if !pretty {
		return data, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// decode unmarshals data, turning decoder failures into located syntax errors.
func decode(data []byte, v any) error {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return syntaxError(data, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return syntaxError(data, err)
	}
	return nil
}

func syntaxError(data []byte, err error) error {
	var (
		se *json.SyntaxError
		te *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &se):
		return &asset.SyntaxError{Location: locate(data, se.Offset), Err: err}
	case errors.As(err, &te):
		return &asset.SyntaxError{Location: locate(data, te.Offset), Err: err}
	default:
		return &asset.SyntaxError{Err: err}
	}
}

// locate converts a byte offset into a 1-based line and column.
func locate(data []byte, offset int64) asset.Location {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return asset.Location{Line: line, Column: col}
}

func (c *Codec) decodeNode(w wireNode) (*graph.Node, error) {
	if !c.types.Known(w.Type) {
		return nil, &asset.TypeMismatchError{Want: "a registered type", Got: w.Type}
	}
	n := graph.NewNode(w.Type)
	if w.UUID != "" {
		id, err := asset.ParseID(w.UUID)
		if err != nil {
			return nil, &asset.SyntaxError{Err: fmt.Errorf("%s: invalid uuid %q: %w", w.Type, w.UUID, err)}
		}
		n.SetUUID(id)
	}
	if w.Fields == nil {
		return n, nil
	}
	for pair := w.Fields.Oldest(); pair != nil; pair = pair.Next() {
		v, err := c.decodeValue(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", w.Type, pair.Key, err)
		}
		n.Set(pair.Key, v)
	}
	return n, nil
}

func (c *Codec) decodeValue(w wireValue) (graph.Value, error) {
	bad := func(err error) (graph.Value, error) {
		return graph.Value{}, &asset.SyntaxError{Err: fmt.Errorf("%s value: %w", w.Kind, err)}
	}
	switch w.Kind {
	case graph.KindString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return bad(err)
		}
		return graph.String(s), nil
	case graph.KindInt:
		var i int64
		if err := json.Unmarshal(w.Value, &i); err != nil {
			return bad(err)
		}
		return graph.Int(i), nil
	case graph.KindFloat:
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return bad(err)
		}
		return graph.Float(f), nil
	case graph.KindBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return bad(err)
		}
		return graph.Bool(b), nil
	case graph.KindRef:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return bad(err)
		}
		id, err := asset.ParseID(s)
		if err != nil {
			return bad(err)
		}
		return graph.Ref(id), nil
	case graph.KindNode:
		var nested wireNode
		if err := json.Unmarshal(w.Value, &nested); err != nil {
			return bad(err)
		}
		n, err := c.decodeNode(nested)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.NodeValue(n), nil
	case graph.KindList:
		var items []wireValue
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return bad(err)
		}
		out := make([]graph.Value, 0, len(items))
		for i, item := range items {
			v, err := c.decodeValue(item)
			if err != nil {
				return graph.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return graph.List(out...), nil
	default:
		return graph.Value{}, &asset.SyntaxError{Err: fmt.Errorf("unknown value kind %q", w.Kind)}
	}
}

func encodeNode(n *graph.Node) (wireNode, error) {
	w := wireNode{
		Type:   n.Type(),
		UUID:   n.UUID().String(),
		Fields: orderedmap.New[string, wireValue](),
	}
	for _, f := range n.Fields() {
		v, err := encodeValue(f.Value)
		if err != nil {
			return wireNode{}, fmt.Errorf("%s.%s: %w", n.Type(), f.Name, err)
		}
		w.Fields.Set(f.Name, v)
	}
	return w, nil
}

func encodeValue(v graph.Value) (wireValue, error) {
	var (
		payload any
		err     error
	)
	switch v.Kind() {
	case graph.KindString:
		payload, _ = v.AsString()
	case graph.KindInt:
		payload, _ = v.AsInt()
	case graph.KindFloat:
		payload, _ = v.AsFloat()
	case graph.KindBool:
		payload, _ = v.AsBool()
	case graph.KindRef:
		id, _ := v.AsRef()
		payload = id.String()
	case graph.KindNode:
		n, _ := v.AsNode()
		payload, err = encodeNode(n)
	case graph.KindList:
		items, _ := v.AsList()
		list := make([]wireValue, 0, len(items))
		for i, item := range items {
			wv, itemErr := encodeValue(item)
			if itemErr != nil {
				return wireValue{}, fmt.Errorf("[%d]: %w", i, itemErr)
			}
			list = append(list, wv)
		}
		payload = list
	default:
		return wireValue{}, fmt.Errorf("unknown value kind %q", v.Kind())
	}
	if err != nil {
		return wireValue{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return wireValue{}, err
	}
	return wireValue{Kind: v.Kind(), Value: raw}, nil
}
