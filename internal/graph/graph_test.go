package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/assetcache/internal/asset"
)

func TestNode_FieldsKeepInsertionOrder(t *testing.T) {
	n := NewNode("Mesh").
		Set("name", String("cube")).
		Set("count", Int(3)).
		Set("name", String("box"))

	fields := n.Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "name", fields[0].Name)
	require.Equal(t, "count", fields[1].Name)

	v, ok := n.Get("name")
	require.True(t, ok)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "box", s)

	n.Delete("name")
	require.Equal(t, 1, n.Len())
}

func TestValue_Accessors(t *testing.T) {
	i, ok := Int(7).AsInt()
	require.True(t, ok)
	require.EqualValues(t, 7, i)

	_, ok = Int(7).AsString()
	require.False(t, ok)

	list := Floats(1, 2, 3)
	require.Equal(t, 3, list.Len())
	items, ok := list.AsList()
	require.True(t, ok)
	items[0] = Float(9)
	first, _ := list.AsList()
	f, _ := first[0].AsFloat()
	require.Equal(t, 1.0, f, "AsList must return a copy")

	_, ok = NodeValue(nil).AsNode()
	require.False(t, ok)
}

func TestValue_Validate(t *testing.T) {
	require.NoError(t, Float(1.5).Validate())
	require.Error(t, Float(math.NaN()).Validate())
	require.Error(t, List(Float(math.Inf(-1))).Validate())
	require.Error(t, NodeValue(nil).Validate())
	require.Error(t, Value{}.Validate())
	require.Error(t, NewNode("").Validate())

	require.NoError(t, String("café").Validate())
	require.Error(t, String("caf\xe9").Validate())
	require.Error(t, List(String("ok"), String("\xff")).Validate())
	require.Error(t, NewNode("Mesh").Set("name", String("\xc3")).Validate())
	require.Error(t, NewNode("Mesh").Set("na\xffme", String("ok")).Validate())
}

func TestEqual(t *testing.T) {
	a := NewNode("Mesh").Set("x", Int(1)).Set("y", Int(2))
	b := NewNode("Mesh").Set("x", Int(1)).Set("y", Int(2))
	require.True(t, Equal(a, b))

	reordered := NewNode("Mesh").Set("y", Int(2)).Set("x", Int(1))
	require.False(t, Equal(a, reordered))

	b.SetUUID(asset.NewID())
	require.False(t, Equal(a, b))

	require.True(t, Equal(nil, nil))
	require.False(t, Equal(a, nil))
	require.False(t, Int(1).Equal(Float(1)))
}

func TestNode_CloneIsDeep(t *testing.T) {
	inner := NewNode("Bounds").Set("min", Floats(0, 0, 0))
	n := NewNode("Mesh").Set("bounds", NodeValue(inner))
	n.SetUUID(asset.NewID())

	c := n.Clone()
	require.True(t, Equal(n, c))

	inner.Set("min", Floats(1, 1, 1))
	require.False(t, Equal(n, c))
	require.Empty(t, c.Owner())
}

func TestNode_Refs(t *testing.T) {
	a, b := asset.NewID(), asset.NewID()
	n := NewNode("Material").
		Set("texture", Ref(a)).
		Set("layers", List(Ref(b), String("x"))).
		Set("nested", NodeValue(NewNode("Bounds").Set("link", Ref(a))))
	require.Equal(t, []asset.ID{a, b, a}, n.Refs())
}

func TestTypes_IsA(t *testing.T) {
	types := NewTypes()
	types.MustRegister(
		TypeInfo{Name: "Asset"},
		TypeInfo{Name: "Mesh", Base: "Asset"},
		TypeInfo{Name: "SkinnedMesh", Base: "Mesh"},
	)

	require.True(t, types.IsA("SkinnedMesh", "Asset"))
	require.True(t, types.IsA("Mesh", "Mesh"))
	require.True(t, types.IsA("Mesh", ""))
	require.False(t, types.IsA("Asset", "Mesh"))
	require.False(t, types.IsA("Texture", "Asset"))
	require.Equal(t, []string{"Asset", "Mesh", "SkinnedMesh"}, types.Names())

	require.Error(t, types.Register(TypeInfo{Name: "Mesh"}))
	require.Error(t, types.Register(TypeInfo{Name: "Orphan", Base: "Missing"}))
	require.Error(t, types.Register(TypeInfo{}))
}

func TestCollection_AttachAndDetach(t *testing.T) {
	ix := NewIndex()
	col := ix.Collection("assets")
	require.Same(t, col, ix.Collection("assets"))

	n := NewNode("Mesh")
	require.Error(t, col.Attach(n), "nodes without uuid cannot be attached")

	n.SetUUID(asset.NewID())
	require.NoError(t, col.Attach(n))
	require.Equal(t, "assets", n.Owner())
	require.True(t, col.Contains(n))

	require.NoError(t, ix.CanDetach(n))
	require.NoError(t, ix.Detach(n))
	require.Empty(t, n.Owner())
	require.Zero(t, col.Len())
}

func TestCollection_ReplacementKeepsNewMember(t *testing.T) {
	ix := NewIndex()
	col := ix.Collection("assets")
	id := asset.NewID()

	old := NewNode("Mesh")
	old.SetUUID(id)
	require.NoError(t, col.Attach(old))

	fresh := NewNode("Mesh")
	fresh.SetUUID(id)
	require.NoError(t, col.Attach(fresh))
	require.Empty(t, old.Owner())

	// Tearing down the superseded node must not drop the new member.
	err := ix.Detach(old)
	require.ErrorIs(t, err, asset.ErrDetachFailed)
	got, ok := col.Get(id)
	require.True(t, ok)
	require.Same(t, fresh, got)
}

func TestCollection_AttachRejectsForeignOwner(t *testing.T) {
	ix := NewIndex()
	n := NewNode("Mesh")
	n.SetUUID(asset.NewID())
	require.NoError(t, ix.Collection("a").Attach(n))
	require.Error(t, ix.Collection("b").Attach(n))
}

func TestIndex_CanDetach(t *testing.T) {
	ix := NewIndex()
	col := ix.Collection("assets")

	mesh := NewNode("Mesh")
	mesh.SetUUID(asset.NewID())
	require.NoError(t, col.Attach(mesh))

	material := NewNode("Material").Set("mesh", Ref(mesh.UUID()))
	material.SetUUID(asset.NewID())
	require.NoError(t, col.Attach(material))

	err := ix.CanDetach(mesh)
	require.ErrorIs(t, err, asset.ErrDetachFailed)
	require.Equal(t, []asset.ID{material.UUID()}, col.Dependents(mesh.UUID()))

	require.NoError(t, ix.CanDetach(material))

	floating := NewNode("Mesh")
	require.ErrorIs(t, ix.CanDetach(floating), asset.ErrDetachFailed)

	ix.Drop("assets")
	require.ErrorIs(t, ix.CanDetach(material), asset.ErrDetachFailed)
}

func TestClone_EqualProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := NewNode("Asset")
		count := rapid.IntRange(0, 8).Draw(t, "count")
		for i := 0; i < count; i++ {
			name := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "name")
			switch rapid.IntRange(0, 3).Draw(t, "kind") {
			case 0:
				n.Set(name, String(rapid.String().Draw(t, "s")))
			case 1:
				n.Set(name, Int(rapid.Int64().Draw(t, "i")))
			case 2:
				n.Set(name, Floats(rapid.SliceOfN(rapid.Float64Range(-10, 10), 0, 3).Draw(t, "fs")...))
			default:
				n.Set(name, Ref(asset.NewID()))
			}
		}
		c := n.Clone()
		if !Equal(n, c) {
			t.Fatalf("clone differs from original")
		}
		if len(c.Refs()) != len(n.Refs()) {
			t.Fatalf("clone refs differ")
		}
	})
}
