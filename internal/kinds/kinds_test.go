package kinds

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
)

func newEnv(t *testing.T) *binding.Env {
	t.Helper()
	types := graph.NewTypes()
	require.NoError(t, RegisterTypes(types))
	return binding.NewEnv(types, "assets")
}

func intField(t *testing.T, n *graph.Node, name string) int64 {
	t.Helper()
	v, ok := n.Get(name)
	require.True(t, ok, name)
	i, ok := v.AsInt()
	require.True(t, ok, name)
	return i
}

func TestObj_ProcessesDefaultCube(t *testing.T) {
	env := newEnv(t)
	b := Obj()

	mesh, err := b.Process(context.Background(), env, b.DefaultSource)
	require.NoError(t, err)
	require.Equal(t, TypeMesh, mesh.Type())
	require.Equal(t, "cube", stringField(mesh, "name"))
	require.EqualValues(t, 24, intField(t, mesh, "vertexCount"))
	require.EqualValues(t, 12, intField(t, mesh, "triangleCount"))

	positions, err := floatList(mesh, "positions")
	require.NoError(t, err)
	require.Len(t, positions, 24)

	bv, ok := mesh.Get("bounds")
	require.True(t, ok)
	bn, ok := bv.AsNode()
	require.True(t, ok)
	lo, err := floatList(bn, "min")
	require.NoError(t, err)
	hi, err := floatList(bn, "max")
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0}, lo)
	require.Equal(t, []float64{1, 1, 1}, hi)
}

func TestObj_UnprocessRoundTrip(t *testing.T) {
	env := newEnv(t)
	b := Obj()
	ctx := context.Background()

	sources := map[string]string{
		"cube": cubeSource,
		"textured quad": `o quad
mtllib quad.mtl
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl stone
s off
f 1/1 2/2 3/3 -1/-1
`,
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			first, err := b.Process(ctx, env, []byte(src))
			require.NoError(t, err)

			text, err := b.Unprocess(ctx, env, first)
			require.NoError(t, err)

			second, err := b.Process(ctx, env, text)
			require.NoError(t, err)
			require.True(t, graph.Equal(first, second), "reprocessed:\n%s", text)

			again, err := b.Unprocess(ctx, env, second)
			require.NoError(t, err)
			require.Equal(t, string(text), string(again))
		})
	}
}

func TestObj_NegativeIndicesBecomeAbsolute(t *testing.T) {
	env := newEnv(t)
	mesh, err := Obj().Process(context.Background(), env, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"))
	require.NoError(t, err)
	fv, _ := mesh.Get("faces")
	faces, _ := fv.AsList()
	corners, _ := faces[0].AsList()
	var got []string
	for _, c := range corners {
		s, _ := c.AsString()
		got = append(got, s)
	}
	require.Equal(t, []string{"1", "2", "3"}, got)
}

func TestObj_ProcessErrors(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unknown directive", "empty", 1},
		{"bad number", "v 0 0 0\nv 0 x 0\n", 2},
		{"short vertex", "v 0 0\n", 1},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n", 4},
		{"too few corners", "v 0 0 0\nf 1 1\n", 2},
		{"missing normal", "v 0 0 0\nv 1 0 0\nv 0 1 0\n\nf 1//1 2//1 3//1\n", 5},
		{"no faces", "v 0 0 0\n", 0},
		{"latin-1 group name", "g caf\xe9\n", 1},
		{"invalid material name", "v 0 0 0\nusemtl \xff\n", 2},
		{"nothing", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Obj().Process(context.Background(), env, []byte(tt.src))
			require.ErrorIs(t, err, asset.ErrTransformFailed)
			require.Equal(t, tt.line, asset.LocationOf(err).Line)
		})
	}
}

func TestObj_LongLines(t *testing.T) {
	env := newEnv(t)
	b := Obj()
	ctx := context.Background()

	comment := "# " + strings.Repeat("x", 70000) + "\n"
	mesh, err := b.Process(ctx, env, append([]byte(comment), b.DefaultSource...))
	require.NoError(t, err)
	require.EqualValues(t, 12, intField(t, mesh, "triangleCount"))

	const corners = 12000
	polygon := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf" + strings.Repeat(" 1 2 3", corners/3) + "\n"
	require.Greater(t, len(polygon), 64*1024)
	mesh, err = b.Process(ctx, env, []byte(polygon))
	require.NoError(t, err)
	require.EqualValues(t, corners-2, intField(t, mesh, "triangleCount"))
}

func TestObj_UnprocessRejectsOtherTypes(t *testing.T) {
	env := newEnv(t)
	_, err := Obj().Unprocess(context.Background(), env, graph.NewNode(TypeMaterial))
	require.ErrorIs(t, err, asset.ErrTransformFailed)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := Envelope(true)

	node, err := b.Process(ctx, env, b.DefaultSource)
	require.NoError(t, err)
	require.Equal(t, TypeAsset, node.Type())
	require.Empty(t, node.UUID())
	require.Empty(t, node.Owner(), "process leaves attachment to the caller")

	node.SetUUID(asset.NewID())
	node.Set("mesh", graph.Ref(asset.NewID()))
	text, err := b.Unprocess(ctx, env, node)
	require.NoError(t, err)

	again, err := b.Process(ctx, env, text)
	require.NoError(t, err)
	require.True(t, graph.Equal(node, again))
}

func TestEnvelope_ProcessErrors(t *testing.T) {
	env := newEnv(t)
	_, err := Envelope(false).Process(context.Background(), env, []byte("{\n  oops"))
	require.ErrorIs(t, err, asset.ErrTransformFailed)
	require.ErrorIs(t, err, asset.ErrMalformedEnvelope)
	require.Equal(t, 2, asset.LocationOf(err).Line)

	bounds := `{"format":"assetcache.envelope","version":1,"items":[{"type":"Bounds","fields":{}}]}`
	_, err = Envelope(false).Process(context.Background(), env, []byte(bounds))
	require.ErrorIs(t, err, asset.ErrTypeMismatch)
}

func TestRegister(t *testing.T) {
	reg := binding.NewRegistry()
	require.NoError(t, Register(reg, Options{}, nil))
	require.Equal(t, []string{"asset", "obj"}, reg.Extensions())

	only := binding.NewRegistry()
	require.NoError(t, Register(only, Options{}, []string{".OBJ"}))
	require.Equal(t, []string{"obj"}, only.Extensions())

	types := graph.NewTypes()
	require.NoError(t, RegisterTypes(types))
	require.True(t, types.IsA(TypeMesh, TypeAsset))
	require.Error(t, RegisterTypes(types))
}
