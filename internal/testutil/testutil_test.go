package testutil

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/assetcache/internal/asset"
)

func TestTree_Build(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := NewTree(t, fs, "/content").WithStandardTree().Build()
	require.Equal(t, []string{
		"/content/cube.obj",
		"/content/notes.txt",
		"/content/props/crate.obj",
		"/content/props/readme.md",
		"/content/props/small/pebble.obj",
	}, paths)

	data, err := afero.ReadFile(fs, "/content/props/crate.obj")
	require.NoError(t, err)
	require.Equal(t, "g crate\nv 0 0 0\nv 1 0 0\nv 1 1 0\nusemtl wood\nf 1 2 3\n", string(data))
}

func TestStack_LoadsTreeMeshes(t *testing.T) {
	s := NewStack(t, nil)
	tree := s.Tree(t, "/content").WithStandardTree().WithBrokenMeshes()
	tree.Build()

	ctx := context.Background()
	_, h, err := s.Pipeline.Discover(ctx, tree.Path("cube.obj"))
	require.NoError(t, err)
	count, _ := h.Node().Get("triangleCount")
	n, _ := count.AsInt()
	require.EqualValues(t, 2, n)

	_, _, err = s.Pipeline.Discover(ctx, tree.Path("broken/bogus.obj"))
	require.ErrorIs(t, err, asset.ErrTransformFailed)
	_, _, err = s.Pipeline.Discover(ctx, tree.Path("broken/empty.obj"))
	require.ErrorIs(t, err, asset.ErrTransformFailed)
	require.NotEmpty(t, s.Spans.Ended())
}

func TestNewTestDB(t *testing.T) {
	db := NewTestDB(t)
	repo := db.LocationRepository()
	records, err := repo.FindAll()
	require.NoError(t, err)
	require.Empty(t, records)
}
