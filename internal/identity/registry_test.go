package identity

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/assetcache/internal/asset"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	records map[asset.ID]string
	failing bool
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[asset.ID]string)}
}

func (m *memRepo) Save(rec Record) error {
	if m.failing {
		return errors.New("disk full")
	}
	m.records[rec.ID] = rec.Path
	return nil
}

func (m *memRepo) Delete(id asset.ID) error {
	delete(m.records, id)
	return nil
}

func (m *memRepo) FindAll() ([]Record, error) {
	var out []Record
	for id, path := range m.records {
		out = append(out, Record{ID: id, Path: path})
	}
	return out, nil
}

func TestRegistry_RegisterResolve(t *testing.T) {
	r := NewRegistry(nil)
	id := asset.NewID()
	path := filepath.Join(t.TempDir(), "a.obj")

	require.NoError(t, r.Register(id, path, false))

	got, err := r.Resolve(id)
	require.NoError(t, err)
	require.Equal(t, path, got)

	back, err := r.ResolveByPath(path)
	require.NoError(t, err)
	require.Equal(t, id, back)
	require.True(t, r.Contains(id))
}

func TestRegistry_NormalizesPaths(t *testing.T) {
	r := NewRegistry(nil)
	id := asset.NewID()
	dir := t.TempDir()

	require.NoError(t, r.Register(id, filepath.Join(dir, "sub", "..", "a.obj"), false))
	got, err := r.ResolveByPath(filepath.Join(dir, ".", "a.obj"))
	require.NoError(t, err)
	require.Equal(t, id, got)

	path, err := r.Resolve(id)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a.obj"), path)
}

func TestRegistry_DuplicateIdentifier(t *testing.T) {
	r := NewRegistry(nil)
	id := asset.NewID()
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.obj"), filepath.Join(dir, "b.obj")

	require.NoError(t, r.Register(id, a, false))
	require.NoError(t, r.Register(id, a, false), "re-registering the same path is fine")

	err := r.Register(id, b, false)
	require.ErrorIs(t, err, asset.ErrDuplicateIdentifier)
	var dup *asset.DuplicateIdentifierError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, a, dup.Existing)

	// Original mapping is unchanged.
	got, err := r.Resolve(id)
	require.NoError(t, err)
	require.Equal(t, a, got)
	_, err = r.ResolveByPath(b)
	require.ErrorIs(t, err, asset.ErrNotFound)

	require.NoError(t, r.Register(id, b, true))
	got, err = r.Resolve(id)
	require.NoError(t, err)
	require.Equal(t, b, got)
	_, err = r.ResolveByPath(a)
	require.ErrorIs(t, err, asset.ErrNotFound)
}

func TestRegistry_PathMovesBetweenIdentifiers(t *testing.T) {
	r := NewRegistry(nil)
	path := filepath.Join(t.TempDir(), "a.asset")
	first, second := asset.NewID(), asset.NewID()

	require.NoError(t, r.Register(first, path, false))
	require.NoError(t, r.Register(second, path, false))

	require.False(t, r.Contains(first))
	got, err := r.ResolveByPath(path)
	require.NoError(t, err)
	require.Equal(t, second, got)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil)
	id := asset.NewID()
	path := filepath.Join(t.TempDir(), "a.obj")
	require.NoError(t, r.Register(id, path, false))

	r.Remove(id)
	r.Remove(id)
	r.Remove(asset.NewID())

	_, err := r.Resolve(id)
	require.ErrorIs(t, err, asset.ErrUnknownIdentifier)
	_, err = r.ResolveByPath(path)
	require.ErrorIs(t, err, asset.ErrNotFound)
}

func TestRegistry_RejectsInvalidID(t *testing.T) {
	r := NewRegistry(nil)
	require.Error(t, r.Register("not-a-uuid", "a.obj", false))
}

func TestRegistry_Records(t *testing.T) {
	r := NewRegistry(nil)
	dir := t.TempDir()
	b, a := asset.NewID(), asset.NewID()
	require.NoError(t, r.Register(b, filepath.Join(dir, "b.obj"), false))
	require.NoError(t, r.Register(a, filepath.Join(dir, "a.obj"), false))

	recs := r.Records()
	require.Len(t, recs, 2)
	require.Equal(t, a, recs[0].ID)
	require.Equal(t, b, recs[1].ID)
}

func TestRegistry_WriteThrough(t *testing.T) {
	repo := newMemRepo()
	r := NewRegistry(repo)
	dir := t.TempDir()
	id := asset.NewID()

	require.NoError(t, r.Register(id, filepath.Join(dir, "a.obj"), false))
	require.Equal(t, filepath.Join(dir, "a.obj"), repo.records[id])

	other := asset.NewID()
	require.NoError(t, r.Register(other, filepath.Join(dir, "a.obj"), false))
	require.NotContains(t, repo.records, id, "displaced identifier is deleted")

	r.Remove(other)
	require.Empty(t, repo.records)

	repo.failing = true
	require.NoError(t, r.Register(id, filepath.Join(dir, "b.obj"), false), "persistence failures are logged, not returned")
	require.True(t, r.Contains(id))
}

func TestRegistry_Load(t *testing.T) {
	repo := newMemRepo()
	dir := t.TempDir()
	id := asset.NewID()
	repo.records[id] = filepath.Join(dir, "a.obj")

	r := NewRegistry(repo)
	n, err := r.Load()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := r.ResolveByPath(filepath.Join(dir, "a.obj"))
	require.NoError(t, err)
	require.Equal(t, id, got)

	empty, err := NewRegistry(nil).Load()
	require.NoError(t, err)
	require.Zero(t, empty)
}

// TestRegistry_BijectionProperty checks that after any sequence of operations
// the two directions agree.
func TestRegistry_BijectionProperty(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry(nil)
		ids := make([]asset.ID, 4)
		for i := range ids {
			ids[i] = asset.NewID()
		}
		paths := []string{"a.obj", "b.obj", "c.asset", "d.asset"}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := ids[rapid.IntRange(0, len(ids)-1).Draw(t, "id")]
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0, 1:
				path := filepath.Join(dir, paths[rapid.IntRange(0, len(paths)-1).Draw(t, "path")])
				_ = r.Register(id, path, rapid.Bool().Draw(t, "overwrite"))
			default:
				r.Remove(id)
			}
		}

		for _, rec := range r.Records() {
			back, err := r.ResolveByPath(rec.Path)
			if err != nil || back != rec.ID {
				t.Fatalf("path %s resolves to %s (%v), want %s", rec.Path, back, err, rec.ID)
			}
		}
		for _, p := range paths {
			id, err := r.ResolveByPath(filepath.Join(dir, p))
			if err != nil {
				continue
			}
			fwd, err := r.Resolve(id)
			if err != nil || Key(fwd) != Key(filepath.Join(dir, p)) {
				t.Fatalf("id %s resolves to %s (%v), want %s", id, fwd, err, p)
			}
		}
	})
}
