package testutil

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Tree accumulates files and writes them under a root.
type Tree struct {
	t     *testing.T
	fs    afero.Fs
	root  string
	files map[string]string
}

// NewTree creates a builder for files under root on fs.
func NewTree(t *testing.T, fs afero.Fs, root string) *Tree {
	t.Helper()
	return &Tree{t: t, fs: fs, root: filepath.Clean(root), files: map[string]string{}}
}

// WithFile adds a file at rel, a slash-separated path under the root.
func (b *Tree) WithFile(rel, content string) *Tree {
	b.files[rel] = content
	return b
}

// WithMesh adds an OBJ file at rel named after its base name.
func (b *Tree) WithMesh(rel string, opts ...MeshOption) *Tree {
	m := defaultMesh(strings.TrimSuffix(path.Base(rel), path.Ext(rel)))
	for _, opt := range opts {
		opt(&m)
	}
	return b.WithFile(rel, m.source())
}

// Path returns the absolute path of rel.
func (b *Tree) Path(rel string) string {
	return filepath.Join(b.root, filepath.FromSlash(rel))
}

// Build writes all accumulated files and returns their absolute paths,
// sorted.
func (b *Tree) Build() []string {
	b.t.Helper()
	paths := make([]string, 0, len(b.files))
	for rel, content := range b.files {
		p := b.Path(rel)
		require.NoError(b.t, b.fs.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(b.t, afero.WriteFile(b.fs, p, []byte(content), 0644))
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
