package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/assetcache/internal/watcher"
)

func objOnly(path string) bool { return strings.HasSuffix(path, ".obj") }

func startWatcher(t *testing.T, root string) <-chan watcher.Batch {
	t.Helper()
	w, err := watcher.New(watcher.Config{
		Root:        root,
		DebounceDur: 50 * time.Millisecond,
		Filter:      objOnly,
	})
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	batches, err := w.Start()
	require.NoError(t, err, "failed to start watcher")
	return batches
}

func receive(t *testing.T, batches <-chan watcher.Batch) watcher.Batch {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("expected a batch but got timeout")
		return watcher.Batch{}
	}
}

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "a.obj")
	require.NoError(t, os.WriteFile(existing, []byte("v 0 0 0"), 0644))

	batches := startWatcher(t, root)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(existing, []byte(fmt.Sprintf("v %d 0 0", i)), 0644))
		time.Sleep(10 * time.Millisecond)
	}
	created := filepath.Join(root, "b.obj")
	require.NoError(t, os.WriteFile(created, []byte("v 0 0 0"), 0644))

	b := receive(t, batches)
	require.Equal(t, filepath.Clean(root), b.Dir)
	require.Equal(t, []string{created}, b.Appeared)
	require.Equal(t, []string{existing}, b.Changed)

	select {
	case extra := <-batches:
		t.Fatalf("unexpected second batch: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_IgnoresFilteredAndHiddenFiles(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".a.obj.123"), []byte("x"), 0644))

	select {
	case b := <-batches:
		t.Fatalf("should not report %+v", b)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	sub := filepath.Join(root, "meshes")
	require.NoError(t, os.Mkdir(sub, 0755))
	first := filepath.Join(sub, "first.obj")
	require.NoError(t, os.WriteFile(first, []byte("v 0 0 0"), 0644))

	b := receive(t, batches)
	require.Equal(t, sub, b.Dir)
	require.Contains(t, b.Appeared, first)

	// Later files in the new directory are seen through its own watch.
	second := filepath.Join(sub, "second.obj")
	require.NoError(t, os.WriteFile(second, []byte("v 0 0 0"), 0644))
	b = receive(t, batches)
	require.Equal(t, []string{second}, b.Appeared)
}

func TestWatcher_Stop(t *testing.T) {
	root := t.TempDir()
	w, err := watcher.New(watcher.DefaultConfig(root))
	require.NoError(t, err, "failed to create watcher")

	batches, err := w.Start()
	require.NoError(t, err, "failed to start watcher")

	done := make(chan struct{})
	go func() {
		err := w.Stop()
		assert.NoError(t, err, "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}

	select {
	case _, ok := <-batches:
		require.False(t, ok, "batch channel should close after Stop")
	case <-time.After(1 * time.Second):
		t.Fatal("batch channel not closed")
	}
}

func TestWatcher_StartFailsForMissingRoot(t *testing.T) {
	w, err := watcher.New(watcher.DefaultConfig(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	_, err = w.Start()
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/content")
	require.Equal(t, "/content", cfg.Root)
	require.Equal(t, 200*time.Millisecond, cfg.DebounceDur)
	require.Nil(t, cfg.Filter)
}
