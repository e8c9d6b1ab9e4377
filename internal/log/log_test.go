package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	Info(CatPipeline, "Loaded item", "id", "abc", "kind", "obj")
	require.Contains(t, buf.String(), "[INFO] [pipeline] Loaded item id=abc kind=obj\n")

	buf.Reset()
	Warn(CatScan, "odd", "orphan")
	require.Contains(t, buf.String(), "orphan=<missing>")

	buf.Reset()
	ErrorErr(CatStore, "put failed", errors.New("boom"), "id", "x")
	require.Contains(t, buf.String(), "[ERROR] [store] put failed id=x error=boom")
}

func TestLog_MinLevelAndDisable(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	SetMinLevel(LevelWarn)
	Debug(CatDB, "hidden")
	Info(CatDB, "hidden")
	require.Empty(t, buf.String())

	Error(CatDB, "shown")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	SetEnabled(false)
	Error(CatDB, "hidden")
	require.Empty(t, buf.String())
}

func TestLog_InitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	cleanup, err := Init(path)
	require.NoError(t, err)

	Debug(CatConfig, "hello", "k", 1)
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[DEBUG] [config] hello k=1")
}

func TestLog_InitFileError(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "missing", "debug.log"))
	require.Error(t, err)
}

func TestLog_Listener(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewListener(ctx)
	require.NotNil(t, l)

	Info(CatWatcher, "event")
	event, ok := l.Next(ctx)
	require.True(t, ok)
	require.Contains(t, event.Payload, "[watcher] event")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelInfo, ParseLevel("INFO"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel("error"))
	require.Equal(t, LevelDebug, ParseLevel("verbose"))
}
