package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	got := format(ts, LevelWarn, CatVerify, "rule failed", []any{"step", "intro", "error", "read timeout"})
	require.Equal(t, "2025-12-06T10:45:00 [WARN] [verify] rule failed step=intro error=\"read timeout\"\n", got)

	got = format(ts, LevelInfo, CatEngine, "odd", []any{"a", 1, "orphan"})
	require.Equal(t, "2025-12-06T10:45:00 [INFO] [engine] odd a=1 orphan=<missing>\n", got)

	got = format(ts, LevelDebug, CatDB, "empty", []any{"path", ""})
	require.Equal(t, "2025-12-06T10:45:00 [DEBUG] [db] empty path=\"\"\n", got)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel("error"))
	require.Equal(t, LevelInfo, ParseLevel("verbose"))
	require.Equal(t, "UNKNOWN", Level(42).String())
}

func TestInitWriter_MinLevelAndToggle(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelInfo)
	t.Cleanup(func() { setDefault(nil) })

	Debug(CatEngine, "hidden")
	Info(CatEngine, "shown", "key", "value")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "[INFO] [engine] shown key=value")

	SetMinLevel(LevelError)
	Warn(CatEngine, "also hidden")
	ErrorErr(CatAPI, "request failed", errors.New("boom"))
	require.NotContains(t, buf.String(), "also hidden")
	require.Contains(t, buf.String(), "[ERROR] [api] request failed error=boom")

	SetEnabled(false)
	Error(CatAPI, "muted")
	require.NotContains(t, buf.String(), "muted")
}

func TestInit_WritesFileAndCleanupDisables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	cleanup, err := Init(path)
	require.NoError(t, err)
	Debug(CatConfig, "starting", "version", "dev")
	cleanup()
	Info(CatConfig, "after cleanup")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[DEBUG] [config] starting version=dev")
	require.NotContains(t, string(data), "after cleanup")
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "missing", "debug.log"))
	require.Error(t, err)
}

func TestNoLogger(t *testing.T) {
	setDefault(nil)
	require.NotPanics(t, func() {
		Info(CatEngine, "dropped")
		SetEnabled(true)
		SetMinLevel(LevelDebug)
	})
}
