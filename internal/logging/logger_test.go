package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLogPathUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "glimpse", "log.jsonl"), path)
}

func TestResolveLogPathFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	path, err := resolveLogPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "glimpse", "log.jsonl"), path)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(Options{Level: slog.LevelInfo})
	require.NoError(t, err)

	runtime.Logger.Info("unit-test-log", "component", "logging")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewMirrorsToConsole(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var console bytes.Buffer
	runtime, err := New(Options{Level: slog.LevelDebug, Console: &console, NoColor: true})
	require.NoError(t, err)
	defer runtime.Close()

	runtime.Logger.With("component", "pipeline").Debug("state changed", "state", "listening")
	require.Contains(t, console.String(), "state changed")
	require.Contains(t, console.String(), "component=pipeline")
	require.Contains(t, console.String(), "state=listening")

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"component":"pipeline"`)
}

func TestNewRespectsLevel(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	var console bytes.Buffer
	runtime, err := New(Options{Level: slog.LevelWarn, Console: &console, NoColor: true})
	require.NoError(t, err)
	defer runtime.Close()

	runtime.Logger.Info("hidden")
	runtime.Logger.Warn("shown")
	require.NotContains(t, console.String(), "hidden")
	require.Contains(t, console.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for raw, want := range tests {
		got, err := ParseLevel(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}
