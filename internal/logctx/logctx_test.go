package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

func TestFrom_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))
}

func TestWithLogger(t *testing.T) {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, From(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, ParseLevel(" error ", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, ParseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, ParseLevel("verbose", slog.LevelDebug))
}

func TestNew_IndependentThresholds(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "harvest.log")

	logger, closer, err := New(&console, types.LogConfig{
		ConsoleLevel: "WARN",
		FileLevel:    "DEBUG",
		File:         logFile,
	})
	require.NoError(t, err)

	logger.Debug("debug line")
	logger.Warn("warn line")
	require.NoError(t, closer.Close())

	assert.NotContains(t, console.String(), "debug line")
	assert.Contains(t, console.String(), "warn line")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug line")
	assert.Contains(t, string(data), "warn line")
}

func TestNew_ConsoleOnlyJSON(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(&console, types.LogConfig{JSON: true})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hello", "set", "cs")
	assert.Contains(t, console.String(), `"msg":"hello"`)
	assert.Contains(t, console.String(), `"set":"cs"`)
}

func TestNew_BadFile(t *testing.T) {
	_, _, err := New(&bytes.Buffer{}, types.LogConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
