// Package logctx carries the session logger in a context.Context and builds
// it from the console and file thresholds in types.LogConfig.
package logctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR to a slog.Level, defaulting to fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return fallback
	}
}

// New builds a logger that writes to console at cfg.ConsoleLevel and, when
// cfg.File is set, to that file at cfg.FileLevel. The returned closer
// releases the file.
func New(console io.Writer, cfg types.LogConfig) (*slog.Logger, io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}
	consoleOpts := &slog.HandlerOptions{Level: ParseLevel(cfg.ConsoleLevel, slog.LevelInfo)}

	var consoleHandler slog.Handler
	if cfg.JSON {
		consoleHandler = slog.NewJSONHandler(console, consoleOpts)
	} else {
		consoleHandler = slog.NewTextHandler(console, consoleOpts)
	}

	if cfg.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
	}
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: ParseLevel(cfg.FileLevel, slog.LevelDebug)})

	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
