// Package logging sets up the process-wide slog logger and hands out
// component loggers.
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("writer")
//	log.Info("writer started", "tables", 5)
//
// Loggers built with WithContext carry the run, table and file attached to
// the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger writing to stderr, as JSON or as text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stderr, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name from flags or config into a slog.Level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func base() *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return base().With("component", name)
}

// WithContext returns a logger carrying the run ID, table and file found in
// ctx.
func WithContext(ctx context.Context) *slog.Logger {
	logger := base()

	if runID, ok := ctx.Value(contextKeyRunID).(string); ok {
		logger = logger.With("run_id", runID)
	}
	if table, ok := ctx.Value(contextKeyTable).(string); ok {
		logger = logger.With("table", table)
	}
	if file, ok := ctx.Value(contextKeyFile).(string); ok {
		logger = logger.With("file", file)
	}
	return logger
}

type contextKey int

const (
	contextKeyRunID contextKey = iota
	contextKeyTable
	contextKeyFile
)

// ContextWithRunID attaches a run ID.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKeyRunID, runID)
}

// ContextWithTable attaches a destination table.
func ContextWithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, contextKeyTable, table)
}

// ContextWithFile attaches a source file.
func ContextWithFile(ctx context.Context, file string) context.Context {
	return context.WithValue(ctx, contextKeyFile, file)
}
