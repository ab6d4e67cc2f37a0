// Package logging configures structured logging with log/slog.
//
// Logs always go to stderr in the binaries: stdout carries the JSON-RPC
// stream of the stdio MCP transport and the JSON output of `hopital extract`.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type ctxKey struct{}

// Setup builds a logger for level and format, installs it as the slog
// default and returns it.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json", "" (auto: text on a terminal, JSON otherwise)
func Setup(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if resolveFormat(format, w) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func resolveFormat(format string, w io.Writer) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "json", "text":
		return f
	}
	if IsTerminal(w) {
		return "text"
	}
	return "json"
}

// IsTerminal reports whether w is a terminal (including Cygwin/MSYS ptys).
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// WithBatchID returns a context whose logger tags entries with batch_id.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, batchID)
}

// FromContext returns the default logger, enriched with the batch ID
// carried by ctx if any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		logger = logger.With("batch_id", id)
	}
	return logger
}
