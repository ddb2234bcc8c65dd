package appctx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines the interface for container logging.
// The container uses structured logging with key-value pairs so refresh
// steps, extension execution and lifecycle transitions produce consistent,
// parseable output.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// *slog.Logger satisfies it directly, as do thin adapters over logrus, zap
// and similar libraries.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for phase summaries such as "Registry extensions processed".
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that do not abort the current operation, such as an
	// isolated listener failure on the refreshed event.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Every refresh step and extension invocation is logged at this level.
	Debug(msg string, args ...any)
}

// NewSlogLogger returns a text slog logger writing to w at the named level
// ("debug", "info", "warn" or "error"). Unknown levels map to info and a nil
// writer means stderr.
func NewSlogLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel converts a level name to a slog.Level.
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
