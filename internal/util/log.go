// Package util provides shared helpers for logging, retries, rate limiting,
// and calendar bucketing of price observations.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger using log/slog at the specified
// level. Supported levels: "debug", "info", "warn", "error". Defaults to
// "info" if the level string is not recognised. Format "text" selects a
// human-readable handler; anything else emits JSON.
func NewLogger(level, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

// NewLoggerTo is NewLogger writing to w instead of stdout.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	return newLogger(w, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slevel = slog.LevelDebug
	case "info":
		slevel = slog.LevelInfo
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slevel}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
