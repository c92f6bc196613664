// Package logging configures the process-wide slog logger.
//
// Logs are written to stderr as JSON. Every record carries the module name
// and version; debug level additionally records the source location.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a case-insensitive level name to a slog.Level.
// Unrecognized names map to info.
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

// NewStructuredLogger returns a JSON logger writing to w.
func NewStructuredLogger(w io.Writer, module, version, level string) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(h).With("module", module, "version", version)
}

// SetDefaultStructuredLogger installs a stderr JSON logger as the slog default.
func SetDefaultStructuredLogger(module, version, level string) {
	slog.SetDefault(NewStructuredLogger(os.Stderr, module, version, level))
}
