// Package logging provides structured logging setup for the visit scheduler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a level name (debug, info, warn, error) to a slog level.
// An empty name yields def.
func ParseLevel(name string, def slog.Level) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return def, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return def, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup initializes the default slog logger.
// Dev mode uses human-readable text; prod uses JSON.
func Setup(devMode bool, level slog.Level) {
	slog.SetDefault(New(os.Stdout, devMode, level))
}

// New builds a logger writing to w in the same format Setup installs.
func New(w io.Writer, devMode bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if devMode {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
