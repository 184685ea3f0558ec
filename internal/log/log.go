// Package log configures structured logging for labdash using log/slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level. The
// empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger writing to w. format is "text" or "json".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Setup configures the default slog logger on stderr. debug forces the debug
// level regardless of level. An unknown level falls back to info and is
// reported through the returned error.
func Setup(level, format string, debug bool) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	l := New(os.Stderr, lvl, format)
	slog.SetDefault(l)
	return l, err
}
