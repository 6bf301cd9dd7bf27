// Package logging builds the process slog.Logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a logger writing to w (stderr when nil). format is "text" or
// anything else for JSON, which is what CloudWatch Logs Insights parses.
func New(level slog.Level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
