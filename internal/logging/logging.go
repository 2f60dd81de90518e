package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New returns a logger configured with a text handler writing to STDERR.
// Tick records and reports go to STDOUT, so diagnostics stay on STDERR to
// keep piped JSON parseable.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewWriter returns a logger writing to w. Used by tests and by the TUI,
// which owns the terminal.
func NewWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type ctxKey struct{}

// NewContext returns a copy of ctx with the logger stored.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves a logger from ctx or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
