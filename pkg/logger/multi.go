package logger

import (
	"context"
	"errors"
	"log/slog"
)

// multiHandler fans out log records to multiple slog.Handler instances.
// serve --log-file uses it to keep console output while appending JSON
// records to a file.
type multiHandler struct {
	handlers []slog.Handler
}

// Multi returns a logger whose records reach the handler of every given
// logger. A handler that fails does not stop delivery to the others.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	handlers := make([]slog.Handler, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			handlers = append(handlers, l.Handler())
		}
	}
	return slog.New(&multiHandler{handlers: handlers})
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		// Handlers may retain attrs, so each gets its own copy.
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *multiHandler) derive(fn func(slog.Handler) slog.Handler) *multiHandler {
	children := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		children[i] = fn(h)
	}
	return &multiHandler{handlers: children}
}
