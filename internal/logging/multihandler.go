// Package logging provides scanwarden's slog handler toolkit: multi-handler
// fan-out, an interactive stderr handler with colored level tags, a plain
// text handler for non-interactive runs, and the per-run machine-readable
// log file plumbing.
package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler is a slog.Handler that dispatches log records to multiple
// handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a MultiHandler wrapping the given handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether at least one underlying handler is enabled at the
// given level.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to every enabled underlying handler. Errors are
// joined so one failing destination does not silence the others.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var multiErr error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				multiErr = errors.Join(multiErr, err)
			}
		}
	}
	return multiErr
}

// Handlers returns a copy of the underlying handlers slice.
func (h *MultiHandler) Handlers() []slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	copy(handlers, h.handlers)
	return handlers
}

// WithAttrs returns a new MultiHandler whose handlers have the given attributes.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

// WithGroup returns a new MultiHandler whose handlers have the given group name.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}
