package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/scanwarden/scanwarden/internal/terminal"
)

// ConditionalTextHandler wraps a standard slog text handler and activates it
// only when the session is non-interactive. Interactive sessions use the
// InteractiveHandler instead, so exactly one console handler emits per run.
type ConditionalTextHandler struct {
	inner        slog.Handler
	capabilities terminal.Capabilities
}

// ConditionalTextHandlerOptions configures a ConditionalTextHandler.
type ConditionalTextHandlerOptions struct {
	TextHandlerOptions *slog.HandlerOptions
	Writer             io.Writer
	Capabilities       terminal.Capabilities
}

// NewConditionalTextHandler creates a handler active only for
// non-interactive sessions.
func NewConditionalTextHandler(opts ConditionalTextHandlerOptions) (*ConditionalTextHandler, error) {
	if opts.Writer == nil {
		return nil, ErrWriterRequired
	}
	if opts.Capabilities == nil {
		return nil, ErrCapabilitiesRequired
	}
	return &ConditionalTextHandler{
		inner:        slog.NewTextHandler(opts.Writer, opts.TextHandlerOptions),
		capabilities: opts.Capabilities,
	}, nil
}

// Enabled reports whether the handler is active at the given level.
func (h *ConditionalTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.capabilities.IsInteractive() && h.inner.Enabled(ctx, level)
}

// Handle forwards to the inner text handler when non-interactive.
func (h *ConditionalTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.capabilities.IsInteractive() {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with additional attributes.
func (h *ConditionalTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConditionalTextHandler{
		inner:        h.inner.WithAttrs(attrs),
		capabilities: h.capabilities,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ConditionalTextHandler) WithGroup(name string) slog.Handler {
	return &ConditionalTextHandler{
		inner:        h.inner.WithGroup(name),
		capabilities: h.capabilities,
	}
}
