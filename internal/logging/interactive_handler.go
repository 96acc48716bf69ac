package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/scanwarden/scanwarden/internal/terminal"
)

// Static errors for InteractiveHandler validation.
var (
	ErrWriterRequired       = errors.New("interactive handler: writer is required")
	ErrCapabilitiesRequired = errors.New("interactive handler: capabilities are required")
)

// ANSI color codes used for level tags.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// InteractiveHandler renders concise human-oriented lines for terminal
// sessions: a colored level tag, the message, then key=value attributes.
// Detailed machine-readable output belongs to the JSON file handler.
type InteractiveHandler struct {
	capabilities terminal.Capabilities
	writer       io.Writer
	level        slog.Level
	attrs        []slog.Attr
	groups       []string

	mu *sync.Mutex
}

// InteractiveHandlerOptions configures the InteractiveHandler.
type InteractiveHandlerOptions struct {
	Level        slog.Level
	Writer       io.Writer
	Capabilities terminal.Capabilities
}

// NewInteractiveHandler creates an InteractiveHandler with the given options.
func NewInteractiveHandler(opts InteractiveHandlerOptions) (*InteractiveHandler, error) {
	if opts.Writer == nil {
		return nil, ErrWriterRequired
	}
	if opts.Capabilities == nil {
		return nil, ErrCapabilitiesRequired
	}
	return &InteractiveHandler{
		capabilities: opts.Capabilities,
		writer:       opts.Writer,
		level:        opts.Level,
		mu:           &sync.Mutex{},
	}, nil
}

// Enabled reports whether the handler handles records at the given level.
func (h *InteractiveHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.capabilities.IsInteractive() && level >= h.level
}

// Handle renders one record.
func (h *InteractiveHandler) Handle(_ context.Context, r slog.Record) error {
	if !h.capabilities.IsInteractive() {
		return nil
	}

	var b strings.Builder
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	prefix := strings.Join(h.groups, ".")
	if prefix != "" {
		prefix += "."
	}
	for _, attr := range h.attrs {
		fmt.Fprintf(&b, " %s%s=%v", prefix, attr.Key, attr.Value)
	}
	r.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&b, " %s%s=%v", prefix, attr.Key, attr.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

// levelTag renders the bracketed level marker, colored when supported.
func (h *InteractiveHandler) levelTag(level slog.Level) string {
	tag := "[" + level.String() + "]"
	if !h.capabilities.SupportsColor() {
		return tag
	}
	switch {
	case level >= slog.LevelError:
		return colorRed + tag + colorReset
	case level >= slog.LevelWarn:
		return colorYellow + tag + colorReset
	case level >= slog.LevelInfo:
		return colorCyan + tag + colorReset
	default:
		return colorGray + tag + colorReset
	}
}

// WithAttrs returns a new handler with additional attributes.
func (h *InteractiveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	clone := *h
	clone.attrs = newAttrs
	return &clone
}

// WithGroup returns a new handler with an additional group.
func (h *InteractiveHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, 0, len(h.groups)+1)
	newGroups = append(newGroups, h.groups...)
	newGroups = append(newGroups, name)

	clone := *h
	clone.groups = newGroups
	return &clone
}
