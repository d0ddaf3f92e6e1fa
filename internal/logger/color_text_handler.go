package logger

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler to prefix messages with an
// ANSI-colored level tag.
type ColorTextHandler struct {
	*slog.TextHandler
}

// NewColorTextHandler creates a new ColorTextHandler.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = levelColor(r.Level) + r.Level.String() + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}

func levelColor(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "\033[36m" // cyan
	case slog.LevelInfo:
		return "\033[32m" // green
	case slog.LevelWarn:
		return "\033[33m" // yellow
	case slog.LevelError:
		return "\033[31m" // red
	default:
		return "\033[0m"
	}
}
