// Package logutil provides the structured, subsystem-tagged logging
// convention used throughout lattice. Every package that needs to log owns a
// package-level Logger variable defaulted to Disabled and overridden via
// UseLogger, mirroring the btcsuite/lnd convention of per-subsystem loggers
// wired up from the daemon's main package and backed by btclog/v2.
package logutil

import (
	"context"
	"fmt"

	"github.com/btcsuite/btclog/v2"
)

// Logger is the structured logging interface used across lattice's
// subsystems. The "S" suffixed methods take a context (for trace
// correlation) and alternating key/value pairs, matching btclog/v2's own
// contextual logging methods.
type Logger interface {
	TraceS(ctx context.Context, msg string, keyvals ...any)
	DebugS(ctx context.Context, msg string, keyvals ...any)
	InfoS(ctx context.Context, msg string, keyvals ...any)
	WarnS(ctx context.Context, msg string, err error, keyvals ...any)
	ErrorS(ctx context.Context, msg string, err error, keyvals ...any)
}

// Disabled is a Logger that discards everything. Packages default to this
// until UseLogger is called during daemon initialization, so unit tests that
// never wire a logger still run silently.
var Disabled Logger = discard{}

type discard struct{}

func (discard) TraceS(context.Context, string, ...any)        {}
func (discard) DebugS(context.Context, string, ...any)        {}
func (discard) InfoS(context.Context, string, ...any)         {}
func (discard) WarnS(context.Context, string, error, ...any)  {}
func (discard) ErrorS(context.Context, string, error, ...any) {}

// btclogLogger adapts a btclog.Logger (already tagged with a subsystem
// prefix via WithPrefix) to lattice's Logger interface, folding the
// explicit error argument of WarnS/ErrorS into the trailing keyvals the way
// the rest of the codebase already expects to call these methods.
type btclogLogger struct {
	btclog.Logger
}

// NewSubsystemLogger builds a Logger tagged with the given subsystem (e.g.
// "ACTR", "RMTG", "CLUS", "SHRD") backed by the given btclog.Handler.
// Tagging by subsystem lets an operator grep a single component's log lines
// out of a merged daemon log.
func NewSubsystemLogger(tag string, handler btclog.Handler) Logger {
	return &btclogLogger{Logger: btclog.NewSLogger(handler).WithPrefix(tag)}
}

func (l *btclogLogger) TraceS(ctx context.Context, msg string, keyvals ...any) {
	l.Logger.TraceS(ctx, msg, keyvals...)
}

func (l *btclogLogger) DebugS(ctx context.Context, msg string, keyvals ...any) {
	l.Logger.DebugS(ctx, msg, keyvals...)
}

func (l *btclogLogger) InfoS(ctx context.Context, msg string, keyvals ...any) {
	l.Logger.InfoS(ctx, msg, keyvals...)
}

func (l *btclogLogger) WarnS(ctx context.Context, msg string, err error, keyvals ...any) {
	l.Logger.WarnS(ctx, msg, append(keyvals, "error", errStr(err))...)
}

func (l *btclogLogger) ErrorS(ctx context.Context, msg string, err error, keyvals ...any) {
	l.Logger.ErrorS(ctx, msg, append(keyvals, "error", errStr(err))...)
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
