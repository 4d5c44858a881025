package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termdock/schema"
)

type contextKey int

const sessionKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session name if present.
func WithSession(ctx context.Context, name schema.SessionName) pslog.Logger {
	log := pslog.Ctx(ctx)
	if name != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionName); ok && current == name {
			return log
		}
		log = log.With("session", name)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log
// de-duplication.
func ContextWithSession(ctx context.Context, name schema.SessionName) context.Context {
	if ctx == nil || name == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, name)
}

// ContextWithSessionLogger attaches the logger and session marker to the
// context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, name schema.SessionName) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, name)
}
