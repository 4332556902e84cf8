package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var loggerKey ctxKey

// With returns a context carrying a logger scoped with the given fields.
// Fields accumulate across nested calls, so middleware can stack trace and
// user identifiers onto one request logger.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, l)
}

// From returns the request-scoped logger, or the process logger if the
// context carries none.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	if l := LoggerWrapper(); l != nil {
		return l
	}
	return slog.Default()
}
