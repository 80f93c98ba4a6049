package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerKey is unexported so only this package can set the value.
type loggerKey struct{}

// ContextWithLogger returns a child context carrying the given logger.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger carried by ctx. Callers always get a
// usable logger: if none was attached this falls back to a nop logger,
// so pipeline stages never nil-check.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
