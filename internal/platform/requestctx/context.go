package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type scopeKey struct{}

// scope holds the per-request values shared by handlers and services.
type scope struct {
	logger    *zap.Logger
	sessionID string
}

var noopLogger = zap.NewNop()

func current(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func with(ctx context.Context, s scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger returns a context carrying logger. A nil logger is replaced by a no-op one.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	s := current(ctx)
	s.logger = logger
	return with(ctx, s)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger := current(ctx).logger; logger != nil {
		return logger
	}
	return noopLogger
}

func NoopLogger() *zap.Logger { return noopLogger }

// WithSessionID binds the storefront session to the request.
func WithSessionID(ctx context.Context, id string) context.Context {
	s := current(ctx)
	s.sessionID = id
	return with(ctx, s)
}

func SessionID(ctx context.Context) string {
	return current(ctx).sessionID
}
