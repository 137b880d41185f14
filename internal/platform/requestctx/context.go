package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/hanko-field/orderflow/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/hanko-field/orderflow/internal/platform/requestctx/trace"
	actorContextKey  contextKey = "github.com/hanko-field/orderflow/internal/platform/requestctx/actor"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	if !ok {
		return TraceInfo{}, false
	}
	return info, true
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, ok := Trace(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

// WithActor records the staff member performing the request. Identity is asserted upstream.
func WithActor(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, actorID)
}

// Actor returns the actor identifier recorded on the context.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}

// Detach returns a background context carrying the logger and trace metadata of ctx but none of
// its deadlines or cancellation.
func Detach(ctx context.Context) context.Context {
	detached := context.Background()
	if ctx == nil {
		return detached
	}
	detached = WithLogger(detached, Logger(ctx))
	if info, ok := Trace(ctx); ok {
		detached = WithTrace(detached, info)
	}
	if actor := Actor(ctx); actor != "" {
		detached = WithActor(detached, actor)
	}
	return detached
}
