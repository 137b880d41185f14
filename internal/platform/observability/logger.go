package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/orderflow/internal/platform/requestctx"
)

// NewLogger builds the JSON production logger with Cloud Logging key names. LOG_LEVEL selects the
// level and defaults to info.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		level, err := zap.ParseAtomicLevel(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("observability: LOG_LEVEL: %w", err)
		}
		cfg.Level = level
	}
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger is the structured event hook accepted by service constructors.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewEventLogger adapts zap to the service event hook. The level follows the event suffix:
// ".failed" and ".dropped" log at error, ".retry" and ".skipped" at warn, the rest at info.
// A request-scoped logger on ctx wins over fallback.
func NewEventLogger(fallback *zap.Logger) EventLogger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for _, k := range keys {
			if err, ok := fields[k].(error); ok {
				zFields = append(zFields, zap.NamedError(k, err))
				continue
			}
			zFields = append(zFields, zap.Any(k, fields[k]))
		}

		switch {
		case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".dropped"):
			logger.Error(event, zFields...)
		case strings.HasSuffix(event, ".retry"), strings.HasSuffix(event, ".skipped"):
			logger.Warn(event, zFields...)
		default:
			logger.Info(event, zFields...)
		}
	}
}

// PrintfAdapter adapts zap to printf-style logging interfaces.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter creates a PrintfAdapter backed by the supplied logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf implements the Printf-style logging expected by client libraries such as go-redis.
func (a PrintfAdapter) Printf(ctx context.Context, format string, args ...any) {
	a.logger.Infof(format, args...)
}
