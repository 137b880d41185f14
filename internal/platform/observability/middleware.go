package observability

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/orderflow/internal/platform/httpx"
	"github.com/hanko-field/orderflow/internal/platform/requestctx"
)

// ActorHeader carries the staff identifier asserted by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// InjectLoggerMiddleware makes logger the request-scoped logger.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware enriches the request logger with request, trace and actor fields and
// logs one line when the request completes. The server span receives the final status.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx).With(requestFields(r)...)
			ctx = requestctx.WithLogger(ctx, logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			panicked := true
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				annotateServerSpan(trace.SpanFromContext(ctx), r, status)

				if ce := logger.Check(completionLevel(status), "request completed"); ce != nil {
					ce.Write(
						zap.Int("status", status),
						zap.Duration("latency", time.Since(start)),
						zap.Int("bytes", ww.BytesWritten()),
					)
				}
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
			panicked = false
		})
	}
}

// RecoveryMiddleware turns a panic into a logged stack trace and a JSON 500.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger := requestctx.Logger(r.Context())
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ActorMiddleware copies the gateway-asserted actor identifier onto the request context.
func ActorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
				r = r.WithContext(requestctx.WithActor(r.Context(), SanitizeActorID(actor)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestFields(r *http.Request) []zap.Field {
	ctx := r.Context()
	info, _ := requestctx.Trace(ctx)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("path", SanitizeRoute(r.URL.Path)),
		zap.String("trace_id", info.TraceID),
		zap.String("actor_id", SanitizeActorID(requestctx.Actor(ctx))),
	}
	if info.ProjectID != "" && info.TraceID != "" {
		fields = append(fields, zap.String("logging.googleapis.com/trace", "projects/"+info.ProjectID+"/traces/"+info.TraceID))
	}
	if ip := remoteIP(r.RemoteAddr); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	return fields
}

// annotateServerSpan runs after routing so the chi pattern is known.
func annotateServerSpan(span trace.Span, r *http.Request, status int) {
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			span.SetAttributes(semconv.HTTPRoute(SanitizeRoute(pattern)))
		}
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func completionLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func remoteIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}
