package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/orderflow/internal/platform/httpx"
)

const (
	defaultBasePath   = "/api/v1"
	requestTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar mounts a group of routes.
type RouteRegistrar func(r chi.Router)

// Option configures NewRouter.
type Option func(*router)

type router struct {
	basePath string
	extra    []func(http.Handler) http.Handler
	health   *HealthHandlers
	orders   RouteRegistrar
}

// WithMiddlewares runs mw after the built-in request id, real IP and timeout middlewares.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(r *router) { r.extra = append(r.extra, mw...) }
}

// WithHealthHandlers replaces the default /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(r *router) { r.health = h }
}

// WithOrderRoutes mounts reg under {base}/orders.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(r *router) { r.orders = reg }
}

// WithBasePath replaces /api/v1.
func WithBasePath(path string) Option {
	return func(r *router) {
		if path != "" {
			r.basePath = path
		}
	}
}

// NewRouter builds the HTTP surface: probes at the root and the order API under the base path.
// Unknown routes and methods answer with the JSON error envelope. Without an order registrar the
// order routes answer 501.
func NewRouter(opts ...Option) chi.Router {
	rt := router{basePath: defaultBasePath}
	for _, opt := range opts {
		opt(&rt)
	}
	if rt.health == nil {
		rt.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout))
	for _, mw := range rt.extra {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(jsonError(errorNotFoundCode, "no route for path", http.StatusNotFound))
	r.MethodNotAllowed(jsonError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))

	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)

	r.Route(rt.basePath+"/orders", func(orders chi.Router) {
		if rt.orders == nil {
			unavailable := jsonError("not_implemented", "order routes are not configured", http.StatusNotImplemented)
			orders.HandleFunc("/", unavailable)
			orders.HandleFunc("/*", unavailable)
			return
		}
		rt.orders(orders)
	})
	return r
}

func jsonError(code, message string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(code, message, status))
	}
}
