package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/hanko-field/orderflow/internal/platform/httpx"
)

const defaultReadinessTimeout = 3 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	clock   func() time.Time
	started time.Time
	timeout time.Duration
	checks  map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probed by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// WithReadinessTimeout bounds each readiness probe.
func WithReadinessTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
		checks:  make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.started = h.clock()
	return h
}

type healthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    now.Sub(h.started).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// Readyz probes every registered dependency and returns 503 when any of them fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			results[name] = "error"
			continue
		}
		results[name] = "ok"
	}

	now := h.clock()
	payload := healthResponse{
		Status:    "ok",
		Uptime:    now.Sub(h.started).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Checks:    results,
	}
	if status != http.StatusOK {
		payload.Status = "unavailable"
	}
	httpx.WriteJSON(w, status, payload)
}
