package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/orderflow/internal/platform/requestctx"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Error is the JSON error envelope: {error, message, status, request_id, trace_id} plus any
// details merged at the top level.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: clean(code, 80), Message: clean(message, 512), Status: status}
}

// WithDetails returns a copy of e carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = maps.Clone(details)
	}
	return e
}

func (e Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// WriteJSON writes payload with status. A nil payload leaves the body empty.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// WriteError writes err with the request and trace ids found on ctx. Envelope keys take
// precedence over details of the same name.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	body := make(map[string]any, len(err.Details)+5)
	maps.Copy(body, err.Details)
	body["error"] = err.Code
	body["message"] = err.Message
	body["status"] = err.Status
	if id := clean(middleware.GetReqID(ctx), 80); id != "" {
		body["request_id"] = id
	}
	if id := clean(requestctx.TraceID(ctx), 64); id != "" {
		body["trace_id"] = id
	}
	WriteJSON(w, err.Status, body)
}

func clean(value string, limit int) string {
	value = strings.TrimSpace(lineBreaks.Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
