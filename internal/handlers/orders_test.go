package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/observability"
	"github.com/hanko-field/orderflow/internal/services"
)

type stubOrderService struct {
	getFn    func(ctx context.Context, orderID string) (services.Order, error)
	updateFn func(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) UpdateOrder(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	return s.updateFn(ctx, cmd)
}

func newOrderRouter(svc services.OrderService) http.Handler {
	return NewRouter(
		WithMiddlewares(observability.ActorMiddleware()),
		WithOrderRoutes(NewOrderHandlers(svc).Routes),
	)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return payload
}

func TestUpdateOrderPassesCommand(t *testing.T) {
	updatedAt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	var captured services.UpdateOrderCommand
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            cmd.OrderID,
				Status:        domain.OrderStatusCancelled,
				PaymentStatus: domain.PaymentStatusRefunded,
				Notes:         "customer called",
				Version:       8,
				UpdatedAt:     updatedAt,
			}, nil
		},
	}

	body := `{"status":"cancelled","notes":"customer called","delivery_time":"2025-03-14T18:00:00+09:00","invoice":{"number":"INV-1"}}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_1", strings.NewReader(body))
	req.Header.Set("If-Match", `"7"`)
	req.Header.Set(observability.ActorHeader, "staff_42")
	rr := httptest.NewRecorder()

	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.ActorID != "staff_42" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected uppercase CANCELLED status, got %v", captured.Status)
	}
	if captured.PaymentStatus != nil {
		t.Fatalf("expected omitted payment status to stay nil")
	}
	if captured.ExpectedVersion == nil || *captured.ExpectedVersion != 7 {
		t.Fatalf("expected version 7 from If-Match, got %v", captured.ExpectedVersion)
	}
	if captured.DeliveryTime == nil || !captured.DeliveryTime.Equal(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected delivery time %v", captured.DeliveryTime)
	}
	if captured.Invoice == nil || captured.Invoice.Number != "INV-1" {
		t.Fatalf("unexpected invoice %+v", captured.Invoice)
	}
	if etag := rr.Header().Get("ETag"); etag != `"8"` {
		t.Fatalf("expected ETag \"8\", got %q", etag)
	}

	payload := decodeBody(t, rr)
	if payload["payment_status"] != "REFUNDED" || payload["version"] != float64(8) {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload["updated_at"] != "2025-03-14T09:30:00Z" {
		t.Fatalf("unexpected updated_at %v", payload["updated_at"])
	}
}

func TestUpdateOrderErrorMapping(t *testing.T) {
	transition := fmt.Errorf("%w: %s", services.ErrOrderInvalidTransition,
		"Cannot change status from `READY` to `PICKED_UP` for `DELIVERY` order")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{name: "not found", err: services.ErrOrderNotFound, wantStatus: http.StatusNotFound, wantCode: "order_not_found"},
		{name: "transition", err: transition, wantStatus: http.StatusBadRequest, wantCode: "invalid_status_transition",
			wantMsg: "Cannot change status from `READY` to `PICKED_UP` for `DELIVERY` order"},
		{name: "payment", err: fmt.Errorf("%w: %q", services.ErrOrderInvalidPaymentStatus, "SETTLED"), wantStatus: http.StatusBadRequest, wantCode: "invalid_payment_status"},
		{name: "input", err: fmt.Errorf("%w: unknown status", services.ErrOrderInvalidInput), wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "conflict", err: services.ErrOrderConflict, wantStatus: http.StatusConflict, wantCode: "order_conflict"},
		{name: "storage", err: errors.New("firestore exploded"), wantStatus: http.StatusInternalServerError, wantCode: "order_error",
			wantMsg: "failed to process order request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				updateFn: func(context.Context, services.UpdateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_1", strings.NewReader(`{"status":"PICKED_UP"}`))
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			payload := decodeBody(t, rr)
			if payload["error"] != tc.wantCode {
				t.Fatalf("expected code %s, got %v", tc.wantCode, payload["error"])
			}
			if tc.wantMsg != "" && payload["message"] != tc.wantMsg {
				t.Fatalf("expected message %q, got %v", tc.wantMsg, payload["message"])
			}
			if tc.wantStatus == http.StatusNotFound || tc.wantStatus == http.StatusConflict {
				if payload["order_id"] != "ord_1" {
					t.Fatalf("expected order_id detail, got %v", payload["order_id"])
				}
			}
		})
	}
}

func TestUpdateOrderRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ifMatch string
	}{
		{name: "invalid json", body: `{"status":`},
		{name: "unknown field", body: `{"colour":"red"}`},
		{name: "bad delivery time", body: `{"delivery_time":"tomorrow"}`},
		{name: "bad if-match", body: `{}`, ifMatch: `"abc"`},
		{name: "disagreeing versions", body: `{"expected_version":3}`, ifMatch: `"4"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				updateFn: func(context.Context, services.UpdateOrderCommand) (services.Order, error) {
					t.Fatal("service must not be called")
					return services.Order{}, nil
				},
			}
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_1", strings.NewReader(tc.body))
			if tc.ifMatch != "" {
				req.Header.Set("If-Match", tc.ifMatch)
			}
			rr := httptest.NewRecorder()
			newOrderRouter(svc).ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if payload := decodeBody(t, rr); payload["error"] != "invalid_request" {
				t.Fatalf("expected invalid_request, got %v", payload["error"])
			}
		})
	}
}

func TestUpdateOrderRejectsOversizedBody(t *testing.T) {
	svc := &stubOrderService{}
	body := `{"notes":"` + strings.Repeat("a", maxOrderUpdateBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/ord_1", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestGetOrder(t *testing.T) {
	deliveryTime := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_1" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return services.Order{
				ID:           "ord_1",
				Type:         domain.OrderTypePickup,
				Status:       domain.OrderStatusPickedUp,
				DeliveryTime: &deliveryTime,
				Version:      2,
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["delivery_time"] != "2025-03-14T10:00:00Z" || payload["status"] != "PICKED_UP" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rr = httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
