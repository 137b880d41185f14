package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/httpx"
	"github.com/hanko-field/orderflow/internal/platform/observability"
	"github.com/hanko-field/orderflow/internal/platform/requestctx"
	"github.com/hanko-field/orderflow/internal/services"
)

const maxOrderUpdateBodySize = 16 * 1024

var errBodyTooLarge = errors.New("request body too large")

type updateOrderRequest struct {
	Status          *string              `json:"status"`
	PaymentStatus   *string              `json:"payment_status"`
	Notes           *string              `json:"notes"`
	Invoice         *orderInvoicePayload `json:"invoice"`
	DeliveryTime    *string              `json:"delivery_time"`
	ExpectedVersion *int64               `json:"expected_version"`
}

type orderInvoicePayload struct {
	Number      string `json:"number"`
	TaxID       string `json:"tax_id"`
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
}

type orderPayload struct {
	ID            string               `json:"id"`
	BusinessID    string               `json:"business_id"`
	OrderNumber   string               `json:"order_number,omitempty"`
	Type          string               `json:"type"`
	Status        string               `json:"status"`
	PaymentStatus string               `json:"payment_status"`
	Notes         string               `json:"notes"`
	Invoice       *orderInvoicePayload `json:"invoice,omitempty"`
	DeliveryTime  *string              `json:"delivery_time"`
	Version       int64                `json:"version"`
	UpdatedAt     string               `json:"updated_at"`
}

// OrderHandlers exposes staff order endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, orderID, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(order.Version, 10)))
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderUpdateBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	var req updateOrderRequest
	if len(bytes.TrimSpace(body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cmd, err := buildUpdateOrderCommand(orderID, req, r.Header.Get("If-Match"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd.ActorID = requestctx.Actor(ctx)

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, orderID, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(order.Version, 10)))
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func buildUpdateOrderCommand(orderID string, req updateOrderRequest, ifMatch string) (services.UpdateOrderCommand, error) {
	cmd := services.UpdateOrderCommand{OrderID: orderID, Notes: req.Notes}

	if req.Status != nil {
		status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}
	if req.PaymentStatus != nil {
		payment := domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(*req.PaymentStatus)))
		cmd.PaymentStatus = &payment
	}
	if req.Invoice != nil {
		cmd.Invoice = &domain.OrderInvoice{
			Number:      req.Invoice.Number,
			TaxID:       req.Invoice.TaxID,
			CompanyName: req.Invoice.CompanyName,
			Address:     req.Invoice.Address,
		}
	}
	if req.DeliveryTime != nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.DeliveryTime))
		if err != nil {
			return services.UpdateOrderCommand{}, errors.New("delivery_time must be a valid RFC3339 timestamp")
		}
		cmd.DeliveryTime = &parsed
	}

	cmd.ExpectedVersion = req.ExpectedVersion
	if raw := strings.TrimSpace(ifMatch); raw != "" {
		version, err := parseIfMatch(raw)
		if err != nil {
			return services.UpdateOrderCommand{}, err
		}
		if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != version {
			return services.UpdateOrderCommand{}, errors.New("If-Match does not agree with expected_version")
		}
		cmd.ExpectedVersion = &version
	}
	return cmd, nil
}

func parseIfMatch(raw string) (int64, error) {
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return 0, errors.New("If-Match must carry the order version")
	}
	return version, nil
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		BusinessID:    order.BusinessID,
		OrderNumber:   order.OrderNumber,
		Type:          string(order.Type),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Notes:         order.Notes,
		Version:       order.Version,
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	if order.Invoice != nil {
		payload.Invoice = &orderInvoicePayload{
			Number:      order.Invoice.Number,
			TaxID:       order.Invoice.TaxID,
			CompanyName: order.Invoice.CompanyName,
			Address:     order.Invoice.Address,
		}
	}
	if order.DeliveryTime != nil {
		value := formatTime(*order.DeliveryTime)
		payload.DeliveryTime = &value
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, orderID string, err error) {
	if err == nil {
		return
	}
	orderID = observability.SanitizeOrderID(orderID)
	subject := map[string]any{"order_id": orderID}
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound).WithDetails(subject))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", errorDetail(err, services.ErrOrderInvalidTransition), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidPaymentStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict).WithDetails(subject))
	default:
		observability.FromContext(ctx).Error("order request failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// errorDetail strips the sentinel prefix so staff see only the human message.
func errorDetail(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
