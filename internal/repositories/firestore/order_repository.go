package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// OrderRepository persists order headers with optimistic versioning.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs the Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection, nil),
	}, nil
}

// FindByID loads the order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// Update replaces the document when its stored version still equals expectedVersion.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	var saved domain.Order
	err := runInTransaction(ctx, r.provider, func(txCtx context.Context) error {
		current, err := r.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.Data.Version != expectedVersion {
			return pfirestore.NewConflictError("orders.update",
				fmt.Errorf("order %s version %d does not match expected %d", orderID, current.Data.Version, expectedVersion))
		}

		payload := orderToDocument(order)
		payload.Version = expectedVersion + 1
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = current.Data.CreatedAt
		}
		if err := r.orders.Set(txCtx, orderID, payload); err != nil {
			return err
		}
		saved = orderFromDocument(orderID, payload)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}
