package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// DeliveryEarningRepository stores one courier earning document per order, keyed by the order id.
type DeliveryEarningRepository struct {
	provider *pfirestore.Provider
	earnings *pfirestore.Collection[deliveryEarningDocument]
}

var _ repositories.DeliveryEarningRepository = (*DeliveryEarningRepository)(nil)

// NewDeliveryEarningRepository constructs the Firestore backed delivery earning ledger.
func NewDeliveryEarningRepository(provider *pfirestore.Provider) (*DeliveryEarningRepository, error) {
	if provider == nil {
		return nil, errors.New("delivery earning repository: firestore provider is required")
	}
	return &DeliveryEarningRepository{
		provider: provider,
		earnings: pfirestore.NewCollection[deliveryEarningDocument](provider, deliveryEarningsCollection, nil),
	}, nil
}

func (r *DeliveryEarningRepository) FindByOrderID(ctx context.Context, orderID string) (domain.DeliveryEarning, error) {
	doc, err := r.earnings.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.DeliveryEarning{}, err
	}
	return deliveryEarningFromDocument(doc.ID, doc.Data), nil
}

func (r *DeliveryEarningRepository) Create(ctx context.Context, earning domain.DeliveryEarning) (domain.DeliveryEarning, error) {
	orderID := strings.TrimSpace(earning.OrderID)
	if err := r.earnings.Create(ctx, orderID, deliveryEarningToDocument(earning)); err != nil {
		return domain.DeliveryEarning{}, err
	}
	earning.OrderID = orderID
	return earning, nil
}

// MarkDelivered refreshes the delivery timestamp on the existing row without touching its status.
func (r *DeliveryEarningRepository) MarkDelivered(ctx context.Context, orderID string, at time.Time) (domain.DeliveryEarning, error) {
	orderID = strings.TrimSpace(orderID)
	var updated domain.DeliveryEarning
	err := runInTransaction(ctx, r.provider, func(txCtx context.Context) error {
		doc, err := r.earnings.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		payload := doc.Data
		payload.DeliveredAt = at.UTC()
		payload.UpdatedAt = at.UTC()
		if err := r.earnings.Set(txCtx, orderID, payload); err != nil {
			return err
		}
		updated = deliveryEarningFromDocument(orderID, payload)
		return nil
	})
	if err != nil {
		return domain.DeliveryEarning{}, err
	}
	return updated, nil
}
