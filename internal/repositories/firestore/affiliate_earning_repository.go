package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// AffiliateEarningRepository stores one commission document per order, keyed by the order id.
type AffiliateEarningRepository struct {
	provider *pfirestore.Provider
	earnings *pfirestore.Collection[affiliateEarningDocument]
}

var _ repositories.AffiliateEarningRepository = (*AffiliateEarningRepository)(nil)

// NewAffiliateEarningRepository constructs the Firestore backed affiliate earning ledger.
func NewAffiliateEarningRepository(provider *pfirestore.Provider) (*AffiliateEarningRepository, error) {
	if provider == nil {
		return nil, errors.New("affiliate earning repository: firestore provider is required")
	}
	return &AffiliateEarningRepository{
		provider: provider,
		earnings: pfirestore.NewCollection[affiliateEarningDocument](provider, affiliateEarningsCollection, nil),
	}, nil
}

func (r *AffiliateEarningRepository) FindByOrderID(ctx context.Context, orderID string) (domain.AffiliateEarning, error) {
	doc, err := r.earnings.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.AffiliateEarning{}, err
	}
	return affiliateEarningFromDocument(doc.ID, doc.Data), nil
}

// Create relies on Firestore's create-if-absent semantics so a second row for the order is a conflict.
func (r *AffiliateEarningRepository) Create(ctx context.Context, earning domain.AffiliateEarning) (domain.AffiliateEarning, error) {
	orderID := strings.TrimSpace(earning.OrderID)
	if err := r.earnings.Create(ctx, orderID, affiliateEarningToDocument(earning)); err != nil {
		return domain.AffiliateEarning{}, err
	}
	earning.OrderID = orderID
	return earning, nil
}

func (r *AffiliateEarningRepository) CancelPending(ctx context.Context, orderID string, at time.Time) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	changed := false
	err := runInTransaction(ctx, r.provider, func(txCtx context.Context) error {
		changed = false
		doc, err := r.earnings.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		if domain.EarningStatus(doc.Data.Status) != domain.EarningStatusPending {
			return nil
		}
		at = at.UTC()
		if err := r.earnings.Update(txCtx, orderID, []firestore.Update{
			{Path: "status", Value: string(domain.EarningStatusCancelled)},
			{Path: "cancelledAt", Value: at},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	return changed, nil
}
