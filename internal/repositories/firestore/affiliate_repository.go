package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// AffiliateRepository reads affiliate profiles.
type AffiliateRepository struct {
	affiliates *pfirestore.Collection[affiliateDocument]
}

var _ repositories.AffiliateRepository = (*AffiliateRepository)(nil)

func NewAffiliateRepository(provider *pfirestore.Provider) (*AffiliateRepository, error) {
	if provider == nil {
		return nil, errors.New("affiliate repository: firestore provider is required")
	}
	return &AffiliateRepository{
		affiliates: pfirestore.NewCollection[affiliateDocument](provider, affiliatesCollection, nil),
	}, nil
}

func (r *AffiliateRepository) FindByID(ctx context.Context, affiliateID string) (domain.Affiliate, error) {
	doc, err := r.affiliates.Get(ctx, strings.TrimSpace(affiliateID))
	if err != nil {
		return domain.Affiliate{}, err
	}
	return domain.Affiliate{
		ID:              doc.ID,
		BusinessID:      doc.Data.BusinessID,
		Name:            doc.Data.Name,
		CommissionType:  domain.CommissionType(strings.ToUpper(strings.TrimSpace(doc.Data.CommissionType))),
		CommissionValue: doc.Data.CommissionValue,
		Active:          doc.Data.Active,
	}, nil
}
