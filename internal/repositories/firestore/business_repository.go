package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/hanko-field/orderflow/internal/domain"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// BusinessRepository reads the settings document stored per business.
type BusinessRepository struct {
	settings *pfirestore.Collection[businessSettingsDocument]
}

var _ repositories.BusinessRepository = (*BusinessRepository)(nil)

func NewBusinessRepository(provider *pfirestore.Provider) (*BusinessRepository, error) {
	if provider == nil {
		return nil, errors.New("business repository: firestore provider is required")
	}
	return &BusinessRepository{
		settings: pfirestore.NewCollection[businessSettingsDocument](provider, businessSettingsCollection, nil),
	}, nil
}

func (r *BusinessRepository) FindSettings(ctx context.Context, businessID string) (domain.BusinessSettings, error) {
	businessID = strings.TrimSpace(businessID)
	doc, err := r.settings.Get(ctx, businessID)
	if err != nil {
		return domain.BusinessSettings{}, err
	}
	return businessSettingsFromDocument(doc.ID, doc.Data), nil
}
