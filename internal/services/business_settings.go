package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/orderflow/internal/repositories"
)

// ErrBusinessSettingsUnavailable wraps failures loading business settings.
var ErrBusinessSettingsUnavailable = errors.New("business settings: unavailable")

// BusinessSettingsProviderDeps bundles collaborators required to construct the settings provider.
type BusinessSettingsProviderDeps struct {
	Businesses repositories.BusinessRepository
	// Defaults apply to businesses without a settings document.
	Defaults BusinessSettings
}

type businessSettingsProvider struct {
	businesses repositories.BusinessRepository
	defaults   BusinessSettings
}

// NewBusinessSettingsProvider wires the business repository into a BusinessSettingsProvider.
func NewBusinessSettingsProvider(deps BusinessSettingsProviderDeps) (BusinessSettingsProvider, error) {
	if deps.Businesses == nil {
		return nil, errors.New("business settings: business repository is required")
	}
	return &businessSettingsProvider{businesses: deps.Businesses, defaults: deps.Defaults}, nil
}

func (p *businessSettingsProvider) Settings(ctx context.Context, businessID string) (BusinessSettings, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return BusinessSettings{}, Permanent(fmt.Errorf("%w: business id is required", ErrBusinessSettingsUnavailable))
	}

	settings, err := p.businesses.FindSettings(ctx, businessID)
	if err == nil {
		return settings, nil
	}
	if isRepositoryNotFound(err) {
		fallback := p.defaults
		fallback.BusinessID = businessID
		fallback.Notifications = p.defaults.Notifications.Clone()
		return fallback, nil
	}
	return BusinessSettings{}, fmt.Errorf("%w: %v", ErrBusinessSettingsUnavailable, err)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
