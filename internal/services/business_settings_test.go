package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

type stubBusinessRepo struct {
	settings domain.BusinessSettings
	err      error
}

func (s *stubBusinessRepo) FindSettings(context.Context, string) (domain.BusinessSettings, error) {
	return s.settings, s.err
}

func TestBusinessSettingsProviderDefaultsWhenMissing(t *testing.T) {
	defaults := BusinessSettings{
		Features:      FeatureFlags{AffiliateProgram: true},
		Notifications: NotificationPreferences{Enabled: true, Global: map[domain.OrderStatus]bool{domain.OrderStatusReady: false}},
	}
	provider, err := NewBusinessSettingsProvider(BusinessSettingsProviderDeps{
		Businesses: &stubBusinessRepo{err: repoError{notFound: true}},
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	settings, err := provider.Settings(context.Background(), "biz_9")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.BusinessID != "biz_9" || !settings.Features.AffiliateProgram || !settings.Notifications.Enabled {
		t.Fatalf("expected defaults for biz_9, got %+v", settings)
	}
	settings.Notifications.Global[domain.OrderStatusReady] = true
	if defaults.Notifications.Global[domain.OrderStatusReady] {
		t.Fatalf("expected defaults to be cloned")
	}
}

func TestBusinessSettingsProviderErrors(t *testing.T) {
	if _, err := NewBusinessSettingsProvider(BusinessSettingsProviderDeps{}); err == nil {
		t.Fatalf("expected error without repository")
	}

	provider, err := NewBusinessSettingsProvider(BusinessSettingsProviderDeps{
		Businesses: &stubBusinessRepo{err: repoError{unavailable: true}},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Settings(context.Background(), "biz_1"); !errors.Is(err, ErrBusinessSettingsUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	_, err = provider.Settings(context.Background(), " ")
	var permanent permanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected permanent error for blank business id, got %v", err)
	}
}
