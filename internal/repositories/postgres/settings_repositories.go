package postgres

import (
	"context"
	"errors"
	"strings"

	domain "github.com/hanko-field/orderflow/internal/domain"
	ppostgres "github.com/hanko-field/orderflow/internal/platform/postgres"
	"github.com/hanko-field/orderflow/internal/repositories"
)

type notificationsJSON struct {
	Enabled      bool            `json:"enabled"`
	AdminEnabled bool            `json:"admin_enabled"`
	TypeSpecific map[string]bool `json:"type_specific"`
	Global       map[string]bool `json:"global"`
}

// AffiliateRepository reads affiliate rows.
type AffiliateRepository struct {
	db ppostgres.DB
}

var _ repositories.AffiliateRepository = (*AffiliateRepository)(nil)

func NewAffiliateRepository(db ppostgres.DB) (*AffiliateRepository, error) {
	if db == nil {
		return nil, errors.New("affiliate repository: db is required")
	}
	return &AffiliateRepository{db: db}, nil
}

func (r *AffiliateRepository) FindByID(ctx context.Context, affiliateID string) (domain.Affiliate, error) {
	const query = `
		SELECT id, business_id, name, commission_type, commission_value, active
		FROM affiliates
		WHERE id = $1
	`
	var (
		affiliate      domain.Affiliate
		commissionType string
	)
	err := ppostgres.Conn(ctx, r.db).QueryRow(ctx, query, strings.TrimSpace(affiliateID)).Scan(
		&affiliate.ID, &affiliate.BusinessID, &affiliate.Name, &commissionType,
		&affiliate.CommissionValue, &affiliate.Active,
	)
	if err != nil {
		return domain.Affiliate{}, ppostgres.WrapError("affiliates.find", err)
	}
	affiliate.CommissionType = domain.CommissionType(strings.ToUpper(strings.TrimSpace(commissionType)))
	return affiliate, nil
}

// BusinessRepository reads business_settings rows.
type BusinessRepository struct {
	db ppostgres.DB
}

var _ repositories.BusinessRepository = (*BusinessRepository)(nil)

func NewBusinessRepository(db ppostgres.DB) (*BusinessRepository, error) {
	if db == nil {
		return nil, errors.New("business repository: db is required")
	}
	return &BusinessRepository{db: db}, nil
}

func (r *BusinessRepository) FindSettings(ctx context.Context, businessID string) (domain.BusinessSettings, error) {
	const query = `
		SELECT business_id, name, contact_email, contact_phone, admin_emails, locale, currency,
		       notifications, affiliate_program, delivery_management
		FROM business_settings
		WHERE business_id = $1
	`
	var (
		settings      domain.BusinessSettings
		notifications notificationsJSON
	)
	err := ppostgres.Conn(ctx, r.db).QueryRow(ctx, query, strings.TrimSpace(businessID)).Scan(
		&settings.BusinessID, &settings.Name, &settings.ContactEmail, &settings.ContactPhone,
		&settings.AdminEmails, &settings.Locale, &settings.Currency, &notifications,
		&settings.Features.AffiliateProgram, &settings.Features.DeliveryManagement,
	)
	if err != nil {
		return domain.BusinessSettings{}, ppostgres.WrapError("business_settings.find", err)
	}
	settings.Notifications = domain.NotificationPreferencesFromMaps(
		notifications.Enabled, notifications.AdminEnabled, notifications.TypeSpecific, notifications.Global)
	return settings, nil
}
