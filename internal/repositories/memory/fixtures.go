package memory

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

type fixtureFile struct {
	Orders     []orderFixture     `yaml:"orders"`
	Affiliates []affiliateFixture `yaml:"affiliates"`
	Businesses []businessFixture  `yaml:"businesses"`
}

type orderFixture struct {
	ID               string          `yaml:"id"`
	BusinessID       string          `yaml:"business_id"`
	OrderNumber      string          `yaml:"order_number"`
	Status           string          `yaml:"status"`
	Type             string          `yaml:"type"`
	PaymentStatus    string          `yaml:"payment_status"`
	Currency         string          `yaml:"currency"`
	Total            int64           `yaml:"total"`
	DeliveryFee      int64           `yaml:"delivery_fee"`
	DeliveryPersonID string          `yaml:"delivery_person_id"`
	AffiliateID      string          `yaml:"affiliate_id"`
	Customer         customerFixture `yaml:"customer"`
	Items            []itemFixture   `yaml:"items"`
	Notes            string          `yaml:"notes"`
	Version          int64           `yaml:"version"`
	CreatedAt        time.Time       `yaml:"created_at"`
}

type customerFixture struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Phone  string `yaml:"phone"`
	Locale string `yaml:"locale"`
}

type itemFixture struct {
	Name      string `yaml:"name"`
	Quantity  int    `yaml:"quantity"`
	UnitPrice int64  `yaml:"unit_price"`
}

type affiliateFixture struct {
	ID              string  `yaml:"id"`
	BusinessID      string  `yaml:"business_id"`
	Name            string  `yaml:"name"`
	CommissionType  string  `yaml:"commission_type"`
	CommissionValue float64 `yaml:"commission_value"`
	Active          *bool   `yaml:"active"`
}

type businessFixture struct {
	BusinessID    string   `yaml:"business_id"`
	Name          string   `yaml:"name"`
	ContactEmail  string   `yaml:"contact_email"`
	ContactPhone  string   `yaml:"contact_phone"`
	AdminEmails   []string `yaml:"admin_emails"`
	Locale        string   `yaml:"locale"`
	Currency      string   `yaml:"currency"`
	Notifications struct {
		Enabled      bool            `yaml:"enabled"`
		AdminEnabled bool            `yaml:"admin_enabled"`
		TypeSpecific map[string]bool `yaml:"type_specific"`
		Global       map[string]bool `yaml:"global"`
	} `yaml:"notifications"`
	Features struct {
		AffiliateProgram   bool `yaml:"affiliate_program"`
		DeliveryManagement bool `yaml:"delivery_management"`
	} `yaml:"features"`
}

// LoadFixturesFile seeds a new registry from a YAML fixtures file.
func LoadFixturesFile(path string) (*Registry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory: open fixtures: %w", err)
	}
	defer file.Close()
	return LoadFixtures(file)
}

// LoadFixtures seeds a new registry from YAML. Orders without a version start at 1.
func LoadFixtures(r io.Reader) (*Registry, error) {
	var fixtures fixtureFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixtures); err != nil && err != io.EOF {
		return nil, fmt.Errorf("memory: decode fixtures: %w", err)
	}

	registry := NewRegistry()
	for i, fixture := range fixtures.Orders {
		order, err := fixture.toDomain()
		if err != nil {
			return nil, fmt.Errorf("memory: orders[%d]: %w", i, err)
		}
		registry.PutOrder(order)
	}
	for i, fixture := range fixtures.Affiliates {
		if strings.TrimSpace(fixture.ID) == "" {
			return nil, fmt.Errorf("memory: affiliates[%d]: id is required", i)
		}
		active := true
		if fixture.Active != nil {
			active = *fixture.Active
		}
		registry.PutAffiliate(domain.Affiliate{
			ID:              fixture.ID,
			BusinessID:      fixture.BusinessID,
			Name:            fixture.Name,
			CommissionType:  domain.CommissionType(strings.ToUpper(strings.TrimSpace(fixture.CommissionType))),
			CommissionValue: fixture.CommissionValue,
			Active:          active,
		})
	}
	for i, fixture := range fixtures.Businesses {
		if strings.TrimSpace(fixture.BusinessID) == "" {
			return nil, fmt.Errorf("memory: businesses[%d]: business_id is required", i)
		}
		registry.PutBusinessSettings(domain.BusinessSettings{
			BusinessID:   fixture.BusinessID,
			Name:         fixture.Name,
			ContactEmail: fixture.ContactEmail,
			ContactPhone: fixture.ContactPhone,
			AdminEmails:  fixture.AdminEmails,
			Locale:       fixture.Locale,
			Currency:     fixture.Currency,
			Notifications: domain.NotificationPreferencesFromMaps(
				fixture.Notifications.Enabled,
				fixture.Notifications.AdminEnabled,
				fixture.Notifications.TypeSpecific,
				fixture.Notifications.Global,
			),
			Features: domain.FeatureFlags{
				AffiliateProgram:   fixture.Features.AffiliateProgram,
				DeliveryManagement: fixture.Features.DeliveryManagement,
			},
		})
	}
	return registry, nil
}

func (f orderFixture) toDomain() (domain.Order, error) {
	if strings.TrimSpace(f.ID) == "" {
		return domain.Order{}, fmt.Errorf("id is required")
	}
	status, ok := domain.ParseOrderStatus(f.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("unknown status %q", f.Status)
	}
	orderType := domain.OrderType(strings.ToUpper(strings.TrimSpace(f.Type)))
	if !orderType.Valid() {
		return domain.Order{}, fmt.Errorf("unknown type %q", f.Type)
	}
	payment, ok := domain.ParsePaymentStatus(f.PaymentStatus)
	if !ok {
		return domain.Order{}, fmt.Errorf("unknown payment status %q", f.PaymentStatus)
	}

	order := domain.Order{
		ID:            f.ID,
		BusinessID:    f.BusinessID,
		OrderNumber:   f.OrderNumber,
		Status:        status,
		Type:          orderType,
		PaymentStatus: payment,
		Currency:      f.Currency,
		Total:         f.Total,
		DeliveryFee:   f.DeliveryFee,
		Customer:      domain.OrderCustomer(f.Customer),
		Notes:         f.Notes,
		Version:       f.Version,
		CreatedAt:     f.CreatedAt.UTC(),
		UpdatedAt:     f.CreatedAt.UTC(),
	}
	if order.Version <= 0 {
		order.Version = 1
	}
	if id := strings.TrimSpace(f.DeliveryPersonID); id != "" {
		order.DeliveryPersonID = &id
	}
	if id := strings.TrimSpace(f.AffiliateID); id != "" {
		order.AffiliateID = &id
	}
	for _, item := range f.Items {
		order.Items = append(order.Items, domain.OrderLineItem(item))
	}
	return order, nil
}
