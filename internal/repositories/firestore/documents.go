package firestore

import (
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

const (
	ordersCollection            = "orders"
	affiliateEarningsCollection = "affiliateEarnings"
	deliveryEarningsCollection  = "deliveryEarnings"
	affiliatesCollection        = "affiliates"
	businessSettingsCollection  = "businessSettings"
)

type orderDocument struct {
	BusinessID       string             `firestore:"businessId"`
	OrderNumber      string             `firestore:"orderNumber"`
	Status           string             `firestore:"status"`
	Type             string             `firestore:"type"`
	PaymentStatus    string             `firestore:"paymentStatus"`
	Currency         string             `firestore:"currency"`
	Total            int64              `firestore:"total"`
	DeliveryFee      int64              `firestore:"deliveryFee"`
	DeliveryPersonID *string            `firestore:"deliveryPersonId,omitempty"`
	AffiliateID      *string            `firestore:"affiliateId,omitempty"`
	Customer         customerDocument   `firestore:"customer"`
	Items            []lineItemDocument `firestore:"items"`
	Notes            string             `firestore:"notes,omitempty"`
	Invoice          *invoiceDocument   `firestore:"invoice,omitempty"`
	DeliveryTime     *time.Time         `firestore:"deliveryTime,omitempty"`
	Version          int64              `firestore:"version"`
	CreatedAt        time.Time          `firestore:"createdAt"`
	UpdatedAt        time.Time          `firestore:"updatedAt"`
}

type customerDocument struct {
	ID     string `firestore:"id,omitempty"`
	Name   string `firestore:"name,omitempty"`
	Email  string `firestore:"email,omitempty"`
	Phone  string `firestore:"phone,omitempty"`
	Locale string `firestore:"locale,omitempty"`
}

type lineItemDocument struct {
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
}

type invoiceDocument struct {
	Number      string `firestore:"number,omitempty"`
	TaxID       string `firestore:"taxId,omitempty"`
	CompanyName string `firestore:"companyName,omitempty"`
	Address     string `firestore:"address,omitempty"`
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:               id,
		BusinessID:       doc.BusinessID,
		OrderNumber:      doc.OrderNumber,
		Status:           domain.OrderStatus(doc.Status),
		Type:             domain.OrderType(doc.Type),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		Currency:         doc.Currency,
		Total:            doc.Total,
		DeliveryFee:      doc.DeliveryFee,
		DeliveryPersonID: doc.DeliveryPersonID,
		AffiliateID:      doc.AffiliateID,
		Customer: domain.OrderCustomer{
			ID:     doc.Customer.ID,
			Name:   doc.Customer.Name,
			Email:  doc.Customer.Email,
			Phone:  doc.Customer.Phone,
			Locale: doc.Customer.Locale,
		},
		Notes:     doc.Notes,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderLineItem{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	if doc.Invoice != nil {
		order.Invoice = &domain.OrderInvoice{
			Number:      doc.Invoice.Number,
			TaxID:       doc.Invoice.TaxID,
			CompanyName: doc.Invoice.CompanyName,
			Address:     doc.Invoice.Address,
		}
	}
	if doc.DeliveryTime != nil {
		deliveryTime := doc.DeliveryTime.UTC()
		order.DeliveryTime = &deliveryTime
	}
	return order
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		BusinessID:       order.BusinessID,
		OrderNumber:      order.OrderNumber,
		Status:           string(order.Status),
		Type:             string(order.Type),
		PaymentStatus:    string(order.PaymentStatus),
		Currency:         order.Currency,
		Total:            order.Total,
		DeliveryFee:      order.DeliveryFee,
		DeliveryPersonID: order.DeliveryPersonID,
		AffiliateID:      order.AffiliateID,
		Customer: customerDocument{
			ID:     order.Customer.ID,
			Name:   order.Customer.Name,
			Email:  order.Customer.Email,
			Phone:  order.Customer.Phone,
			Locale: order.Customer.Locale,
		},
		Items:        make([]lineItemDocument, 0, len(order.Items)),
		Notes:        order.Notes,
		DeliveryTime: order.DeliveryTime,
		Version:      order.Version,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, lineItemDocument{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	if order.Invoice != nil {
		doc.Invoice = &invoiceDocument{
			Number:      order.Invoice.Number,
			TaxID:       order.Invoice.TaxID,
			CompanyName: order.Invoice.CompanyName,
			Address:     order.Invoice.Address,
		}
	}
	return doc
}

type affiliateEarningDocument struct {
	ID              string     `firestore:"id"`
	AffiliateID     string     `firestore:"affiliateId"`
	BusinessID      string     `firestore:"businessId"`
	Amount          int64      `firestore:"amount"`
	CommissionType  string     `firestore:"commissionType"`
	CommissionValue float64    `firestore:"commissionValue"`
	Status          string     `firestore:"status"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	CancelledAt     *time.Time `firestore:"cancelledAt,omitempty"`
}

func affiliateEarningFromDocument(orderID string, doc affiliateEarningDocument) domain.AffiliateEarning {
	earning := domain.AffiliateEarning{
		ID:              doc.ID,
		OrderID:         orderID,
		AffiliateID:     doc.AffiliateID,
		BusinessID:      doc.BusinessID,
		Amount:          doc.Amount,
		CommissionType:  domain.CommissionType(doc.CommissionType),
		CommissionValue: doc.CommissionValue,
		Status:          domain.EarningStatus(doc.Status),
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
	if doc.CancelledAt != nil {
		cancelledAt := doc.CancelledAt.UTC()
		earning.CancelledAt = &cancelledAt
	}
	return earning
}

func affiliateEarningToDocument(earning domain.AffiliateEarning) affiliateEarningDocument {
	return affiliateEarningDocument{
		ID:              earning.ID,
		AffiliateID:     earning.AffiliateID,
		BusinessID:      earning.BusinessID,
		Amount:          earning.Amount,
		CommissionType:  string(earning.CommissionType),
		CommissionValue: earning.CommissionValue,
		Status:          string(earning.Status),
		CreatedAt:       earning.CreatedAt,
		UpdatedAt:       earning.UpdatedAt,
		CancelledAt:     earning.CancelledAt,
	}
}

type deliveryEarningDocument struct {
	ID               string    `firestore:"id"`
	DeliveryPersonID string    `firestore:"deliveryPersonId"`
	BusinessID       string    `firestore:"businessId"`
	Amount           int64     `firestore:"amount"`
	Status           string    `firestore:"status"`
	DeliveredAt      time.Time `firestore:"deliveredAt"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func deliveryEarningFromDocument(orderID string, doc deliveryEarningDocument) domain.DeliveryEarning {
	return domain.DeliveryEarning{
		ID:               doc.ID,
		OrderID:          orderID,
		DeliveryPersonID: doc.DeliveryPersonID,
		BusinessID:       doc.BusinessID,
		Amount:           doc.Amount,
		Status:           domain.EarningStatus(doc.Status),
		DeliveredAt:      doc.DeliveredAt.UTC(),
		CreatedAt:        doc.CreatedAt.UTC(),
		UpdatedAt:        doc.UpdatedAt.UTC(),
	}
}

func deliveryEarningToDocument(earning domain.DeliveryEarning) deliveryEarningDocument {
	return deliveryEarningDocument{
		ID:               earning.ID,
		DeliveryPersonID: earning.DeliveryPersonID,
		BusinessID:       earning.BusinessID,
		Amount:           earning.Amount,
		Status:           string(earning.Status),
		DeliveredAt:      earning.DeliveredAt,
		CreatedAt:        earning.CreatedAt,
		UpdatedAt:        earning.UpdatedAt,
	}
}

type affiliateDocument struct {
	BusinessID      string  `firestore:"businessId"`
	Name            string  `firestore:"name"`
	CommissionType  string  `firestore:"commissionType"`
	CommissionValue float64 `firestore:"commissionValue"`
	Active          bool    `firestore:"active"`
}

type businessSettingsDocument struct {
	Name          string                `firestore:"name"`
	ContactEmail  string                `firestore:"contactEmail"`
	ContactPhone  string                `firestore:"contactPhone"`
	AdminEmails   []string              `firestore:"adminEmails"`
	Locale        string                `firestore:"locale"`
	Currency      string                `firestore:"currency"`
	Notifications notificationsDocument `firestore:"notifications"`
	Features      featuresDocument      `firestore:"features"`
}

type notificationsDocument struct {
	Enabled      bool            `firestore:"enabled"`
	AdminEnabled bool            `firestore:"adminEnabled"`
	TypeSpecific map[string]bool `firestore:"typeSpecific"`
	Global       map[string]bool `firestore:"global"`
}

type featuresDocument struct {
	AffiliateProgram   bool `firestore:"affiliateProgram"`
	DeliveryManagement bool `firestore:"deliveryManagement"`
}

func businessSettingsFromDocument(businessID string, doc businessSettingsDocument) domain.BusinessSettings {
	return domain.BusinessSettings{
		BusinessID:    businessID,
		Name:          doc.Name,
		ContactEmail:  doc.ContactEmail,
		ContactPhone:  doc.ContactPhone,
		AdminEmails:   doc.AdminEmails,
		Locale:        doc.Locale,
		Currency:      doc.Currency,
		Notifications: domain.NotificationPreferencesFromMaps(doc.Notifications.Enabled, doc.Notifications.AdminEnabled, doc.Notifications.TypeSpecific, doc.Notifications.Global),
		Features: domain.FeatureFlags{
			AffiliateProgram:   doc.Features.AffiliateProgram,
			DeliveryManagement: doc.Features.DeliveryManagement,
		},
	}
}
