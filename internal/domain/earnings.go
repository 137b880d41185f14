package domain

import "time"

// CommissionType selects how an affiliate commission is computed.
type CommissionType string

const (
	// CommissionTypePercentage computes the commission as a percentage of the order total.
	CommissionTypePercentage CommissionType = "PERCENTAGE"
	// CommissionTypeFixed pays a flat amount per order.
	CommissionTypeFixed CommissionType = "FIXED"
)

// EarningStatus tracks payout progress for ledger entries.
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "PENDING"
	EarningStatusCancelled EarningStatus = "CANCELLED"
	// EarningStatusPaid is set by the payout process once the money left the business.
	EarningStatusPaid EarningStatus = "PAID"
)

// Affiliate stores the commission configuration of a referring partner.
type Affiliate struct {
	ID              string
	BusinessID      string
	Name            string
	CommissionType  CommissionType
	CommissionValue float64
	Active          bool
}

// AffiliateEarning is the commission owed to an affiliate for a single order.
type AffiliateEarning struct {
	ID              string
	OrderID         string
	AffiliateID     string
	BusinessID      string
	Amount          int64
	CommissionType  CommissionType
	CommissionValue float64
	Status          EarningStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

// DeliveryEarning is the fee owed to the courier who delivered an order.
type DeliveryEarning struct {
	ID               string
	OrderID          string
	DeliveryPersonID string
	BusinessID       string
	Amount           int64
	Status           EarningStatus
	DeliveredAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
