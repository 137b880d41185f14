package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

// Registry exposes the repositories required by the lifecycle engine.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Orders() OrderRepository
	AffiliateEarnings() AffiliateEarningRepository
	DeliveryEarnings() DeliveryEarningRepository
	Affiliates() AffiliateRepository
	Businesses() BusinessRepository

	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository loads and persists order headers.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Update persists the order when the stored version equals expectedVersion and stores the
	// incremented version. A mismatch must surface as a RepositoryError with IsConflict.
	Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error)
}

// AffiliateEarningRepository persists the one-per-order affiliate commission ledger.
type AffiliateEarningRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (domain.AffiliateEarning, error)
	// Create inserts the earning. An existing row for the same order must surface as IsConflict.
	Create(ctx context.Context, earning domain.AffiliateEarning) (domain.AffiliateEarning, error)
	// CancelPending flips a PENDING earning to CANCELLED and reports whether a row changed.
	CancelPending(ctx context.Context, orderID string, at time.Time) (bool, error)
}

// DeliveryEarningRepository persists the one-per-order courier earning ledger.
type DeliveryEarningRepository interface {
	FindByOrderID(ctx context.Context, orderID string) (domain.DeliveryEarning, error)
	// Create inserts the earning. An existing row for the same order must surface as IsConflict.
	Create(ctx context.Context, earning domain.DeliveryEarning) (domain.DeliveryEarning, error)
	MarkDelivered(ctx context.Context, orderID string, at time.Time) (domain.DeliveryEarning, error)
}

// AffiliateRepository reads affiliate commission configuration.
type AffiliateRepository interface {
	FindByID(ctx context.Context, affiliateID string) (domain.Affiliate, error)
}

// BusinessRepository reads per-business settings. Missing settings must surface as IsNotFound.
type BusinessRepository interface {
	FindSettings(ctx context.Context, businessID string) (domain.BusinessSettings, error)
}
