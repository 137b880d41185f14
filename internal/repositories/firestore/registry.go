package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/repositories"
)

const (
	txAttempts = 8
	txTimeout  = 20 * time.Second
)

// Registry wires the Firestore repositories around a shared provider.
type Registry struct {
	provider          *pfirestore.Provider
	orders            *OrderRepository
	affiliateEarnings *AffiliateEarningRepository
	deliveryEarnings  *DeliveryEarningRepository
	affiliates        *AffiliateRepository
	businesses        *BusinessRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository. The client is dialled lazily on first use.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	affiliateEarnings, err := NewAffiliateEarningRepository(provider)
	if err != nil {
		return nil, err
	}
	deliveryEarnings, err := NewDeliveryEarningRepository(provider)
	if err != nil {
		return nil, err
	}
	affiliates, err := NewAffiliateRepository(provider)
	if err != nil {
		return nil, err
	}
	businesses, err := NewBusinessRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:          provider,
		orders:            orders,
		affiliateEarnings: affiliateEarnings,
		deliveryEarnings:  deliveryEarnings,
		affiliates:        affiliates,
		businesses:        businesses,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) AffiliateEarnings() repositories.AffiliateEarningRepository {
	return r.affiliateEarnings
}

func (r *Registry) DeliveryEarnings() repositories.DeliveryEarningRepository {
	return r.deliveryEarnings
}

func (r *Registry) Affiliates() repositories.AffiliateRepository { return r.affiliates }

func (r *Registry) Businesses() repositories.BusinessRepository { return r.businesses }

// Ping reads a single order document to prove connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, ordersCollection)
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// RunInTx runs fn inside a Firestore transaction. Repository calls made with the callback context
// join it, and a context that already carries a transaction is reused.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return runInTransaction(ctx, r.provider, fn)
}

func runInTransaction(ctx context.Context, provider *pfirestore.Provider, fn func(ctx context.Context) error) error {
	if _, ok := pfirestore.TransactionFrom(ctx); ok {
		return fn(ctx)
	}
	return provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	}, pfirestore.WithTxAttempts(txAttempts), pfirestore.WithTxTimeout(txTimeout))
}
