package postgres

import (
	"context"
	_ "embed"
	"errors"

	ppostgres "github.com/hanko-field/orderflow/internal/platform/postgres"
	"github.com/hanko-field/orderflow/internal/repositories"
)

//go:embed schema.sql
var schema string

// Registry wires the pgx backed repositories around a shared pool.
type Registry struct {
	db                ppostgres.DB
	orders            *OrderRepository
	affiliateEarnings *AffiliateEarningRepository
	deliveryEarnings  *DeliveryEarningRepository
	affiliates        *AffiliateRepository
	businesses        *BusinessRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository over db.
func NewRegistry(db ppostgres.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: db is required")
	}
	return &Registry{
		db:                db,
		orders:            &OrderRepository{db: db},
		affiliateEarnings: &AffiliateEarningRepository{db: db},
		deliveryEarnings:  &DeliveryEarningRepository{db: db},
		affiliates:        &AffiliateRepository{db: db},
		businesses:        &BusinessRepository{db: db},
	}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (r *Registry) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return ppostgres.WrapError("schema.ensure", err)
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

func (r *Registry) Ping(ctx context.Context) error {
	return ppostgres.WrapError("ping", r.db.Ping(ctx))
}

func (r *Registry) Close(context.Context) error {
	r.db.Close()
	return nil
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return ppostgres.RunInTx(ctx, r.db, fn)
}
