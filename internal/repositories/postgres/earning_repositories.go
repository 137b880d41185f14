package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	ppostgres "github.com/hanko-field/orderflow/internal/platform/postgres"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// AffiliateEarningRepository stores commissions; order_id is unique so a second insert conflicts.
type AffiliateEarningRepository struct {
	db ppostgres.DB
}

var _ repositories.AffiliateEarningRepository = (*AffiliateEarningRepository)(nil)

func NewAffiliateEarningRepository(db ppostgres.DB) (*AffiliateEarningRepository, error) {
	if db == nil {
		return nil, errors.New("affiliate earning repository: db is required")
	}
	return &AffiliateEarningRepository{db: db}, nil
}

func (r *AffiliateEarningRepository) FindByOrderID(ctx context.Context, orderID string) (domain.AffiliateEarning, error) {
	const query = `
		SELECT id, order_id, affiliate_id, business_id, amount, commission_type, commission_value,
		       status, created_at, updated_at, cancelled_at
		FROM affiliate_earnings
		WHERE order_id = $1
	`
	var (
		earning        domain.AffiliateEarning
		commissionType string
		status         string
	)
	err := ppostgres.Conn(ctx, r.db).QueryRow(ctx, query, strings.TrimSpace(orderID)).Scan(
		&earning.ID, &earning.OrderID, &earning.AffiliateID, &earning.BusinessID, &earning.Amount,
		&commissionType, &earning.CommissionValue, &status, &earning.CreatedAt, &earning.UpdatedAt,
		&earning.CancelledAt,
	)
	if err != nil {
		return domain.AffiliateEarning{}, ppostgres.WrapError("affiliate_earnings.find", err)
	}
	earning.CommissionType = domain.CommissionType(commissionType)
	earning.Status = domain.EarningStatus(status)
	earning.CreatedAt = earning.CreatedAt.UTC()
	earning.UpdatedAt = earning.UpdatedAt.UTC()
	if earning.CancelledAt != nil {
		value := earning.CancelledAt.UTC()
		earning.CancelledAt = &value
	}
	return earning, nil
}

func (r *AffiliateEarningRepository) Create(ctx context.Context, earning domain.AffiliateEarning) (domain.AffiliateEarning, error) {
	const query = `
		INSERT INTO affiliate_earnings (id, order_id, affiliate_id, business_id, amount,
		                                commission_type, commission_value, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := ppostgres.Conn(ctx, r.db).Exec(ctx, query,
		earning.ID, earning.OrderID, earning.AffiliateID, earning.BusinessID, earning.Amount,
		string(earning.CommissionType), earning.CommissionValue, string(earning.Status),
		earning.CreatedAt, earning.UpdatedAt,
	)
	if err != nil {
		return domain.AffiliateEarning{}, ppostgres.WrapError("affiliate_earnings.create", err)
	}
	return earning, nil
}

func (r *AffiliateEarningRepository) CancelPending(ctx context.Context, orderID string, at time.Time) (bool, error) {
	const query = `
		UPDATE affiliate_earnings
		SET status = $2, cancelled_at = $3, updated_at = $3
		WHERE order_id = $1 AND status = $4
	`
	tag, err := ppostgres.Conn(ctx, r.db).Exec(ctx, query,
		strings.TrimSpace(orderID), string(domain.EarningStatusCancelled), at.UTC(), string(domain.EarningStatusPending))
	if err != nil {
		return false, ppostgres.WrapError("affiliate_earnings.cancel", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeliveryEarningRepository stores courier earnings keyed uniquely by order.
type DeliveryEarningRepository struct {
	db ppostgres.DB
}

var _ repositories.DeliveryEarningRepository = (*DeliveryEarningRepository)(nil)

func NewDeliveryEarningRepository(db ppostgres.DB) (*DeliveryEarningRepository, error) {
	if db == nil {
		return nil, errors.New("delivery earning repository: db is required")
	}
	return &DeliveryEarningRepository{db: db}, nil
}

const deliveryEarningColumns = `id, order_id, delivery_person_id, business_id, amount, status, delivered_at, created_at, updated_at`

func (r *DeliveryEarningRepository) FindByOrderID(ctx context.Context, orderID string) (domain.DeliveryEarning, error) {
	row := ppostgres.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+deliveryEarningColumns+` FROM delivery_earnings WHERE order_id = $1`, strings.TrimSpace(orderID))
	earning, err := scanDeliveryEarning(row)
	if err != nil {
		return domain.DeliveryEarning{}, ppostgres.WrapError("delivery_earnings.find", err)
	}
	return earning, nil
}

func (r *DeliveryEarningRepository) Create(ctx context.Context, earning domain.DeliveryEarning) (domain.DeliveryEarning, error) {
	const query = `
		INSERT INTO delivery_earnings (id, order_id, delivery_person_id, business_id, amount, status,
		                               delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := ppostgres.Conn(ctx, r.db).Exec(ctx, query,
		earning.ID, earning.OrderID, earning.DeliveryPersonID, earning.BusinessID, earning.Amount,
		string(earning.Status), earning.DeliveredAt, earning.CreatedAt, earning.UpdatedAt,
	)
	if err != nil {
		return domain.DeliveryEarning{}, ppostgres.WrapError("delivery_earnings.create", err)
	}
	return earning, nil
}

func (r *DeliveryEarningRepository) MarkDelivered(ctx context.Context, orderID string, at time.Time) (domain.DeliveryEarning, error) {
	row := ppostgres.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE delivery_earnings
		SET delivered_at = $2, updated_at = $2
		WHERE order_id = $1
		RETURNING `+deliveryEarningColumns, strings.TrimSpace(orderID), at.UTC())
	earning, err := scanDeliveryEarning(row)
	if err != nil {
		return domain.DeliveryEarning{}, ppostgres.WrapError("delivery_earnings.mark_delivered", err)
	}
	return earning, nil
}

func scanDeliveryEarning(row ppostgres.Row) (domain.DeliveryEarning, error) {
	var (
		earning domain.DeliveryEarning
		status  string
	)
	if err := row.Scan(&earning.ID, &earning.OrderID, &earning.DeliveryPersonID, &earning.BusinessID,
		&earning.Amount, &status, &earning.DeliveredAt, &earning.CreatedAt, &earning.UpdatedAt); err != nil {
		return domain.DeliveryEarning{}, err
	}
	earning.Status = domain.EarningStatus(status)
	earning.DeliveredAt = earning.DeliveredAt.UTC()
	earning.CreatedAt = earning.CreatedAt.UTC()
	earning.UpdatedAt = earning.UpdatedAt.UTC()
	return earning, nil
}
