package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/repositories"
)

const (
	commissionLedgerName = "commission_ledger"

	commissionEventCreated   = "commission.created"
	commissionEventDuplicate = "commission.duplicate"
	commissionEventCancelled = "commission.cancelled"
	commissionEventSkipped   = "commission.skipped"

	affiliateEarningIDPrefix = "afe_"
)

// CommissionLedgerDeps bundles collaborators required to construct the commission ledger.
type CommissionLedgerDeps struct {
	Earnings    repositories.AffiliateEarningRepository
	Affiliates  repositories.AffiliateRepository
	Settings    BusinessSettingsProvider
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// CommissionLedger keeps at most one affiliate earning per order in step with the order's state.
type CommissionLedger struct {
	earnings   repositories.AffiliateEarningRepository
	affiliates repositories.AffiliateRepository
	settings   BusinessSettingsProvider
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ SideEffect = (*CommissionLedger)(nil)

// NewCommissionLedger validates deps and constructs the ledger.
func NewCommissionLedger(deps CommissionLedgerDeps) (*CommissionLedger, error) {
	if deps.Earnings == nil {
		return nil, errors.New("commission ledger: earning repository is required")
	}
	if deps.Affiliates == nil {
		return nil, errors.New("commission ledger: affiliate repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("commission ledger: business settings provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CommissionLedger{
		earnings:   deps.Earnings,
		affiliates: deps.Affiliates,
		settings:   deps.Settings,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Name identifies the ledger in side-effect logs and spans.
func (l *CommissionLedger) Name() string { return commissionLedgerName }

// Apply runs the cancel path and then the create path for a committed change.
func (l *CommissionLedger) Apply(ctx context.Context, change OrderChange) error {
	order := change.Current
	cancelling := isCancellationStatus(order.Status) && !isCancellationStatus(change.Previous.Status)
	if !cancelling && !qualifiesForCommission(order) {
		return nil
	}

	settings, err := l.settings.Settings(ctx, order.BusinessID)
	if err != nil {
		return err
	}
	if !settings.Features.AffiliateProgram {
		return nil
	}

	if cancelling {
		return l.cancel(ctx, order)
	}
	return l.create(ctx, order)
}

func (l *CommissionLedger) cancel(ctx context.Context, order Order) error {
	changed, err := l.earnings.CancelPending(ctx, order.ID, l.clock())
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return fmt.Errorf("commission ledger: cancel earning for order %s: %w", order.ID, err)
	}
	if changed {
		l.logger(ctx, commissionEventCancelled, map[string]any{
			"orderId": order.ID,
			"status":  string(order.Status),
		})
	}
	return nil
}

func (l *CommissionLedger) create(ctx context.Context, order Order) error {
	if _, err := l.earnings.FindByOrderID(ctx, order.ID); err == nil {
		return nil
	} else if !isRepositoryNotFound(err) {
		return fmt.Errorf("commission ledger: load earning for order %s: %w", order.ID, err)
	}

	affiliateID := strings.TrimSpace(*order.AffiliateID)
	affiliate, err := l.affiliates.FindByID(ctx, affiliateID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Permanent(fmt.Errorf("commission ledger: affiliate %s not found for order %s", affiliateID, order.ID))
		}
		return fmt.Errorf("commission ledger: load affiliate %s: %w", affiliateID, err)
	}
	if !affiliate.Active {
		l.logger(ctx, commissionEventSkipped, map[string]any{
			"orderId":     order.ID,
			"affiliateId": affiliateID,
			"reason":      "affiliate_inactive",
		})
		return nil
	}

	amount, err := CommissionAmount(order.Total, affiliate.CommissionType, affiliate.CommissionValue)
	if err != nil {
		return Permanent(fmt.Errorf("commission ledger: affiliate %s: %w", affiliateID, err))
	}

	now := l.clock()
	earning := AffiliateEarning{
		ID:              affiliateEarningIDPrefix + l.newID(),
		OrderID:         order.ID,
		AffiliateID:     affiliateID,
		BusinessID:      order.BusinessID,
		Amount:          amount,
		CommissionType:  affiliate.CommissionType,
		CommissionValue: affiliate.CommissionValue,
		Status:          domain.EarningStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := l.earnings.Create(ctx, earning); err != nil {
		if isRepositoryConflict(err) {
			l.logger(ctx, commissionEventDuplicate, map[string]any{"orderId": order.ID})
			return nil
		}
		return fmt.Errorf("commission ledger: create earning for order %s: %w", order.ID, err)
	}

	l.logger(ctx, commissionEventCreated, map[string]any{
		"orderId":     order.ID,
		"affiliateId": affiliateID,
		"amount":      amount,
	})
	return nil
}

// CommissionAmount computes the commission in minor units. Percentages round half-up; fixed
// values are already minor units.
func CommissionAmount(total int64, commissionType domain.CommissionType, value float64) (int64, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid commission value %v", value)
	}
	switch commissionType {
	case domain.CommissionTypePercentage:
		return int64(math.Floor(float64(total)*value/100 + 0.5)), nil
	case domain.CommissionTypeFixed:
		return int64(math.Floor(value + 0.5)), nil
	default:
		return 0, fmt.Errorf("unknown commission type %q", commissionType)
	}
}

func qualifiesForCommission(order Order) bool {
	if !order.HasAffiliate() || order.PaymentStatus != domain.PaymentStatusPaid {
		return false
	}
	return order.Status == domain.OrderStatusDelivered || order.Status == domain.OrderStatusPickedUp
}

func isCancellationStatus(status OrderStatus) bool {
	return status == domain.OrderStatusCancelled || status == domain.OrderStatusRefunded
}
