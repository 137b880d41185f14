package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/repositories"
)

const (
	deliveryLedgerName = "delivery_earning_ledger"

	deliveryEarningEventCreated = "delivery_earning.created"
	deliveryEarningEventUpdated = "delivery_earning.updated"

	deliveryEarningIDPrefix = "dle_"
)

// DeliveryEarningLedgerDeps bundles collaborators required to construct the delivery earning ledger.
type DeliveryEarningLedgerDeps struct {
	Earnings    repositories.DeliveryEarningRepository
	Settings    BusinessSettingsProvider
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// DeliveryEarningLedger records what the courier is owed once a delivery order is delivered.
type DeliveryEarningLedger struct {
	earnings repositories.DeliveryEarningRepository
	settings BusinessSettingsProvider
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ SideEffect = (*DeliveryEarningLedger)(nil)

// NewDeliveryEarningLedger validates deps and constructs the ledger.
func NewDeliveryEarningLedger(deps DeliveryEarningLedgerDeps) (*DeliveryEarningLedger, error) {
	if deps.Earnings == nil {
		return nil, errors.New("delivery ledger: earning repository is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("delivery ledger: business settings provider is required")
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

	return &DeliveryEarningLedger{
		earnings: deps.Earnings,
		settings: deps.Settings,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Name identifies the ledger in side-effect logs and spans.
func (l *DeliveryEarningLedger) Name() string { return deliveryLedgerName }

// Apply creates the courier earning on the first delivery and refreshes DeliveredAt on repeats.
func (l *DeliveryEarningLedger) Apply(ctx context.Context, change OrderChange) error {
	if !qualifiesForDeliveryEarning(change) {
		return nil
	}

	order := change.Current
	settings, err := l.settings.Settings(ctx, order.BusinessID)
	if err != nil {
		return err
	}
	if !settings.Features.DeliveryManagement {
		return nil
	}

	now := l.clock()
	if _, err := l.earnings.FindByOrderID(ctx, order.ID); err == nil {
		return l.markDelivered(ctx, order.ID, now)
	} else if !isRepositoryNotFound(err) {
		return fmt.Errorf("delivery ledger: load earning for order %s: %w", order.ID, err)
	}

	earning := DeliveryEarning{
		ID:               deliveryEarningIDPrefix + l.newID(),
		OrderID:          order.ID,
		DeliveryPersonID: strings.TrimSpace(*change.Previous.DeliveryPersonID),
		BusinessID:       order.BusinessID,
		Amount:           order.DeliveryFee,
		Status:           domain.EarningStatusPending,
		DeliveredAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := l.earnings.Create(ctx, earning); err != nil {
		if isRepositoryConflict(err) {
			return l.markDelivered(ctx, order.ID, now)
		}
		return fmt.Errorf("delivery ledger: create earning for order %s: %w", order.ID, err)
	}

	l.logger(ctx, deliveryEarningEventCreated, map[string]any{
		"orderId":          order.ID,
		"deliveryPersonId": earning.DeliveryPersonID,
		"amount":           earning.Amount,
	})
	return nil
}

func (l *DeliveryEarningLedger) markDelivered(ctx context.Context, orderID string, at time.Time) error {
	if _, err := l.earnings.MarkDelivered(ctx, orderID, at); err != nil {
		return fmt.Errorf("delivery ledger: update earning for order %s: %w", orderID, err)
	}
	l.logger(ctx, deliveryEarningEventUpdated, map[string]any{
		"orderId":     orderID,
		"deliveredAt": at,
	})
	return nil
}

func qualifiesForDeliveryEarning(change OrderChange) bool {
	if change.RequestedStatus == nil || *change.RequestedStatus != domain.OrderStatusDelivered {
		return false
	}
	return change.Current.Type == domain.OrderTypeDelivery && change.Previous.HasDeliveryPerson()
}
