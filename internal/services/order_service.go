package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/textutil"
	"github.com/hanko-field/orderflow/internal/repositories"
)

const (
	orderEventUpdated           = "order.updated"
	orderEventSideEffectSkipped = "order.side_effect.skipped"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status is not reachable from the current one.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderInvalidPaymentStatus indicates an unknown payment status value.
	ErrOrderInvalidPaymentStatus = errors.New("order: invalid payment status")
	// ErrOrderConflict indicates the order changed since the caller last read it.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	// SideEffects run after every committed update. Each decides on its own whether to act.
	SideEffects []SideEffect
	Scheduler   SideEffectScheduler
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	unitOfWork  repositories.UnitOfWork
	sideEffects []SideEffect
	scheduler   SideEffectScheduler
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires the order repository, transaction boundary and side effects into an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if len(deps.SideEffects) > 0 && deps.Scheduler == nil {
		return nil, errors.New("order service: side effect scheduler is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	effects := make([]SideEffect, 0, len(deps.SideEffects))
	for _, effect := range deps.SideEffects {
		if effect != nil {
			effects = append(effects, effect)
		}
	}

	return &orderService{
		orders:      deps.Orders,
		unitOfWork:  unit,
		sideEffects: effects,
		scheduler:   deps.Scheduler,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	expectedVersion := current.Version
	if cmd.ExpectedVersion != nil {
		if *cmd.ExpectedVersion != current.Version {
			return Order{}, fmt.Errorf("%w: expected version %d but was %d", ErrOrderConflict, *cmd.ExpectedVersion, current.Version)
		}
		expectedVersion = *cmd.ExpectedVersion
	}

	now := s.now()
	updated, err := s.applyUpdate(current, cmd, now)
	if err != nil {
		return Order{}, err
	}

	var saved Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		stored, err := s.orders.Update(txCtx, updated, expectedVersion)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		saved = stored
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	change := OrderChange{
		Previous:        current,
		Current:         saved,
		RequestedStatus: cmd.Status,
		ActorID:         strings.TrimSpace(cmd.ActorID),
		OccurredAt:      now,
	}

	s.logger(ctx, orderEventUpdated, map[string]any{
		"orderId":       saved.ID,
		"actorId":       change.ActorID,
		"fromStatus":    string(current.Status),
		"toStatus":      string(saved.Status),
		"paymentStatus": string(saved.PaymentStatus),
		"version":       saved.Version,
	})

	s.scheduleSideEffects(ctx, change)
	return saved, nil
}

// applyUpdate computes the next order state without touching storage.
func (s *orderService) applyUpdate(current Order, cmd UpdateOrderCommand, now time.Time) (Order, error) {
	next := current
	nextStatus := current.Status

	if cmd.Status != nil && *cmd.Status != current.Status {
		requested := *cmd.Status
		if !requested.Valid() {
			return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, requested)
		}
		if !CanTransitionOrder(current.Status, requested, current.Type) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidTransition, transitionRejection(current.Status, requested, current.Type))
		}
		nextStatus = requested
	}
	next.Status = nextStatus

	if cmd.Status != nil && *cmd.Status == domain.OrderStatusPickedUp &&
		current.Type.IsCounterService() && current.DeliveryTime == nil && cmd.DeliveryTime == nil {
		pickedUpAt := now
		next.DeliveryTime = &pickedUpAt
	}

	if cascaded, ok := ResolvePaymentCascade(current.Status, nextStatus, current.PaymentStatus, cmd.PaymentStatus); ok {
		next.PaymentStatus = cascaded
	}

	if cmd.PaymentStatus != nil {
		if !cmd.PaymentStatus.Valid() {
			return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidPaymentStatus, *cmd.PaymentStatus)
		}
		next.PaymentStatus = *cmd.PaymentStatus
	}

	if cmd.Notes != nil {
		next.Notes = textutil.SanitizeNotes(*cmd.Notes)
	}
	if cmd.Invoice != nil {
		invoice := normalizeInvoice(*cmd.Invoice)
		next.Invoice = &invoice
	}
	if cmd.DeliveryTime != nil {
		deliveryTime := cmd.DeliveryTime.UTC()
		next.DeliveryTime = &deliveryTime
	}

	next.UpdatedAt = now
	return next, nil
}

func (s *orderService) scheduleSideEffects(ctx context.Context, change OrderChange) {
	for _, effect := range s.sideEffects {
		effect := effect
		task := SideEffectTask{
			Name:    effect.Name(),
			OrderID: change.Current.ID,
			Run: func(taskCtx context.Context) error {
				return effect.Apply(taskCtx, change)
			},
		}
		if !s.scheduler.Submit(ctx, task) {
			s.logger(ctx, orderEventSideEffectSkipped, map[string]any{
				"orderId": change.Current.ID,
				"task":    task.Name,
			})
		}
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func normalizeInvoice(invoice OrderInvoice) OrderInvoice {
	return OrderInvoice{
		Number:      strings.TrimSpace(invoice.Number),
		TaxID:       strings.TrimSpace(invoice.TaxID),
		CompanyName: strings.TrimSpace(invoice.CompanyName),
		Address:     strings.TrimSpace(invoice.Address),
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
