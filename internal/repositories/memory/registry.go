package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/repositories"
)

// Registry keeps every entity in process memory. It backs the local driver and tests.
type Registry struct {
	mu                sync.RWMutex
	orders            map[string]domain.Order
	affiliateEarnings map[string]domain.AffiliateEarning
	deliveryEarnings  map[string]domain.DeliveryEarning
	affiliates        map[string]domain.Affiliate
	businesses        map[string]domain.BusinessSettings
	txMu              sync.Mutex
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orders:            make(map[string]domain.Order),
		affiliateEarnings: make(map[string]domain.AffiliateEarning),
		deliveryEarnings:  make(map[string]domain.DeliveryEarning),
		affiliates:        make(map[string]domain.Affiliate),
		businesses:        make(map[string]domain.BusinessSettings),
	}
}

// PutOrder stores order as-is, replacing any previous value.
func (r *Registry) PutOrder(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
}

func (r *Registry) PutAffiliate(affiliate domain.Affiliate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.affiliates[affiliate.ID] = affiliate
}

func (r *Registry) PutBusinessSettings(settings domain.BusinessSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[settings.BusinessID] = settings
}

func (r *Registry) Orders() repositories.OrderRepository { return orderStore{r} }

func (r *Registry) AffiliateEarnings() repositories.AffiliateEarningRepository {
	return affiliateEarningStore{r}
}

func (r *Registry) DeliveryEarnings() repositories.DeliveryEarningRepository {
	return deliveryEarningStore{r}
}

func (r *Registry) Affiliates() repositories.AffiliateRepository { return affiliateStore{r} }

func (r *Registry) Businesses() repositories.BusinessRepository { return businessStore{r} }

func (r *Registry) Ping(context.Context) error { return nil }

func (r *Registry) Close(context.Context) error { return nil }

type txKey struct{}

// RunInTx serialises units of work. Writes are not rolled back when fn fails.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}

type orderStore struct{ r *Registry }

func (s orderStore) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	order, ok := s.r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("orders.find", orderID)
	}
	return order, nil
}

func (s orderStore) Update(_ context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	current, ok := s.r.orders[order.ID]
	if !ok {
		return domain.Order{}, notFound("orders.update", order.ID)
	}
	if current.Version != expectedVersion {
		return domain.Order{}, conflict("orders.update",
			fmt.Sprintf("order %s is at version %d, expected %d", order.ID, current.Version, expectedVersion))
	}
	order.Version = expectedVersion + 1
	s.r.orders[order.ID] = order
	return order, nil
}

type affiliateEarningStore struct{ r *Registry }

func (s affiliateEarningStore) FindByOrderID(_ context.Context, orderID string) (domain.AffiliateEarning, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	earning, ok := s.r.affiliateEarnings[strings.TrimSpace(orderID)]
	if !ok {
		return domain.AffiliateEarning{}, notFound("affiliate_earnings.find", orderID)
	}
	return earning, nil
}

func (s affiliateEarningStore) Create(_ context.Context, earning domain.AffiliateEarning) (domain.AffiliateEarning, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, exists := s.r.affiliateEarnings[earning.OrderID]; exists {
		return domain.AffiliateEarning{}, conflict("affiliate_earnings.create", "earning already recorded for order "+earning.OrderID)
	}
	s.r.affiliateEarnings[earning.OrderID] = earning
	return earning, nil
}

func (s affiliateEarningStore) CancelPending(_ context.Context, orderID string, at time.Time) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	earning, ok := s.r.affiliateEarnings[strings.TrimSpace(orderID)]
	if !ok || earning.Status != domain.EarningStatusPending {
		return false, nil
	}
	at = at.UTC()
	earning.Status = domain.EarningStatusCancelled
	earning.CancelledAt = &at
	earning.UpdatedAt = at
	s.r.affiliateEarnings[earning.OrderID] = earning
	return true, nil
}

type deliveryEarningStore struct{ r *Registry }

func (s deliveryEarningStore) FindByOrderID(_ context.Context, orderID string) (domain.DeliveryEarning, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	earning, ok := s.r.deliveryEarnings[strings.TrimSpace(orderID)]
	if !ok {
		return domain.DeliveryEarning{}, notFound("delivery_earnings.find", orderID)
	}
	return earning, nil
}

func (s deliveryEarningStore) Create(_ context.Context, earning domain.DeliveryEarning) (domain.DeliveryEarning, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, exists := s.r.deliveryEarnings[earning.OrderID]; exists {
		return domain.DeliveryEarning{}, conflict("delivery_earnings.create", "earning already recorded for order "+earning.OrderID)
	}
	s.r.deliveryEarnings[earning.OrderID] = earning
	return earning, nil
}

func (s deliveryEarningStore) MarkDelivered(_ context.Context, orderID string, at time.Time) (domain.DeliveryEarning, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	earning, ok := s.r.deliveryEarnings[strings.TrimSpace(orderID)]
	if !ok {
		return domain.DeliveryEarning{}, notFound("delivery_earnings.mark_delivered", orderID)
	}
	earning.DeliveredAt = at.UTC()
	earning.UpdatedAt = at.UTC()
	s.r.deliveryEarnings[earning.OrderID] = earning
	return earning, nil
}

type affiliateStore struct{ r *Registry }

func (s affiliateStore) FindByID(_ context.Context, affiliateID string) (domain.Affiliate, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	affiliate, ok := s.r.affiliates[strings.TrimSpace(affiliateID)]
	if !ok {
		return domain.Affiliate{}, notFound("affiliates.find", affiliateID)
	}
	return affiliate, nil
}

type businessStore struct{ r *Registry }

func (s businessStore) FindSettings(_ context.Context, businessID string) (domain.BusinessSettings, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	settings, ok := s.r.businesses[strings.TrimSpace(businessID)]
	if !ok {
		return domain.BusinessSettings{}, notFound("business_settings.find", businessID)
	}
	settings.Notifications = settings.Notifications.Clone()
	settings.AdminEmails = append([]string(nil), settings.AdminEmails...)
	return settings, nil
}
