package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	findFn   func(context.Context, string) (domain.Order, error)
	updateFn func(context.Context, domain.Order, int64) (domain.Order, error)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expectedVersion)
	}
	order.Version = expectedVersion + 1
	return order, nil
}

// versionedOrderRepo keeps a single order and enforces the version check.
type versionedOrderRepo struct {
	mu    sync.Mutex
	order domain.Order
}

func (r *versionedOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order.ID != orderID {
		return domain.Order{}, repoError{notFound: true}
	}
	return r.order, nil
}

func (r *versionedOrderRepo) Update(_ context.Context, order domain.Order, expectedVersion int64) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.order.Version != expectedVersion {
		return domain.Order{}, repoError{conflict: true}
	}
	order.Version = expectedVersion + 1
	r.order = order
	return order, nil
}

type stubUnitOfWork struct {
	calls int
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.calls++
	return fn(ctx)
}

// memoryAffiliateEarnings enforces one earning per order like the stores do.
type memoryAffiliateEarnings struct {
	mu       sync.Mutex
	rows     map[string]domain.AffiliateEarning
	creates  int
	findErr  error
	createFn func(domain.AffiliateEarning) error
}

func newMemoryAffiliateEarnings() *memoryAffiliateEarnings {
	return &memoryAffiliateEarnings{rows: make(map[string]domain.AffiliateEarning)}
}

func (m *memoryAffiliateEarnings) FindByOrderID(_ context.Context, orderID string) (domain.AffiliateEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return domain.AffiliateEarning{}, m.findErr
	}
	row, ok := m.rows[orderID]
	if !ok {
		return domain.AffiliateEarning{}, repoError{notFound: true}
	}
	return row, nil
}

func (m *memoryAffiliateEarnings) Create(_ context.Context, earning domain.AffiliateEarning) (domain.AffiliateEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createFn != nil {
		if err := m.createFn(earning); err != nil {
			return domain.AffiliateEarning{}, err
		}
	}
	if _, ok := m.rows[earning.OrderID]; ok {
		return domain.AffiliateEarning{}, repoError{conflict: true}
	}
	m.rows[earning.OrderID] = earning
	return earning, nil
}

func (m *memoryAffiliateEarnings) CancelPending(_ context.Context, orderID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok || row.Status != domain.EarningStatusPending {
		return false, nil
	}
	row.Status = domain.EarningStatusCancelled
	row.CancelledAt = &at
	row.UpdatedAt = at
	m.rows[orderID] = row
	return true, nil
}

type memoryDeliveryEarnings struct {
	mu      sync.Mutex
	rows    map[string]domain.DeliveryEarning
	hideRow bool
}

func newMemoryDeliveryEarnings() *memoryDeliveryEarnings {
	return &memoryDeliveryEarnings{rows: make(map[string]domain.DeliveryEarning)}
}

func (m *memoryDeliveryEarnings) FindByOrderID(_ context.Context, orderID string) (domain.DeliveryEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok || m.hideRow {
		return domain.DeliveryEarning{}, repoError{notFound: true}
	}
	return row, nil
}

func (m *memoryDeliveryEarnings) Create(_ context.Context, earning domain.DeliveryEarning) (domain.DeliveryEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[earning.OrderID]; ok {
		return domain.DeliveryEarning{}, repoError{conflict: true}
	}
	m.rows[earning.OrderID] = earning
	return earning, nil
}

func (m *memoryDeliveryEarnings) MarkDelivered(_ context.Context, orderID string, at time.Time) (domain.DeliveryEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok {
		return domain.DeliveryEarning{}, repoError{notFound: true}
	}
	row.DeliveredAt = at
	row.UpdatedAt = at
	m.rows[orderID] = row
	return row, nil
}

type stubAffiliateRepo struct {
	affiliates map[string]domain.Affiliate
}

func (s *stubAffiliateRepo) FindByID(_ context.Context, affiliateID string) (domain.Affiliate, error) {
	affiliate, ok := s.affiliates[affiliateID]
	if !ok {
		return domain.Affiliate{}, repoError{notFound: true}
	}
	return affiliate, nil
}

type stubSettingsProvider struct {
	settings BusinessSettings
	err      error
	calls    int
}

func (s *stubSettingsProvider) Settings(_ context.Context, businessID string) (BusinessSettings, error) {
	s.calls++
	if s.err != nil {
		return BusinessSettings{}, s.err
	}
	settings := s.settings
	settings.BusinessID = businessID
	return settings, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []NotificationMessage
	failures int
}

func (p *capturePublisher) PublishNotification(_ context.Context, msg NotificationMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return "", errors.New("channel unavailable")
	}
	p.messages = append(p.messages, msg)
	return "msg-" + msg.ID, nil
}

func (p *capturePublisher) kinds() []NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(p.messages))
	for _, msg := range p.messages {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

// captureScheduler records submitted tasks so tests can run them deterministically.
type captureScheduler struct {
	tasks  []SideEffectTask
	reject bool
}

func (s *captureScheduler) Submit(_ context.Context, task SideEffectTask) bool {
	if s.reject {
		return false
	}
	s.tasks = append(s.tasks, task)
	return true
}

func (s *captureScheduler) runAll(ctx context.Context) []error {
	var errs []error
	for _, task := range s.tasks {
		errs = append(errs, task.Run(ctx))
	}
	s.tasks = nil
	return errs
}

type loggedEvent struct {
	name   string
	fields map[string]any
}

type captureLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, loggedEvent{name: event, fields: fields})
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.name == event {
			return true
		}
	}
	return false
}

func fixedClock() func() time.Time {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func ptr[T any](v T) *T { return &v }
