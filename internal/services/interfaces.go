package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/orderflow/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order                   = domain.Order
	OrderStatus             = domain.OrderStatus
	OrderType               = domain.OrderType
	PaymentStatus           = domain.PaymentStatus
	OrderInvoice            = domain.OrderInvoice
	OrderLineItem           = domain.OrderLineItem
	Affiliate               = domain.Affiliate
	AffiliateEarning        = domain.AffiliateEarning
	DeliveryEarning         = domain.DeliveryEarning
	BusinessSettings        = domain.BusinessSettings
	NotificationPreferences = domain.NotificationPreferences
	FeatureFlags            = domain.FeatureFlags
)

// OrderService applies staff mutations to orders and schedules their post-commit side effects.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
}

// UpdateOrderCommand is a partial update. Nil fields are left untouched.
type UpdateOrderCommand struct {
	OrderID       string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	Notes         *string
	Invoice       *OrderInvoice
	DeliveryTime  *time.Time
	// ExpectedVersion, when set, must match the stored version or the update fails with ErrOrderConflict.
	ExpectedVersion *int64
	ActorID         string
}

// OrderChange describes one committed mutation. Side effects only ever see committed state.
type OrderChange struct {
	Previous        Order
	Current         Order
	RequestedStatus *OrderStatus
	ActorID         string
	OccurredAt      time.Time
}

// StatusChanged reports whether the mutation moved the order to a different status.
func (c OrderChange) StatusChanged() bool {
	return c.Previous.Status != c.Current.Status
}

// PaymentChanged reports whether the mutation changed the payment status.
func (c OrderChange) PaymentChanged() bool {
	return c.Previous.PaymentStatus != c.Current.PaymentStatus
}

// SideEffect is a best-effort consequence of a committed order change.
type SideEffect interface {
	Name() string
	Apply(ctx context.Context, change OrderChange) error
}

// SideEffectTask is one unit of background work.
type SideEffectTask struct {
	Name    string
	OrderID string
	Run     func(ctx context.Context) error
}

// SideEffectScheduler accepts tasks without blocking. It reports false when the task was not queued.
type SideEffectScheduler interface {
	Submit(ctx context.Context, task SideEffectTask) bool
}

// BusinessSettingsProvider resolves the settings that gate ledgers and notifications.
type BusinessSettingsProvider interface {
	Settings(ctx context.Context, businessID string) (BusinessSettings, error)
}

// NotificationKind identifies the audience and trigger of a notification.
type NotificationKind string

const (
	NotificationKindCustomerStatus NotificationKind = "customer.status_updated"
	NotificationKindAdminStatus    NotificationKind = "admin.status_updated"
	NotificationKindAdminPaid      NotificationKind = "admin.picked_up_and_paid"
)

// NotificationPublisher hands a rendered notification to the delivery channel.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// NotificationMessage is the payload placed on the notification channel.
type NotificationMessage struct {
	ID            string                 `json:"id"`
	Kind          NotificationKind       `json:"kind"`
	DedupeKey     string                 `json:"dedupeKey"`
	BusinessID    string                 `json:"businessId"`
	OrderID       string                 `json:"orderId"`
	OrderNumber   string                 `json:"orderNumber"`
	OrderType     OrderType              `json:"orderType"`
	Status        OrderStatus            `json:"status"`
	PaymentStatus PaymentStatus          `json:"paymentStatus"`
	Locale        string                 `json:"locale"`
	Subject       string                 `json:"subject"`
	Body          string                 `json:"body"`
	Total         string                 `json:"total"`
	Recipients    []string               `json:"recipients"`
	Items         []NotificationLineItem `json:"items"`
	Customer      NotificationContact    `json:"customer"`
	Business      NotificationContact    `json:"business"`
	OccurredAt    time.Time              `json:"occurredAt"`
}

// NotificationLineItem is a rendered order line.
type NotificationLineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   string `json:"amount"`
}

// NotificationContact carries the contact data shown in a notification.
type NotificationContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
