package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/idempotency"
	"github.com/hanko-field/orderflow/internal/platform/textutil"
)

const (
	notificationDispatcherName = "notification_dispatcher"

	notificationEventPublished = "notification.published"
	notificationEventDuplicate = "notification.duplicate"
	notificationEventSkipped   = "notification.skipped"

	notificationIDPrefix      = "ntf_"
	defaultNotificationTTL    = 72 * time.Hour
	defaultNotificationLocale = "en"
)

// NotificationDispatcherDeps bundles collaborators required to construct the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher NotificationPublisher
	Settings  BusinessSettingsProvider
	Renderer  *NotificationRenderer
	// Guard suppresses re-publishing when a task is retried after a partial success.
	Guard    idempotency.Store
	GuardTTL time.Duration
	Limiter  *rate.Limiter
	// AdminRecipients apply when the business lists no admin emails of its own.
	AdminRecipients []string
	DefaultLocale   string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// NotificationDispatcher publishes customer and admin notifications for committed order changes.
type NotificationDispatcher struct {
	publisher       NotificationPublisher
	settings        BusinessSettingsProvider
	renderer        *NotificationRenderer
	guard           idempotency.Store
	guardTTL        time.Duration
	limiter         *rate.Limiter
	adminRecipients []string
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

var _ SideEffect = (*NotificationDispatcher)(nil)

// NewNotificationDispatcher validates deps and constructs the dispatcher.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("notification dispatcher: business settings provider is required")
	}

	renderer := deps.Renderer
	if renderer == nil {
		locale := deps.DefaultLocale
		if locale == "" {
			locale = defaultNotificationLocale
		}
		var err error
		renderer, err = NewNotificationRenderer(locale)
		if err != nil {
			return nil, fmt.Errorf("notification dispatcher: build renderer: %w", err)
		}
	}

	guard := deps.Guard
	if guard == nil {
		guard = idempotency.NewMemoryStore(deps.Clock)
	}
	guardTTL := deps.GuardTTL
	if guardTTL <= 0 {
		guardTTL = defaultNotificationTTL
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

	return &NotificationDispatcher{
		publisher:       deps.Publisher,
		settings:        deps.Settings,
		renderer:        renderer,
		guard:           guard,
		guardTTL:        guardTTL,
		limiter:         deps.Limiter,
		adminRecipients: textutil.UniqueStrings(deps.AdminRecipients...),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Name identifies the dispatcher in side-effect logs and spans.
func (d *NotificationDispatcher) Name() string { return notificationDispatcherName }

// Apply implements SideEffect.
func (d *NotificationDispatcher) Apply(ctx context.Context, change OrderChange) error {
	return d.Dispatch(ctx, change)
}

// Dispatch publishes every notification the change qualifies for. Notifications already published
// for the same change are skipped, so a failed dispatch may be retried as a whole.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, change OrderChange) error {
	statusChanged := change.StatusChanged()
	paidHandover := qualifiesForPaidHandover(change)
	if !statusChanged && !paidHandover {
		return nil
	}

	order := change.Current
	settings, err := d.settings.Settings(ctx, order.BusinessID)
	if err != nil {
		return err
	}
	prefs := settings.Notifications

	var kinds []NotificationKind
	if statusChanged && ShouldNotify(prefs, order.Status, order.Type) {
		kinds = append(kinds, NotificationKindCustomerStatus)
		if prefs.AdminEnabled {
			kinds = append(kinds, NotificationKindAdminStatus)
		}
	}
	if paidHandover && prefs.AdminEnabled {
		kinds = append(kinds, NotificationKindAdminPaid)
	}

	for _, kind := range kinds {
		if err := d.publish(ctx, kind, change, settings); err != nil {
			return err
		}
	}
	return nil
}

func (d *NotificationDispatcher) publish(ctx context.Context, kind NotificationKind, change OrderChange, settings BusinessSettings) error {
	order := change.Current
	recipients := d.recipients(kind, order, settings)
	if len(recipients) == 0 {
		d.logger(ctx, notificationEventSkipped, map[string]any{
			"orderId": order.ID,
			"kind":    string(kind),
			"reason":  "no_recipients",
		})
		return nil
	}

	key := dispatchKey(order, kind)
	reserved, err := d.guard.Reserve(ctx, key, d.guardTTL)
	if err != nil {
		return fmt.Errorf("notification dispatcher: reserve %s: %w", key, err)
	}
	if !reserved {
		d.logger(ctx, notificationEventDuplicate, map[string]any{
			"orderId":   order.ID,
			"kind":      string(kind),
			"dedupeKey": key,
		})
		return nil
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.release(ctx, key)
			return fmt.Errorf("notification dispatcher: rate limit: %w", err)
		}
	}

	msg := d.buildMessage(kind, change, settings, recipients, key)
	messageID, err := d.publisher.PublishNotification(ctx, msg)
	if err != nil {
		d.release(ctx, key)
		return fmt.Errorf("notification dispatcher: publish %s for order %s: %w", kind, order.ID, err)
	}

	d.logger(ctx, notificationEventPublished, map[string]any{
		"orderId":    order.ID,
		"kind":       string(kind),
		"status":     string(order.Status),
		"messageId":  messageID,
		"recipients": len(recipients),
	})
	return nil
}

func (d *NotificationDispatcher) release(ctx context.Context, key string) {
	if err := d.guard.Release(ctx, key); err != nil {
		d.logger(ctx, "notification.guard.release.failed", map[string]any{
			"dedupeKey": key,
			"error":     err,
		})
	}
}

func (d *NotificationDispatcher) buildMessage(kind NotificationKind, change OrderChange, settings BusinessSettings, recipients []string, key string) NotificationMessage {
	order := change.Current
	locales := []string{settings.Locale}
	if kind == NotificationKindCustomerStatus {
		locales = []string{order.Customer.Locale, settings.Locale}
	}
	content := d.renderer.Render(kind, order, settings, locales...)

	occurredAt := change.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = d.clock()
	}

	return NotificationMessage{
		ID:            notificationIDPrefix + d.newID(),
		Kind:          kind,
		DedupeKey:     key,
		BusinessID:    order.BusinessID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderType:     order.Type,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Locale:        content.Locale,
		Subject:       content.Subject,
		Body:          content.Body,
		Total:         content.Total,
		Recipients:    recipients,
		Items:         content.Items,
		Customer: NotificationContact{
			Name:  cleanText(order.Customer.Name),
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Business: NotificationContact{
			Name:  cleanText(settings.Name),
			Email: settings.ContactEmail,
			Phone: settings.ContactPhone,
		},
		OccurredAt: occurredAt,
	}
}

func (d *NotificationDispatcher) recipients(kind NotificationKind, order Order, settings BusinessSettings) []string {
	if kind == NotificationKindCustomerStatus {
		if email := textutil.UniqueStrings(order.Customer.Email); len(email) > 0 {
			return email
		}
		return textutil.UniqueStrings(order.Customer.Phone)
	}
	if admins := textutil.UniqueStrings(settings.AdminEmails...); len(admins) > 0 {
		return admins
	}
	if len(d.adminRecipients) > 0 {
		return append([]string(nil), d.adminRecipients...)
	}
	return textutil.UniqueStrings(settings.ContactEmail)
}

// qualifiesForPaidHandover reports whether the order just reached "handed over and paid": payment
// became PAID on a READY or DELIVERED order, or the status became READY or DELIVERED on a paid
// order. Both fields changing in one call also qualifies.
func qualifiesForPaidHandover(change OrderChange) bool {
	current := change.Current
	if current.PaymentStatus != domain.PaymentStatusPaid || !isHandoverStatus(current.Status) {
		return false
	}
	return change.PaymentChanged() || change.StatusChanged()
}

func isHandoverStatus(status OrderStatus) bool {
	return status == domain.OrderStatusReady || status == domain.OrderStatusDelivered
}

func dispatchKey(order Order, kind NotificationKind) string {
	return fmt.Sprintf("%s:%s:%s:%d", order.ID, kind, order.Status, order.Version)
}
