package services

import (
	"context"
	"slices"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/idempotency"
)

func notifySettings(adminEnabled bool) *stubSettingsProvider {
	return &stubSettingsProvider{settings: BusinessSettings{
		Name:         "Kiosk Cafe",
		ContactEmail: "hello@kiosk.example",
		Locale:       "en",
		Currency:     "USD",
		Notifications: NotificationPreferences{
			Enabled:      true,
			AdminEnabled: adminEnabled,
		},
	}}
}

func newTestDispatcher(t *testing.T, publisher *capturePublisher, settings *stubSettingsProvider, admins ...string) (*NotificationDispatcher, *captureLogger) {
	t.Helper()
	logs := &captureLogger{}
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{
		Publisher:       publisher,
		Settings:        settings,
		Guard:           idempotency.NewMemoryStore(fixedClock()),
		Limiter:         rate.NewLimiter(rate.Inf, 1),
		AdminRecipients: admins,
		DefaultLocale:   "en",
		Clock:           fixedClock(),
		IDGenerator:     func() string { return "01NTF" },
		Logger:          logs.log,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, logs
}

func pickupChange(from, to domain.OrderStatus, fromPayment, toPayment domain.PaymentStatus) OrderChange {
	previous := domain.Order{
		ID:            "ord_5",
		BusinessID:    "biz_1",
		OrderNumber:   "B-77",
		Status:        from,
		Type:          domain.OrderTypePickup,
		PaymentStatus: fromPayment,
		Currency:      "USD",
		Total:         1250,
		Version:       5,
		Customer:      domain.OrderCustomer{Name: "Aiko", Email: "aiko@example.com", Locale: "ja-JP"},
		Items:         []domain.OrderLineItem{{Name: "Matcha latte", Quantity: 2, UnitPrice: 625}},
	}
	current := previous
	current.Status = to
	current.PaymentStatus = toPayment
	current.Version = 6
	var requested *domain.OrderStatus
	if from != to {
		requested = ptr(to)
	}
	return OrderChange{Previous: previous, Current: current, RequestedStatus: requested, OccurredAt: fixedClock()()}
}

func TestNotificationDispatcherCustomerAndAdminStatus(t *testing.T) {
	publisher := &capturePublisher{}
	dispatcher, logs := newTestDispatcher(t, publisher, notifySettings(true), "ops@kiosk.example")

	change := pickupChange(domain.OrderStatusPreparing, domain.OrderStatusReady, domain.PaymentStatusPending, domain.PaymentStatusPending)
	if err := dispatcher.Dispatch(context.Background(), change); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	kinds := publisher.kinds()
	want := []NotificationKind{NotificationKindCustomerStatus, NotificationKindAdminStatus}
	if !slices.Equal(kinds, want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}

	customer := publisher.messages[0]
	if !slices.Equal(customer.Recipients, []string{"aiko@example.com"}) {
		t.Fatalf("unexpected customer recipients %v", customer.Recipients)
	}
	if customer.Locale != "ja" {
		t.Fatalf("expected customer locale ja, got %s", customer.Locale)
	}
	if !strings.Contains(customer.Subject, "B-77") || customer.Body == "" {
		t.Fatalf("expected rendered content, got %+v", customer)
	}
	if customer.DedupeKey != "ord_5:customer.status_updated:READY:6" {
		t.Fatalf("unexpected dedupe key %s", customer.DedupeKey)
	}
	if len(customer.Items) != 1 || customer.Items[0].Quantity != 2 || customer.Items[0].Amount == "" {
		t.Fatalf("unexpected items %+v", customer.Items)
	}
	if customer.Business.Name != "Kiosk Cafe" || customer.Customer.Email != "aiko@example.com" {
		t.Fatalf("unexpected contacts %+v %+v", customer.Business, customer.Customer)
	}

	admin := publisher.messages[1]
	if !slices.Equal(admin.Recipients, []string{"ops@kiosk.example"}) {
		t.Fatalf("unexpected admin recipients %v", admin.Recipients)
	}
	if admin.Locale != "en" || !strings.Contains(admin.Subject, "Kiosk Cafe") {
		t.Fatalf("unexpected admin content %+v", admin)
	}
	if !logs.has(notificationEventPublished) {
		t.Fatalf("expected notification.published to be logged")
	}
}

func TestNotificationDispatcherHonoursPolicy(t *testing.T) {
	publisher := &capturePublisher{}
	dispatcher, _ := newTestDispatcher(t, publisher, notifySettings(true))

	confirmed := pickupChange(domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.PaymentStatusPending, domain.PaymentStatusPending)
	if err := dispatcher.Dispatch(context.Background(), confirmed); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	noStatusChange := pickupChange(domain.OrderStatusPreparing, domain.OrderStatusPreparing, domain.PaymentStatusPending, domain.PaymentStatusPending)
	if err := dispatcher.Dispatch(context.Background(), noStatusChange); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("expected no notifications, got %v", publisher.kinds())
	}
}

func TestNotificationDispatcherAdminDisabled(t *testing.T) {
	publisher := &capturePublisher{}
	dispatcher, _ := newTestDispatcher(t, publisher, notifySettings(false), "ops@kiosk.example")

	change := pickupChange(domain.OrderStatusReady, domain.OrderStatusPickedUp, domain.PaymentStatusPaid, domain.PaymentStatusPaid)
	if err := dispatcher.Dispatch(context.Background(), change); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !slices.Equal(publisher.kinds(), []NotificationKind{NotificationKindCustomerStatus}) {
		t.Fatalf("expected only the customer notification, got %v", publisher.kinds())
	}
}

func TestNotificationDispatcherPaidHandoverTriggers(t *testing.T) {
	cases := []struct {
		name   string
		change OrderChange
		fires  bool
	}{
		{
			name:   "payment became paid while ready",
			change: pickupChange(domain.OrderStatusReady, domain.OrderStatusReady, domain.PaymentStatusPending, domain.PaymentStatusPaid),
			fires:  true,
		},
		{
			name:   "status became ready while paid",
			change: pickupChange(domain.OrderStatusPreparing, domain.OrderStatusReady, domain.PaymentStatusPaid, domain.PaymentStatusPaid),
			fires:  true,
		},
		{
			name:   "both changed in one call",
			change: pickupChange(domain.OrderStatusPreparing, domain.OrderStatusReady, domain.PaymentStatusPending, domain.PaymentStatusPaid),
			fires:  true,
		},
		{
			name:   "no-op update on paid ready order",
			change: pickupChange(domain.OrderStatusReady, domain.OrderStatusReady, domain.PaymentStatusPaid, domain.PaymentStatusPaid),
			fires:  false,
		},
		{
			name:   "paid while preparing",
			change: pickupChange(domain.OrderStatusPreparing, domain.OrderStatusPreparing, domain.PaymentStatusPending, domain.PaymentStatusPaid),
			fires:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publisher := &capturePublisher{}
			dispatcher, _ := newTestDispatcher(t, publisher, notifySettings(true))
			if err := dispatcher.Dispatch(context.Background(), tc.change); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			fired := slices.Contains(publisher.kinds(), NotificationKindAdminPaid)
			if fired != tc.fires {
				t.Fatalf("expected admin paid=%v, got kinds %v", tc.fires, publisher.kinds())
			}
			if fired {
				msg := publisher.messages[len(publisher.messages)-1]
				if !slices.Equal(msg.Recipients, []string{"hello@kiosk.example"}) {
					t.Fatalf("expected contact email fallback, got %v", msg.Recipients)
				}
			}
		})
	}
}

func TestNotificationDispatcherRetryDoesNotDuplicate(t *testing.T) {
	publisher := &capturePublisher{}
	dispatcher, logs := newTestDispatcher(t, publisher, notifySettings(true), "ops@kiosk.example")
	change := pickupChange(domain.OrderStatusPreparing, domain.OrderStatusReady, domain.PaymentStatusPaid, domain.PaymentStatusPaid)

	// The customer message goes out, then the channel fails for the admin message.
	publisher.failures = 0
	dispatcher.publisher = &failAfterPublisher{inner: publisher, allow: 1}
	if err := dispatcher.Dispatch(context.Background(), change); err == nil {
		t.Fatalf("expected publish failure")
	}

	dispatcher.publisher = publisher
	if err := dispatcher.Dispatch(context.Background(), change); err != nil {
		t.Fatalf("retry: %v", err)
	}

	want := []NotificationKind{NotificationKindCustomerStatus, NotificationKindAdminStatus, NotificationKindAdminPaid}
	if !slices.Equal(publisher.kinds(), want) {
		t.Fatalf("expected %v, got %v", want, publisher.kinds())
	}
	if !logs.has(notificationEventDuplicate) {
		t.Fatalf("expected the already-published customer message to be suppressed")
	}
}

func TestNotificationDispatcherSkipsWithoutRecipients(t *testing.T) {
	publisher := &capturePublisher{}
	settings := notifySettings(false)
	dispatcher, logs := newTestDispatcher(t, publisher, settings)

	change := pickupChange(domain.OrderStatusPreparing, domain.OrderStatusReady, domain.PaymentStatusPending, domain.PaymentStatusPending)
	change.Current.Customer = domain.OrderCustomer{Name: "Walk-in"}
	if err := dispatcher.Dispatch(context.Background(), change); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(publisher.messages) != 0 || !logs.has(notificationEventSkipped) {
		t.Fatalf("expected skip without recipients")
	}
}

type failAfterPublisher struct {
	inner *capturePublisher
	allow int
}

func (p *failAfterPublisher) PublishNotification(ctx context.Context, msg NotificationMessage) (string, error) {
	if p.allow == 0 {
		return "", context.DeadlineExceeded
	}
	p.allow--
	return p.inner.PublishNotification(ctx, msg)
}
