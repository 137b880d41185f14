package di

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/config"
	memoryRepo "github.com/hanko-field/orderflow/internal/repositories/memory"
	"github.com/hanko-field/orderflow/internal/services"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []services.NotificationMessage
}

func (p *recordingPublisher) PublishNotification(_ context.Context, msg services.NotificationMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return msg.ID, nil
}

func testConfig() config.Config {
	return config.Config{
		Storage:       config.StorageConfig{Driver: config.StorageDriverMemory},
		Notifications: config.NotificationConfig{Driver: config.NotificationDriverLog, DefaultLocale: "en"},
		SideEffects: config.SideEffectConfig{
			Workers:        2,
			QueueSize:      16,
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			AttemptTimeout: time.Second,
		},
		DispatchGuard: config.DispatchGuardConfig{Driver: config.DispatchGuardDriverMemory, TTL: time.Hour},
	}
}

func TestContainerRunsSideEffectsForDeliveredOrder(t *testing.T) {
	registry, err := memoryRepo.LoadFixturesFile("../repositories/memory/testdata/fixtures.yaml")
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	container, err := NewContainer(context.Background(), testConfig(), Options{
		Registry:  registry,
		Publisher: publisher,
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, err)

	delivered := domain.OrderStatusDelivered
	paid := domain.PaymentStatusPaid
	order, err := container.Services.Orders.UpdateOrder(context.Background(), services.UpdateOrderCommand{
		OrderID:       "ord_delivery",
		Status:        &delivered,
		PaymentStatus: &paid,
		ActorID:       "staff_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, container.Close(ctx))

	commission, err := registry.AffiliateEarnings().FindByOrderID(context.Background(), "ord_delivery")
	require.NoError(t, err)
	assert.Equal(t, int64(325), commission.Amount)
	assert.Equal(t, domain.EarningStatusPending, commission.Status)

	courier, err := registry.DeliveryEarnings().FindByOrderID(context.Background(), "ord_delivery")
	require.NoError(t, err)
	assert.Equal(t, int64(400), courier.Amount)
	assert.Equal(t, "courier_1", courier.DeliveryPersonID)

	kinds := make(map[services.NotificationKind]int)
	for _, msg := range publisher.messages {
		kinds[msg.Kind]++
	}
	assert.Equal(t, map[services.NotificationKind]int{
		services.NotificationKindCustomerStatus: 1,
		services.NotificationKindAdminStatus:    1,
		services.NotificationKindAdminPaid:      1,
	}, kinds)
}

func TestContainerRejectsUnknownDrivers(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "cassandra"
	_, err := NewContainer(context.Background(), cfg, Options{})
	require.Error(t, err)

	cfg = testConfig()
	cfg.Notifications.Driver = "carrier-pigeon"
	_, err = NewContainer(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestContainerReadinessIncludesStore(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(), Options{})
	require.NoError(t, err)
	defer container.Close(context.Background())

	check, ok := container.Readiness["store"]
	require.True(t, ok)
	assert.NoError(t, check(context.Background()))
	_, ok = container.Readiness["dispatch_guard"]
	assert.False(t, ok)
}
