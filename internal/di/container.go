package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domain "github.com/hanko-field/orderflow/internal/domain"
	"github.com/hanko-field/orderflow/internal/platform/config"
	pfirestore "github.com/hanko-field/orderflow/internal/platform/firestore"
	"github.com/hanko-field/orderflow/internal/platform/idempotency"
	"github.com/hanko-field/orderflow/internal/platform/jobs"
	"github.com/hanko-field/orderflow/internal/platform/observability"
	ppostgres "github.com/hanko-field/orderflow/internal/platform/postgres"
	"github.com/hanko-field/orderflow/internal/repositories"
	firestoreRepo "github.com/hanko-field/orderflow/internal/repositories/firestore"
	memoryRepo "github.com/hanko-field/orderflow/internal/repositories/memory"
	postgresRepo "github.com/hanko-field/orderflow/internal/repositories/postgres"
	"github.com/hanko-field/orderflow/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders     services.OrderService
	Settings   services.BusinessSettingsProvider
	Commission *services.CommissionLedger
	Delivery   *services.DeliveryEarningLedger
	Notifier   *services.NotificationDispatcher
	Runner     *services.SideEffectRunner
}

// Options override pieces of the wiring, mainly for tests.
type Options struct {
	Logger    *zap.Logger
	Registry  repositories.Registry
	Publisher services.NotificationPublisher
	Guard     idempotency.Store
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	// Readiness lists the dependencies probed by /readyz.
	Readiness map[string]func(ctx context.Context) error

	closers []func(ctx context.Context) error
}

// NewContainer constructs the runtime dependencies selected by cfg. Anything already built is
// released when a later step fails.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (c *Container, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	c = &Container{Config: cfg, Readiness: make(map[string]func(ctx context.Context) error)}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	reg := opts.Registry
	if reg == nil {
		reg, err = buildRegistry(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, reg.Close)
	}
	c.Repositories = reg
	c.Readiness["store"] = reg.Ping

	publisher := opts.Publisher
	if publisher == nil {
		var closePublisher func(context.Context) error
		publisher, closePublisher, err = buildPublisher(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if closePublisher != nil {
			c.closers = append(c.closers, closePublisher)
		}
	}

	guard := opts.Guard
	if guard == nil {
		guard, err = c.buildGuard(cfg, logger, clock)
		if err != nil {
			return nil, err
		}
	}

	c.Services, err = buildServices(reg, publisher, guard, cfg, logger, clock)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close drains the side-effect runner before releasing clients so queued work can still finish.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Runner != nil {
		if err := c.Services.Runner.Close(ctx); err != nil && !errors.Is(err, services.ErrSideEffectRunnerClosed) {
			errs = append(errs, fmt.Errorf("drain side effects: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverFirestore:
		reg, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore))
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	case config.StorageDriverPostgres:
		db, err := ppostgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		reg, err := postgresRepo.NewRegistry(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		if err := reg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return reg, nil
	case config.StorageDriverMemory:
		if path := strings.TrimSpace(cfg.Storage.FixturesFile); path != "" {
			return memoryRepo.LoadFixturesFile(path)
		}
		return memoryRepo.NewRegistry(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.NotificationPublisher, func(context.Context) error, error) {
	switch cfg.Notifications.Driver {
	case config.NotificationDriverPubSub:
		projectID := strings.TrimSpace(cfg.Notifications.ProjectID)
		if projectID == "" {
			projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
		}
		client, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			return nil, nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notifications.Topic)
		publisher, err := jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error {
			topic.Stop()
			return client.Close()
		}, nil
	case config.NotificationDriverAMQP:
		conn, err := jobs.DialAMQP(cfg.Notifications.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := jobs.NewAMQPNotificationPublisher(conn, cfg.Notifications.AMQPExchange)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return conn.Close() }, nil
	case config.NotificationDriverLog:
		return jobs.NewLogNotificationPublisher(logger.Named("notifications")), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notification driver %q", cfg.Notifications.Driver)
	}
}

func (c *Container) buildGuard(cfg config.Config, logger *zap.Logger, clock func() time.Time) (idempotency.Store, error) {
	switch cfg.DispatchGuard.Driver {
	case config.DispatchGuardDriverRedis:
		redis.SetLogger(observability.NewPrintfAdapter(logger.Named("redis")))
		store := idempotency.NewRedisStore(cfg.DispatchGuard.RedisAddr, cfg.DispatchGuard.RedisPassword, cfg.DispatchGuard.RedisDB)
		c.Readiness["dispatch_guard"] = store.Ping
		c.closers = append(c.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case config.DispatchGuardDriverMemory, "":
		return idempotency.NewMemoryStore(clock), nil
	default:
		return nil, fmt.Errorf("unsupported dispatch guard driver %q", cfg.DispatchGuard.Driver)
	}
}

func buildServices(
	reg repositories.Registry,
	publisher services.NotificationPublisher,
	guard idempotency.Store,
	cfg config.Config,
	logger *zap.Logger,
	clock func() time.Time,
) (Services, error) {
	var svc Services

	settings, err := services.NewBusinessSettingsProvider(services.BusinessSettingsProviderDeps{
		Businesses: reg.Businesses(),
		Defaults:   defaultBusinessSettings(cfg),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build business settings provider: %w", err)
	}
	svc.Settings = settings

	runner, err := services.NewSideEffectRunner(services.SideEffectRunnerDeps{
		Config: services.SideEffectRunnerConfig{
			Workers:        cfg.SideEffects.Workers,
			QueueSize:      cfg.SideEffects.QueueSize,
			MaxAttempts:    cfg.SideEffects.MaxAttempts,
			InitialBackoff: cfg.SideEffects.InitialBackoff,
			MaxBackoff:     cfg.SideEffects.MaxBackoff,
			AttemptTimeout: cfg.SideEffects.AttemptTimeout,
		},
		Logger: observability.NewEventLogger(logger.Named("side_effects")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build side effect runner: %w", err)
	}
	svc.Runner = runner

	newID := func() string { return ulid.Make().String() }

	commission, err := services.NewCommissionLedger(services.CommissionLedgerDeps{
		Earnings:    reg.AffiliateEarnings(),
		Affiliates:  reg.Affiliates(),
		Settings:    settings,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      observability.NewEventLogger(logger.Named("commission")),
	})
	if err != nil {
		return svc, fmt.Errorf("build commission ledger: %w", err)
	}
	svc.Commission = commission

	delivery, err := services.NewDeliveryEarningLedger(services.DeliveryEarningLedgerDeps{
		Earnings:    reg.DeliveryEarnings(),
		Settings:    settings,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      observability.NewEventLogger(logger.Named("delivery")),
	})
	if err != nil {
		return svc, fmt.Errorf("build delivery earning ledger: %w", err)
	}
	svc.Delivery = delivery

	var limiter *rate.Limiter
	if cfg.Notifications.RatePerSecond > 0 {
		burst := cfg.Notifications.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Notifications.RatePerSecond), burst)
	}

	notifier, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Publisher:       publisher,
		Settings:        settings,
		Guard:           guard,
		GuardTTL:        cfg.DispatchGuard.TTL,
		Limiter:         limiter,
		AdminRecipients: cfg.Notifications.AdminRecipients,
		DefaultLocale:   cfg.Notifications.DefaultLocale,
		Clock:           clock,
		IDGenerator:     newID,
		Logger:          observability.NewEventLogger(logger.Named("notifications")),
	})
	if err != nil {
		return svc, fmt.Errorf("build notification dispatcher: %w", err)
	}
	svc.Notifier = notifier

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		UnitOfWork:  reg,
		SideEffects: []services.SideEffect{commission, delivery, notifier},
		Scheduler:   runner,
		Clock:       clock,
		Logger:      observability.NewEventLogger(logger.Named("orders")),
	})
	if err != nil {
		return svc, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders
	return svc, nil
}

func defaultBusinessSettings(cfg config.Config) domain.BusinessSettings {
	return domain.BusinessSettings{
		Locale: cfg.Notifications.DefaultLocale,
		Notifications: domain.NotificationPreferences{
			Enabled:      true,
			AdminEnabled: len(cfg.Notifications.AdminRecipients) > 0,
		},
		Features: domain.FeatureFlags{
			AffiliateProgram:   cfg.Features.AffiliateProgram,
			DeliveryManagement: cfg.Features.DeliveryManagement,
		},
	}
}
