package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hanko-field/orderflow/internal/platform/observability"
	"github.com/hanko-field/orderflow/internal/platform/requestctx"
)

const (
	sideEffectEventRetry   = "order.side_effect.retry"
	sideEffectEventFailed  = "order.side_effect.failed"
	sideEffectEventDropped = "order.side_effect.dropped"

	sideEffectMeterName = "github.com/hanko-field/orderflow/internal/services"
)

// ErrSideEffectRunnerClosed is returned by Close when called twice.
var ErrSideEffectRunnerClosed = errors.New("side effects: runner closed")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// SideEffectRunnerConfig bounds concurrency and retries.
type SideEffectRunnerConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// SideEffectRunnerDeps bundles collaborators required to construct the runner.
type SideEffectRunnerDeps struct {
	Config SideEffectRunnerConfig
	Meter  metric.Meter
	Logger func(ctx context.Context, event string, fields map[string]any)
	// Sleep pauses between attempts. Defaults to gax.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// SideEffectRunner executes post-commit tasks on a fixed worker pool. Submit never blocks: when the
// queue is full the task is dropped and the loss is logged and counted.
type SideEffectRunner struct {
	cfg    SideEffectRunnerConfig
	queue  chan queuedTask
	logger func(context.Context, string, map[string]any)
	sleep  func(context.Context, time.Duration) error

	failures metric.Int64Counter
	dropped  metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}
}

type queuedTask struct {
	ctx  context.Context
	task SideEffectTask
}

var _ SideEffectScheduler = (*SideEffectRunner)(nil)

// NewSideEffectRunner starts the worker pool.
func NewSideEffectRunner(deps SideEffectRunnerDeps) (*SideEffectRunner, error) {
	cfg := deps.Config
	if cfg.Workers <= 0 {
		return nil, errors.New("side effects: workers must be positive")
	}
	if cfg.QueueSize <= 0 {
		return nil, errors.New("side effects: queue size must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(sideEffectMeterName)
	}
	failures, err := meter.Int64Counter("orders.side_effects.failed",
		metric.WithDescription("Side-effect tasks that exhausted their attempts"))
	if err != nil {
		return nil, fmt.Errorf("side effects: register failure counter: %w", err)
	}
	dropped, err := meter.Int64Counter("orders.side_effects.dropped",
		metric.WithDescription("Side-effect tasks rejected because the queue was full"))
	if err != nil {
		return nil, fmt.Errorf("side effects: register drop counter: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}

	r := &SideEffectRunner{
		cfg:      cfg,
		queue:    make(chan queuedTask, cfg.QueueSize),
		logger:   logger,
		sleep:    sleep,
		failures: failures,
		dropped:  dropped,
		stop:     make(chan struct{}),
	}
	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.work()
	}
	return r, nil
}

// Submit queues task. The task runs on a context detached from ctx's cancellation that keeps
// its logger and trace metadata.
func (r *SideEffectRunner) Submit(ctx context.Context, task SideEffectTask) bool {
	if task.Run == nil {
		return false
	}
	detached := requestctx.Detach(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(detached, task, "closed")
		return false
	}
	select {
	case r.queue <- queuedTask{ctx: detached, task: task}:
		return true
	default:
		r.drop(detached, task, "queue_full")
		return false
	}
}

// Close stops accepting tasks and waits for queued tasks to finish or ctx to expire. Tasks still
// queued when ctx expires are abandoned.
func (r *SideEffectRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrSideEffectRunnerClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		close(r.stop)
		return ctx.Err()
	}
}

func (r *SideEffectRunner) work() {
	defer r.wg.Done()
	for item := range r.queue {
		select {
		case <-r.stop:
			r.drop(item.ctx, item.task, "shutdown")
			continue
		default:
		}
		r.execute(item.ctx, item.task)
	}
}

func (r *SideEffectRunner) execute(ctx context.Context, task SideEffectTask) {
	backoff := gax.Backoff{
		Initial:    r.cfg.InitialBackoff,
		Max:        r.cfg.MaxBackoff,
		Multiplier: 2,
	}

	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err = r.attempt(ctx, task, attempt)
		if err == nil {
			return
		}
		var permanent permanentError
		if errors.As(err, &permanent) || attempt == r.cfg.MaxAttempts {
			break
		}

		pause := backoff.Pause()
		r.logger(ctx, sideEffectEventRetry, map[string]any{
			"task":    task.Name,
			"orderId": task.OrderID,
			"attempt": attempt,
			"backoff": pause.String(),
			"error":   err,
		})
		if sleepErr := r.sleep(ctx, pause); sleepErr != nil {
			break
		}
	}

	r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task.Name)))
	r.logger(ctx, sideEffectEventFailed, map[string]any{
		"task":    task.Name,
		"orderId": task.OrderID,
		"error":   err,
	})
}

func (r *SideEffectRunner) attempt(ctx context.Context, task SideEffectTask, attempt int) (err error) {
	ctx, span := observability.StartInternalSpan(ctx, "sideeffect."+task.Name,
		attribute.String("order.id", task.OrderID),
		attribute.Int("attempt", attempt),
	)
	defer span.End()

	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = Permanent(fmt.Errorf("side effect %s panicked: %v", task.Name, rec))
		}
		observability.RecordSpanError(span, err)
	}()

	return task.Run(ctx)
}

func (r *SideEffectRunner) drop(ctx context.Context, task SideEffectTask, reason string) {
	r.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task.Name),
		attribute.String("reason", reason),
	))
	r.logger(ctx, sideEffectEventDropped, map[string]any{
		"task":    task.Name,
		"orderId": task.OrderID,
		"reason":  reason,
	})
}
