package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRunner(t *testing.T, cfg SideEffectRunnerConfig, logs *captureLogger) *SideEffectRunner {
	t.Helper()
	runner, err := NewSideEffectRunner(SideEffectRunnerDeps{
		Config: cfg,
		Logger: logs.log,
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

func TestSideEffectRunnerRetriesUntilSuccess(t *testing.T) {
	logs := &captureLogger{}
	runner := newTestRunner(t, SideEffectRunnerConfig{Workers: 1, QueueSize: 4, MaxAttempts: 3, InitialBackoff: time.Millisecond}, logs)

	var attempts atomic.Int32
	done := make(chan struct{})
	ok := runner.Submit(context.Background(), SideEffectTask{
		Name:    "commission_ledger",
		OrderID: "ord_1",
		Run: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	if !ok {
		t.Fatalf("expected task to be accepted")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not complete")
	}
	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	if !logs.has(sideEffectEventRetry) || logs.has(sideEffectEventFailed) {
		t.Fatalf("expected retries without a final failure")
	}
}

func TestSideEffectRunnerLogsExhaustedAndPermanentFailures(t *testing.T) {
	logs := &captureLogger{}
	runner := newTestRunner(t, SideEffectRunnerConfig{Workers: 2, QueueSize: 4, MaxAttempts: 2}, logs)

	var transient, permanent atomic.Int32
	runner.Submit(context.Background(), SideEffectTask{Name: "notify", OrderID: "ord_1", Run: func(context.Context) error {
		transient.Add(1)
		return errors.New("channel down")
	}})
	runner.Submit(context.Background(), SideEffectTask{Name: "ledger", OrderID: "ord_2", Run: func(context.Context) error {
		permanent.Add(1)
		return Permanent(errors.New("bad config"))
	}})
	runner.Submit(context.Background(), SideEffectTask{Name: "panics", OrderID: "ord_3", Run: func(context.Context) error {
		panic("boom")
	}})

	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if transient.Load() != 2 {
		t.Fatalf("expected 2 attempts for transient failure, got %d", transient.Load())
	}
	if permanent.Load() != 1 {
		t.Fatalf("expected a single attempt for permanent failure, got %d", permanent.Load())
	}

	failed := 0
	for _, event := range logs.events {
		if event.name == sideEffectEventFailed {
			failed++
		}
	}
	if failed != 3 {
		t.Fatalf("expected 3 failure logs, got %d", failed)
	}
}

func TestSideEffectRunnerDropsWhenQueueFull(t *testing.T) {
	logs := &captureLogger{}
	runner := newTestRunner(t, SideEffectRunnerConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1}, logs)

	started := make(chan struct{})
	release := make(chan struct{})
	runner.Submit(context.Background(), SideEffectTask{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	noop := func(context.Context) error { return nil }
	if !runner.Submit(context.Background(), SideEffectTask{Name: "queued", Run: noop}) {
		t.Fatalf("expected queued task to be accepted")
	}
	if runner.Submit(context.Background(), SideEffectTask{Name: "overflow", Run: noop}) {
		t.Fatalf("expected overflow task to be dropped")
	}
	if !logs.has(sideEffectEventDropped) {
		t.Fatalf("expected drop to be logged")
	}

	close(release)
	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if runner.Submit(context.Background(), SideEffectTask{Name: "late", Run: noop}) {
		t.Fatalf("expected submit after close to be rejected")
	}
	if err := runner.Close(context.Background()); !errors.Is(err, ErrSideEffectRunnerClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestSideEffectRunnerDetachesFromRequestContext(t *testing.T) {
	logs := &captureLogger{}
	runner := newTestRunner(t, SideEffectRunnerConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1, AttemptTimeout: time.Second}, logs)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	runner.Submit(ctx, SideEffectTask{Name: "notify", Run: func(taskCtx context.Context) error {
		cancel()
		result <- taskCtx.Err()
		return nil
	}})

	if err := runner.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-result; err != nil {
		t.Fatalf("expected task context to survive request cancellation, got %v", err)
	}
}

func TestNewSideEffectRunnerValidatesConfig(t *testing.T) {
	if _, err := NewSideEffectRunner(SideEffectRunnerDeps{Config: SideEffectRunnerConfig{QueueSize: 1}}); err == nil {
		t.Fatalf("expected error for zero workers")
	}
	if _, err := NewSideEffectRunner(SideEffectRunnerDeps{Config: SideEffectRunnerConfig{Workers: 1}}); err == nil {
		t.Fatalf("expected error for zero queue size")
	}
}
