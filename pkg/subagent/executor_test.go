package subagent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

func TestExecutor_RetriesRetryableFailures(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, 0)

	var calls int32
	err := e.Run(context.Background(), "parent-1", Delegate, func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return apperrors.Wrap(apperrors.KindUnavailable, "transient", errors.New("boom"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("want success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}

func TestExecutor_CancelledErrorIsNeverRetried(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, 0)

	var calls int32
	err := e.Run(context.Background(), "parent-1", Delegate, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return apperrors.Cancelled("cancelled")
	})
	if apperrors.KindOf(err) != apperrors.KindCancelled {
		t.Fatalf("want KindCancelled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancelled errors must not be retried, got %d calls", calls)
	}
}

func TestExecutor_ExhaustsRetriesAndReturnsUnavailable(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, 0)

	var calls int32
	err := e.Run(context.Background(), "parent-1", Spawn, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always fails")
	})
	if apperrors.KindOf(err) != apperrors.KindUnavailable {
		t.Fatalf("want KindUnavailable after exhausting retries, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("want exactly MaxAttempts=2 calls, got %d", calls)
	}
}

func TestExecutor_ConcurrencyCapPerParent(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, 0)

	release := make(chan struct{})
	started := make(chan struct{}, MaxConcurrentChildren)
	errs := make(chan error, MaxConcurrentChildren+1)

	run := func() {
		errs <- e.Run(context.Background(), "parent-1", Parallel, func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		})
	}

	for i := 0; i < MaxConcurrentChildren; i++ {
		go run()
	}
	for i := 0; i < MaxConcurrentChildren; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for child to occupy a slot")
		}
	}

	// The 4th concurrent call for the same parent must be rejected immediately.
	go run()
	select {
	case err := <-errs:
		if apperrors.KindOf(err) != apperrors.KindCapacityReached {
			t.Fatalf("want KindCapacityReached for the 4th concurrent child, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("4th call should have failed fast on the concurrency cap, not blocked")
	}

	close(release)
	for i := 0; i < MaxConcurrentChildren; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error from a slotted child: %v", err)
		}
	}
}

func TestExecutor_HeartbeatTimeoutCancelsChild(t *testing.T) {
	e := NewExecutor(RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, 20*time.Millisecond)

	childObservedCancel := make(chan bool, 1)
	err := e.Run(context.Background(), "parent-1", Spawn, func(ctx context.Context) error {
		<-ctx.Done()
		childObservedCancel <- true
		return ctx.Err()
	})
	if apperrors.KindOf(err) != apperrors.KindTimeout {
		t.Fatalf("want KindTimeout, got %v", err)
	}
	select {
	case <-childObservedCancel:
	case <-time.After(time.Second):
		t.Fatal("child never observed context cancellation from heartbeat timeout")
	}
}

func TestDepthTracker_MarksAndQueries(t *testing.T) {
	d := NewDepthTracker()
	if d.IsChild("wf-1") {
		t.Fatal("unmarked workflow should not be a child")
	}
	d.MarkChild("wf-1")
	if !d.IsChild("wf-1") {
		t.Fatal("marked workflow should report as a child")
	}
	if d.IsChild("wf-2") {
		t.Fatal("unrelated workflow should not be a child")
	}
}
