// Package subagent provides the shared execution fabric that every
// sub-agent call (spawn, delegate, or one leg of a parallel fan-out)
// runs through: retry with exponential backoff, a circuit breaker per
// parent agent, a per-attempt time limit, and cooperative cancellation.
// Grounded on an orchestration-step RetryConfig and
// the retryExecutor/approvalExecutor decorator stage found in the
// toolregistry example in the reference corpus (the reference corpus has no
// circuit breaker or heartbeat).
package subagent

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

// MaxConcurrentChildren is the hard cap on simultaneously running
// child workflows under a single parent; the single-level hierarchy
// itself is enforced by callers through DepthTracker.
const MaxConcurrentChildren = 3

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Mode identifies which of the three coordination patterns a call is.
type Mode string

const (
	Spawn    Mode = "spawn"
	Delegate Mode = "delegate"
	Parallel Mode = "parallel"
)

// Executor runs a child workflow function with retry, a per-parent
// circuit breaker, a per-attempt time limit, and the per-parent
// concurrency cap. One Executor is shared across all sub-agent calls in
// a running parent workflow.
type Executor struct {
	retry            RetryConfig
	heartbeatTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker // keyed by parent workflow id
	inflight map[string]int             // parent workflow id -> concurrent child count
}

func NewExecutor(retry RetryConfig, heartbeatTimeout time.Duration) *Executor {
	return &Executor{
		retry:            retry,
		heartbeatTimeout: heartbeatTimeout,
		breakers:         make(map[string]*CircuitBreaker),
		inflight:         make(map[string]int),
	}
}

func (e *Executor) breakerFor(parentID string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[parentID]
	if !ok {
		b = NewCircuitBreaker(3, 60*time.Second)
		e.breakers[parentID] = b
	}
	return b
}

func (e *Executor) acquireSlot(parentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[parentID] >= MaxConcurrentChildren {
		return apperrors.CapacityReached("sub-agent concurrency limit reached for parent workflow")
	}
	e.inflight[parentID]++
	return nil
}

func (e *Executor) releaseSlot(parentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight[parentID]--
}

// IsChild reports whether workflowID is itself already executing as a
// sub-agent; callers use this to refuse a further spawn/delegate from
// inside a child, enforcing the single-level hierarchy.
type DepthTracker struct {
	mu       sync.Mutex
	children map[string]bool
}

func NewDepthTracker() *DepthTracker { return &DepthTracker{children: make(map[string]bool)} }

func (d *DepthTracker) MarkChild(workflowID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children[workflowID] = true
}

func (d *DepthTracker) IsChild(workflowID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.children[workflowID]
}

// ChildFunc runs one child workflow to completion and returns its
// terminal error, if any. It must respect ctx cancellation.
type ChildFunc func(ctx context.Context) error

// Run executes fn under retry + circuit breaker protection, honoring
// the MaxConcurrentChildren cap for parentWorkflowID. If
// heartbeatTimeout is positive it bounds each attempt as a whole: the
// timer starts with the attempt and is not reset by fn's progress.
// When it fires, fn's context is cancelled and the attempt counts as a
// failure. Once attempts are exhausted Run returns the timeout error
// if the last attempt timed out, and otherwise a KindUnavailable error
// wrapping the last attempt's error.
func (e *Executor) Run(ctx context.Context, parentWorkflowID string, mode Mode, fn ChildFunc) error {
	if err := e.acquireSlot(parentWorkflowID); err != nil {
		return err
	}
	defer e.releaseSlot(parentWorkflowID)

	breaker := e.breakerFor(parentWorkflowID)

	var lastErr error
	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		if !breaker.Allow() {
			return apperrors.CircuitOpen("sub-agent:" + parentWorkflowID)
		}
		if attempt > 0 {
			delay := backoffDelay(e.retry, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return apperrors.Cancelled("sub-agent call cancelled during backoff")
			}
		}

		err := e.runOnceWithHeartbeat(ctx, fn)
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}
		lastErr = err
		breaker.RecordFailure()
		if apperrors.KindOf(err) == apperrors.KindCancelled {
			return err // cancellation is never retried
		}
	}
	if apperrors.KindOf(lastErr) == apperrors.KindTimeout {
		return lastErr
	}
	return apperrors.Wrap(apperrors.KindUnavailable, "sub-agent call exhausted retries", lastErr)
}

func (e *Executor) runOnceWithHeartbeat(ctx context.Context, fn ChildFunc) error {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(childCtx) }()

	if e.heartbeatTimeout <= 0 {
		return <-done
	}

	timer := time.NewTimer(e.heartbeatTimeout)
	defer timer.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-timer.C:
			cancel()
			<-done // fn observes cancellation and returns
			return apperrors.Timeout("sub-agent inactivity heartbeat exceeded")
		case <-ctx.Done():
			cancel()
			<-done
			return apperrors.Cancelled("sub-agent call cancelled")
		}
	}
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	exp := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	jittered := exp * (0.8 + 0.4*rand.Float64())
	d := time.Duration(jittered)
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
