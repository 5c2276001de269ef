// Package background manages the concurrency budget for workflows
// executed outside the caller's own request (the "execute_workflow_streaming"
// path returns immediately and the workflow keeps running). The slot
// accounting mirrors a weighted semaphore, the same primitive the
// this runtime reaches for via golang.org/x/sync.
package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/validation"
)

// capacityFor returns the concurrent-background-workflow budget: three
// slots when every call auto-approves (no human bottleneck), one slot
// otherwise, since a manual/selective gate serializes attention on a
// single pending decision at a time.
func capacityFor(mode validation.Mode) int64 {
	if mode == validation.ModeAuto {
		return 3
	}
	return 1
}

// Manager tracks in-flight background workflows and enforces the
// concurrency cap.
type Manager struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewManager(mode validation.Mode) *Manager {
	return &Manager{
		sem:     semaphore.NewWeighted(capacityFor(mode)),
		running: make(map[string]context.CancelFunc),
	}
}

// Start acquires a slot and runs fn in its own goroutine under a
// cancellable context derived from parent, returning an error
// immediately (without starting fn) if no slot is free.
func (m *Manager) Start(parent context.Context, workflowID string, fn func(ctx context.Context)) error {
	if !m.sem.TryAcquire(1) {
		return apperrors.CapacityReached("no background execution slots available")
	}
	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.running[workflowID] = cancel
	m.mu.Unlock()

	go func() {
		defer m.sem.Release(1)
		defer func() {
			m.mu.Lock()
			delete(m.running, workflowID)
			m.mu.Unlock()
			cancel()
		}()
		start := time.Now()
		fn(ctx)
		slog.Debug("background workflow finished", "workflow_id", workflowID, "duration", time.Since(start))
	}()
	return nil
}

// Cancel requests cancellation of a running background workflow. It is
// idempotent: cancelling an unknown or already-finished workflow is
// not an error, since cancellation races completion by design.
func (m *Manager) Cancel(workflowID string) {
	m.mu.Lock()
	cancel, ok := m.running[workflowID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running reports whether workflowID currently holds a background slot.
func (m *Manager) Running(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[workflowID]
	return ok
}

// Sweep cancels every running background workflow and removes it from
// the running set; each slot is released when its goroutine returns.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.running {
		cancel()
		delete(m.running, id)
	}
}
