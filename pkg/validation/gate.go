// Package validation implements the human-in-the-loop approval gate
// that sits in front of risky tool calls. The decision table and the
// "pause the workflow, wait for a decision, then resume" flow are
// modeled on the approvalExecutor stage of the decorator chain found
// in the toolregistry example in the reference corpus, generalized
// into a standalone gate the agent loop can call before dispatch.
package validation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
)

// Mode controls how the gate decides whether a call needs a human
// decision.
type Mode string

const (
	// ModeAuto approves every call automatically, regardless of risk.
	ModeAuto Mode = "auto"
	// ModeManual requires a human decision for every call.
	ModeManual Mode = "manual"
	// ModeSelective requires a human decision only for calls at or
	// above RiskMedium.
	ModeSelective Mode = "selective"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Request describes a single tool call awaiting a decision.
type Request struct {
	WorkflowID string
	ToolCallID string
	ToolName   string
	RiskLevel  RiskLevel
	Arguments  string
}

// Decision is the human (or auto-) verdict on a Request.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
)

// DefaultTimeout is used when a Gate is constructed with a zero or
// negative timeout: a pending request that receives no decision within
// this window is rejected by default.
const DefaultTimeout = 5 * time.Minute

// Gate decides, for every tool call a workflow wants to make, whether
// it may proceed immediately or must wait for an external decision.
type Gate struct {
	mode    Mode
	timeout time.Duration
	store   *store.Store
	waiters map[string]chan Decision // validation request id -> waiter
	mu      chan struct{}            // binary semaphore guarding waiters
}

func New(mode Mode, st *store.Store) *Gate {
	return NewWithTimeout(mode, st, DefaultTimeout)
}

// NewWithTimeout is New with an explicit per-request approval timeout.
func NewWithTimeout(mode Mode, st *store.Store, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := &Gate{
		mode:    mode,
		timeout: timeout,
		store:   st,
		waiters: make(map[string]chan Decision),
		mu:      make(chan struct{}, 1),
	}
	g.mu <- struct{}{}
	return g
}

func (g *Gate) lock()   { <-g.mu }
func (g *Gate) unlock() { g.mu <- struct{}{} }

// needsApproval implements the mode/risk decision table: auto never
// asks, manual always asks, selective asks at medium risk and above.
func (g *Gate) needsApproval(risk RiskLevel) bool {
	switch g.mode {
	case ModeAuto:
		return false
	case ModeManual:
		return true
	case ModeSelective:
		return risk == RiskMedium || risk == RiskHigh
	default:
		return true
	}
}

// Evaluate either returns Approved immediately (no human needed) or
// records a pending validation request and blocks until Decide is
// called for it or ctx is cancelled.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if !g.needsApproval(req.RiskLevel) {
		return Approved, nil
	}

	id := uuid.NewString()
	vr := &store.ValidationRequest{
		ID:         id,
		WorkflowID: req.WorkflowID,
		ToolCallID: req.ToolCallID,
		ToolName:   req.ToolName,
		RiskLevel:  string(req.RiskLevel),
		Arguments:  req.Arguments,
		Decision:   store.ValidationPending,
		CreatedAt:  time.Now(),
	}
	if err := g.store.CreateValidationRequest(ctx, vr); err != nil {
		return "", err
	}

	ch := make(chan Decision, 1)
	g.lock()
	g.waiters[id] = ch
	g.unlock()
	defer func() {
		g.lock()
		delete(g.waiters, id)
		g.unlock()
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return "", apperrors.Cancelled("validation request " + id + " cancelled before decision")
	case <-timer.C:
		_ = g.store.DecideValidationRequest(context.Background(), id, store.ValidationDenied)
		return Denied, apperrors.Timeout("validation request " + id + " timed out awaiting a decision")
	}
}

// Decide resolves a pending validation request, waking up whichever
// Evaluate call is blocked on it. Returns apperrors.Conflict if the id
// is unknown or was already decided.
func (g *Gate) Decide(ctx context.Context, requestID string, decision Decision) error {
	var storeDecision store.ValidationDecision
	switch decision {
	case Approved:
		storeDecision = store.ValidationApproved
	case Denied:
		storeDecision = store.ValidationDenied
	default:
		return apperrors.Validation("unknown decision: " + string(decision))
	}
	if err := g.store.DecideValidationRequest(ctx, requestID, storeDecision); err != nil {
		return err
	}

	g.lock()
	ch, ok := g.waiters[requestID]
	g.unlock()
	if ok {
		ch <- decision
	}
	return nil
}

// Pending returns the single validation request with the given id,
// whatever its decision state; it does not list requests.
func (g *Gate) Pending(ctx context.Context, id string) (*store.ValidationRequest, error) {
	return g.store.GetValidationRequest(ctx, id)
}
