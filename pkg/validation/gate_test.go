package validation_test

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/validation"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestGate_AutoModeNeverBlocks(t *testing.T) {
	st := openTestStore(t)
	gate := validation.New(validation.ModeAuto, st)

	for _, risk := range []validation.RiskLevel{validation.RiskLow, validation.RiskMedium, validation.RiskHigh} {
		decision, err := gate.Evaluate(context.Background(), validation.Request{
			WorkflowID: "wf-1", ToolCallID: "call-1", ToolName: "memory.delete", RiskLevel: risk,
		})
		if err != nil {
			t.Fatalf("risk=%s: unexpected error: %v", risk, err)
		}
		if decision != validation.Approved {
			t.Fatalf("risk=%s: want Approved, got %s", risk, decision)
		}
	}
}

func TestGate_ManualModeBlocksUntilDecided(t *testing.T) {
	st := openTestStore(t)
	gate := validation.New(validation.ModeManual, st)

	type result struct {
		decision validation.Decision
		err      error
	}
	done := make(chan result, 1)

	go func() {
		d, err := gate.Evaluate(context.Background(), validation.Request{
			WorkflowID: "wf-1", ToolCallID: "call-1", ToolName: "memory.delete", RiskLevel: validation.RiskLow,
		})
		done <- result{d, err}
	}()

	// Give Evaluate time to persist the pending request before deciding it.
	var reqID string
	deadline := time.After(2 * time.Second)
	for reqID == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for pending validation request to appear")
		case <-time.After(10 * time.Millisecond):
		}
		pending, err := st.ListPendingValidations(context.Background())
		if err != nil {
			t.Fatalf("listing pending validations: %v", err)
		}
		for _, p := range pending {
			if p.WorkflowID == "wf-1" && p.ToolCallID == "call-1" {
				reqID = p.ID
			}
		}
	}

	if err := gate.Decide(context.Background(), reqID, validation.Approved); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Evaluate returned error: %v", r.err)
		}
		if r.decision != validation.Approved {
			t.Fatalf("want Approved, got %s", r.decision)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Evaluate never returned after Decide")
	}
}

func TestGate_SelectiveModeRisksTable(t *testing.T) {
	st := openTestStore(t)
	gate := validation.New(validation.ModeSelective, st)

	// Low risk auto-approves in selective mode.
	decision, err := gate.Evaluate(context.Background(), validation.Request{
		WorkflowID: "wf-1", ToolCallID: "call-low", ToolName: "calculator.binary", RiskLevel: validation.RiskLow,
	})
	if err != nil || decision != validation.Approved {
		t.Fatalf("low risk: want Approved/nil, got %s/%v", decision, err)
	}

	// High risk blocks until a decision is recorded; reject it via context cancellation proxy (Decide with Denied).
	done := make(chan validation.Decision, 1)
	go func() {
		d, _ := gate.Evaluate(context.Background(), validation.Request{
			WorkflowID: "wf-1", ToolCallID: "call-high", ToolName: "spawn_agent", RiskLevel: validation.RiskHigh,
		})
		done <- d
	}()

	var reqID string
	for i := 0; i < 200 && reqID == ""; i++ {
		pending, _ := st.ListPendingValidations(context.Background())
		for _, p := range pending {
			if p.WorkflowID == "wf-1" && p.ToolCallID == "call-high" {
				reqID = p.ID
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reqID == "" {
		t.Fatal("pending validation request for high-risk call never appeared")
	}
	if err := gate.Decide(context.Background(), reqID, validation.Denied); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d := <-done; d != validation.Denied {
		t.Fatalf("want Denied, got %s", d)
	}
}

func TestGate_CancelledBeforeDecision(t *testing.T) {
	st := openTestStore(t)
	gate := validation.New(validation.ModeManual, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gate.Evaluate(ctx, validation.Request{
		WorkflowID: "wf-1", ToolCallID: "call-1", ToolName: "memory.delete", RiskLevel: validation.RiskMedium,
	})
	if apperrors.KindOf(err) != apperrors.KindCancelled {
		t.Fatalf("want KindCancelled, got %v", err)
	}
}

func TestGate_TimesOutAndDenies(t *testing.T) {
	st := openTestStore(t)
	gate := validation.NewWithTimeout(validation.ModeManual, st, 30*time.Millisecond)

	decision, err := gate.Evaluate(context.Background(), validation.Request{
		WorkflowID: "wf-1", ToolCallID: "call-1", ToolName: "memory.delete", RiskLevel: validation.RiskMedium,
	})
	if apperrors.KindOf(err) != apperrors.KindTimeout {
		t.Fatalf("want KindTimeout, got %v", err)
	}
	if decision != validation.Denied {
		t.Fatalf("want Denied on timeout, got %s", decision)
	}
}

func TestGate_DecideUnknownRequest(t *testing.T) {
	st := openTestStore(t)
	gate := validation.New(validation.ModeManual, st)

	err := gate.Decide(context.Background(), "does-not-exist", validation.Approved)
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("want KindConflict, got %v", err)
	}
}
