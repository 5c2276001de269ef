package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/validation"
)

// Dispatcher is the decorated entry point the agent loop calls for
// every tool invocation. It wraps the bare CallableTool.Call in the
// same layered-decorator idiom the toolregistry example in the
// reference corpus uses: an approval stage, then retry/circuit-breaker,
// then latency recording — each layer concerned with exactly one
// cross-cutting aspect of "run this tool call."
type Dispatcher struct {
	gate     *validation.Gate
	breakers map[string]*subagent.CircuitBreaker
	retry    subagent.RetryConfig
}

func NewDispatcher(gate *validation.Gate, retry subagent.RetryConfig) *Dispatcher {
	return &Dispatcher{gate: gate, breakers: make(map[string]*subagent.CircuitBreaker), retry: retry}
}

func (d *Dispatcher) breakerFor(toolName string) *subagent.CircuitBreaker {
	b, ok := d.breakers[toolName]
	if !ok {
		b = subagent.NewCircuitBreaker(5, 20*time.Second)
		d.breakers[toolName] = b
	}
	return b
}

// Dispatch runs t.Call(args) through the approval -> retry/breaker ->
// latency-recording chain, in that order — approval gates whether the
// call happens at all, so it sits outermost. Every call is evaluated
// by the gate, not just ones a tool flags via RequiresApproval: the
// gate's own mode/risk table decides whether that evaluation
// actually blocks for a human decision or resolves immediately, so a
// tool hardcoding RequiresApproval()=false must not be allowed to skip
// evaluation outright in manual mode.
func (d *Dispatcher) Dispatch(ctx context.Context, t CallableTool, tc Context, call Call) (result map[string]any, err error) {
	decision, derr := d.gate.Evaluate(ctx, validation.Request{
		WorkflowID: tc.WorkflowID(),
		ToolCallID: call.ID,
		ToolName:   t.Name(),
		RiskLevel:  validation.RiskLevel(t.RiskLevel()),
		Arguments:  argsToString(call.Args),
	})
	if derr != nil {
		return nil, derr
	}
	if decision == validation.Denied {
		return nil, apperrors.New(apperrors.KindPermission, "tool call "+t.Name()+" was denied")
	}

	breaker := d.breakerFor(t.Name())
	start := time.Now()
	defer func() {
		slog.Debug("tool call dispatched", "tool", t.Name(), "call_id", call.ID, "duration", time.Since(start), "error", err)
	}()

	var lastErr error
	attempts := d.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if !breaker.Allow() {
			return nil, apperrors.CircuitOpen("tool:" + t.Name())
		}
		if attempt > 0 {
			select {
			case <-time.After(d.retry.BaseDelay):
			case <-ctx.Done():
				return nil, apperrors.Cancelled("tool call cancelled during retry backoff")
			}
		}
		result, lastErr = t.Call(tc, call.Args)
		if lastErr == nil {
			breaker.RecordSuccess()
			return result, nil
		}
		breaker.RecordFailure()
		if apperrors.KindOf(lastErr) == apperrors.KindValidation {
			break // bad arguments never succeed on retry
		}
	}
	return nil, lastErr
}

func argsToString(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
