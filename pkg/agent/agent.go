// Package agent implements the tool-call reasoning loop every
// workflow runs: preprocess history, call the model, dispatch any
// tool calls it requests, repeat until a final response or the
// iteration safety limit. Grounded on a Flow.Run / runOneStep outer/inner
// loop shape, adapted away from an ADK-style agent-tree/session machinery
// (InvocationContext, Event, CallbackContext, a2a messages) since this
// runtime's coordination unit is a workflow, not a compile-time agent
// tree, and its fan-out/event-streaming already live in pkg/subagent
// and pkg/stream.
package agent

import (
	"context"
	"fmt"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
	"github.com/kestrelrun/conductor/pkg/utils"
)

// DefaultMaxIterations bounds the outer loop so a model that never
// stops requesting tool calls cannot run a workflow forever.
const DefaultMaxIterations = 50

// Config describes one agent configuration: the model it talks to,
// its system prompt, the tools it may call, and the history budget it
// must stay within.
type Config struct {
	ID                string
	SystemInstruction string
	MaxIterations     int
	TokenBudget       int // 0 disables trimming
	GenerateConfig    *model.GenerateConfig

	// ModelID and the two price-per-million-token rates feed
	// store.AddUsage once a turn's model.Usage is known, so a
	// workflow's cumulative cost_usd tracks whichever model it
	// actually ran against.
	ModelID            string
	InputPricePerMTok  float64
	OutputPricePerMTok float64
}

// Agent binds a Config to the shared runtime machinery (model,
// dispatcher, store, bus) every workflow step reaches for.
type Agent struct {
	cfg        Config
	llm        model.LLM
	tools      *tool.Registry
	predicate  tool.Predicate
	dispatcher *tool.Dispatcher
	store      *store.Store
	bus        *stream.Bus
	counter    *utils.TokenCounter
	depth      *subagent.DepthTracker
}

func New(cfg Config, llm model.LLM, tools *tool.Registry, predicate tool.Predicate, dispatcher *tool.Dispatcher, st *store.Store, bus *stream.Bus, depth *subagent.DepthTracker) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if predicate == nil {
		predicate = tool.AllowAll()
	}
	var counter *utils.TokenCounter
	if cfg.TokenBudget > 0 {
		counter, _ = utils.NewTokenCounter(llm.Name())
	}
	return &Agent{cfg: cfg, llm: llm, tools: tools, predicate: predicate, dispatcher: dispatcher, store: st, bus: bus, counter: counter, depth: depth}
}

// isPrimaryWorkflow reports whether workflowID is a top-level workflow
// rather than one already running as a spawned/delegated child. A nil
// depth tracker (e.g. in unit tests that construct an Agent directly)
// is treated as always-primary.
func (a *Agent) isPrimaryWorkflow(workflowID string) bool {
	if a.depth == nil {
		return true
	}
	return !a.depth.IsChild(workflowID)
}

// callContext implements tool.Context for calls made during one
// workflow run.
type callContext struct {
	workflowID string
	agentID    string
	callID     string
	isPrimary  bool
}

func (c callContext) WorkflowID() string     { return c.workflowID }
func (c callContext) AgentID() string        { return c.agentID }
func (c callContext) FunctionCallID() string { return c.callID }
func (c callContext) IsPrimary() bool        { return c.isPrimary }

// Run drives the reasoning loop for one workflow to completion,
// returning the model's final text output.
func (a *Agent) Run(ctx context.Context, workflowID, goal string) (string, error) {
	existing, err := a.store.ListMessages(ctx, workflowID)
	if err != nil {
		return "", err
	}
	if len(existing) == 0 && a.cfg.SystemInstruction != "" {
		if err := a.store.AppendMessage(ctx, &store.Message{WorkflowID: workflowID, Role: "system", Content: a.cfg.SystemInstruction}); err != nil {
			return "", err
		}
	}

	a.bus.Publish(workflowID, stream.EventThinking, map[string]any{"content": "Analyzing request..."})
	if err := a.store.AppendThinkingStep(ctx, &store.ThinkingStep{WorkflowID: workflowID, Content: "Analyzing request..."}); err != nil {
		return "", err
	}

	if err := a.store.AppendMessage(ctx, &store.Message{WorkflowID: workflowID, Role: "user", Content: goal}); err != nil {
		return "", err
	}
	a.bus.Publish(workflowID, stream.EventMessage, map[string]any{"role": "user", "content": goal})

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return "", apperrors.Cancelled("workflow " + workflowID + " cancelled")
		default:
		}

		if cancelled, err := a.cancelRequested(ctx, workflowID); err != nil {
			return "", err
		} else if cancelled {
			return "", apperrors.Cancelled("workflow " + workflowID + " cancellation requested")
		}

		resp, err := a.runOneStep(ctx, workflowID)
		if err != nil {
			a.bus.Publish(workflowID, stream.EventError, map[string]any{"error": err.Error()})
			return "", err
		}

		if !resp.HasToolCalls() {
			return resp.TextContent(), nil
		}
	}

	return "", apperrors.New(apperrors.KindInternal, fmt.Sprintf("reasoning loop exceeded %d iterations", a.cfg.MaxIterations))
}

func (a *Agent) cancelRequested(ctx context.Context, workflowID string) (bool, error) {
	wf, err := a.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return false, err
	}
	return wf.CancelRequested, nil
}
