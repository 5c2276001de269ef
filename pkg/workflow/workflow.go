// Package workflow implements the command surface's workflow
// lifecycle: creating a workflow row, running its agent loop either
// synchronously or as a tracked background execution, and requesting
// cancellation. It is the single-process analogue of a
// runner/session lifecycle, rebuilt against this runtime's store-backed
// workflow model instead of an in-memory agent/session tree.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/agent"
	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/background"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
)

// AgentFactory resolves an agent configuration id to a runnable Agent.
type AgentFactory func(agentID string) (*agent.Agent, error)

type Engine struct {
	store      *store.Store
	bus        *stream.Bus
	background *background.Manager
	agents     AgentFactory
}

func NewEngine(st *store.Store, bus *stream.Bus, bg *background.Manager, agents AgentFactory) *Engine {
	return &Engine{store: st, bus: bus, background: bg, agents: agents}
}

// Execute runs agentID against goal synchronously and returns its
// final output once the workflow completes — the "execute" and
// "execute_with_mcp" commands both resolve to this, since MCP tools
// are just more entries in the tool registry the resolved agent already
// carries.
func (e *Engine) Execute(ctx context.Context, agentID, goal string) (workflowID string, output string, err error) {
	workflowID, ag, err := e.start(ctx, agentID, goal)
	if err != nil {
		return "", "", err
	}

	output, runErr := ag.Run(ctx, workflowID, goal)
	e.finish(context.Background(), workflowID, output, runErr)
	return workflowID, output, runErr
}

// ExecuteParallel runs the same goal against every listed agent
// concurrently, blocks until all have finished, and returns the
// workflow ids and errors in the same order as agentIDs.
func (e *Engine) ExecuteParallel(ctx context.Context, agentIDs []string, goal string) ([]string, []error) {
	type outcome struct {
		idx int
		id  string
		err error
	}
	results := make(chan outcome, len(agentIDs))
	for i, id := range agentIDs {
		go func(i int, agentID string) {
			wfID, _, err := e.Execute(ctx, agentID, goal)
			results <- outcome{idx: i, id: wfID, err: err}
		}(i, id)
	}

	ids := make([]string, len(agentIDs))
	errs := make([]error, len(agentIDs))
	for range agentIDs {
		o := <-results
		ids[o.idx] = o.id
		errs[o.idx] = o.err
	}
	return ids, errs
}

// ExecuteStreaming starts agentID against goal as a tracked background
// execution (subject to pkg/background's concurrency cap) and returns
// its workflow id immediately; callers subscribe to pkg/stream for
// progress instead of blocking on the call.
func (e *Engine) ExecuteStreaming(ctx context.Context, agentID, goal string) (string, error) {
	workflowID, ag, err := e.start(ctx, agentID, goal)
	if err != nil {
		return "", err
	}

	startErr := e.background.Start(context.Background(), workflowID, func(runCtx context.Context) {
		output, runErr := ag.Run(runCtx, workflowID, goal)
		e.finish(context.Background(), workflowID, output, runErr)
	})
	if startErr != nil {
		_ = e.store.UpdateWorkflowStatus(ctx, workflowID, store.WorkflowFailed, startErr.Error())
		return "", startErr
	}

	return workflowID, nil
}

// CancelStreaming requests cooperative cancellation of a running
// background workflow; the agent loop observes this on its next
// iteration boundary or ctx.Done(), whichever comes first.
func (e *Engine) CancelStreaming(ctx context.Context, workflowID string) error {
	if err := e.store.RequestCancel(ctx, workflowID); err != nil {
		return err
	}
	e.background.Cancel(workflowID)
	return nil
}

// Start resolves agentID, creates its workflow row, and returns the
// runnable Agent without running it — exported so pkg/orchestrator can
// pre-create a child workflow id before deciding whether to run it
// synchronously (Delegate/Parallel) or fire-and-forget (Spawn).
func (e *Engine) Start(ctx context.Context, agentID, goal string) (string, *agent.Agent, error) {
	return e.start(ctx, agentID, goal)
}

// Finish persists the terminal status of workflowID and publishes it
// on the bus. Exported for the same reason as Start: pkg/orchestrator
// drives the agent run itself (through pkg/subagent's retry/breaker
// wrapper) and reports the outcome back through the same bookkeeping
// this package's own synchronous/background paths use.
func (e *Engine) Finish(ctx context.Context, workflowID, output string, runErr error) {
	e.finish(ctx, workflowID, output, runErr)
}

func (e *Engine) start(ctx context.Context, agentID, goal string) (string, *agent.Agent, error) {
	ag, err := e.agents(agentID)
	if err != nil {
		return "", nil, err
	}

	workflowID := uuid.NewString()
	wf := &store.Workflow{
		ID: workflowID, AgentID: agentID, Status: store.WorkflowRunning, Goal: goal,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return "", nil, err
	}
	e.bus.Publish(workflowID, stream.EventStatusChange, map[string]any{"status": string(store.WorkflowRunning)})

	return workflowID, ag, nil
}

func (e *Engine) finish(ctx context.Context, workflowID, output string, runErr error) {
	status := store.WorkflowCompleted
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if apperrors.KindOf(runErr) == apperrors.KindCancelled {
			status = store.WorkflowCancelled
		} else {
			status = store.WorkflowFailed
		}
	}

	if err := e.store.UpdateWorkflowStatus(ctx, workflowID, status, errMsg); err != nil {
		slog.Error("failed to persist terminal workflow status", "workflow_id", workflowID, "error", err)
	}
	e.bus.Publish(workflowID, stream.EventStatusChange, map[string]any{"status": string(status), "output": output})
	e.bus.Drain(workflowID)
}
