// Package orchestrator implements subagent.Coordinator: it is the
// concrete thing spawn_agent, delegate_task, and parallel_tasks call
// through. It has no code of its own for running a workflow — that
// stays in pkg/workflow — its job is purely coordination: enforcing
// the single-level hierarchy invariant, pre-creating each child's
// workflow id, and wrapping the child's run in pkg/subagent's
// retry/circuit-breaker/heartbeat executor.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/workflow"
)

type Orchestrator struct {
	executor *subagent.Executor
	depth    *subagent.DepthTracker
	engine   *workflow.Engine
	store    *store.Store
	bus      *stream.Bus
}

func New(executor *subagent.Executor, depth *subagent.DepthTracker, engine *workflow.Engine, st *store.Store, bus *stream.Bus) *Orchestrator {
	return &Orchestrator{executor: executor, depth: depth, engine: engine, store: st, bus: bus}
}

var _ subagent.Coordinator = (*Orchestrator)(nil)

// Spawn pre-creates the child workflow so its id can be returned
// immediately, then runs it to completion on a detached goroutine
// under the retry/breaker/heartbeat executor. The parent never
// observes the child's retries or failures directly; it can only poll
// or subscribe to the child workflow's own stream.
func (o *Orchestrator) Spawn(ctx context.Context, parentWorkflowID string, spec subagent.ChildSpec) (string, error) {
	// The tool layer (pkg/tool.Context.IsPrimary) already refuses a
	// nested spawn/delegate/parallel before any side effect; this check
	// is a backstop against a caller that bypasses the tool dispatcher.
	if o.depth.IsChild(parentWorkflowID) {
		return "", apperrors.PermissionDenied("sub-agents may not themselves spawn or delegate: hierarchy is single-level")
	}

	workflowID, ag, err := o.engine.Start(ctx, spec.AgentID, spec.Goal)
	if err != nil {
		return "", err
	}
	o.depth.MarkChild(workflowID)

	exec := &store.SubAgentExecution{
		ID: uuid.NewString(), ParentWorkflowID: parentWorkflowID, ChildWorkflowID: workflowID,
		Mode: store.SubAgentSpawn, Status: store.WorkflowRunning, StartedAt: time.Now(),
	}
	if err := o.store.RecordSubAgentExecution(ctx, exec); err != nil {
		return "", err
	}
	o.bus.Publish(parentWorkflowID, stream.EventSubAgentStart, map[string]any{
		"child_workflow_id": workflowID, "mode": string(store.SubAgentSpawn),
	})

	go func() {
		runCtx := context.Background()
		var output string
		runErr := o.executor.Run(runCtx, parentWorkflowID, subagent.Spawn, func(childCtx context.Context) error {
			out, err := ag.Run(childCtx, workflowID, spec.Goal)
			output = out
			return err
		})
		o.engine.Finish(runCtx, workflowID, output, runErr)
		o.finishSubAgentExecution(runCtx, parentWorkflowID, exec.ID, workflowID, runErr)
	}()

	return workflowID, nil
}

// Delegate runs spec to completion and blocks for the result, so the
// caller's own retry budget is spent here rather than deferred.
func (o *Orchestrator) Delegate(ctx context.Context, parentWorkflowID string, spec subagent.ChildSpec) (subagent.ChildResult, error) {
	if o.depth.IsChild(parentWorkflowID) {
		return subagent.ChildResult{}, apperrors.PermissionDenied("sub-agents may not themselves spawn or delegate: hierarchy is single-level")
	}
	return o.runChild(ctx, parentWorkflowID, spec, subagent.Delegate, store.SubAgentDelegate)
}

// Parallel runs every spec as a concurrent child, each through its own
// Delegate-shaped retry/breaker wrapper, and waits for all of them.
// The MaxConcurrentChildren cap is enforced per-parent by the shared
// Executor's slot accounting, which does not wait for a free slot: a
// child started while the cap is reached gets a CapacityReached error
// in its result. paralleltaskstool rejects batches larger than the cap
// before calling in.
func (o *Orchestrator) Parallel(ctx context.Context, parentWorkflowID string, specs []subagent.ChildSpec) ([]subagent.ChildResult, error) {
	if o.depth.IsChild(parentWorkflowID) {
		return nil, apperrors.PermissionDenied("sub-agents may not themselves spawn or delegate: hierarchy is single-level")
	}

	type outcome struct {
		idx    int
		result subagent.ChildResult
	}
	results := make(chan outcome, len(specs))

	for i, spec := range specs {
		go func(i int, spec subagent.ChildSpec) {
			result, _ := o.delegateNoDepthCheck(ctx, parentWorkflowID, spec)
			results <- outcome{idx: i, result: result}
		}(i, spec)
	}

	out := make([]subagent.ChildResult, len(specs))
	for range specs {
		o := <-results
		out[o.idx] = o.result
	}
	return out, nil
}

// delegateNoDepthCheck is Delegate's body without the hierarchy check,
// which Parallel already performed once for the whole batch.
func (o *Orchestrator) delegateNoDepthCheck(ctx context.Context, parentWorkflowID string, spec subagent.ChildSpec) (subagent.ChildResult, error) {
	return o.runChild(ctx, parentWorkflowID, spec, subagent.Parallel, store.SubAgentParallel)
}

// runChild starts spec's workflow, records its sub_agent_executions
// row, and runs it to completion through the retry/breaker executor,
// publishing the Pending→Running and terminal lifecycle events on the
// parent's stream. Shared by Delegate and Parallel's per-task legs,
// which differ only in the executor Mode and persisted SubAgentMode.
func (o *Orchestrator) runChild(ctx context.Context, parentWorkflowID string, spec subagent.ChildSpec, mode subagent.Mode, storeMode store.SubAgentMode) (subagent.ChildResult, error) {
	workflowID, ag, err := o.engine.Start(ctx, spec.AgentID, spec.Goal)
	if err != nil {
		return subagent.ChildResult{Err: err}, err
	}
	o.depth.MarkChild(workflowID)

	exec := &store.SubAgentExecution{
		ID: uuid.NewString(), ParentWorkflowID: parentWorkflowID, ChildWorkflowID: workflowID,
		Mode: storeMode, Status: store.WorkflowRunning, StartedAt: time.Now(),
	}
	if err := o.store.RecordSubAgentExecution(ctx, exec); err != nil {
		return subagent.ChildResult{Err: err}, err
	}
	o.bus.Publish(parentWorkflowID, stream.EventSubAgentStart, map[string]any{
		"child_workflow_id": workflowID, "mode": string(storeMode),
	})

	var output string
	runErr := o.executor.Run(ctx, parentWorkflowID, mode, func(childCtx context.Context) error {
		out, err := ag.Run(childCtx, workflowID, spec.Goal)
		output = out
		return err
	})
	o.engine.Finish(ctx, workflowID, output, runErr)
	o.finishSubAgentExecution(ctx, parentWorkflowID, exec.ID, workflowID, runErr)

	return subagent.ChildResult{WorkflowID: workflowID, Output: output, Err: runErr}, runErr
}

// finishSubAgentExecution moves a recorded execution to its terminal
// status and publishes the matching done/error event on the parent's
// stream, mirroring the status->event mapping workflow.Engine.finish
// uses for top-level workflows.
func (o *Orchestrator) finishSubAgentExecution(ctx context.Context, parentWorkflowID, execID, childWorkflowID string, runErr error) {
	status := store.WorkflowCompleted
	errMsg := ""
	evtType := stream.EventSubAgentDone
	if runErr != nil {
		errMsg = runErr.Error()
		evtType = stream.EventSubAgentError
		if apperrors.KindOf(runErr) == apperrors.KindCancelled {
			status = store.WorkflowCancelled
		} else {
			status = store.WorkflowFailed
		}
	}
	if err := o.store.UpdateSubAgentExecutionStatus(ctx, execID, status, errMsg); err != nil {
		slog.Error("failed to persist sub-agent execution status", "execution_id", execID, "error", err)
	}
	o.bus.Publish(parentWorkflowID, evtType, map[string]any{
		"child_workflow_id": childWorkflowID, "status": string(status), "error": errMsg,
	})
}
