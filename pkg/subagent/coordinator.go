package subagent

import "context"

// ChildSpec describes one child workflow to run under a parent.
type ChildSpec struct {
	AgentID string
	Goal    string
}

// ChildResult is a completed child workflow's outcome.
type ChildResult struct {
	WorkflowID string
	Output     string
	Err        error
}

// Coordinator is implemented by pkg/orchestrator and consumed by the
// spawn/delegate/parallel tools, keeping those tool packages from
// importing the orchestrator package directly (which would otherwise
// import them back to register the tools — an import cycle).
type Coordinator interface {
	// Spawn starts spec as a fire-and-forget child of parentWorkflowID
	// and returns its workflow id immediately, without waiting for it
	// to finish.
	Spawn(ctx context.Context, parentWorkflowID string, spec ChildSpec) (childWorkflowID string, err error)

	// Delegate runs spec as a child of parentWorkflowID and blocks
	// until it completes, returning its final output.
	Delegate(ctx context.Context, parentWorkflowID string, spec ChildSpec) (ChildResult, error)

	// Parallel runs every spec as a concurrent child of
	// parentWorkflowID (bounded by MaxConcurrentChildren) and blocks
	// until all have completed.
	Parallel(ctx context.Context, parentWorkflowID string, specs []ChildSpec) ([]ChildResult, error)
}
