// Package delegatetasktool implements the built-in "delegate_task"
// tool: run a sub-agent synchronously and return its result inline,
// unlike spawn_agent's fire-and-forget semantics.
package delegatetasktool

import (
	"context"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
)

type Args struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=ID of the agent configuration to delegate to"`
	Goal    string `json:"goal" jsonschema:"required,description=Goal to give the delegated sub-agent"`
}

type Tool struct {
	coordinator subagent.Coordinator
	schema      map[string]any
}

func New(coordinator subagent.Coordinator) *Tool {
	return &Tool{coordinator: coordinator, schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string          { return "delegate_task" }
func (t *Tool) Description() string   { return "Delegate a goal to a sub-agent and wait for its result." }
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "medium" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, raw map[string]any) (map[string]any, error) {
	if !ctx.IsPrimary() {
		return nil, apperrors.PermissionDenied("a sub-agent may not itself delegate to another agent: hierarchy is single-level")
	}

	agentID, _ := raw["agent_id"].(string)
	goal, _ := raw["goal"].(string)
	if agentID == "" || goal == "" {
		return nil, apperrors.Validation("agent_id and goal are required")
	}

	result, err := t.coordinator.Delegate(context.Background(), ctx.WorkflowID(), subagent.ChildSpec{AgentID: agentID, Goal: goal})
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "delegated task failed", result.Err)
	}
	return map[string]any{"child_workflow_id": result.WorkflowID, "output": result.Output}, nil
}

var _ tool.CallableTool = (*Tool)(nil)
