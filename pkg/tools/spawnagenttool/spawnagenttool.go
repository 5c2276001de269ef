// Package spawnagenttool implements the built-in "spawn_agent" tool:
// fire off a sub-agent as an independent background workflow and
// return its workflow id immediately, without waiting for it to
// finish.
package spawnagenttool

import (
	"context"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
)

type Args struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=ID of the agent configuration to run as the sub-agent"`
	Goal    string `json:"goal" jsonschema:"required,description=Goal to give the spawned sub-agent"`
}

type Tool struct {
	coordinator subagent.Coordinator
	schema      map[string]any
}

func New(coordinator subagent.Coordinator) *Tool {
	return &Tool{coordinator: coordinator, schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string          { return "spawn_agent" }
func (t *Tool) Description() string   { return "Spawn a sub-agent as an independent background workflow and return immediately." }
func (t *Tool) IsLongRunning() bool    { return true }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "high" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, raw map[string]any) (map[string]any, error) {
	if !ctx.IsPrimary() {
		return nil, apperrors.PermissionDenied("a sub-agent may not itself spawn another agent: hierarchy is single-level")
	}

	agentID, _ := raw["agent_id"].(string)
	goal, _ := raw["goal"].(string)
	if agentID == "" || goal == "" {
		return nil, apperrors.Validation("agent_id and goal are required")
	}

	childID, err := t.coordinator.Spawn(context.Background(), ctx.WorkflowID(), subagent.ChildSpec{AgentID: agentID, Goal: goal})
	if err != nil {
		return nil, err
	}
	return map[string]any{"child_workflow_id": childID}, nil
}

var _ tool.CallableTool = (*Tool)(nil)
