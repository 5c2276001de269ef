// Package paralleltaskstool implements the built-in "parallel_tasks"
// tool: fan a goal out across multiple sub-agents concurrently
// (bounded by subagent.MaxConcurrentChildren) and return every
// result once all have finished.
package paralleltaskstool

import (
	"context"
	"strings"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
)

type TaskSpec struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=ID of the agent configuration to run this task"`
	Goal    string `json:"goal" jsonschema:"required,description=Goal for this task"`
}

type Args struct {
	Tasks []TaskSpec `json:"tasks" jsonschema:"required,description=Up to three tasks to run concurrently as sub-agents"`
}

type Tool struct {
	coordinator subagent.Coordinator
	schema      map[string]any
}

func New(coordinator subagent.Coordinator) *Tool {
	return &Tool{coordinator: coordinator, schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string          { return "parallel_tasks" }
func (t *Tool) Description() string   { return "Run up to three sub-agent tasks concurrently and collect all their results." }
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "high" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, raw map[string]any) (map[string]any, error) {
	if !ctx.IsPrimary() {
		return nil, apperrors.PermissionDenied("a sub-agent may not itself fan out parallel tasks: hierarchy is single-level")
	}

	specs, err := parseTasks(raw)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, apperrors.Validation("at least one task is required")
	}
	if len(specs) > subagent.MaxConcurrentChildren {
		return nil, apperrors.Validation("at most 3 parallel tasks are allowed per call")
	}

	results, err := t.coordinator.Parallel(context.Background(), ctx.WorkflowID(), specs)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(results))
	reports := make([]string, 0, len(results))
	for _, r := range results {
		entry := map[string]any{"child_workflow_id": r.WorkflowID, "output": r.Output}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		} else if r.Output != "" {
			reports = append(reports, r.Output)
		}
		out = append(out, entry)
	}
	return map[string]any{
		"results":           out,
		"aggregated_report": strings.Join(reports, "\n\n---\n\n"),
	}, nil
}

func parseTasks(raw map[string]any) ([]subagent.ChildSpec, error) {
	rawTasks, ok := raw["tasks"].([]any)
	if !ok {
		return nil, apperrors.Validation("tasks must be a list")
	}
	specs := make([]subagent.ChildSpec, 0, len(rawTasks))
	for _, item := range rawTasks {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		agentID, _ := m["agent_id"].(string)
		goal, _ := m["goal"].(string)
		if agentID == "" || goal == "" {
			return nil, apperrors.Validation("each task requires agent_id and goal")
		}
		specs = append(specs, subagent.ChildSpec{AgentID: agentID, Goal: goal})
	}
	return specs, nil
}

var _ tool.CallableTool = (*Tool)(nil)
