// Package todotool implements the built-in "todo" tool: an agent can
// add tasks to its plan, mark them complete, and list the current
// plan. Enforces the invariant that a task cannot start until every
// task it depends on has completed.
package todotool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/tool"
)

type Args struct {
	Action    string   `json:"action" jsonschema:"enum=add,enum=start,enum=complete,enum=list,description=Operation to perform on the task list"`
	Title     string   `json:"title,omitempty" jsonschema:"description=Task title, required for add"`
	TaskID    string   `json:"task_id,omitempty" jsonschema:"description=Task id, required for start/complete"`
	DependsOn []string `json:"depends_on,omitempty" jsonschema:"description=IDs of tasks that must complete before this one may start"`
}

type Tool struct {
	store  *store.Store
	schema map[string]any
}

func New(st *store.Store) *Tool {
	return &Tool{store: st, schema: tool.SchemaOf[Args]()}
}

func (t *Tool) Name() string          { return "todo" }
func (t *Tool) Description() string   { return "Manage a task plan: add tasks, start them, mark them complete, or list the current plan." }
func (t *Tool) IsLongRunning() bool    { return false }
func (t *Tool) RequiresApproval() bool { return false }
func (t *Tool) RiskLevel() string      { return "low" }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Call(ctx tool.Context, raw map[string]any) (map[string]any, error) {
	args := parseArgs(raw)
	c := context.Background()
	now := time.Now()

	switch args.Action {
	case "add":
		if args.Title == "" {
			return nil, apperrors.Validation("title is required to add a task")
		}
		task := &store.Task{
			ID: uuid.NewString(), WorkflowID: ctx.WorkflowID(), Title: args.Title,
			Status: store.TaskPending, DependsOn: args.DependsOn, CreatedAt: now, UpdatedAt: now,
		}
		if err := t.store.UpsertTask(c, task); err != nil {
			return nil, err
		}
		return map[string]any{"task_id": task.ID}, nil

	case "start":
		return t.transition(c, ctx.WorkflowID(), args.TaskID, store.TaskRunning)

	case "complete":
		return t.transition(c, ctx.WorkflowID(), args.TaskID, store.TaskCompleted)

	case "list":
		tasks, err := t.store.ListTasks(c, ctx.WorkflowID())
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, map[string]any{
				"id": task.ID, "title": task.Title, "status": task.Status, "depends_on": task.DependsOn,
			})
		}
		return map[string]any{"tasks": out}, nil

	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown todo action %q", args.Action))
	}
}

// transition moves a task to status, enforcing that all of its
// dependencies have completed before it may start.
func (t *Tool) transition(ctx context.Context, workflowID, taskID string, status store.TaskStatus) (map[string]any, error) {
	if taskID == "" {
		return nil, apperrors.Validation("task_id is required")
	}
	tasks, err := t.store.ListTasks(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	target, ok := byID[taskID]
	if !ok {
		return nil, apperrors.NotFound("task " + taskID)
	}

	if status == store.TaskRunning {
		for _, depID := range target.DependsOn {
			dep, ok := byID[depID]
			if !ok || dep.Status != store.TaskCompleted {
				target.Status = store.TaskBlocked
				if err := t.store.UpsertTask(ctx, target); err != nil {
					return nil, err
				}
				return nil, apperrors.Conflict(fmt.Sprintf("task %s is blocked on incomplete dependency %s", taskID, depID))
			}
		}
	}

	target.Status = status
	target.UpdatedAt = time.Now()
	if err := t.store.UpsertTask(ctx, target); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": taskID, "status": status}, nil
}

func parseArgs(raw map[string]any) *Args {
	args := &Args{}
	if v, ok := raw["action"].(string); ok {
		args.Action = v
	}
	if v, ok := raw["title"].(string); ok {
		args.Title = v
	}
	if v, ok := raw["task_id"].(string); ok {
		args.TaskID = v
	}
	if v, ok := raw["depends_on"].([]any); ok {
		for _, item := range v {
			if s, ok := item.(string); ok {
				args.DependsOn = append(args.DependsOn, s)
			}
		}
	}
	return args
}

var _ tool.CallableTool = (*Tool)(nil)
