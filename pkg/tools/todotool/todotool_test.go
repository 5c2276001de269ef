package todotool_test

import (
	"testing"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/tools/todotool"
)

type fakeCtx struct{ workflowID string }

func (f fakeCtx) WorkflowID() string     { return f.workflowID }
func (f fakeCtx) AgentID() string        { return "agent-a" }
func (f fakeCtx) FunctionCallID() string { return "call-1" }
func (f fakeCtx) IsPrimary() bool        { return true }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTodo_StartBlocksOnIncompleteDependency(t *testing.T) {
	st := openStore(t)
	tl := todotool.New(st)
	ctx := fakeCtx{workflowID: "wf-1"}

	addDep, err := tl.Call(ctx, map[string]any{"action": "add", "title": "step 1"})
	if err != nil {
		t.Fatalf("add dep: %v", err)
	}
	depID := addDep["task_id"].(string)

	addMain, err := tl.Call(ctx, map[string]any{"action": "add", "title": "step 2", "depends_on": []any{depID}})
	if err != nil {
		t.Fatalf("add main: %v", err)
	}
	taskID := addMain["task_id"].(string)

	_, err = tl.Call(ctx, map[string]any{"action": "start", "task_id": taskID})
	if apperrors.KindOf(err) != apperrors.KindConflict {
		t.Fatalf("want KindConflict starting a task with an incomplete dependency, got %v", err)
	}

	if _, err := tl.Call(ctx, map[string]any{"action": "complete", "task_id": depID}); err != nil {
		t.Fatalf("complete dep: %v", err)
	}
	if _, err := tl.Call(ctx, map[string]any{"action": "start", "task_id": taskID}); err != nil {
		t.Fatalf("want start to succeed once the dependency is complete, got %v", err)
	}
}

func TestTodo_CompleteIsIdempotent(t *testing.T) {
	st := openStore(t)
	tl := todotool.New(st)
	ctx := fakeCtx{workflowID: "wf-2"}

	added, err := tl.Call(ctx, map[string]any{"action": "add", "title": "only task"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	taskID := added["task_id"].(string)

	if _, err := tl.Call(ctx, map[string]any{"action": "complete", "task_id": taskID}); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := tl.Call(ctx, map[string]any{"action": "complete", "task_id": taskID}); err != nil {
		t.Fatalf("second complete should be a no-op, got error: %v", err)
	}

	out, err := tl.Call(ctx, map[string]any{"action": "list"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	tasks := out["tasks"].([]map[string]any)
	if len(tasks) != 1 || tasks[0]["status"] != store.TaskCompleted {
		t.Fatalf("want one completed task, got %v", tasks)
	}
}

func TestTodo_UnknownTaskIsNotFound(t *testing.T) {
	st := openStore(t)
	tl := todotool.New(st)
	ctx := fakeCtx{workflowID: "wf-3"}

	_, err := tl.Call(ctx, map[string]any{"action": "start", "task_id": "nope"})
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("want KindNotFound for an unknown task id, got %v", err)
	}
}
