package workflow_test

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/kestrelrun/conductor/pkg/agent"
	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/background"
	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
	"github.com/kestrelrun/conductor/pkg/validation"
	"github.com/kestrelrun/conductor/pkg/workflow"
)

type fakeLLM struct {
	text  string
	delay time.Duration
}

func (f *fakeLLM) Name() string             { return "fake" }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderUnknown }
func (f *fakeLLM) Close() error             { return nil }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.Request, streamed bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
		yield(&model.Response{
			Content: &model.Content{Role: model.RoleAgent, Parts: []model.Part{model.TextPart{Text: f.text}}},
		}, nil)
	}
}

func newEngine(t *testing.T, mode validation.Mode, delay time.Duration) (*store.Store, *workflow.Engine) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := stream.NewBus()
	gate := validation.New(mode, st)
	bg := background.NewManager(mode)
	dispatcher := tool.NewDispatcher(gate, subagent.DefaultRetryConfig())

	factory := func(agentID string) (*agent.Agent, error) {
		return agent.New(agent.Config{ID: agentID, MaxIterations: 5}, &fakeLLM{text: "ok", delay: delay}, tool.NewRegistry(), nil, dispatcher, st, bus, nil), nil
	}

	return st, workflow.NewEngine(st, bus, bg, factory)
}

func TestEngine_ExecuteCompletesAndPersists(t *testing.T) {
	st, eng := newEngine(t, validation.ModeAuto, 0)

	workflowID, output, err := eng.Execute(context.Background(), "agent-a", "hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if output != "ok" {
		t.Fatalf("want output %q, got %q", "ok", output)
	}

	wf, err := st.GetWorkflow(context.Background(), workflowID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.Status != store.WorkflowCompleted {
		t.Fatalf("want completed, got %s", wf.Status)
	}

	messages, err := st.ListMessages(context.Background(), workflowID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) == 0 {
		t.Fatal("want at least the user message persisted")
	}
}

func TestEngine_ExecuteParallelReturnsPerSlotResults(t *testing.T) {
	_, eng := newEngine(t, validation.ModeAuto, 0)

	ids, errs := eng.ExecuteParallel(context.Background(), []string{"a", "b", "c"}, "go")
	if len(ids) != 3 || len(errs) != 3 {
		t.Fatalf("want 3 ids and 3 errs, got %d/%d", len(ids), len(errs))
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("slot %d: unexpected error %v", i, err)
		}
		if ids[i] == "" {
			t.Fatalf("slot %d: empty workflow id", i)
		}
	}
}

func TestEngine_ExecuteStreamingRespectsConcurrencyCap(t *testing.T) {
	// Manual/selective modes cap background concurrency at 1.
	_, eng := newEngine(t, validation.ModeManual, 200*time.Millisecond)

	if _, err := eng.ExecuteStreaming(context.Background(), "agent-a", "go"); err != nil {
		t.Fatalf("first ExecuteStreaming: %v", err)
	}
	_, err := eng.ExecuteStreaming(context.Background(), "agent-b", "go")
	if apperrors.KindOf(err) != apperrors.KindCapacityReached {
		t.Fatalf("want KindCapacityReached for a 2nd concurrent background workflow in manual mode, got %v", err)
	}
}

func TestEngine_CancelStreamingMarksCancelled(t *testing.T) {
	st, eng := newEngine(t, validation.ModeAuto, 500*time.Millisecond)

	workflowID, err := eng.ExecuteStreaming(context.Background(), "agent-a", "go")
	if err != nil {
		t.Fatalf("ExecuteStreaming: %v", err)
	}

	if err := eng.CancelStreaming(context.Background(), workflowID); err != nil {
		t.Fatalf("CancelStreaming: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		wf, err := st.GetWorkflow(context.Background(), workflowID)
		if err != nil {
			t.Fatalf("GetWorkflow: %v", err)
		}
		if wf.Status == store.WorkflowCancelled {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("workflow never reached cancelled status, last status %s", wf.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
