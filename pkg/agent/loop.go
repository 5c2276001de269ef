package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/tool"
)

// runOneStep executes one iteration of the loop: build history from
// the store, call the model, persist whatever it produced, and
// dispatch any tool calls it requested — mirroring the
// preprocess -> LLM -> postprocess -> tools shape of a
// Flow.runOneStep, minus the request-processor pipeline and session
// event machinery this runtime doesn't use.
func (a *Agent) runOneStep(ctx context.Context, workflowID string) (*model.Response, error) {
	messages, err := a.buildHistory(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		Messages:          messages,
		Tools:             a.toolDefinitions(),
		Config:            a.cfg.GenerateConfig,
		SystemInstruction: a.cfg.SystemInstruction,
	}

	var final *model.Response
	for resp, err := range a.llm.GenerateContent(ctx, req, true) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.Cancelled("workflow " + workflowID + " cancelled during model call")
			}
			return nil, apperrors.Wrap(apperrors.KindUnavailable, "model call failed", err)
		}
		if resp.Partial {
			a.publishPartial(workflowID, resp)
			continue
		}
		final = resp
	}
	if final == nil {
		if ctx.Err() != nil {
			return nil, apperrors.Cancelled("workflow " + workflowID + " cancelled during model call")
		}
		return nil, apperrors.New(apperrors.KindInternal, "model returned no final response")
	}

	if err := a.persistResponse(ctx, workflowID, final); err != nil {
		return nil, err
	}

	if !final.HasToolCalls() {
		return final, nil
	}

	if err := a.handleToolCalls(ctx, workflowID, final.ToolCalls); err != nil {
		return nil, err
	}

	return final, nil
}

func (a *Agent) toolDefinitions() []tool.Definition {
	visible := a.tools.Visible(a.predicate)
	defs := make([]tool.Definition, 0, len(visible))
	for _, t := range visible {
		defs = append(defs, tool.ToDefinition(t))
	}
	return defs
}

func (a *Agent) publishPartial(workflowID string, resp *model.Response) {
	if resp.Thinking != nil {
		a.bus.Publish(workflowID, stream.EventThinking, map[string]any{"content": resp.Thinking.Content})
		return
	}
	if text := resp.TextContent(); text != "" {
		a.bus.Publish(workflowID, stream.EventMessage, map[string]any{"role": "agent", "delta": text})
	}
}

func (a *Agent) persistResponse(ctx context.Context, workflowID string, resp *model.Response) error {
	if resp.Thinking != nil && resp.Thinking.Content != "" {
		if err := a.store.AppendThinkingStep(ctx, &store.ThinkingStep{
			WorkflowID: workflowID,
			Content:    resp.Thinking.Content,
		}); err != nil {
			return err
		}
	}

	if text := resp.TextContent(); text != "" {
		if err := a.store.AppendMessage(ctx, &store.Message{
			WorkflowID: workflowID,
			Role:       "agent",
			Content:    text,
		}); err != nil {
			return err
		}
		a.bus.Publish(workflowID, stream.EventMessage, map[string]any{"role": "agent", "content": text})
	}

	if a.counter != nil {
		if history, err := a.store.ListMessages(ctx, workflowID); err == nil {
			tokens := a.counter.Count(joinContents(history))
			_ = a.store.SetContextTokens(ctx, workflowID, tokens)
		}
	}

	if resp.Usage != nil {
		modelID := a.cfg.ModelID
		if modelID == "" {
			modelID = a.llm.Name()
		}
		if err := a.store.AddUsage(ctx, workflowID, modelID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, a.cfg.InputPricePerMTok, a.cfg.OutputPricePerMTok); err != nil {
			return err
		}
	}

	return nil
}

func joinContents(messages []*store.Message) string {
	var out string
	for _, m := range messages {
		out += m.Content + "\n"
	}
	return out
}

// handleToolCalls dispatches every tool call the model requested
// through the approval/retry/breaker chain and appends each result as
// a message so the next iteration's history includes it.
func (a *Agent) handleToolCalls(ctx context.Context, workflowID string, calls []tool.Call) error {
	for _, call := range calls {
		t, err := a.tools.Get(call.Name)
		if err != nil {
			if appendErr := a.recordToolFailure(ctx, workflowID, call, err); appendErr != nil {
				return appendErr
			}
			continue
		}

		callable, ok := t.(tool.CallableTool)
		if !ok {
			err := apperrors.New(apperrors.KindValidation, "tool "+call.Name+" does not support direct calls")
			if appendErr := a.recordToolFailure(ctx, workflowID, call, err); appendErr != nil {
				return appendErr
			}
			continue
		}

		tc := callContext{workflowID: workflowID, agentID: a.cfg.ID, callID: call.ID, isPrimary: a.isPrimaryWorkflow(workflowID)}
		if call.ID == "" {
			tc.callID = uuid.NewString()
		}

		a.bus.Publish(workflowID, stream.EventToolCallStart, map[string]any{"tool": call.Name, "call_id": tc.callID})

		exec := &store.ToolExecution{
			ID: uuid.NewString(), WorkflowID: workflowID, ToolName: call.Name, ToolCallID: tc.callID,
			RiskLevel: callable.RiskLevel(), Status: store.ToolExecRunning, StartedAt: time.Now(),
		}
		if err := a.store.RecordToolExecution(ctx, exec); err != nil {
			return err
		}

		result, err := a.dispatcher.Dispatch(ctx, callable, tc, call)

		completedAt := time.Now()
		exec = &store.ToolExecution{ID: exec.ID, WorkflowID: workflowID, ToolName: call.Name, ToolCallID: tc.callID, RiskLevel: callable.RiskLevel(), StartedAt: exec.StartedAt, CompletedAt: &completedAt}
		if err != nil {
			exec.Status = store.ToolExecFailed
			if apperrors.KindOf(err) == apperrors.KindPermission {
				exec.Status = store.ToolExecDenied
			}
			exec.Error = err.Error()
			slog.Warn("tool call failed", "tool", call.Name, "error", err)
		} else {
			exec.Status = store.ToolExecSucceeded
			exec.Result = formatResult(result)
		}
		if recErr := a.store.RecordToolExecution(ctx, exec); recErr != nil {
			return recErr
		}

		a.bus.Publish(workflowID, stream.EventToolCallResult, map[string]any{
			"tool": call.Name, "call_id": tc.callID, "status": string(exec.Status),
		})

		content := exec.Result
		if err != nil {
			content = "error: " + err.Error()
		}
		if appendErr := a.store.AppendMessage(ctx, &store.Message{
			WorkflowID: workflowID, Role: "tool", Content: call.Name + " -> " + content,
		}); appendErr != nil {
			return appendErr
		}
	}
	return nil
}

func (a *Agent) recordToolFailure(ctx context.Context, workflowID string, call tool.Call, err error) error {
	return a.store.AppendMessage(ctx, &store.Message{
		WorkflowID: workflowID, Role: "tool", Content: call.Name + " -> error: " + err.Error(),
	})
}

func formatResult(result map[string]any) string {
	if result == nil {
		return ""
	}
	if v, ok := result["output"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	b := make([]byte, 0, 64)
	for k, v := range result {
		b = append(b, []byte(k+"="+toStringAny(v)+" ")...)
	}
	return string(b)
}

func toStringAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
