package server

import (
	"net/http"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

func (s *HTTPServer) requireEngine() error {
	if s.engine == nil {
		return apperrors.New(apperrors.KindUnavailable, "workflow engine not wired")
	}
	return nil
}

func (s *HTTPServer) requireStore() error {
	if s.store == nil {
		return apperrors.New(apperrors.KindUnavailable, "store not wired")
	}
	return nil
}

// cmdCreateWorkflow pre-creates a workflow row for agent_id without
// running it, returning its id — the same Start step pkg/orchestrator
// uses to hand a child its id before deciding whether to run it.
func (s *HTTPServer) cmdCreateWorkflow(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireEngine(); err != nil {
		return nil, err
	}
	agentID := stringParam(params, "agent_id")
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}
	name := stringParam(params, "name")
	workflowID, _, err := s.engine.Start(r.Context(), agentID, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflow_id": workflowID}, nil
}

// cmdExecuteWorkflow runs agent_id against message to completion and
// returns the final output. The workflow_id param (if supplied by a
// prior create_workflow call) is informational only: this runtime's
// engine always mints a fresh workflow id for a run, so the id
// returned in the result is authoritative.
func (s *HTTPServer) cmdExecuteWorkflow(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireEngine(); err != nil {
		return nil, err
	}
	agentID := stringParam(params, "agent_id")
	message := stringParam(params, "message")
	if agentID == "" || message == "" {
		return nil, apperrors.Validation("agent_id and message are required")
	}
	workflowID, output, err := s.engine.Execute(r.Context(), agentID, message)
	if err != nil {
		return map[string]any{"workflow_id": workflowID, "status": "failed", "error": err.Error()}, nil
	}
	return map[string]any{"workflow_id": workflowID, "status": "completed", "output": output}, nil
}

// cmdExecuteWorkflowStreaming starts the run as a tracked background
// execution and returns immediately; the caller is expected to
// subscribe to /workflows/{id}/stream for progress and the terminal
// done or error event.
func (s *HTTPServer) cmdExecuteWorkflowStreaming(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireEngine(); err != nil {
		return nil, err
	}
	agentID := stringParam(params, "agent_id")
	message := stringParam(params, "message")
	if agentID == "" || message == "" {
		return nil, apperrors.Validation("agent_id and message are required")
	}
	workflowID, err := s.engine.ExecuteStreaming(r.Context(), agentID, message)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflow_id": workflowID}, nil
}

func (s *HTTPServer) cmdCancelWorkflowStreaming(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireEngine(); err != nil {
		return nil, err
	}
	workflowID := stringParam(params, "workflow_id")
	if workflowID == "" {
		return nil, apperrors.Validation("workflow_id is required")
	}
	if err := s.engine.CancelStreaming(r.Context(), workflowID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdLoadWorkflows(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	filter := stringParam(params, "filter")
	workflows, err := s.store.ListWorkflows(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	return workflows, nil
}

func (s *HTTPServer) cmdDeleteWorkflow(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	if err := s.store.DeleteWorkflow(r.Context(), id, boolParam(params, "force")); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdLoadWorkflowFullState(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	workflowID := stringParam(params, "workflow_id")
	if workflowID == "" {
		return nil, apperrors.Validation("workflow_id is required")
	}
	wf, err := s.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(r.Context(), workflowID)
	if err != nil {
		return nil, err
	}
	toolExecutions, err := s.store.ListToolExecutions(r.Context(), workflowID)
	if err != nil {
		return nil, err
	}
	thinkingSteps, err := s.store.ListThinkingSteps(r.Context(), workflowID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"workflow":        wf,
		"messages":        messages,
		"tool_executions": toolExecutions,
		"thinking_steps":  thinkingSteps,
	}, nil
}
