package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
)

func (s *HTTPServer) cmdCreateTask(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	workflowID := stringParam(params, "workflow_id")
	title := stringParam(params, "title")
	if workflowID == "" || title == "" {
		return nil, apperrors.Validation("workflow_id and title are required")
	}
	now := time.Now()
	t := &store.Task{
		ID: uuid.NewString(), WorkflowID: workflowID, Title: title,
		Status: store.TaskPending, DependsOn: stringSliceParam(params, "depends_on"),
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.UpsertTask(r.Context(), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *HTTPServer) cmdGetTask(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	return s.store.GetTask(r.Context(), id)
}

func (s *HTTPServer) cmdUpdateTask(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if title := stringParam(params, "title"); title != "" {
		t.Title = title
	}
	if deps := stringSliceParam(params, "depends_on"); deps != nil {
		t.DependsOn = deps
	}
	t.UpdatedAt = time.Now()
	if err := s.store.UpsertTask(r.Context(), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *HTTPServer) setTaskStatus(r *http.Request, id string, status store.TaskStatus) (any, error) {
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		return nil, err
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	if err := s.store.UpsertTask(r.Context(), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *HTTPServer) cmdUpdateTaskStatus(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	status := stringParam(params, "status")
	if id == "" || status == "" {
		return nil, apperrors.Validation("id and status are required")
	}
	return s.setTaskStatus(r, id, store.TaskStatus(status))
}

func (s *HTTPServer) cmdCompleteTask(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	return s.setTaskStatus(r, id, store.TaskCompleted)
}

func (s *HTTPServer) cmdDeleteTask(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	id := stringParam(params, "id")
	if id == "" {
		return nil, apperrors.Validation("id is required")
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdListWorkflowTasks(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	workflowID := stringParam(params, "workflow_id")
	if workflowID == "" {
		return nil, apperrors.Validation("workflow_id is required")
	}
	return s.store.ListTasks(r.Context(), workflowID)
}

func (s *HTTPServer) cmdListTasksByStatus(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	status := stringParam(params, "status")
	if status == "" {
		return nil, apperrors.Validation("status is required")
	}
	return s.store.ListTasksByStatus(r.Context(), store.TaskStatus(status))
}
