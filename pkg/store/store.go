// Package store persists the runtime's relational data model in an
// embedded sqlite database, one file per data directory. It plays the
// role a checkpoint/database layer would play
// for session/vector persistence, generalized to the full workflow
// data model.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

// Store wraps a sqlite-backed *sql.DB and exposes the entity-level
// operations the rest of the runtime needs.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to the sqlite database at path and applies
// the schema. WAL mode is enabled so concurrent workflow readers don't
// block the single writer goroutine per workflow.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.KindInternal, "apply schema", err)
	}
	slog.Info("store opened", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// withTx runs fn inside a transaction, committing on success and
// rolling back on any error or panic, so multi-table writes (e.g.
// workflow counters alongside message inserts) stay atomic.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "commit transaction", err)
	}
	return nil
}

// --- workflows ---

func (s *Store) CreateWorkflow(ctx context.Context, w *Workflow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, agent_id, status, goal, created_at, updated_at, cancel_requested, current_context_tokens, model_id, total_tokens_input, total_tokens_output, total_cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, NULL, 0, 0, 0)`,
		w.ID, w.AgentID, w.Status, w.Goal, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create workflow", err)
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, status, goal, created_at, updated_at, completed_at, cancel_requested, current_context_tokens, model_id, total_tokens_input, total_tokens_output, total_cost_usd, error
		FROM workflows WHERE id = ?`, id)
	w := &Workflow{}
	var completedAt sql.NullTime
	var cancelRequested int
	var modelID, errMsg sql.NullString
	if err := row.Scan(&w.ID, &w.AgentID, &w.Status, &w.Goal, &w.CreatedAt, &w.UpdatedAt, &completedAt, &cancelRequested, &w.CurrentContextTokens, &modelID, &w.TotalTokensInput, &w.TotalTokensOutput, &w.TotalCostUSD, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("workflow " + id)
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get workflow", err)
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	w.CancelRequested = cancelRequested != 0
	w.ModelID = modelID.String
	w.Error = errMsg.String
	return w, nil
}

func (s *Store) UpdateWorkflowStatus(ctx context.Context, id string, status WorkflowStatus, errMsg string) error {
	now := time.Now()
	var completedAt any
	if status == WorkflowCompleted || status == WorkflowFailed || status == WorkflowCancelled {
		completedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at), error = ?
		WHERE id = ?`, status, now, completedAt, errMsg, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update workflow status", err)
	}
	return nil
}

func (s *Store) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET cancel_requested = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "request cancel", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("workflow " + id)
	}
	return nil
}

func (s *Store) SetContextTokens(ctx context.Context, id string, tokens int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workflows SET current_context_tokens = ?, updated_at = ? WHERE id = ?`, tokens, time.Now(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "set context tokens", err)
	}
	return nil
}

// AddUsage atomically folds one model turn's token usage into
// workflowID's running totals and recomputes its cumulative cost_usd
// from the given per-million-token rates, keeping both monotonic
// counters and the derived dollar figure consistent with each other.
func (s *Store) AddUsage(ctx context.Context, id, modelID string, promptTokens, completionTokens int, inputPricePerMTok, outputPricePerMTok float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		cost := float64(promptTokens)/1_000_000*inputPricePerMTok + float64(completionTokens)/1_000_000*outputPricePerMTok
		_, err := tx.ExecContext(ctx, `
			UPDATE workflows
			SET model_id = ?,
			    total_tokens_input = total_tokens_input + ?,
			    total_tokens_output = total_tokens_output + ?,
			    total_cost_usd = total_cost_usd + ?,
			    updated_at = ?
			WHERE id = ?`,
			modelID, promptTokens, completionTokens, cost, time.Now(), id)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "add usage", err)
		}
		return nil
	})
}

// ListWorkflows returns every workflow, most recently updated first,
// optionally filtered to the "active" (not yet terminal) or
// "completed"/"failed"/"cancelled" subset.
func (s *Store) ListWorkflows(ctx context.Context, filter string) ([]*Workflow, error) {
	query := `SELECT id, agent_id, status, goal, created_at, updated_at, completed_at, cancel_requested, current_context_tokens, model_id, total_tokens_input, total_tokens_output, total_cost_usd, error FROM workflows`
	switch filter {
	case "active":
		query += ` WHERE status IN ('pending', 'running', 'waiting_validation')`
	case "completed":
		query += ` WHERE status IN ('completed', 'failed', 'cancelled')`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list workflows", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		w := &Workflow{}
		var completedAt sql.NullTime
		var cancelRequested int
		var modelID, errMsg sql.NullString
		if err := rows.Scan(&w.ID, &w.AgentID, &w.Status, &w.Goal, &w.CreatedAt, &w.UpdatedAt, &completedAt, &cancelRequested, &w.CurrentContextTokens, &modelID, &w.TotalTokensInput, &w.TotalTokensOutput, &w.TotalCostUSD, &errMsg); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan workflow", err)
		}
		if completedAt.Valid {
			w.CompletedAt = &completedAt.Time
		}
		w.CancelRequested = cancelRequested != 0
		w.ModelID = modelID.String
		w.Error = errMsg.String
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow and its cascaded rows (messages,
// tool executions, thinking steps, tasks). force is required to
// delete a workflow that is still running.
func (s *Store) DeleteWorkflow(ctx context.Context, id string, force bool) error {
	if !force {
		wf, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return err
		}
		if wf.Status == WorkflowRunning || wf.Status == WorkflowPending || wf.Status == WorkflowWaiting {
			return apperrors.Conflict("workflow " + id + " is still active; pass force to delete anyway")
		}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete workflow", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("workflow " + id)
	}
	return nil
}

// --- messages ---

func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE workflow_id = ?`, m.WorkflowID)
		if err := row.Scan(&seq); err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "compute message seq", err)
		}
		m.Seq = seq
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, workflow_id, role, content, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.WorkflowID, m.Role, m.Content, m.Seq, m.CreatedAt)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "append message", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE workflows SET updated_at = ? WHERE id = ?`, m.CreatedAt, m.WorkflowID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "touch workflow", err)
		}
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, workflowID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, role, content, seq, created_at FROM messages WHERE workflow_id = ? ORDER BY seq`, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list messages", err)
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.WorkflowID, &m.Role, &m.Content, &m.Seq, &m.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- tool executions ---

func (s *Store) RecordToolExecution(ctx context.Context, te *ToolExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (id, workflow_id, tool_name, tool_call_id, arguments, result, status, risk_level, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET result = excluded.result, status = excluded.status, completed_at = excluded.completed_at, error = excluded.error`,
		te.ID, te.WorkflowID, te.ToolName, te.ToolCallID, te.Arguments, te.Result, te.Status, te.RiskLevel, te.StartedAt, te.CompletedAt, te.Error)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "record tool execution", err)
	}
	return nil
}

// ListToolExecutions returns every recorded tool call for workflowID
// in execution order, used to assemble load_workflow_full_state.
func (s *Store) ListToolExecutions(ctx context.Context, workflowID string) ([]*ToolExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, tool_name, tool_call_id, arguments, result, status, risk_level, started_at, completed_at, error
		FROM tool_executions WHERE workflow_id = ? ORDER BY started_at`, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list tool executions", err)
	}
	defer rows.Close()
	var out []*ToolExecution
	for rows.Next() {
		te := &ToolExecution{}
		var completedAt sql.NullTime
		var result, errMsg sql.NullString
		if err := rows.Scan(&te.ID, &te.WorkflowID, &te.ToolName, &te.ToolCallID, &te.Arguments, &result, &te.Status, &te.RiskLevel, &te.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan tool execution", err)
		}
		te.Result = result.String
		te.Error = errMsg.String
		if completedAt.Valid {
			te.CompletedAt = &completedAt.Time
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// --- thinking steps ---

func (s *Store) AppendThinkingStep(ctx context.Context, t *ThinkingStep) error {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM thinking_steps WHERE workflow_id = ?`, t.WorkflowID)
	if err := row.Scan(&t.Seq); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "compute thinking seq", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thinking_steps (id, workflow_id, content, seq, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.WorkflowID, t.Content, t.Seq, t.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "append thinking step", err)
	}
	return nil
}

// ListThinkingSteps returns every recorded thinking step for
// workflowID in emission order.
func (s *Store) ListThinkingSteps(ctx context.Context, workflowID string) ([]*ThinkingStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, content, seq, created_at FROM thinking_steps WHERE workflow_id = ? ORDER BY seq`, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list thinking steps", err)
	}
	defer rows.Close()
	var out []*ThinkingStep
	for rows.Next() {
		t := &ThinkingStep{}
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.Content, &t.Seq, &t.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan thinking step", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- sub-agent executions ---

// RecordSubAgentExecution inserts one spawn/delegate/parallel leg, or
// updates it in place if called again with the same ID (used to move
// a row from Running to its terminal status).
func (s *Store) RecordSubAgentExecution(ctx context.Context, e *SubAgentExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sub_agent_executions (id, parent_workflow_id, child_workflow_id, mode, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at, error = excluded.error`,
		e.ID, e.ParentWorkflowID, e.ChildWorkflowID, e.Mode, e.Status, e.StartedAt, e.CompletedAt, e.Error)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "record sub-agent execution", err)
	}
	return nil
}

// UpdateSubAgentExecutionStatus transitions a recorded execution to
// status, stamping completed_at once it reaches a terminal state.
func (s *Store) UpdateSubAgentExecutionStatus(ctx context.Context, id string, status WorkflowStatus, errMsg string) error {
	now := time.Now()
	var completedAt any
	if status == WorkflowCompleted || status == WorkflowFailed || status == WorkflowCancelled {
		completedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sub_agent_executions SET status = ?, completed_at = COALESCE(?, completed_at), error = ? WHERE id = ?`,
		status, completedAt, errMsg, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update sub-agent execution status", err)
	}
	return nil
}

// ListSubAgentExecutions returns every spawn/delegate/parallel leg
// recorded under parentWorkflowID, oldest first.
func (s *Store) ListSubAgentExecutions(ctx context.Context, parentWorkflowID string) ([]*SubAgentExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_workflow_id, child_workflow_id, mode, status, started_at, completed_at, error
		FROM sub_agent_executions WHERE parent_workflow_id = ? ORDER BY started_at`, parentWorkflowID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list sub-agent executions", err)
	}
	defer rows.Close()
	var out []*SubAgentExecution
	for rows.Next() {
		e := &SubAgentExecution{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.ParentWorkflowID, &e.ChildWorkflowID, &e.Mode, &e.Status, &e.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan sub-agent execution", err)
		}
		e.Error = errMsg.String
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- tasks ---

func (s *Store) UpsertTask(ctx context.Context, t *Task) error {
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "marshal depends_on", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, workflow_id, title, status, depends_on, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, status = excluded.status, depends_on = excluded.depends_on, updated_at = excluded.updated_at`,
		t.ID, t.WorkflowID, t.Title, t.Status, string(deps), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "upsert task", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, workflowID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, title, status, depends_on, created_at, updated_at FROM tasks WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list tasks", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t := &Task{}
		var deps string
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.Title, &t.Status, &deps, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan task", err)
		}
		if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal depends_on", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, title, status, depends_on, created_at, updated_at FROM tasks WHERE id = ?`, id)
	t := &Task{}
	var deps string
	if err := row.Scan(&t.ID, &t.WorkflowID, &t.Title, &t.Status, &deps, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("task " + id)
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get task", err)
	}
	if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal depends_on", err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete task", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("task " + id)
	}
	return nil
}

// ListTasksByStatus lists every task across every workflow in a given
// status — used by the command surface's "list_tasks_by_status",
// which (unlike list_workflow_tasks) is not scoped to one workflow.
func (s *Store) ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, title, status, depends_on, created_at, updated_at FROM tasks WHERE status = ?`, status)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list tasks by status", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t := &Task{}
		var deps string
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.Title, &t.Status, &deps, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan task", err)
		}
		if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "unmarshal depends_on", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- validation requests ---

func (s *Store) CreateValidationRequest(ctx context.Context, v *ValidationRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_requests (id, workflow_id, tool_call_id, tool_name, risk_level, arguments, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.WorkflowID, v.ToolCallID, v.ToolName, v.RiskLevel, v.Arguments, v.Decision, v.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create validation request", err)
	}
	return nil
}

func (s *Store) DecideValidationRequest(ctx context.Context, id string, decision ValidationDecision) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE validation_requests SET decision = ?, decided_at = ? WHERE id = ? AND decision = 'pending'`,
		decision, now, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "decide validation request", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.Conflict("validation request already decided or not found: " + id)
	}
	return nil
}

func (s *Store) GetValidationRequest(ctx context.Context, id string) (*ValidationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, tool_call_id, tool_name, risk_level, arguments, decision, created_at, decided_at
		FROM validation_requests WHERE id = ?`, id)
	v := &ValidationRequest{}
	var decidedAt sql.NullTime
	if err := row.Scan(&v.ID, &v.WorkflowID, &v.ToolCallID, &v.ToolName, &v.RiskLevel, &v.Arguments, &v.Decision, &v.CreatedAt, &decidedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("validation request " + id)
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get validation request", err)
	}
	if decidedAt.Valid {
		v.DecidedAt = &decidedAt.Time
	}
	return v, nil
}

// ListPendingValidations returns every validation request still
// awaiting a decision, across all workflows, for the approval queue
// view.
func (s *Store) ListPendingValidations(ctx context.Context) ([]*ValidationRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, tool_call_id, tool_name, risk_level, arguments, decision, created_at, decided_at
		FROM validation_requests WHERE decision = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list pending validations", err)
	}
	defer rows.Close()
	var out []*ValidationRequest
	for rows.Next() {
		v := &ValidationRequest{}
		var decidedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.ToolCallID, &v.ToolName, &v.RiskLevel, &v.Arguments, &v.Decision, &v.CreatedAt, &decidedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan validation request", err)
		}
		if decidedAt.Valid {
			v.DecidedAt = &decidedAt.Time
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- MCP ---

func (s *Store) UpsertMCPServer(ctx context.Context, rec *MCPServerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (id, name, transport, endpoint, status, last_probe_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET transport = excluded.transport, endpoint = excluded.endpoint, status = excluded.status, last_probe_at = excluded.last_probe_at`,
		rec.ID, rec.Name, rec.Transport, rec.Endpoint, rec.Status, rec.LastProbeAt, rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "upsert mcp server", err)
	}
	return nil
}

func (s *Store) ListMCPServers(ctx context.Context) ([]*MCPServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, transport, endpoint, status, last_probe_at, created_at FROM mcp_servers ORDER BY name`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list mcp servers", err)
	}
	defer rows.Close()
	var out []*MCPServerRecord
	for rows.Next() {
		rec := &MCPServerRecord{}
		var lastProbe sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Transport, &rec.Endpoint, &rec.Status, &lastProbe, &rec.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scan mcp server", err)
		}
		if lastProbe.Valid {
			rec.LastProbeAt = &lastProbe.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetMCPServerByName(ctx context.Context, name string) (*MCPServerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, transport, endpoint, status, last_probe_at, created_at FROM mcp_servers WHERE name = ?`, name)
	rec := &MCPServerRecord{}
	var lastProbe sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Transport, &rec.Endpoint, &rec.Status, &lastProbe, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("mcp server " + name)
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get mcp server", err)
	}
	if lastProbe.Valid {
		rec.LastProbeAt = &lastProbe.Time
	}
	return rec, nil
}

func (s *Store) DeleteMCPServer(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE name = ?`, name)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete mcp server", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("mcp server " + name)
	}
	return nil
}

func (s *Store) LogMCPCall(ctx context.Context, e *MCPCallLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_call_log (id, server_id, tool_name, latency_ms, status, error, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ServerID, e.ToolName, e.LatencyMS, e.Status, e.Error, e.CalledAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "log mcp call", err)
	}
	return nil
}
