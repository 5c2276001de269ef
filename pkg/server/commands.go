package server

import (
	"encoding/json"
	"net/http"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

// commandHandler implements one entry of the command table: it
// reads what it needs out of params and returns either a JSON-encodable
// result or a typed error the command boundary maps to a status code.
type commandHandler func(r *http.Request, params map[string]any) (any, error)

// commandRequest is the wire shape of a single POST /command call —
// one command name plus its inputs, following a
// request/reply JSON-RPC bodies without the JSON-RPC envelope, since
// this surface has no cross-agent interop requirement.
type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

func (s *HTTPServer) commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		"create_workflow":             s.cmdCreateWorkflow,
		"execute_workflow":            s.cmdExecuteWorkflow,
		"execute_workflow_streaming":  s.cmdExecuteWorkflowStreaming,
		"cancel_workflow_streaming":   s.cmdCancelWorkflowStreaming,
		"load_workflows":              s.cmdLoadWorkflows,
		"delete_workflow":             s.cmdDeleteWorkflow,
		"load_workflow_full_state":    s.cmdLoadWorkflowFullState,

		"create_task":            s.cmdCreateTask,
		"get_task":                s.cmdGetTask,
		"update_task":             s.cmdUpdateTask,
		"update_task_status":      s.cmdUpdateTaskStatus,
		"complete_task":           s.cmdCompleteTask,
		"delete_task":             s.cmdDeleteTask,
		"list_workflow_tasks":     s.cmdListWorkflowTasks,
		"list_tasks_by_status":    s.cmdListTasksByStatus,

		"list_mcp_servers":        s.cmdListMCPServers,
		"get_mcp_server":          s.cmdGetMCPServer,
		"create_mcp_server":       s.cmdCreateMCPServer,
		"update_mcp_server":       s.cmdCreateMCPServer, // same upsert semantics
		"delete_mcp_server":       s.cmdDeleteMCPServer,
		"start_mcp_server":        s.cmdStartMCPServer,
		"stop_mcp_server":         s.cmdStopMCPServer,
		"test_mcp_server":         s.cmdTestMCPServer,
		"list_mcp_tools":          s.cmdListMCPTools,
		"call_mcp_tool":           s.cmdCallMCPTool,
		"get_mcp_latency_metrics": s.cmdGetMCPLatencyMetrics,

		"approve_validation":        s.cmdApproveValidation,
		"reject_validation":         s.cmdRejectValidation,
		"list_pending_validations":  s.cmdListPendingValidations,

		"add_memory":    s.cmdAddMemory,
		"search_memory": s.cmdSearchMemory,
	}
}

// handleCommand is the single entry point for the async request/reply
// command table. It is deliberately one endpoint rather than one route
// per command: the UI-facing contract is the command name, not the
// URL, matching how a desktop shell bridges a local JSON channel to
// this surface.
func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("malformed command body: "+err.Error()))
		return
	}

	handler, ok := s.commandTable()[req.Command]
	if !ok {
		writeError(w, apperrors.Validation("unknown command: "+req.Command))
		return
	}

	result, err := handler(r, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

func intParam(params map[string]any, key string) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return 0
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
