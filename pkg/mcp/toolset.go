package mcp

import (
	"context"
	"encoding/json"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/tool"
)

// Toolset exposes one registered server's tools as tool.Tool, so an
// agent's registry can carry MCP-backed tools the same way it carries
// local ones. Grounded directly on a
// pkg/tool/mcptoolset.Toolset, but built on top of this runtime's own
// Registry (lifecycle, circuit breaker, latency tracking, audit log)
// instead of re-dialing the server itself — Tools() is a thin
// ListTools call, and each wrapper's Call defers to Registry.CallTool.
type Toolset struct {
	registry   *Registry
	serverName string
}

func NewToolset(r *Registry, serverName string) *Toolset {
	return &Toolset{registry: r, serverName: serverName}
}

func (ts *Toolset) Name() string { return ts.serverName }

// Tools lists the server's current tools and wraps each as a
// tool.CallableTool named "server:tool" — the qualified form a
// dispatched tool call's name is parsed back into.
func (ts *Toolset) Tools() ([]tool.Tool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listed, err := ts.registry.ListTools(ctx, ts.serverName)
	if err != nil {
		return nil, err
	}

	out := make([]tool.Tool, 0, len(listed))
	for _, t := range listed {
		out = append(out, &remoteTool{
			registry:   ts.registry,
			serverName: ts.serverName,
			toolName:   t.Name,
			desc:       t.Description,
			schema:     convertSchema(t.InputSchema),
		})
	}
	return out, nil
}

var _ tool.Toolset = (*Toolset)(nil)

// remoteTool is one MCP server tool, addressed by the agent loop as
// "server:tool". MCP calls are medium risk by default —
// the operator's selective_config can still upgrade any individual
// server's operations by naming it in a tool's own risk assignment,
// but absent that this is the conservative default.
type remoteTool struct {
	registry   *Registry
	serverName string
	toolName   string
	desc       string
	schema     map[string]any
}

func (r *remoteTool) Name() string          { return r.serverName + ":" + r.toolName }
func (r *remoteTool) Description() string   { return r.desc }
func (r *remoteTool) IsLongRunning() bool    { return false }
func (r *remoteTool) RequiresApproval() bool { return true }
func (r *remoteTool) RiskLevel() string      { return "medium" }
func (r *remoteTool) Schema() map[string]any { return r.schema }

// Call invokes the remote tool through the shared Registry, which
// handles the circuit breaker, latency tracking, and audit log for
// every call regardless of which agent issued it. The dispatcher does
// not thread a request-scoped context through CallableTool.Call (see
// tool.Context), so — matching userquestiontool's own workaround — a
// bounded timeout stands in for cancellation propagation here.
func (r *remoteTool) Call(_ tool.Context, args map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := r.registry.CallTool(ctx, r.serverName, r.toolName, args)
	if err != nil {
		return nil, err
	}
	return parseCallResult(res)
}

var _ tool.CallableTool = (*remoteTool)(nil)

// convertSchema re-marshals an MCP input schema into the plain
// map[string]any shape every tool.Schema() returns.
func convertSchema(schema gomcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// parseCallResult collects a CallToolResult's text content into the
// single "output" key the agent loop's formatResult already knows how
// to render, or surfaces the server's reported error.
func parseCallResult(res *gomcp.CallToolResult) (map[string]any, error) {
	if res == nil {
		return map[string]any{}, nil
	}

	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(gomcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	if res.IsError {
		msg := "mcp tool call failed"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return nil, apperrors.New(apperrors.KindUnavailable, msg)
	}

	out := make(map[string]any, 1)
	switch len(texts) {
	case 0:
	case 1:
		out["output"] = texts[0]
	default:
		out["output"] = texts
	}
	return out, nil
}
