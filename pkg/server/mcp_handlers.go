package server

import (
	"net/http"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/mcp"
	"github.com/kestrelrun/conductor/pkg/store"
)

func (s *HTTPServer) requireMCP() error {
	if s.mcpRegistry == nil {
		return apperrors.New(apperrors.KindUnavailable, "mcp registry not wired")
	}
	return nil
}

func (s *HTTPServer) cmdListMCPServers(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.store.ListMCPServers(r.Context())
}

func (s *HTTPServer) cmdGetMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	return s.store.GetMCPServerByName(r.Context(), name)
}

func mcpServerConfigFromParams(params map[string]any) (mcp.ServerConfig, error) {
	name := stringParam(params, "name")
	if name == "" {
		return mcp.ServerConfig{}, apperrors.Validation("name is required")
	}
	transport := mcp.Transport(stringParam(params, "transport"))
	if transport != mcp.TransportStdio && transport != mcp.TransportHTTP {
		return mcp.ServerConfig{}, apperrors.Validation("transport must be stdio or http")
	}
	return mcp.ServerConfig{
		Name:      name,
		Transport: transport,
		Command:   stringParam(params, "command"),
		Args:      stringSliceParam(params, "args"),
		Env:       stringSliceParam(params, "env"),
		URL:       stringParam(params, "url"),
	}, nil
}

func (s *HTTPServer) cmdCreateMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	cfg, err := mcpServerConfigFromParams(params)
	if err != nil {
		return nil, err
	}
	if err := s.mcpRegistry.Register(r.Context(), cfg); err != nil {
		return nil, err
	}
	return s.store.GetMCPServerByName(r.Context(), cfg.Name)
}

func (s *HTTPServer) cmdDeleteMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	s.mcpRegistry.Unregister(name)
	if err := s.store.DeleteMCPServer(r.Context(), name); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdStartMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if err := s.mcpRegistry.Probe(r.Context(), name); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// cmdStopMCPServer removes the server from the live registry, which
// closes its connection, and marks its stored record down; the stored
// record itself is kept.
func (s *HTTPServer) cmdStopMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	rec, err := s.store.GetMCPServerByName(r.Context(), name)
	if err != nil {
		return nil, err
	}
	s.mcpRegistry.Unregister(name)
	rec.Status = store.MCPServerDown
	if err := s.store.UpsertMCPServer(r.Context(), rec); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdTestMCPServer(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if err := s.mcpRegistry.Probe(r.Context(), name); err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{"ok": true}, nil
}

func (s *HTTPServer) cmdListMCPTools(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	return s.mcpRegistry.ListTools(r.Context(), name)
}

func (s *HTTPServer) cmdCallMCPTool(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	toolName := stringParam(params, "tool")
	if name == "" || toolName == "" {
		return nil, apperrors.Validation("name and tool are required")
	}
	args, _ := params["arguments"].(map[string]any)
	return s.mcpRegistry.CallTool(r.Context(), name, toolName, args)
}

func (s *HTTPServer) cmdGetMCPLatencyMetrics(r *http.Request, params map[string]any) (any, error) {
	if err := s.requireMCP(); err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	return s.mcpRegistry.LatencyMetrics(name)
}
