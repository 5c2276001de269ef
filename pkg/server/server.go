// Package server exposes the workflow engine, task store, MCP
// registry, validation gate, and memory tool over a local
// net/http.ServeMux command surface (HTTPServerOption functional
// options, setupRoutes returning a composed handler, CORS/logging
// middleware pair, visibility-gated agent discovery and direct-access
// routes) built against this runtime's JSON request/reply command
// table instead of a2a-go's AgentCard/JSON-RPC machinery, since
// agent-to-agent interop is out of scope here.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelrun/conductor/pkg/agent"
	"github.com/kestrelrun/conductor/pkg/auth"
	"github.com/kestrelrun/conductor/pkg/config"
	"github.com/kestrelrun/conductor/pkg/mcp"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/tools/memorytool"
	"github.com/kestrelrun/conductor/pkg/validation"
	"github.com/kestrelrun/conductor/pkg/workflow"
)

// Executor is one configured agent's registration in the command
// surface: its configuration id and, once cmd/conductor has finished
// wiring, the runnable Agent behind it. A zero-value Executor is valid
// — it simply has no runnable Agent yet, which is enough for
// visibility-filtered discovery and direct-access routes to work
// before an agent has finished provisioning.
type Executor struct {
	AgentID string
	Agent   *agent.Agent
}

// HTTPServer is the command surface. Every dependency beyond cfg and
// executors is optional: a server built with only those two (as tests
// do) can still answer discovery and direct-access requests; command
// handlers that need a missing dependency report a clear error
// instead of panicking.
type HTTPServer struct {
	cfg       *config.Config
	executors map[string]*Executor

	authValidator auth.TokenValidator
	engine        *workflow.Engine
	store         *store.Store
	mcpRegistry   *mcp.Registry
	gate          *validation.Gate
	memory        *memorytool.Tool
	bus           *stream.Bus
}

// HTTPServerOption configures optional HTTPServer dependencies.
type HTTPServerOption func(*HTTPServer)

func WithAuthValidator(v auth.TokenValidator) HTTPServerOption {
	return func(s *HTTPServer) { s.authValidator = v }
}

func WithWorkflowEngine(e *workflow.Engine) HTTPServerOption {
	return func(s *HTTPServer) { s.engine = e }
}

func WithStore(st *store.Store) HTTPServerOption {
	return func(s *HTTPServer) { s.store = st }
}

func WithMCPRegistry(r *mcp.Registry) HTTPServerOption {
	return func(s *HTTPServer) { s.mcpRegistry = r }
}

func WithValidationGate(g *validation.Gate) HTTPServerOption {
	return func(s *HTTPServer) { s.gate = g }
}

func WithMemoryTool(t *memorytool.Tool) HTTPServerOption {
	return func(s *HTTPServer) { s.memory = t }
}

func WithStreamBus(b *stream.Bus) HTTPServerOption {
	return func(s *HTTPServer) { s.bus = b }
}

func NewHTTPServer(cfg *config.Config, executors map[string]*Executor, opts ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{cfg: cfg, executors: executors}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// setupRoutes builds the full route table wrapped in CORS and logging
// middleware. Returned as http.Handler so tests can drive it directly
// with httptest without reaching into the ServeMux.
func (s *HTTPServer) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/agents", s.handleDiscovery)
	mux.HandleFunc("/agents/", s.handleAgentRoutes)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/workflows/", s.handleWorkflowStream)

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	return handler
}

// Addr returns the configured listen address; cmd/conductor runs the
// HTTP server itself, using Addr and Handler.
func (s *HTTPServer) Addr() string {
	return s.cfg.Server.Address()
}

func (s *HTTPServer) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// corsMiddleware follows a permissive-default / configured
// variant: no CORS config means wide-open for local desktop-shell
// development, a configured CORSConfig restricts to its allow list.
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.Server.CORS

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cors == nil {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if cors.AllowCredentials != nil && *cors.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware deliberately does not wrap ResponseWriter — doing
// so would hide the underlying http.Flusher the SSE stream endpoint
// needs.
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// authenticated performs a soft bearer-token check: it never blocks,
// only reports whether the request carried a valid token. Visibility
// decisions about what that buys the caller are made by callers.
func (s *HTTPServer) authenticated(r *http.Request) bool {
	if s.authValidator == nil {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	_, err := s.authValidator.ValidateToken(r.Context(), token)
	return err == nil
}
