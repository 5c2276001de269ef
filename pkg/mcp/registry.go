package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/subagent"
)

// server is the registry's live bookkeeping for one configured MCP
// server: its connection (lazily established, matching a
// lazy connect() in mcptoolset), its circuit breaker, and a rolling
// window of call latencies for percentile reporting.
type server struct {
	cfg     ServerConfig
	id      string
	mu      sync.Mutex
	conn    *connection
	breaker *subagent.CircuitBreaker
	latency []time.Duration // ring-ish: capped, oldest dropped
}

const latencyWindow = 256

// Registry is the Component described in the MCP Client Registry
// design: per-server connection lifecycle, health probing, latency
// percentile tracking, and a persisted audit log of every call.
type Registry struct {
	store *store.Store

	mu      sync.RWMutex
	servers map[string]*server
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st, servers: make(map[string]*server)}
}

// Register adds (or replaces) a server configuration and persists its
// record. The connection itself is established lazily on first call.
func (r *Registry) Register(ctx context.Context, cfg ServerConfig) error {
	if err := ValidateServerConfig(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.servers[cfg.Name]
	if !exists {
		s = &server{cfg: cfg, id: uuid.NewString(), breaker: subagent.NewCircuitBreaker(3, 60*time.Second)}
		r.servers[cfg.Name] = s
	} else {
		s.mu.Lock()
		s.cfg = cfg
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
	}

	return r.store.UpsertMCPServer(ctx, &store.MCPServerRecord{
		ID:        s.id,
		Name:      cfg.Name,
		Transport: string(cfg.Transport),
		Endpoint:  endpointOf(cfg),
		Status:    store.MCPServerUnknown,
		CreatedAt: time.Now(),
	})
}

func endpointOf(cfg ServerConfig) string {
	if cfg.Transport == TransportHTTP {
		return cfg.URL
	}
	return cfg.Command
}

func (r *Registry) get(name string) (*server, error) {
	r.mu.RLock()
	s, ok := r.servers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("mcp server " + name)
	}
	return s, nil
}

func (s *server) ensureConn(ctx context.Context) (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := dial(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *server) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = append(s.latency, d)
	if len(s.latency) > latencyWindow {
		s.latency = s.latency[len(s.latency)-latencyWindow:]
	}
}

// Percentile returns the p-th percentile (0-100) call latency observed
// over the rolling window, or 0 if no calls have been made yet.
func (s *server) Percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latency) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.latency...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

// ListTools lists the tools advertised by a registered server,
// establishing the connection if needed and tripping the breaker on
// failure.
func (r *Registry) ListTools(ctx context.Context, serverName string) ([]mcp.Tool, error) {
	s, err := r.get(serverName)
	if err != nil {
		return nil, err
	}
	if !s.breaker.Allow() {
		return nil, apperrors.CircuitOpen("mcp:" + serverName)
	}
	conn, err := s.ensureConn(ctx)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	tools, err := conn.ListTools(ctx)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, err
	}
	s.breaker.RecordSuccess()
	return tools, nil
}

// CallTool invokes a tool on a registered server, recording latency
// and writing an audit log entry to the store regardless of outcome.
func (r *Registry) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	s, err := r.get(serverName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var callErr error
	var res *mcp.CallToolResult

	if !s.breaker.Allow() {
		callErr = apperrors.CircuitOpen("mcp:" + serverName)
	} else {
		var conn *connection
		conn, callErr = s.ensureConn(ctx)
		if callErr == nil {
			res, callErr = conn.CallTool(ctx, toolName, args)
		}
		if callErr != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}

	latency := time.Since(start)
	s.recordLatency(latency)

	status := "ok"
	errMsg := ""
	if callErr != nil {
		status = "error"
		errMsg = callErr.Error()
	}
	if logErr := r.store.LogMCPCall(ctx, &store.MCPCallLogEntry{
		ID:        uuid.NewString(),
		ServerID:  s.id,
		ToolName:  toolName,
		LatencyMS: latency.Milliseconds(),
		Status:    status,
		Error:     errMsg,
		CalledAt:  start,
	}); logErr != nil {
		slog.Warn("failed to write mcp call audit log", "server", serverName, "error", logErr)
	}

	return res, callErr
}

// Probe issues a lightweight tools/list call to check server health
// and updates its persisted status accordingly.
func (r *Registry) Probe(ctx context.Context, serverName string) error {
	s, err := r.get(serverName)
	if err != nil {
		return err
	}
	_, probeErr := r.ListTools(ctx, serverName)
	status := store.MCPServerUp
	if probeErr != nil {
		status = store.MCPServerDown
	}
	now := time.Now()
	return r.store.UpsertMCPServer(ctx, &store.MCPServerRecord{
		ID:          s.id,
		Name:        s.cfg.Name,
		Transport:   string(s.cfg.Transport),
		Endpoint:    endpointOf(s.cfg),
		Status:      status,
		LastProbeAt: &now,
		CreatedAt:   now,
	})
}

// ProbeAll probes every registered server concurrently, logging but
// not returning per-server errors — a single flaky server should never
// block the others from reporting health.
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := r.Probe(ctx, name); err != nil {
				slog.Warn("mcp health probe failed", "server", name, "error", err)
			}
		}(name)
	}
	wg.Wait()
}

// HealthProbeInterval is how often RunHealthLoop probes every
// registered server.
const HealthProbeInterval = 300 * time.Second

// RunHealthLoop probes every registered server on HealthProbeInterval
// until ctx is cancelled. Intended to run for the lifetime of the
// process in its own goroutine.
func (r *Registry) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(HealthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProbeAll(ctx)
		}
	}
}

// LatencyMetrics reports p50/p95/p99 call latency for a registered
// server, for the command surface's get_mcp_latency_metrics.
func (r *Registry) LatencyMetrics(serverName string) (map[string]time.Duration, error) {
	s, err := r.get(serverName)
	if err != nil {
		return nil, err
	}
	return map[string]time.Duration{
		"p50": s.Percentile(50),
		"p95": s.Percentile(95),
		"p99": s.Percentile(99),
	}, nil
}

// Unregister drops a server from the live registry and closes its
// connection, if any. The persisted record is removed separately via
// the store.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[name]; ok {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
		delete(r.servers, name)
	}
}

// Close releases every server's live connection.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.servers {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}
}
