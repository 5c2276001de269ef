// Package mcp implements the client-side registry for Model Context
// Protocol servers: connection management over stdio or HTTP, health
// probing, latency tracking, and an audit log of every call. The
// stdio path and the hand-rolled HTTP JSON-RPC/SSE path are grounded
// directly on a stdio/HTTP MCP client package.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

// Transport is how a registered server is reached.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// ServerConfig describes one MCP server registration.
type ServerConfig struct {
	Name       string
	Transport  Transport
	Command    string // stdio
	Args       []string
	Env        []string
	URL        string // http
	MaxRetries int
	SSETimeout time.Duration
}

var (
	envKeyPattern  = regexp.MustCompile(`^[A-Z0-9_]+$`)
	shellMetachars = []string{";", "|", "&", "$", "`", ">", "<", "\n", "\x00"}
	maxMCPArgs     = 50
	maxMCPArgLen   = 512
)

// ValidateServerConfig rejects identifiers and launch arguments that
// could be used for shell or header injection, per the MCP server
// record invariant: args/env reject shell metacharacters and null
// bytes, env keys are restricted to [A-Z0-9_].
func ValidateServerConfig(cfg ServerConfig) error {
	if strings.ContainsAny(cfg.Name, "\n\x00") {
		return apperrors.Validation("mcp server name contains forbidden characters")
	}
	if len(cfg.Args) > maxMCPArgs {
		return apperrors.Validation(fmt.Sprintf("mcp server %s has more than %d args", cfg.Name, maxMCPArgs))
	}
	for _, a := range cfg.Args {
		if len(a) > maxMCPArgLen {
			return apperrors.Validation("mcp server " + cfg.Name + " arg exceeds max length")
		}
		if containsShellMetachar(a) {
			return apperrors.Validation("mcp server " + cfg.Name + " arg contains forbidden characters: " + a)
		}
	}
	for _, kv := range cfg.Env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return apperrors.Validation("mcp server " + cfg.Name + " env entry missing '=': " + kv)
		}
		if !envKeyPattern.MatchString(key) {
			return apperrors.Validation("mcp server " + cfg.Name + " env key is not [A-Z0-9_]: " + key)
		}
		if containsShellMetachar(value) {
			return apperrors.Validation("mcp server " + cfg.Name + " env value contains forbidden characters")
		}
	}
	return nil
}

func containsShellMetachar(s string) bool {
	for _, m := range shellMetachars {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// connection is a live handle to one MCP server, abstracting over the
// stdio and HTTP transports behind a single ListTools/CallTool pair.
type connection struct {
	cfg      ServerConfig
	stdio    *client.Client // non-nil for TransportStdio
	http     *http.Client   // non-nil for TransportHTTP
	nextID   int
}

func dial(ctx context.Context, cfg ServerConfig) (*connection, error) {
	switch cfg.Transport {
	case TransportStdio:
		return dialStdio(ctx, cfg)
	case TransportHTTP:
		return dialHTTP(ctx, cfg)
	default:
		return nil, apperrors.Validation("unknown mcp transport: " + string(cfg.Transport))
	}
}

func dialStdio(ctx context.Context, cfg ServerConfig) (*connection, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "start mcp stdio server "+cfg.Name, err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "conductor", Version: "1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "initialize mcp stdio server "+cfg.Name, err)
	}
	return &connection{cfg: cfg, stdio: c}, nil
}

func dialHTTP(ctx context.Context, cfg ServerConfig) (*connection, error) {
	if cfg.URL == "" {
		return nil, apperrors.Validation("mcp http server " + cfg.Name + " has no url")
	}
	return &connection{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

// wrapTransportErr classifies a transport failure as Cancelled when ctx
// was the cause rather than the target server, so a caller cancelling a
// workflow mid-call never sees a misleading Unavailable.
func wrapTransportErr(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return apperrors.Cancelled(msg + ": " + ctx.Err().Error())
	}
	return apperrors.Wrap(apperrors.KindUnavailable, msg, err)
}

func (c *connection) Close() error {
	if c.stdio != nil {
		return c.stdio.Close()
	}
	return nil
}

// ListTools returns the server's advertised tool descriptors.
func (c *connection) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.stdio != nil {
		res, err := c.stdio.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, wrapTransportErr(ctx, "list tools from "+c.cfg.Name, err)
		}
		return res.Tools, nil
	}
	res, err := c.jsonRPC(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(res, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "parse tools/list response from "+c.cfg.Name, err)
	}
	return parsed.Tools, nil
}

// CallTool invokes name with args and returns the raw result payload.
func (c *connection) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.stdio != nil {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		res, err := c.stdio.CallTool(ctx, req)
		if err != nil {
			return nil, wrapTransportErr(ctx, "call tool "+name+" on "+c.cfg.Name, err)
		}
		return res, nil
	}
	raw, err := c.jsonRPC(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "parse tools/call response from "+c.cfg.Name, err)
	}
	return &res, nil
}

// jsonRPC sends one JSON-RPC 2.0 request over HTTP and returns the
// result payload, dispatching to the SSE reader when the server
// responds with text/event-stream instead of a plain JSON body —
// mirroring a dual response-handling convention.
func (c *connection) jsonRPC(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "marshal jsonrpc request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "build mcp http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	httpRes, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr(ctx, "mcp http request to "+c.cfg.Name, err)
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode >= 400 {
		body, _ := io.ReadAll(httpRes.Body)
		return nil, apperrors.Wrap(apperrors.KindUnavailable, fmt.Sprintf("mcp server %s returned %d", c.cfg.Name, httpRes.StatusCode), fmt.Errorf("%s", body))
	}

	var rpcRes *jsonRPCResponse
	if ct := httpRes.Header.Get("Content-Type"); bytes.Contains([]byte(ct), []byte("text/event-stream")) {
		rpcRes, err = c.readSSEResponse(ctx, httpRes.Body)
	} else {
		rpcRes = &jsonRPCResponse{}
		err = json.NewDecoder(httpRes.Body).Decode(rpcRes)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "decode mcp response from "+c.cfg.Name, err)
	}
	if rpcRes.Error != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "mcp error from "+c.cfg.Name, fmt.Errorf("%d: %s", rpcRes.Error.Code, rpcRes.Error.Message))
	}
	return rpcRes.Result, nil
}

// readSSEResponse reads a single "data:" event off an SSE stream in a
// background goroutine so it can be raced against the configured SSE
// timeout, returning whichever resolves first.
func (c *connection) readSSEResponse(ctx context.Context, body io.Reader) (*jsonRPCResponse, error) {
	type result struct {
		res *jsonRPCResponse
		err error
	}
	ch := make(chan result, 1)

	go func() {
		scanner := newLineScanner(body)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) <= 5 || line[:5] != "data:" {
				continue
			}
			var res jsonRPCResponse
			if err := json.Unmarshal([]byte(line[5:]), &res); err != nil {
				ch <- result{err: apperrors.Wrap(apperrors.KindInternal, "parse sse data line", err)}
				return
			}
			ch <- result{res: &res}
			return
		}
		ch <- result{err: apperrors.Wrap(apperrors.KindUnavailable, "sse stream closed without a data event", scanner.Err())}
	}()

	timeout := c.cfg.SSETimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case r := <-ch:
		return r.res, r.err
	case <-time.After(timeout):
		return nil, apperrors.Timeout("timed out waiting for mcp sse response from " + c.cfg.Name)
	case <-ctx.Done():
		return nil, apperrors.Cancelled("mcp sse read cancelled")
	}
}
