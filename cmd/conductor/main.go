// Command conductor is the CLI entrypoint for the desktop-resident
// multi-agent orchestration runtime. It loads a YAML configuration,
// wires every agent's LLM, local tools, and MCP-backed tools, and
// serves the command surface over HTTP until signalled to stop.
//
// Usage:
//
//	conductor serve --config conductor.yaml
//	conductor validate --config conductor.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kestrelrun/conductor/pkg/agent"
	"github.com/kestrelrun/conductor/pkg/auth"
	"github.com/kestrelrun/conductor/pkg/background"
	"github.com/kestrelrun/conductor/pkg/builder"
	"github.com/kestrelrun/conductor/pkg/config"
	"github.com/kestrelrun/conductor/pkg/embedders"
	"github.com/kestrelrun/conductor/pkg/mcp"
	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/orchestrator"
	"github.com/kestrelrun/conductor/pkg/server"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
	"github.com/kestrelrun/conductor/pkg/tools/calculatortool"
	"github.com/kestrelrun/conductor/pkg/tools/delegatetasktool"
	"github.com/kestrelrun/conductor/pkg/tools/memorytool"
	"github.com/kestrelrun/conductor/pkg/tools/paralleltaskstool"
	"github.com/kestrelrun/conductor/pkg/tools/spawnagenttool"
	"github.com/kestrelrun/conductor/pkg/tools/todotool"
	"github.com/kestrelrun/conductor/pkg/tools/userquestiontool"
	"github.com/kestrelrun/conductor/pkg/validation"
	"github.com/kestrelrun/conductor/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the orchestration runtime's HTTP command surface."`
	Validate ValidateCmd `cmd:"" help:"Load and validate a configuration file without serving."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// ValidateCmd loads a config file and reports whether it is well-formed.
type ValidateCmd struct {
	Config string `short:"c" required:"" help:"Path to config file." type:"path"`
}

func (c *ValidateCmd) Run() error {
	ctx := context.Background()
	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}
	defer loader.Close()
	fmt.Printf("config valid: %d agent(s), %d llm(s), %d tool(s)\n", len(cfg.Agents), len(cfg.LLMs), len(cfg.Tools))
	return nil
}

// ServeCmd starts the runtime and blocks until a shutdown signal is
// received or the server fails.
type ServeCmd struct {
	Config         string `short:"c" required:"" help:"Path to config file." type:"path"`
	DataDir        string `name:"data-dir" help:"Directory holding the sqlite store and vector persistence." default:".conductor"`
	ValidationMode string `name:"validation-mode" help:"Validation gate mode: auto, manual, selective." default:"selective"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer loader.Close()

	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	st, err := store.Open(c.DataDir + "/conductor.db")
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	bus := stream.NewBus()

	mode := validation.Mode(c.ValidationMode)
	switch mode {
	case validation.ModeAuto, validation.ModeManual, validation.ModeSelective:
	default:
		return fmt.Errorf("invalid validation mode %q (valid: auto, manual, selective)", c.ValidationMode)
	}
	gate := validation.New(mode, st)
	bg := background.NewManager(mode)

	mcpRegistry := mcp.NewRegistry(st)
	defer mcpRegistry.Close()
	go mcpRegistry.RunHealthLoop(ctx)

	dispatcher := tool.NewDispatcher(gate, subagent.DefaultRetryConfig())

	memTool, err := buildMemoryTool(cfg, st)
	if err != nil {
		slog.Warn("memory tool unavailable", "error", err)
	}

	questionBroker := userquestiontool.NewBroker(bus)

	// agents is populated once every configured agent has been built;
	// AgentFactory closes over it so the engine and orchestrator can be
	// constructed before any agent exists, breaking the cycle where an
	// agent's spawn/delegate/parallel tools need a Coordinator that
	// itself needs an AgentFactory.
	agents := map[string]*agent.Agent{}
	factory := workflow.AgentFactory(func(agentID string) (*agent.Agent, error) {
		ag, ok := agents[agentID]
		if !ok {
			return nil, fmt.Errorf("agent %q is not configured", agentID)
		}
		return ag, nil
	})

	engine := workflow.NewEngine(st, bus, bg, factory)
	executor := subagent.NewExecutor(subagent.DefaultRetryConfig(), 60*time.Second)
	depth := subagent.NewDepthTracker()
	coordinator := orchestrator.New(executor, depth, engine, st, bus)

	executors := make(map[string]*server.Executor, len(cfg.Agents))
	for _, agentID := range cfg.ListAgents() {
		agentCfg, _ := cfg.GetAgent(agentID)
		ag, err := buildAgent(ctx, agentID, agentCfg, cfg, coordinator, memTool, questionBroker, dispatcher, mcpRegistry, st, bus, depth)
		if err != nil {
			return fmt.Errorf("building agent %q: %w", agentID, err)
		}
		agents[agentID] = ag
		executors[agentID] = &server.Executor{AgentID: agentID, Agent: ag}
	}

	opts := []server.HTTPServerOption{
		server.WithWorkflowEngine(engine),
		server.WithStore(st),
		server.WithMCPRegistry(mcpRegistry),
		server.WithValidationGate(gate),
		server.WithStreamBus(bus),
	}
	if memTool != nil {
		opts = append(opts, server.WithMemoryTool(memTool))
	}
	if validator, err := auth.NewValidatorFromConfig(cfg.Server.Auth); err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	} else if validator != nil {
		opts = append(opts, server.WithAuthValidator(validator))
	}

	srv := server.NewHTTPServer(cfg, executors, opts...)

	httpServer := &http.Server{
		Addr:    srv.Addr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// buildAgent constructs one configured agent: its LLM, its local and
// MCP-backed tools, and the agent itself, bound to the shared store,
// bus, and dispatcher every agent in the server shares.
func buildAgent(
	ctx context.Context,
	agentID string,
	agentCfg *config.AgentConfig,
	cfg *config.Config,
	coordinator subagent.Coordinator,
	memTool *memorytool.Tool,
	questionBroker *userquestiontool.Broker,
	dispatcher *tool.Dispatcher,
	mcpRegistry *mcp.Registry,
	st *store.Store,
	bus *stream.Bus,
	depth *subagent.DepthTracker,
) (*agent.Agent, error) {
	llm, err := buildLLM(agentCfg, cfg)
	if err != nil {
		return nil, fmt.Errorf("building llm: %w", err)
	}

	llmName := agentCfg.LLM
	if llmName == "" {
		llmName = "default"
	}
	llmCfg, _ := cfg.GetLLM(llmName)

	ab := builder.NewAgent(agentID).
		WithLLM(llm).
		WithInstruction(agentCfg.Instruction).
		WithDispatcher(dispatcher).
		WithDepthTracker(depth)

	if llmCfg != nil {
		ab = ab.WithPricing(llm.Name(), llmCfg.InputPricePerMTok, llmCfg.OutputPricePerMTok)
	}

	if agentCfg.MaxIterations > 0 {
		ab = ab.MaxIterations(int(agentCfg.MaxIterations))
	}

	tools, err := buildTools(ctx, agentCfg.Tools, cfg, coordinator, memTool, questionBroker, mcpRegistry, st)
	if err != nil {
		return nil, fmt.Errorf("building tools: %w", err)
	}
	ab = ab.WithTools(tools...)

	return ab.Build(st, bus)
}

func buildLLM(agentCfg *config.AgentConfig, cfg *config.Config) (model.LLM, error) {
	llmName := agentCfg.LLM
	if llmName == "" {
		llmName = "default"
	}
	llmCfg, ok := cfg.GetLLM(llmName)
	if !ok {
		return nil, fmt.Errorf("llm %q not found", llmName)
	}

	lb := builder.NewLLM().Model(llmCfg.Model)
	if llmCfg.APIKey != "" {
		lb = lb.APIKey(llmCfg.APIKey)
	} else {
		lb = lb.APIKeyFromEnv("GEMINI_API_KEY")
	}
	if llmCfg.Temperature != nil {
		lb = lb.Temperature(*llmCfg.Temperature)
	}
	if llmCfg.MaxTokens > 0 {
		lb = lb.MaxTokens(llmCfg.MaxTokens)
	}
	return lb.Build()
}

// buildTools resolves each of an agent's configured tool names into a
// concrete tool.Tool: one of the seven always-available built-ins, or
// an MCP server's tools (every tool the server currently exposes, each
// addressed as "name:tool"). Unrecognized and disabled entries are
// skipped with a log line rather than failing startup, since a single
// misconfigured tool should not prevent the rest of the agent from
// running.
func buildTools(
	ctx context.Context,
	names []string,
	cfg *config.Config,
	coordinator subagent.Coordinator,
	memTool *memorytool.Tool,
	questionBroker *userquestiontool.Broker,
	mcpRegistry *mcp.Registry,
	st *store.Store,
) ([]tool.Tool, error) {
	var out []tool.Tool
	for _, name := range names {
		switch name {
		case "calculator":
			out = append(out, calculatortool.New())
		case "todo":
			out = append(out, todotool.New(st))
		case "memory":
			if memTool != nil {
				out = append(out, memTool)
			} else {
				slog.Warn("memory tool requested but not configured, skipping", "tool", name)
			}
		case "ask_user":
			out = append(out, userquestiontool.New(questionBroker))
		case "spawn_agent":
			out = append(out, spawnagenttool.New(coordinator))
		case "delegate_task":
			out = append(out, delegatetasktool.New(coordinator))
		case "parallel_tasks":
			out = append(out, paralleltaskstool.New(coordinator))
		default:
			toolCfg, ok := cfg.GetTool(name)
			if !ok {
				slog.Warn("unknown tool name, skipping", "tool", name)
				continue
			}
			if toolCfg.Type != config.ToolTypeMCP {
				slog.Warn("only mcp, and the built-in, tool types are supported; skipping", "tool", name, "type", toolCfg.Type)
				continue
			}
			remote, err := buildMCPTools(ctx, name, toolCfg, mcpRegistry)
			if err != nil {
				return nil, fmt.Errorf("mcp server %q: %w", name, err)
			}
			out = append(out, remote...)
		}
	}
	return out, nil
}

func buildMCPTools(ctx context.Context, name string, toolCfg *config.ToolConfig, mcpRegistry *mcp.Registry) ([]tool.Tool, error) {
	transport := mcp.TransportHTTP
	if toolCfg.Transport == "stdio" {
		transport = mcp.TransportStdio
	}
	serverCfg := mcp.ServerConfig{
		Name:      name,
		Transport: transport,
		Command:   toolCfg.Command,
		Args:      toolCfg.Args,
		URL:       toolCfg.URL,
	}
	for k, v := range toolCfg.Env {
		serverCfg.Env = append(serverCfg.Env, k+"="+v)
	}
	if err := mcpRegistry.Register(ctx, serverCfg); err != nil {
		return nil, err
	}

	toolset := mcp.NewToolset(mcpRegistry, name)
	return toolset.Tools()
}

// buildMemoryTool constructs the memory tool's vector store and
// embedder from the config's first configured vector store and
// embedder pool, if any; agents that list "memory" among their tools
// but have none configured simply go without it.
func buildMemoryTool(cfg *config.Config, st *store.Store) (*memorytool.Tool, error) {
	vsName, vsCfg := firstVectorStore(cfg)
	if vsCfg == nil {
		return nil, fmt.Errorf("no vector_stores configured")
	}
	embName, embCfg := firstEmbedder(cfg)
	if embCfg == nil {
		return nil, fmt.Errorf("no embedders configured")
	}

	vb := builder.NewVectorProvider(vsCfg.Type)
	if vsCfg.PersistPath != "" {
		vb = vb.PersistPath(vsCfg.PersistPath)
	}
	vb = vb.Compress(vsCfg.Compress)
	if vsCfg.Host != "" {
		vb = vb.Host(vsCfg.Host)
	}
	if vsCfg.Port != 0 {
		vb = vb.Port(vsCfg.Port)
	}
	if vsCfg.APIKey != "" {
		vb = vb.APIKey(vsCfg.APIKey)
	}
	if vsCfg.IndexName != "" {
		vb = vb.IndexName(vsCfg.IndexName)
	}
	provider, err := vb.Build()
	if err != nil {
		return nil, fmt.Errorf("vector store %q: %w", vsName, err)
	}

	embedderRegistry := embedders.NewEmbedderRegistry()
	embedder, err := embedderRegistry.CreateEmbedderFromConfig(embName, &config.EmbedderProviderConfig{
		Type:      embCfg.Provider,
		Model:     embCfg.Model,
		Host:      embCfg.BaseURL,
		Dimension: embCfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", embName, err)
	}

	return memorytool.New(provider, embedder, st), nil
}

func firstVectorStore(cfg *config.Config) (string, *config.VectorStoreConfig) {
	for name, vs := range cfg.VectorStores {
		return name, vs
	}
	return "", nil
}

func firstEmbedder(cfg *config.Config) (string, *config.EmbedderConfig) {
	for name, emb := range cfg.Embedders {
		return name, emb
	}
	return "", nil
}

func setupLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "verbose" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("Desktop-resident multi-agent orchestration runtime"),
		kong.UsageOnError(),
	)

	setupLogger(cli.LogLevel, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
