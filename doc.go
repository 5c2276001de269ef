// Package conductor is a desktop-resident multi-agent orchestration
// runtime: it drives an agent's tool-calling loop against a pluggable
// LLM provider, lets the agent spawn bounded sub-agents and call local
// or MCP tools, gates sensitive operations behind human approval, and
// streams the trajectory to a UI while persisting it in an embedded
// graph/vector store.
//
// # Quick start
//
// Install the CLI:
//
//	go install github.com/kestrelrun/conductor/cmd/conductor@latest
//
// Run it against a YAML config:
//
//	conductor serve --config conductor.yaml
//
// The runtime's packages are organized under pkg/: pkg/store for
// persistence, pkg/agent for the tool-call loop, pkg/workflow and
// pkg/orchestrator for execution, pkg/subagent for bounded sub-agent
// fan-out, pkg/mcp for remote tool servers, pkg/validation for the
// human-in-the-loop gate, and pkg/stream for the event fabric to a UI.
package conductor
