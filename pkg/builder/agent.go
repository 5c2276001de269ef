// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builder

import (
	"fmt"

	"github.com/kestrelrun/conductor/pkg/agent"
	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/store"
	"github.com/kestrelrun/conductor/pkg/stream"
	"github.com/kestrelrun/conductor/pkg/subagent"
	"github.com/kestrelrun/conductor/pkg/tool"
)

// AgentBuilder provides a fluent API for constructing a workflow
// agent: an LLM, the tools it may call, its system instruction, and
// the loop/history limits it must respect.
//
// Example:
//
//	ag, err := builder.NewAgent("assistant").
//	    WithLLM(llm).
//	    WithInstruction("You are a helpful assistant.").
//	    WithTools(tool1, tool2).
//	    Build(st, bus)
type AgentBuilder struct {
	id          string
	instruction string
	llm         model.LLM
	tools       []tool.Tool
	predicate   tool.Predicate
	dispatcher  *tool.Dispatcher

	maxIterations  int
	tokenBudget    int
	generateConfig *model.GenerateConfig

	depth              *subagent.DepthTracker
	modelID            string
	inputPricePerMTok  float64
	outputPricePerMTok float64
}

// NewAgent creates a new agent builder. id must be unique across the
// agents a server exposes; it is the value every create_workflow /
// execute_workflow command references.
func NewAgent(id string) *AgentBuilder {
	if id == "" {
		panic("agent ID cannot be empty")
	}
	return &AgentBuilder{id: id}
}

// WithLLM sets the model the agent calls each turn.
func (b *AgentBuilder) WithLLM(llm model.LLM) *AgentBuilder {
	if llm == nil {
		panic("LLM cannot be nil")
	}
	b.llm = llm
	return b
}

// WithInstruction sets the system instruction sent with every request.
func (b *AgentBuilder) WithInstruction(instruction string) *AgentBuilder {
	b.instruction = instruction
	return b
}

// WithTool registers a single tool the agent may call.
func (b *AgentBuilder) WithTool(t tool.Tool) *AgentBuilder {
	if t == nil {
		panic("tool cannot be nil")
	}
	b.tools = append(b.tools, t)
	return b
}

// WithTools registers multiple tools.
func (b *AgentBuilder) WithTools(tools ...tool.Tool) *AgentBuilder {
	for _, t := range tools {
		b.WithTool(t)
	}
	return b
}

// WithPredicate restricts which of the registered tools are visible
// to the model on a given call; defaults to tool.AllowAll().
func (b *AgentBuilder) WithPredicate(p tool.Predicate) *AgentBuilder {
	b.predicate = p
	return b
}

// WithDispatcher sets the validation/retry dispatcher tool calls route
// through. Required: a server builds one shared Dispatcher per
// validation gate and passes it to every agent it constructs.
func (b *AgentBuilder) WithDispatcher(d *tool.Dispatcher) *AgentBuilder {
	b.dispatcher = d
	return b
}

// MaxIterations bounds the tool-call loop; defaults to agent.DefaultMaxIterations.
func (b *AgentBuilder) MaxIterations(n int) *AgentBuilder {
	b.maxIterations = n
	return b
}

// TokenBudget enables history trimming once the transcript exceeds n
// tokens for the bound model; 0 (the default) disables trimming.
func (b *AgentBuilder) TokenBudget(n int) *AgentBuilder {
	b.tokenBudget = n
	return b
}

// WithGenerateConfig overrides the model.GenerateConfig sent with
// every request (temperature, max tokens, etc. beyond the LLM's own
// defaults).
func (b *AgentBuilder) WithGenerateConfig(cfg *model.GenerateConfig) *AgentBuilder {
	b.generateConfig = cfg
	return b
}

// WithDepthTracker shares the server's subagent.DepthTracker with the
// built agent, so tool calls made while running a spawned/delegated
// child workflow can be told apart from calls on a primary workflow.
func (b *AgentBuilder) WithDepthTracker(d *subagent.DepthTracker) *AgentBuilder {
	b.depth = d
	return b
}

// WithPricing records the model id and per-million-token input/output
// rates used to turn a turn's model.Usage into workflows.total_cost_usd.
func (b *AgentBuilder) WithPricing(modelID string, inputPricePerMTok, outputPricePerMTok float64) *AgentBuilder {
	b.modelID = modelID
	b.inputPricePerMTok = inputPricePerMTok
	b.outputPricePerMTok = outputPricePerMTok
	return b
}

// Build constructs the agent against the shared store and event bus a
// server wires every agent through.
func (b *AgentBuilder) Build(st *store.Store, bus *stream.Bus) (*agent.Agent, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("LLM is required: use WithLLM()")
	}
	if b.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required: use WithDispatcher()")
	}

	registry := tool.NewRegistry()
	for _, t := range b.tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("registering tool %s: %w", t.Name(), err)
		}
	}

	modelID := b.modelID
	if modelID == "" {
		modelID = b.llm.Name()
	}

	cfg := agent.Config{
		ID:                 b.id,
		SystemInstruction:  b.instruction,
		MaxIterations:      b.maxIterations,
		TokenBudget:        b.tokenBudget,
		GenerateConfig:     b.generateConfig,
		ModelID:            modelID,
		InputPricePerMTok:  b.inputPricePerMTok,
		OutputPricePerMTok: b.outputPricePerMTok,
	}

	return agent.New(cfg, b.llm, registry, b.predicate, b.dispatcher, st, bus, b.depth), nil
}

// MustBuild constructs the agent or panics on error.
func (b *AgentBuilder) MustBuild(st *store.Store, bus *stream.Bus) *agent.Agent {
	ag, err := b.Build(st, bus)
	if err != nil {
		panic(fmt.Sprintf("failed to build agent: %v", err))
	}
	return ag
}
