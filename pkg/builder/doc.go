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

// Package builder provides fluent builder APIs for programmatic agent construction.
//
// This package provides an ergonomic, chainable API for building agents, LLMs,
// credentials, vector providers, and other components programmatically. The builders wrap
// the underlying Config structs, providing the best of both worlds:
//
//   - Fluent, discoverable API for programmatic use
//   - Config structs remain available for direct use
//
// # Quick Start
//
// Build a workflow agent with an LLM, an instruction, and tools:
//
//	ag, err := builder.NewAgent("assistant").
//	    WithLLM(
//	        builder.NewLLM().
//	            Model("gemini-2.0-flash").
//	            APIKeyFromEnv("GEMINI_API_KEY").
//	            Temperature(0.7).
//	            MustBuild(),
//	    ).
//	    WithInstruction("You are a helpful assistant.").
//	    WithTools(tool1, tool2).
//	    WithDispatcher(dispatcher).
//	    Build(store, bus)
//
// # Architecture
//
// The builder package is a convenience layer over the core agent/model packages:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│         Builder Package (Convenience Layer)                  │
//	│  Fluent API for ergonomic programmatic construction         │
//	│                                                              │
//	│  AgentBuilder → agent.Config → agent.New()                  │
//	│  LLMBuilder → model.LLM                                      │
//	│  VectorProviderBuilder → vector.Provider                     │
//	└─────────────────────────────────────────────────────────────┘
//	                            ▲
//	                            │ wraps
//	                            │
//	┌─────────────────────────────────────────────────────────────┐
//	│         Core Packages (Foundation)                           │
//	│                                                                │
//	│  agent.Config, model.LLM, vector.Provider                    │
//	└─────────────────────────────────────────────────────────────┘
//
// # Available Builders
//
//   - [AgentBuilder]: Build a workflow agent with a fluent API
//   - [LLMBuilder]: Build the Gemini LLM provider
//   - [CredentialsBuilder]: Configure authentication credentials
//   - [AuthBuilder]: Configure server authentication
//   - [VectorProviderBuilder]: Build a vector database provider
//
// Multiple agents built this way share one store and event bus; a
// server looks one up by its id (the same id execute_workflow names)
// and runs it through pkg/workflow. There is no static sub-agent tree
// to assemble here — dynamic fan-out across agent ids happens at
// runtime through spawn_agent/delegate_task/parallel_tasks, handled by
// pkg/orchestrator instead of a builder-time parent/child wiring step.
package builder
