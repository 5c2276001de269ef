// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the LLM interface the agent tool-call loop
// drives.
//
//   - Unified GenerateContent method with a stream boolean parameter
//   - Returns iter.Seq2[*Response, error] for both streaming and
//     non-streaming calls
//   - Streaming uses the Partial flag to distinguish chunks from the
//     aggregated final response
package model

import (
	"context"
	"iter"

	"github.com/kestrelrun/conductor/pkg/tool"
)

// LLM is the interface every model backend implements.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// GenerateContent produces responses for the given request.
	//
	// When stream=false, yields exactly one Response with Partial=false.
	// When stream=true, yields a sequence of partial Responses followed
	// by a final aggregated Response with Partial=false.
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM backend.
type Provider string

const (
	ProviderGemini  Provider = "gemini"
	ProviderUnknown Provider = "unknown"
)

// Request contains the input for an LLM call.
type Request struct {
	Messages          []*Message
	Tools             []tool.Definition
	Config            *GenerateConfig
	SystemInstruction string
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	TopK        *int

	StopSequences []string

	ResponseMIMEType     string
	ResponseSchema       map[string]any
	ResponseSchemaName   string
	ResponseSchemaStrict *bool

	EnableThinking bool
	ThinkingBudget int

	Metadata map[string]string
}

// Clone creates a deep copy of the GenerateConfig so processor
// pipelines don't share mutable state between requests.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}

	clone := *c

	if c.Temperature != nil {
		temp := *c.Temperature
		clone.Temperature = &temp
	}
	if c.MaxTokens != nil {
		maxTok := *c.MaxTokens
		clone.MaxTokens = &maxTok
	}
	if c.TopP != nil {
		topP := *c.TopP
		clone.TopP = &topP
	}
	if c.TopK != nil {
		topK := *c.TopK
		clone.TopK = &topK
	}
	if c.StopSequences != nil {
		clone.StopSequences = make([]string, len(c.StopSequences))
		copy(clone.StopSequences, c.StopSequences)
	}
	if c.ResponseSchema != nil {
		clone.ResponseSchema = deepCopyMap(c.ResponseSchema)
	}
	if c.ResponseSchemaStrict != nil {
		strict := *c.ResponseSchemaStrict
		clone.ResponseSchemaStrict = &strict
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			result[k] = deepCopyMap(val)
		case []any:
			result[k] = deepCopySlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

func deepCopySlice(s []any) []any {
	if s == nil {
		return nil
	}
	result := make([]any, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]any:
			result[i] = deepCopyMap(val)
		case []any:
			result[i] = deepCopySlice(val)
		default:
			result[i] = v
		}
	}
	return result
}

// Response contains the result of an LLM call.
type Response struct {
	Content *Content

	// Partial distinguishes a streaming delta chunk (true) from the
	// final aggregated response (false).
	Partial      bool
	TurnComplete bool

	ToolCalls []tool.Call

	Usage    *Usage
	Thinking *ThinkingBlock

	FinishReason FinishReason

	ErrorCode    string
	ErrorMessage string
}

// Content represents the content of a response.
type Content struct {
	Parts []Part
	Role  Role
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ThinkingTokens   int
}

// ThinkingBlock contains the model's extended reasoning, when enabled.
type ThinkingBlock struct {
	ID        string
	Content   string
	Signature string
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

// TextContent extracts text from a response.
func (r *Response) TextContent() string {
	if r == nil || r.Content == nil {
		return ""
	}
	var text string
	for _, part := range r.Content.Parts {
		if tp, ok := part.(TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// HasToolCalls returns whether the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToMessage converts a Response to a Message for history persistence.
func (r *Response) ToMessage() *Message {
	if r == nil || r.Content == nil {
		return nil
	}
	return NewMessage(r.Content.Role, r.Content.Parts...)
}
