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

package model

import (
	"iter"

	"github.com/google/uuid"

	"github.com/kestrelrun/conductor/pkg/tool"
)

// StreamingAggregator accumulates partial streaming responses into one
// final Response suitable for history persistence.
//
// Usage:
//
//	aggregator := NewStreamingAggregator()
//	for delta := range textDeltas {
//	    for resp, err := range aggregator.ProcessTextDelta(delta) {
//	        yield(resp, err)
//	    }
//	}
//	if final := aggregator.Close(); final != nil {
//	    yield(final, nil)
//	}
type StreamingAggregator struct {
	text         string
	thinkingText string
	role         Role
	toolCalls    []tool.Call
	usage        *Usage
	finishReason FinishReason

	thinkingID        string
	thinkingSignature string
}

func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{role: RoleAgent}
}

// ProcessTextDelta accumulates a text delta and yields a partial
// response for real-time display.
func (s *StreamingAggregator) ProcessTextDelta(text string) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if text == "" {
			return
		}
		s.text += text
		resp := &Response{
			Content: &Content{Parts: []Part{TextPart{Text: text}}, Role: s.role},
			Partial: true,
		}
		yield(resp, nil)
	}
}

// ProcessThinkingDelta accumulates a thinking delta chunk.
func (s *StreamingAggregator) ProcessThinkingDelta(thinking string) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if thinking == "" {
			return
		}
		if s.thinkingID == "" {
			s.thinkingID = "thinking_" + uuid.NewString()[:8]
		}
		s.thinkingText += thinking
		resp := &Response{
			Content:  &Content{Parts: []Part{}, Role: s.role},
			Partial:  true,
			Thinking: &ThinkingBlock{ID: s.thinkingID, Content: thinking},
		}
		yield(resp, nil)
	}
}

// ProcessThinkingComplete closes a thinking block with its signature
// (for providers that verify thinking continuity across turns).
func (s *StreamingAggregator) ProcessThinkingComplete(content, signature string) {
	if s.thinkingID == "" {
		s.thinkingID = "thinking_" + uuid.NewString()[:8]
	}
	s.thinkingText = content
	s.thinkingSignature = signature
}

func (s *StreamingAggregator) ThinkingText() string { return s.thinkingText }

// ProcessToolCall accumulates a completed tool call.
func (s *StreamingAggregator) ProcessToolCall(tc tool.Call) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		s.toolCalls = append(s.toolCalls, tc)
		resp := &Response{
			Content: &Content{
				Parts: []Part{DataPart{Name: "tool_use", Data: map[string]any{
					"id": tc.ID, "name": tc.Name, "arguments": tc.Args,
				}}},
				Role: s.role,
			},
			Partial:   true,
			ToolCalls: []tool.Call{tc},
		}
		yield(resp, nil)
	}
}

func (s *StreamingAggregator) SetUsage(usage *Usage)             { s.usage = usage }
func (s *StreamingAggregator) SetFinishReason(reason FinishReason) { s.finishReason = reason }

// Close produces the final aggregated response (Partial=false),
// suitable for persistence, after all chunks have been processed.
func (s *StreamingAggregator) Close() *Response {
	if s.text == "" && s.thinkingText == "" && len(s.toolCalls) == 0 {
		return nil
	}

	var parts []Part
	if s.text != "" {
		parts = append(parts, TextPart{Text: s.text})
	}

	resp := &Response{
		Content:      &Content{Parts: parts, Role: s.role},
		Partial:      false,
		TurnComplete: true,
		ToolCalls:    s.toolCalls,
		Usage:        s.usage,
		FinishReason: s.finishReason,
	}
	if s.thinkingText != "" {
		resp.Thinking = &ThinkingBlock{ID: s.thinkingID, Content: s.thinkingText, Signature: s.thinkingSignature}
	}

	s.clear()
	return resp
}

func (s *StreamingAggregator) clear() {
	s.text = ""
	s.thinkingText = ""
	s.thinkingID = ""
	s.thinkingSignature = ""
	s.toolCalls = nil
	s.usage = nil
	s.finishReason = ""
}
