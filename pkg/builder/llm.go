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

package builder

import (
	"fmt"
	"os"
	"time"

	"github.com/kestrelrun/conductor/pkg/model"
	"github.com/kestrelrun/conductor/pkg/model/gemini"
)

// LLMBuilder provides a fluent API for building the Gemini LLM
// provider that backs every agent in this runtime.
//
// Example:
//
//	llm, err := builder.NewLLM().
//	    Model("gemini-2.0-flash").
//	    APIKeyFromEnv("GEMINI_API_KEY").
//	    Temperature(0.7).
//	    MaxTokens(4000).
//	    Build()
type LLMBuilder struct {
	model       string
	apiKey      string
	temperature *float64
	maxTokens   int
	topP        float64
	topK        int32
	timeout     time.Duration
	maxRetries  int
}

// NewLLM creates a new LLM builder defaulted to gemini-2.0-flash.
func NewLLM() *LLMBuilder {
	return &LLMBuilder{
		model:      "gemini-2.0-flash",
		maxRetries: 3,
		timeout:    120 * time.Second,
	}
}

// Model sets the model name.
func (b *LLMBuilder) Model(model string) *LLMBuilder {
	b.model = model
	return b
}

// APIKey sets the API key directly.
func (b *LLMBuilder) APIKey(key string) *LLMBuilder {
	b.apiKey = key
	return b
}

// APIKeyFromEnv sets the API key from an environment variable.
func (b *LLMBuilder) APIKeyFromEnv(envVar string) *LLMBuilder {
	b.apiKey = os.Getenv(envVar)
	return b
}

// Temperature sets the sampling temperature (0.0 to 2.0).
func (b *LLMBuilder) Temperature(temp float64) *LLMBuilder {
	if temp < 0 || temp > 2 {
		panic("temperature must be between 0 and 2")
	}
	b.temperature = &temp
	return b
}

// MaxTokens sets the maximum output tokens.
func (b *LLMBuilder) MaxTokens(max int) *LLMBuilder {
	if max < 0 {
		panic("max tokens must be non-negative")
	}
	b.maxTokens = max
	return b
}

// TopP sets the nucleus sampling parameter.
func (b *LLMBuilder) TopP(topP float64) *LLMBuilder {
	b.topP = topP
	return b
}

// TopK sets the top-k sampling parameter.
func (b *LLMBuilder) TopK(topK int32) *LLMBuilder {
	b.topK = topK
	return b
}

// Timeout sets the request timeout. Retained for API symmetry with
// the rest of the fluent builder; the genai client applies its own
// per-request deadline derived from the caller's context instead.
func (b *LLMBuilder) Timeout(timeout time.Duration) *LLMBuilder {
	b.timeout = timeout
	return b
}

// MaxRetries sets the maximum number of retries.
func (b *LLMBuilder) MaxRetries(max int) *LLMBuilder {
	if max < 0 {
		panic("max retries must be non-negative")
	}
	b.maxRetries = max
	return b
}

// Build creates the Gemini LLM provider.
func (b *LLMBuilder) Build() (model.LLM, error) {
	if b.model == "" {
		return nil, fmt.Errorf("model is required")
	}

	if b.apiKey == "" {
		b.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if b.apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY or call APIKey)")
	}

	var temp float64
	if b.temperature != nil {
		temp = *b.temperature
	}

	return gemini.New(gemini.Config{
		APIKey:      b.apiKey,
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: temp,
		TopP:        b.topP,
		TopK:        b.topK,
	})
}

// MustBuild creates the LLM provider or panics on error.
//
// Use this only when you're certain the configuration is valid.
func (b *LLMBuilder) MustBuild() model.LLM {
	llm, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build LLM: %v", err))
	}
	return llm
}
