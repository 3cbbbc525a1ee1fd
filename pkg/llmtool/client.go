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

// Package llmtool wraps an OpenAI-compatible chat-completions endpoint as a
// bound tool (spec.md §4.7, §6.4). It defines the Client interface, a
// minimal non-streaming implementation of it (OpenAIClient), and the
// tracing/retry/token-accounting plumbing around it.
package llmtool

import "context"

// Message is one turn of a chat-completions conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition is a function-call schema offered to the model, used for
// the resolver's disambiguation/tool-selection calls (spec.md §4.3) and the
// path generator's candidate-analysis/code-synthesis calls (spec.md §4.4).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a function call the model asked to make, with arguments
// already parsed from its (possibly streamed) JSON fragments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string
}

// Usage records token accounting for a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the result of a single chat-completions call.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// CompletionRequest parameterizes a single call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Client is the minimal surface docflow needs from an OpenAI-compatible
// chat-completions + embeddings endpoint.
type Client interface {
	// Complete issues a single (non-streaming, from the caller's
	// perspective) chat-completions call. Implementations may stream
	// internally and reassemble tool-call fragments per spec.md §9.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Embed returns the embedding vector for text, using the configured
	// embedding model.
	Embed(ctx context.Context, text string) ([]float32, error)
}
