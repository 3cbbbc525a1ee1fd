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

package llmtool

import (
	"context"
	"strings"

	"github.com/kadirpekel/docflow/pkg/trace"
)

// TracingClient wraps a Client so every Complete call is additionally
// logged as a trace.LLMCall against whichever sub-step is currently open
// on tracer (spec.md §4.7: "tools may be wrapped by tracing adapters that
// delegate every attribute/method but additionally log ... a separate
// LLMCall record"). Embed is passed through untouched — embeddings are
// not LLM calls in the traced sense.
type TracingClient struct {
	Inner  Client
	Tracer *trace.Tracer
}

// NewTracingClient wraps inner with tracer. If tracer is nil, Complete
// simply delegates with no logging.
func NewTracingClient(inner Client, tracer *trace.Tracer) *TracingClient {
	return &TracingClient{Inner: inner, Tracer: tracer}
}

func (c *TracingClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	completion, err := c.Inner.Complete(ctx, req)
	if c.Tracer == nil {
		return completion, err
	}

	response := ""
	var usage map[string]int
	var toolCalls []map[string]any
	if completion != nil {
		response = completion.Content
		usage = map[string]int{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
			"total_tokens":      completion.Usage.TotalTokens,
		}
		for _, tc := range completion.ToolCalls {
			toolCalls = append(toolCalls, map[string]any{
				"id": tc.ID, "name": tc.Name, "arguments": tc.Arguments,
			})
		}
	}
	if err != nil {
		response = "error: " + err.Error()
	}

	c.Tracer.LogLLMCall(renderPrompt(req.Messages), response, req.Model, usage, toolCalls)
	return completion, err
}

func (c *TracingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.Inner.Embed(ctx, text)
}

// renderPrompt flattens a message list into the single prompt string a
// trace.LLMCall records (spec.md §3: "LLM ... calls are attached to the
// innermost active sub-step").
func renderPrompt(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
