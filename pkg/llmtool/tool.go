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
	"fmt"
	"time"

	"github.com/kadirpekel/docflow/pkg/observability"
	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/utils"
)

// Validator rejects a completion that does not meet a caller-specific
// requirement (e.g. "must contain exactly one <doc_id> tag"). Validators
// run after every attempt; a non-nil error triggers the retry strategy.
type Validator func(*Completion) error

// Tool wraps a Client as a bound tool.Tool, implementing the retry/validator
// machinery of spec.md §4.7: a chain of RetryStrategy values, each granting
// (1 + its own Attempts) tries, with Validators run after each attempt. A
// strategy's hint is folded back into the request via appendHint, the
// LLM-specific analogue of the generic tool.RetryStrategy parameter
// convention (here the "parameters" being retried are chat messages, not a
// flat param map).
type Tool struct {
	Client     Client
	Model      string
	Counter    *utils.TokenCounter
	Metrics    *observability.Metrics
	Purpose    string // label for metrics, e.g. "sop_resolution", "path_generation"
	Strategies []tool.RetryStrategy
	Validators []Validator
}

func (t *Tool) ID() string { return "llm" }

// GetResultValidationHint describes what callers should expect of a
// successful result, for the AppendValidationHintRetry strategy's prompt.
func (t *Tool) GetResultValidationHint(result *tool.Result, validationErr error) string {
	if validationErr != nil {
		return fmt.Sprintf("previous response was invalid: %v", validationErr)
	}
	return "the response must be valid JSON matching the requested function-call schema"
}

// Execute runs req (read from ctx.Params["request"]) against Client,
// applying the retry-strategy chain and validators (spec.md §4.7).
func (t *Tool) Execute(ctx tool.Context) (*tool.Result, error) {
	req, ok := ctx.Params["request"].(CompletionRequest)
	if !ok {
		return nil, fmt.Errorf("llmtool: ctx.Params[\"request\"] must be a CompletionRequest")
	}
	if req.Model == "" {
		req.Model = t.Model
	}

	strategies := t.Strategies
	if len(strategies) == 0 {
		strategies = []tool.RetryStrategy{tool.SimpleRetry{Attempts: 0}}
	}

	var lastErr error
	attemptReq := req

	for _, strategy := range strategies {
		attempts := 1 + strategy.MaxAttempts()
		for attempt := 0; attempt < attempts; attempt++ {
			completion, err := t.call(ctx, attemptReq)
			if err != nil {
				lastErr = err
				attemptReq = applyStrategy(strategy, req, err.Error())
				continue
			}

			if verr := t.validate(completion); verr != nil {
				lastErr = verr
				attemptReq = applyStrategy(strategy, req, verr.Error())
				continue
			}

			return &tool.Result{Output: completionToOutput(completion)}, nil
		}
	}

	return nil, fmt.Errorf("llmtool: exhausted retries: %w", lastErr)
}

// applyStrategy asks strategy how to prepare the next attempt, expressed
// through the generic tool.RetryStrategy convention (a "_validation_hint"
// key in a param map), then folds any hint it produced into a fresh
// request built from the original messages plus the hint appended as a
// system message (AppendValidationHintRetry's intent per spec.md §4.7).
func applyStrategy(strategy tool.RetryStrategy, original CompletionRequest, hint string) CompletionRequest {
	params := strategy.PrepareRetry(map[string]any{}, nil, hint)
	h, ok := params["_validation_hint"].(string)
	if !ok || h == "" {
		return original
	}
	next := original
	next.Messages = append(append([]Message{}, original.Messages...), Message{
		Role:    "system",
		Content: "Previous attempt was rejected: " + h,
	})
	return next
}

func (t *Tool) validate(c *Completion) error {
	for _, v := range t.Validators {
		if err := v(c); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tool) call(ctx tool.Context, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := t.Client.Complete(ctx, req)
	duration := time.Since(start)

	if t.Metrics != nil {
		if err != nil {
			t.Metrics.RecordLLMError(req.Model, t.Purpose)
		} else {
			t.Metrics.RecordLLMCall(req.Model, t.Purpose, duration)
			usage := completion.Usage
			if usage.TotalTokens == 0 && t.Counter != nil {
				usage.PromptTokens = t.estimateTokens(req.Messages)
				usage.CompletionTokens = t.Counter.EstimateTokensForText(completion.Content)
			}
			t.Metrics.RecordLLMTokens(req.Model, usage.PromptTokens, usage.CompletionTokens)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("llmtool: completion failed: %w", err)
	}
	return completion, nil
}

func (t *Tool) estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += t.Counter.EstimateTokensForText(m.Content)
	}
	return total
}

func completionToOutput(c *Completion) map[string]any {
	toolCalls := make([]map[string]any, 0, len(c.ToolCalls))
	for _, tc := range c.ToolCalls {
		toolCalls = append(toolCalls, map[string]any{
			"id":        tc.ID,
			"name":      tc.Name,
			"arguments": tc.Arguments,
		})
	}
	return map[string]any{
		"content":    c.Content,
		"tool_calls": toolCalls,
	}
}

var _ tool.Tool = (*Tool)(nil)
var _ tool.ValidationHinter = (*Tool)(nil)
