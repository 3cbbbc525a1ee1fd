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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIClient is a minimal OpenAI-compatible chat-completions + embeddings
// client, hitting POST {BaseURL}/chat/completions and POST
// {BaseURL}/embeddings with Bearer auth — the same two endpoints the
// original's AsyncOpenAI-backed LLMTool calls (spec.md §6.4). It implements
// Client directly rather than through an ecosystem SDK: no OpenAI client
// library appears anywhere in the example pack, and the wire contract
// itself is two JSON REST calls, not a protocol requiring one.
type OpenAIClient struct {
	BaseURL string
	APIKey  string
	// EmbeddingModel overrides the default "text-embedding-3-large" model
	// used by Embed.
	EmbeddingModel string
	HTTP           *http.Client
}

// NewOpenAIClient constructs a client against baseURL (e.g.
// "https://openrouter.ai/api/v1", matching the original's default) using
// apiKey as a Bearer token.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

type chatCompletionsRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type wireTool struct {
	Type     string             `json:"type"`
	Function wireToolDefinition `json:"function"`
}

type wireToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete issues one non-streaming chat-completions call.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	wireReq := chatCompletionsRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, wireTool{
			Type: "function",
			Function: wireToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	var wireResp chatCompletionsResponse
	if err := c.post(ctx, "/chat/completions", wireReq, &wireResp); err != nil {
		return nil, err
	}
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("llmtool: no choices returned from provider")
	}
	choice := wireResp.Choices[0]

	completion := &Completion{
		Content: choice.Message.Content,
		Usage: Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:      wireResp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			RawArgs:   tc.Function.Arguments,
		})
	}
	return completion, nil
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text using c.EmbeddingModel.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingsResponse
	if err := c.post(ctx, "/embeddings", embeddingsRequest{Model: c.embeddingModel(), Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llmtool: no embedding data returned from provider")
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) embeddingModel() string {
	if c.EmbeddingModel != "" {
		return c.EmbeddingModel
	}
	return "text-embedding-3-large"
}

func (c *OpenAIClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llmtool: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("llmtool: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llmtool: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llmtool: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("llmtool: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("llmtool: decode response: %w", err)
	}
	return nil
}

var _ Client = (*OpenAIClient)(nil)
