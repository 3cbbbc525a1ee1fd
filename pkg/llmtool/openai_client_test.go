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

package llmtool_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
)

func TestOpenAIClientCompleteParsesToolCalls(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"function": {"name": "bind_doc", "arguments": "{\"doc_id\":\"42\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client := llmtool.NewOpenAIClient(server.URL, "sk-test")
	completion, err := client.Complete(context.Background(), llmtool.CompletionRequest{
		Model:    "gpt-4",
		Messages: []llmtool.Message{{Role: "user", Content: "hi"}},
		Tools:    []llmtool.ToolDefinition{{Name: "bind_doc", Description: "bind a doc"}},
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "/chat/completions", gotPath)
	require.Len(t, completion.ToolCalls, 1)
	require.Equal(t, "bind_doc", completion.ToolCalls[0].Name)
	require.Equal(t, "42", completion.ToolCalls[0].Arguments["doc_id"])
	require.Equal(t, 15, completion.Usage.TotalTokens)
}

func TestOpenAIClientCompleteNoChoicesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := llmtool.NewOpenAIClient(server.URL, "")
	_, err := client.Complete(context.Background(), llmtool.CompletionRequest{Model: "gpt-4"})
	require.Error(t, err)
}

func TestOpenAIClientEmbedUsesConfiguredModel(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
	defer server.Close()

	client := llmtool.NewOpenAIClient(server.URL, "")
	client.EmbeddingModel = "text-embedding-3-small"

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, "text-embedding-3-small", gotBody["model"])
}

func TestOpenAIClientEmbedDefaultsModel(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data": [{"embedding": [1]}]}`))
	}))
	defer server.Close()

	client := llmtool.NewOpenAIClient(server.URL, "")
	_, err := client.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-large", gotBody["model"])
}

func TestOpenAIClientErrorStatusPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer server.Close()

	client := llmtool.NewOpenAIClient(server.URL, "bad")
	_, err := client.Complete(context.Background(), llmtool.CompletionRequest{Model: "gpt-4"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

var _ llmtool.Client = (*llmtool.OpenAIClient)(nil)
