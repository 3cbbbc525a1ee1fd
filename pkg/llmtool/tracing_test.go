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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/trace"
)

type fakeClient struct {
	completeCalls int
	embedCalls    int
	completion    *llmtool.Completion
	embedding     []float32
	err           error
}

func (f *fakeClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	f.completeCalls++
	return f.completion, f.err
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	return f.embedding, f.err
}

func TestTracingClientCompleteDelegatesAndLogsWhenEnabled(t *testing.T) {
	inner := &fakeClient{completion: &llmtool.Completion{Content: "hi"}}
	tracer := trace.New(t.TempDir(), true, nil)
	ctx, _ := tracer.StartSession(context.Background(), "task")

	client := llmtool.NewTracingClient(inner, tracer)
	completion, err := client.Complete(ctx, llmtool.CompletionRequest{Model: "gpt-4"})
	require.NoError(t, err)
	require.Equal(t, "hi", completion.Content)
	require.Equal(t, 1, inner.completeCalls)
}

func TestTracingClientEmbedPassesThroughUntraced(t *testing.T) {
	inner := &fakeClient{embedding: []float32{1, 2, 3}}
	tracer := trace.New(t.TempDir(), true, nil)

	client := llmtool.NewTracingClient(inner, tracer)
	vec, err := client.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
	require.Equal(t, 1, inner.embedCalls)
}

func TestTracingClientNilTracerStillDelegates(t *testing.T) {
	inner := &fakeClient{completion: &llmtool.Completion{Content: "ok"}}
	client := llmtool.NewTracingClient(inner, nil)

	completion, err := client.Complete(context.Background(), llmtool.CompletionRequest{Model: "gpt-4"})
	require.NoError(t, err)
	require.Equal(t, "ok", completion.Content)
}
