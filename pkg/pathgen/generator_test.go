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

package pathgen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/pathgen"
)

type stepClient struct {
	steps []func(llmtool.CompletionRequest) (*llmtool.Completion, error)
	calls int
}

func (c *stepClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	fn := c.steps[c.calls]
	c.calls++
	return fn(req)
}

func (c *stepClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func TestSynthesizeFieldSmallSchemaSkipsCandidateAnalysisCall(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			require.Contains(t, req.Messages[1].Content, "Candidates")
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "synthesize_extraction",
				Arguments: map[string]any{"kind": "path_read", "path": "$.name"},
			}}}, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}
	schema := pathgen.BuildSchema(map[string]any{"name": "Ada"}, nil)

	e, err := g.SynthesizeField(context.Background(), "greet the user", "greet", "the user's name", schema, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, pathgen.KindPathRead, e.Kind)
	require.Equal(t, "$.name", e.Path)
	require.Equal(t, 1, client.calls)
}

func TestSynthesizeFieldNoCandidatesReturnsMissingWithoutExtractionCall(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			t.Fatal("extraction-synthesis should not be called when there are no candidates")
			return nil, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}
	schema := pathgen.BuildSchema(map[string]any{}, nil)

	e, err := g.SynthesizeField(context.Background(), "ask", "task", "missing field", schema, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, pathgen.KindMissing, e.Kind)
}

func TestSynthesizeBatchRunsOneExtractionSynthesisPerField(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "synthesize_extraction",
				Arguments: map[string]any{"kind": "path_read", "path": "$.first"},
			}}}, nil
		},
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "synthesize_extraction",
				Arguments: map[string]any{"kind": "path_read", "path": "$.last"},
			}}}, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}
	schema := pathgen.BuildSchema(map[string]any{"first": "Jane", "last": "Doe"}, nil)

	out, err := g.SynthesizeBatch(context.Background(), "ask", "task",
		map[string]string{"first": "first name", "last": "last name"}, schema,
		map[string]any{"first": "Jane", "last": "Doe"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 2, client.calls)
}

func TestSynthesizeOutputPathMissingToolCallsFallsBackToDefault(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			return &llmtool.Completion{Content: "no structured response"}, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}

	path, err := g.SynthesizeOutputPath(context.Background(), "ask", "task", "the result", pathgen.Schema{}, "ok")
	require.NoError(t, err)
	require.Equal(t, "$.output", path)
}

func TestSynthesizeOutputPathWrongToolCallErrors(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{Name: "unrelated_call"}}}, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}

	_, err := g.SynthesizeOutputPath(context.Background(), "ask", "task", "the result", pathgen.Schema{}, "ok")
	require.Error(t, err)
}

func TestSynthesizeOutputPathReturnsProposedPath(t *testing.T) {
	client := &stepClient{steps: []func(llmtool.CompletionRequest) (*llmtool.Completion, error){
		func(req llmtool.CompletionRequest) (*llmtool.Completion, error) {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "generate_output_path",
				Arguments: map[string]any{"output_path": "$.results.summary"},
			}}}, nil
		},
	}}
	g := &pathgen.Generator{Client: client, Model: "gpt-test"}

	path, err := g.SynthesizeOutputPath(context.Background(), "ask", "task", "the result", pathgen.Schema{}, "ok")
	require.NoError(t, err)
	require.Equal(t, "$.results.summary", path)
}

func TestSchemaIsSmall(t *testing.T) {
	small := pathgen.BuildSchema(map[string]any{"a": 1}, nil)
	require.True(t, small.IsSmall())

	big := make(map[string]any, 20)
	for i := 0; i < 20; i++ {
		big[string(rune('a'+i))] = i
	}
	require.False(t, pathgen.BuildSchema(big, nil).IsSmall())
}
