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

package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/engine"
	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/pathgen"
	"github.com/kadirpekel/docflow/pkg/sop"
	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/trace"
)

// fakeClient answers each Complete call by tool-definition name, so each
// test wires only the calls its scenario actually exercises.
type fakeClient struct {
	byToolName map[string]func(llmtool.CompletionRequest) *llmtool.Completion
	plain      *llmtool.Completion
	calls      int
}

func (f *fakeClient) Complete(_ context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	f.calls++
	for _, def := range req.Tools {
		if fn, ok := f.byToolName[def.Name]; ok {
			return fn(req), nil
		}
	}
	if f.plain != nil {
		return f.plain, nil
	}
	return &llmtool.Completion{Content: "{}"}, nil
}

func (f *fakeClient) Embed(context.Context, string) ([]float32, error) { return nil, nil }

type echoTool struct{}

func (echoTool) ID() string { return "echo" }

func (echoTool) Execute(ctx tool.Context) (*tool.Result, error) {
	return &tool.Result{Output: map[string]any{"echoed": ctx.Params["text"]}}, nil
}

func writeDoc(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func selectDoc(docID string) func(llmtool.CompletionRequest) *llmtool.Completion {
	return func(llmtool.CompletionRequest) *llmtool.Completion {
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name: "select_tool_for_task",
			Arguments: map[string]any{
				"can_complete_with_tool": true,
				"selected_tool_doc":      docID,
				"reasoning":              "matches the fallback handler",
			},
		}}}
	}
}

func TestEngineRunResolvesExecutesAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "general/fallback.md", `---
description: "Handles any task no other document covers."
tool:
  tool_id: echo
  parameters:
    text: "{text}"
input_json_path:
  text: "$.input_text"
output_json_path: "$.output_text"
skip_new_task_generation: true
---
Fallback handler body.
`)

	loader := sop.NewLoader(dir)
	client := &fakeClient{byToolName: map[string]func(llmtool.CompletionRequest) *llmtool.Completion{
		"select_tool_for_task": selectDoc("general/fallback"),
	}}
	resolver := sop.NewResolver(loader, client, nil, "test-model")
	generator := &pathgen.Generator{Client: client, Model: "test-model"}
	tracer := trace.New(t.TempDir(), false, nil)

	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	e := engine.New(engine.Options{
		Loader:     loader,
		Resolver:   resolver,
		Generator:  generator,
		Tools:      registry,
		Client:     client,
		Tracer:     tracer,
		Model:      "test-model",
		MaxTasks:   10,
		MaxRetries: 2,
	})
	e.Context["input_text"] = "hello world"

	err := e.Run(context.Background(), "echo hello")
	require.NoError(t, err)

	require.Len(t, e.CompletedTasks, 1)
	output, ok := e.Context["output_text"].(map[string]any)
	require.True(t, ok, "expected $.output_text to hold the tool's output map")
	require.Equal(t, "hello world", output["echoed"])
	require.Equal(t, output, e.LastTaskOutput)
	require.Equal(t, 1, client.calls, "only the fallback tool-selection call should have run")
}

func TestEngineRunFailsClosedOnUnresolvableSOP(t *testing.T) {
	dir := t.TempDir() // empty corpus: no general/fallback document exists to load
	loader := sop.NewLoader(dir)
	client := &fakeClient{byToolName: map[string]func(llmtool.CompletionRequest) *llmtool.Completion{
		"select_tool_for_task": selectDoc("general/fallback"),
	}}
	resolver := sop.NewResolver(loader, client, nil, "test-model")
	generator := &pathgen.Generator{Client: client, Model: "test-model"}
	tracer := trace.New(t.TempDir(), false, nil)

	e := engine.New(engine.Options{
		Loader:    loader,
		Resolver:  resolver,
		Generator: generator,
		Tools:     tool.NewRegistry(),
		Client:    client,
		Tracer:    tracer,
		Model:     "test-model",
		MaxTasks:  10,
	})

	err := e.Run(context.Background(), "do something nobody documented")
	require.Error(t, err)
}

func TestEngineRunStopsAtMaxTasks(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "general/fallback.md", `---
description: "Always generates another task, forever."
tool:
  tool_id: echo
  parameters:
    text: "{text}"
input_json_path:
  text: "$.input_text"
output_json_path: "$.output_text"
---
Loops forever body.
`)

	loader := sop.NewLoader(dir)
	client := &fakeClient{byToolName: map[string]func(llmtool.CompletionRequest) *llmtool.Completion{
		"select_tool_for_task": selectDoc("general/fallback"),
		"extract_new_tasks": func(llmtool.CompletionRequest) *llmtool.Completion {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "extract_new_tasks",
				Arguments: map[string]any{"tasks": []any{"do it again"}},
			}}}
		},
	}}
	resolver := sop.NewResolver(loader, client, nil, "test-model")
	generator := &pathgen.Generator{Client: client, Model: "test-model"}
	tracer := trace.New(t.TempDir(), false, nil)

	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	e := engine.New(engine.Options{
		Loader:     loader,
		Resolver:   resolver,
		Generator:  generator,
		Tools:      registry,
		Client:     client,
		Tracer:     tracer,
		Model:      "test-model",
		MaxTasks:   3,
		MaxRetries: 1,
	})
	e.Context["input_text"] = "hello world"

	err := e.Run(context.Background(), "start the loop")
	require.Error(t, err)
	require.ErrorIs(t, err, engine.ErrMaxTasksExceeded)
}
