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

package sop_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/sop"
	"github.com/kadirpekel/docflow/pkg/vector"
)

// fakeClient answers disambiguation/tool-selection/rewrite calls with
// whatever the test configured, counting how many times Embed was called.
type fakeClient struct {
	completeFn func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error)
	embedding  []float32
	embedErr   error
	embedCalls int
}

func (f *fakeClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	return f.completeFn(ctx, req)
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

// fakeVector returns a fixed result set regardless of the query vector.
type fakeVector struct {
	results []vector.Result
	err     error
}

func (f *fakeVector) Name() string { return "fake" }
func (f *fakeVector) Upsert(context.Context, string, string, []float32, map[string]any) error {
	return nil
}
func (f *fakeVector) Search(context.Context, string, []float32, int) ([]vector.Result, error) {
	return f.results, f.err
}
func (f *fakeVector) SearchWithFilter(context.Context, string, []float32, int, map[string]any) ([]vector.Result, error) {
	return f.results, f.err
}
func (f *fakeVector) Delete(context.Context, string, string) error             { return nil }
func (f *fakeVector) DeleteByFilter(context.Context, string, map[string]any) error { return nil }
func (f *fakeVector) CreateCollection(context.Context, string, int) error      { return nil }
func (f *fakeVector) DeleteCollection(context.Context, string) error           { return nil }
func (f *fakeVector) Close() error                                            { return nil }

var _ vector.Provider = (*fakeVector)(nil)
var _ llmtool.Client = (*fakeClient)(nil)

func newLoaderWithDocs(t *testing.T, docs map[string]string) *sop.Loader {
	t.Helper()
	root := t.TempDir()
	for relPath, content := range docs {
		full := filepath.Join(root, relPath+".md")
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return sop.NewLoader(root)
}

const bashDoc = `---
description: "Runs a shell command"
tool:
  tool_id: BASH
---

## Body

run it
`

const deployDoc = `---
description: "Deploys the service"
tool:
  tool_id: DEPLOY
---

## Body

deploy it
`

func TestResolveSingleLexicalCandidateWithExplicitReferenceSkipsLLM(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{"tools/bash": bashDoc})
	client := &fakeClient{completeFn: func(context.Context, llmtool.CompletionRequest) (*llmtool.Completion, error) {
		t.Fatal("LLM should not be called for an explicit reference")
		return nil, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "follow `tools/bash` to run this", nil)
	require.NoError(t, err)
	require.Equal(t, "tools/bash", res.DocID)
}

func TestResolveExplicitReferenceWithMarkdownExtensionSkipsLLM(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{"tools/bash": bashDoc})
	client := &fakeClient{completeFn: func(context.Context, llmtool.CompletionRequest) (*llmtool.Completion, error) {
		t.Fatal("LLM should not be called for an explicit .md reference")
		return nil, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "Follow tools/bash.md to run this", nil)
	require.NoError(t, err)
	require.Equal(t, "tools/bash", res.DocID)
}

func TestResolveMultipleCandidatesUsesDisambiguation(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{
		"tools/bash":   bashDoc,
		"tools/deploy": deployDoc,
	})
	client := &fakeClient{completeFn: func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		return &llmtool.Completion{Content: "<doc_id>tools/deploy</doc_id>"}, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "either tools/bash or tools/deploy could do the thing", nil)
	require.NoError(t, err)
	require.Equal(t, "tools/deploy", res.DocID)
}

func TestResolveDisambiguationNoneFallsThroughToToolSelection(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{
		"tools/bash":   bashDoc,
		"tools/deploy": deployDoc,
	})
	calls := 0
	client := &fakeClient{completeFn: func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		calls++
		if calls == 1 {
			return &llmtool.Completion{Content: "<doc_id>NONE</doc_id>"}, nil
		}
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": true, "selected_tool_doc": "tools/bash"},
		}}}, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "either tools/bash or tools/deploy could do the thing", []string{"tools/bash", "tools/deploy"})
	require.NoError(t, err)
	require.Equal(t, "tools/bash", res.DocID)
	require.Equal(t, 2, calls)
}

func TestResolveNoCandidatesRunsToolSelectionFallback(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{"tools/bash": bashDoc})
	client := &fakeClient{completeFn: func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": true, "selected_tool_doc": "tools/bash"},
		}}}, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "do something unrelated", []string{"tools/bash"})
	require.NoError(t, err)
	require.Equal(t, "tools/bash", res.DocID)
}

func TestResolveToolSelectionOutsideEnumErrors(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{"tools/bash": bashDoc})
	client := &fakeClient{completeFn: func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": false, "selected_tool_doc": "tools/not-an-option"},
		}}}, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	_, err := r.Resolve(context.Background(), "do something unrelated", []string{"tools/bash"})
	require.Error(t, err)
}

func TestResolveToolSelectionCommunicateCarriesMessage(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{})
	client := &fakeClient{completeFn: func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name: "select_tool_for_task",
			Arguments: map[string]any{
				"can_complete_with_tool": true,
				"selected_tool_doc":      "tools/web_user_communicate",
				"message_to_user":        "Please clarify your request.",
			},
		}}}, nil
	}}
	r := sop.NewResolver(loader, client, nil, "gpt-test")

	res, err := r.Resolve(context.Background(), "huh?", []string{"tools/web_user_communicate"})
	require.NoError(t, err)
	require.Equal(t, "tools/web_user_communicate", res.DocID)
	require.Equal(t, "Please clarify your request.", res.MessageToUser)
}

func TestResolveVectorFallbackUsedWhenNoLexicalCandidates(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{"tools/bash": bashDoc})
	client := &fakeClient{embedding: []float32{0.1, 0.2, 0.3}}
	client.completeFn = func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		require.Contains(t, req.Messages[1].Content, "tools/bash")
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": true, "selected_tool_doc": "tools/bash"},
		}}}, nil
	}
	vec := &fakeVector{results: []vector.Result{{ID: "tools/bash", Score: 0.9, Metadata: map[string]any{"doc_id": "tools/bash"}}}}
	r := sop.NewResolver(loader, client, vec, "gpt-test")
	r.RewriteMode = sop.RewriteOff

	res, err := r.Resolve(context.Background(), "completely unrelated phrasing", nil)
	require.NoError(t, err)
	require.Equal(t, "tools/bash", res.DocID)
	require.Equal(t, 1, client.embedCalls)
}

func TestResolveRewriteAutoTriggersBelowThreshold(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{})
	rewriteCalls := 0
	client := &fakeClient{embedding: []float32{0.1}}
	client.completeFn = func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		rewriteCalls++
		if rewriteCalls == 1 {
			return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
				Name:      "rewrite_sop_query",
				Arguments: map[string]any{"query": "a rewritten query"},
			}}}, nil
		}
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": true, "selected_tool_doc": "general/plan"},
		}}}, nil
	}
	vec := &fakeVector{results: []vector.Result{{ID: "x", Score: 0.1, Metadata: map[string]any{"doc_id": "general/plan"}}}}
	r := sop.NewResolver(loader, client, vec, "gpt-test")
	r.RewriteMode = sop.RewriteAuto
	r.RewriteThreshold = 0.5

	res, err := r.Resolve(context.Background(), "obscure task", []string{"general/plan"})
	require.NoError(t, err)
	require.Equal(t, "general/plan", res.DocID)
	require.Equal(t, 2, client.embedCalls) // primary + rewritten-query searches
	require.Equal(t, 2, rewriteCalls)
}

func TestResolveVectorSearchErrorIsNonFatal(t *testing.T) {
	loader := newLoaderWithDocs(t, map[string]string{})
	client := &fakeClient{embedding: []float32{0.1}}
	client.completeFn = func(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
		return &llmtool.Completion{ToolCalls: []llmtool.ToolCall{{
			Name:      "select_tool_for_task",
			Arguments: map[string]any{"can_complete_with_tool": true, "selected_tool_doc": "general/plan"},
		}}}, nil
	}
	r := sop.NewResolver(loader, client, &fakeVector{err: context.DeadlineExceeded}, "gpt-test")
	res, err := r.Resolve(context.Background(), "obscure task", []string{"general/plan"})
	require.NoError(t, err)
	require.Equal(t, "general/plan", res.DocID)
}
