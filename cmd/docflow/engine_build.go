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

package main

import (
	"context"
	"fmt"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/docflow/pkg/config"
	"github.com/kadirpekel/docflow/pkg/engine"
	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/observability"
	"github.com/kadirpekel/docflow/pkg/pathgen"
	"github.com/kadirpekel/docflow/pkg/sop"
	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/tool/templatetool"
	"github.com/kadirpekel/docflow/pkg/tool/usertool"
	"github.com/kadirpekel/docflow/pkg/trace"
	"github.com/kadirpekel/docflow/pkg/vector"
)

// chatAndEmbedClient routes Complete to a chat-configured llmtool.Client and
// Embed to a separately-configured (and, here, cache-wrapped) one — the
// resolver's disambiguation calls and its vector-search fallback embeddings
// hit different provider endpoints/models in practice (spec.md §6.4,
// §6.5), but sop.Resolver and pathgen.Generator each take a single Client.
type chatAndEmbedClient struct {
	chat  llmtool.Client
	embed llmtool.Client
}

func (c *chatAndEmbedClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	return c.chat.Complete(ctx, req)
}

func (c *chatAndEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed.Embed(ctx, text)
}

var _ llmtool.Client = (*chatAndEmbedClient)(nil)

// engineCollaborators bundles everything one engine.Engine run needs,
// built from docflow's config file (spec.md §4, §6.4, §6.5).
type engineCollaborators struct {
	opts   engine.Options
	tracer *trace.Tracer
	vec    vector.Provider
}

// buildEngineCollaborators wires an engine.Options from cfg: the SOP
// loader/resolver (spec.md §4.2-4.3), the path generator (spec.md §4.4),
// the bound-tool registry (spec.md §4.7), the LLM client (wrapped in a
// tracing decorator and, for embeddings, an on-disk cache), and the
// Tracer (spec.md §3). obsManager may be nil (tracing/metrics disabled).
func buildEngineCollaborators(ctx context.Context, cfg *config.Config, obsManager *observability.Manager, tracesEnabled bool) (*engineCollaborators, error) {
	vecProvider, err := buildVectorProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build vector provider: %w", err)
	}

	chatClient := llmtool.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)

	embedder := llmtool.NewOpenAIClient(cfg.Embedder.BaseURL, cfg.Embedder.APIKey)
	embedder.EmbeddingModel = cfg.Embedder.Model
	cachedEmbedder := vector.NewCachingClient(embedder, cfg.Embedder.Model, ".cache/embeddings")

	// Resolver.Client needs both Complete (disambiguation calls, against
	// the chat model) and Embed (vector-search fallback, against the
	// embedder model, cached) on one Client value — chatAndEmbedClient
	// routes each to its own configured endpoint.
	combined := &chatAndEmbedClient{chat: chatClient, embed: cachedEmbedder}

	var otelTracer oteltrace.Tracer
	if obsManager != nil {
		otelTracer = obsManager.Tracer("docflow")
	}
	tracer := trace.New(cfg.Orchestrator.TracesDir, tracesEnabled, otelTracer)

	tracedChat := llmtool.NewTracingClient(combined, tracer)

	loader := sop.NewLoader(cfg.Docs)
	resolver := sop.NewResolver(loader, tracedChat, vecProvider, cfg.LLM.Model)
	switch cfg.Resolver.VectorSearchQueryRewriteMode {
	case "off":
		resolver.RewriteMode = sop.RewriteOff
	case "always":
		resolver.RewriteMode = sop.RewriteAlways
	default:
		resolver.RewriteMode = sop.RewriteAuto
	}
	resolver.RewriteThreshold = cfg.Resolver.VectorSearchThreshold

	generator := &pathgen.Generator{Client: tracedChat, Model: cfg.LLM.Model}

	registry := tool.NewRegistry()
	registry.Register(templatetool.Tool{})
	registry.Register(usertool.New())
	registry.Register(&llmtool.Tool{Client: tracedChat, Model: cfg.LLM.Model, Purpose: "task_execution"})

	opts := engine.Options{
		Loader:                loader,
		Resolver:              resolver,
		Generator:             generator,
		Tools:                 registry,
		Client:                tracedChat,
		Tracer:                tracer,
		Model:                 cfg.LLM.Model,
		MaxTasks:              cfg.MaxTasks,
		MaxRetries:            cfg.MaxRetries,
		EnableExecutionPrefix: cfg.EnableExecutionPrefix,
		EnableCompaction:      cfg.EnableCompaction,
	}

	return &engineCollaborators{opts: opts, tracer: tracer, vec: vecProvider}, nil
}

func buildVectorProvider(cfg *config.Config) (vector.Provider, error) {
	vcfg := &vector.ProviderConfig{}
	switch cfg.VectorStore.Provider {
	case "qdrant":
		vcfg.Type = vector.ProviderQdrant
		vcfg.Qdrant = &vector.QdrantConfig{
			Host:   cfg.VectorStore.Addr,
			Port:   6334,
			APIKey: "",
		}
	default:
		vcfg.Type = vector.ProviderChromem
		vcfg.Chromem = &vector.ChromemConfig{PersistPath: cfg.VectorStore.Path}
	}
	vcfg.SetDefaults()
	if err := vcfg.Validate(); err != nil {
		return nil, err
	}
	return vector.NewProvider(vcfg)
}
