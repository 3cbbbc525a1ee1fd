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

// Package config loads docflow's root configuration from YAML, expanding
// ${VAR} references against the process environment instead of the
// original implementation's scattered os.getenv() calls (spec.md §9).
package config

import (
	"fmt"

	"github.com/kadirpekel/docflow/pkg/observability"
)

// Config is the root configuration for a docflow engine/orchestrator
// process, loaded via Loader.Load.
type Config struct {
	// Docs is the directory of SOP markdown documents (spec.md §3, §4.2).
	Docs string `yaml:"docs"`

	// MaxTasks bounds the total number of tasks an engine run may execute
	// (spec.md §3 Engine state, default 50 per the original settings.py).
	MaxTasks int `yaml:"max_tasks"`

	// MaxRetries bounds per-task retry attempts after a recoverable
	// TaskInputMissingError (spec.md §3, default 3).
	MaxRetries int `yaml:"max_retries"`

	// EnableCompaction gates sub-tree compaction (spec.md §4.6, §9 Open
	// Question 2 — defaults false).
	EnableCompaction bool `yaml:"enable_compaction"`

	// EnableExecutionPrefix gates the execution-prefix path rewriting
	// policy (spec.md §9 Open Question 1 — defaults false).
	EnableExecutionPrefix bool `yaml:"enable_execution_prefix"`

	Resolver     ResolverConfig     `yaml:"resolver"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Server       ServerConfig       `yaml:"server"`
	Logger       LoggerConfig       `yaml:"logger"`

	// Observability configures the OTel tracer and Prometheus metrics.
	// The serve subcommand builds an observability.Manager from it and
	// shuts it down on exit; that manager is not passed to the orchestrator
	// or the HTTP API, and the run subcommand builds the engine without
	// one. Zero-valued (both tracing and metrics disabled) unless a config
	// file opts in.
	Observability observability.Config `yaml:"observability"`
}

// ResolverConfig controls the SOP resolver's vector-search fallback
// (spec.md §4.3 point 5).
type ResolverConfig struct {
	// VectorSearchQueryRewriteMode is one of "off", "auto", "always"
	// (SOP_VECTOR_SEARCH_QUERY_REWRITE_MODE, spec.md §6.5). Defaults "auto".
	VectorSearchQueryRewriteMode string `yaml:"vector_search_query_rewrite_mode"`

	// VectorSearchThreshold is the resolver's RewriteThreshold: in "auto"
	// mode the query is rewritten when the top vector-search score is
	// below it. Defaults 0.5.
	VectorSearchThreshold float64 `yaml:"vector_search_threshold"`
}

// OrchestratorConfig controls the job orchestrator (spec.md §4.8, §6.1).
type OrchestratorConfig struct {
	// MaxParallelJobs bounds concurrently RUNNING jobs (default 2).
	MaxParallelJobs int `yaml:"max_parallel_jobs"`

	JobsDir      string `yaml:"jobs_dir"`
	TracesDir    string `yaml:"traces_dir"`
	SchedulesDir string `yaml:"schedules_dir"`

	// RunnerModule is the command used to launch one job subprocess, split
	// on whitespace into an argv prefix. Empty (the default) means the
	// docflow binary's own "run" subcommand.
	RunnerModule string `yaml:"runner_module"`

	// JobStartupTimeoutSeconds / JobShutdownTimeoutSeconds default to
	// 30 / 10. No component reads the startup value. The serve subcommand
	// bounds the HTTP server's graceful shutdown with the shutdown value and
	// passes it to orchestrator.NewManager, which stores it but does not
	// wait on it: CancelJob sends SIGTERM and returns.
	JobStartupTimeoutSeconds  int `yaml:"job_startup_timeout_seconds"`
	JobShutdownTimeoutSeconds int `yaml:"job_shutdown_timeout_seconds"`

	// BindAddr is the HTTP listen address for the orchestrator surface
	// (spec.md §6.2).
	BindAddr string `yaml:"bind_addr"`
}

// LLMConfig configures the OpenAI-compatible chat-completions endpoint
// used for SOP disambiguation, path generation, and new-task parsing
// (spec.md §6.4).
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// EmbedderConfig configures the embeddings endpoint used by the resolver's
// vector-search fallback (spec.md §6.4).
type EmbedderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// VectorStoreConfig selects and configures the vector-store backend for
// the SOP similarity fallback (spec.md §4.3 point 5, SPEC_FULL.md DOMAIN
// STACK).
type VectorStoreConfig struct {
	// Provider is "chromem" (default, embedded) or "qdrant".
	Provider  string `yaml:"provider"`
	Path      string `yaml:"path"`       // chromem: on-disk persistence directory
	Addr      string `yaml:"addr"`       // qdrant: gRPC address
	Collection string `yaml:"collection"`
}

// ServerConfig holds the server.addr setting. No subcommand reads it: serve
// listens on its --addr flag or, when that is empty,
// orchestrator.bind_addr.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggerConfig holds the logger.level / logger.format settings. No
// subcommand reads them: the logger is set up from the --log-* flags and
// the LOG_LEVEL, LOG_FILE and LOG_FORMAT environment variables.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SetDefaults fills zero-valued fields with docflow's documented defaults.
func (c *Config) SetDefaults() {
	if c.Docs == "" {
		c.Docs = "sop_docs"
	}
	if c.MaxTasks == 0 {
		c.MaxTasks = 50
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Resolver.VectorSearchQueryRewriteMode == "" {
		c.Resolver.VectorSearchQueryRewriteMode = "auto"
	}
	if c.Resolver.VectorSearchThreshold == 0 {
		c.Resolver.VectorSearchThreshold = 0.5
	}
	if c.Orchestrator.MaxParallelJobs == 0 {
		c.Orchestrator.MaxParallelJobs = 2
	}
	if c.Orchestrator.JobsDir == "" {
		c.Orchestrator.JobsDir = "jobs"
	}
	if c.Orchestrator.TracesDir == "" {
		c.Orchestrator.TracesDir = "traces"
	}
	if c.Orchestrator.SchedulesDir == "" {
		c.Orchestrator.SchedulesDir = "schedules"
	}
	if c.Orchestrator.JobStartupTimeoutSeconds == 0 {
		c.Orchestrator.JobStartupTimeoutSeconds = 30
	}
	if c.Orchestrator.JobShutdownTimeoutSeconds == 0 {
		c.Orchestrator.JobShutdownTimeoutSeconds = 10
	}
	if c.Orchestrator.BindAddr == "" {
		c.Orchestrator.BindAddr = ":8080"
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "sop_docs"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "simple"
	}
	c.Observability.SetDefaults()
}

// Validate rejects configurations docflow cannot run with.
func (c *Config) Validate() error {
	if c.MaxTasks <= 0 {
		return fmt.Errorf("max_tasks must be positive, got %d", c.MaxTasks)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	switch c.Resolver.VectorSearchQueryRewriteMode {
	case "off", "auto", "always":
	default:
		return fmt.Errorf("resolver.vector_search_query_rewrite_mode must be one of off|auto|always, got %q", c.Resolver.VectorSearchQueryRewriteMode)
	}
	if c.Resolver.VectorSearchThreshold < 0 || c.Resolver.VectorSearchThreshold > 1 {
		return fmt.Errorf("resolver.vector_search_threshold must be within [0,1], got %f", c.Resolver.VectorSearchThreshold)
	}
	if c.Orchestrator.MaxParallelJobs <= 0 {
		return fmt.Errorf("orchestrator.max_parallel_jobs must be positive, got %d", c.Orchestrator.MaxParallelJobs)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vector_store.provider must be chromem|qdrant, got %q", c.VectorStore.Provider)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}
