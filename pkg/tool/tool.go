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

// Package tool defines the contract bound by SOP documents and invoked by
// the execution engine (spec §4.7).
//
// A Tool is identified by a stable tool_id referenced from SOP document
// front matter. The engine resolves parameters from Context via the
// resolved json paths, calls Execute, and — on a validation failure —
// consults the tool's RetryStrategy before giving up.
package tool

import (
	"context"
	"fmt"
)

// Context carries the per-invocation state a tool needs: the task's
// resolved parameters live in Params, and the engine's shared Context map
// (spec §3 Context) is available read-only via Shared so tools that need
// more than their declared parameters can still reach it.
type Context struct {
	context.Context

	// TaskID identifies the task this invocation belongs to.
	TaskID string

	// Params holds the resolved input parameters for this call, keyed by
	// the parameter names declared in the SOP document's tool.parameters.
	Params map[string]any

	// Shared is the engine's running Context map (read-only view).
	Shared map[string]any

	// SOPDocBody is the bound SOP document's raw markdown body (spec §4.7:
	// "execute(params, sop_doc_body?, **extra)"). Tools that render the
	// document body itself as a template (pkg/tool/templatetool) read it
	// here instead of through Params.
	SOPDocBody string
}

// Result is the outcome of a single tool invocation.
type Result struct {
	// Output is the raw value returned by the tool, written into Context
	// at the task's resolved output_json_path.
	Output map[string]any

	// Error is non-nil when execution failed. A failed result may still
	// carry partial Output for diagnostic purposes.
	Error error
}

// Tool is the contract every callable tool implements.
type Tool interface {
	// ID returns the stable tool_id referenced by SOP documents.
	ID() string

	// Execute runs the tool against the given invocation context.
	Execute(ctx Context) (*Result, error)
}

// ResultValidator is implemented by tools whose output benefits from a
// semantic validity check beyond "did Execute return an error" — e.g. a
// shell tool whose exit code is zero but whose stdout signals failure.
// The engine calls Validate once per attempt before accepting a result.
type ResultValidator interface {
	Validate(result *Result) error
}

// ValidationHinter is implemented by tools that can describe, in prose,
// what went wrong with a rejected result so a retry strategy can fold
// that hint back into the next attempt's prompt or parameters (spec §4.7,
// AppendValidationHint strategy).
type ValidationHinter interface {
	GetResultValidationHint(result *Result, validationErr error) string
}

// RetryStrategy controls how many times, and how, a failed tool call is
// retried. The engine constructs one attempt loop of 1+MaxAttempts calls
// per task, deferring to the strategy after every rejected attempt.
type RetryStrategy interface {
	// MaxAttempts returns the number of retry attempts (not counting the
	// first try) this strategy allows.
	MaxAttempts() int

	// PrepareRetry is called before each retry with the previous attempt's
	// params, result, and the error/hint that caused the retry; it
	// returns the params to use for the next attempt.
	PrepareRetry(prevParams map[string]any, prevResult *Result, hint string) map[string]any
}

// SimpleRetry retries with the exact same parameters, unmodified.
type SimpleRetry struct {
	Attempts int
}

func (s SimpleRetry) MaxAttempts() int { return s.Attempts }

func (s SimpleRetry) PrepareRetry(prevParams map[string]any, _ *Result, _ string) map[string]any {
	return prevParams
}

// AppendValidationHintRetry folds the validator's hint into a reserved
// "_validation_hint" parameter so a tool that synthesizes its own input
// (e.g. an LLM-backed tool) can see what was wrong with its last attempt.
type AppendValidationHintRetry struct {
	Attempts int
}

func (a AppendValidationHintRetry) MaxAttempts() int { return a.Attempts }

func (a AppendValidationHintRetry) PrepareRetry(prevParams map[string]any, _ *Result, hint string) map[string]any {
	next := make(map[string]any, len(prevParams)+1)
	for k, v := range prevParams {
		next[k] = v
	}
	next["_validation_hint"] = hint
	return next
}

// Registry is a lookup table from tool_id to Tool, consulted by the
// engine when resolving a task's bound tool (spec §4.1, §4.7).
type Registry struct {
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous registration for the same
// tool_id.
func (r *Registry) Register(t Tool) {
	r.tools[t.ID()] = t
}

// Get returns the tool registered under id, or an error if none is bound.
func (r *Registry) Get(id string) (Tool, error) {
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, id)
	}
	return t, nil
}

// IDs returns the set of registered tool identifiers, for the
// enum-constrained `select_tool_for_task` function schema used by the
// resolver's no-candidate fallback (spec §4.3).
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}
