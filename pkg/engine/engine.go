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

// Package engine implements the recursive task-execution loop of spec.md
// §4.1: a LIFO stack of task descriptions, each resolved against the SOP
// corpus, bound to a tool, executed, and (unless the bound SOP says
// otherwise) mined for further tasks to push back onto the stack. The loop
// is single-threaded by design (spec.md §5) — an Engine instance belongs
// to exactly one running job.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/pathgen"
	"github.com/kadirpekel/docflow/pkg/sop"
	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/trace"
)

// placeholderPattern matches a "{name}" tool-parameter reference.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Options bundles an Engine's fixed collaborators and tunables. Client
// should already be wrapped with llmtool.NewTracingClient if Tracer is
// non-nil, so every LLM call the loop makes — directly, or indirectly via
// Resolver/Generator — lands in the trace.
type Options struct {
	Loader    *sop.Loader
	Resolver  *sop.Resolver
	Generator *pathgen.Generator
	Tools     *tool.Registry
	Client    llmtool.Client
	Tracer    *trace.Tracer
	Model     string

	MaxTasks              int
	MaxRetries            int
	EnableExecutionPrefix bool
	EnableCompaction      bool
}

// Engine owns one run's mutable state: the running Context map every task
// reads and writes, the LIFO task stack, and the bookkeeping the main loop
// needs to bound retries and tasks (spec.md §3 "Engine state").
type Engine struct {
	loader    *sop.Loader
	resolver  *sop.Resolver
	generator *pathgen.Generator
	tools     *tool.Registry
	client    llmtool.Client
	tracer    *trace.Tracer
	model     string

	maxTasks              int
	maxRetries            int
	enableExecutionPrefix bool
	enableCompaction      bool

	Context              map[string]any
	taskStack            []*PendingTask
	CompletedTasks       map[string]*Task
	TaskShortNameMap     map[string]string
	TaskExecutionCounter int
	TaskRetryCount       map[string]int
	LastTaskOutput       any
}

// New constructs an Engine ready to Run a single job.
func New(opts Options) *Engine {
	maxTasks := opts.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 50
	}
	return &Engine{
		loader:                opts.Loader,
		resolver:              opts.Resolver,
		generator:             opts.Generator,
		tools:                 opts.Tools,
		client:                opts.Client,
		tracer:                opts.Tracer,
		model:                 opts.Model,
		maxTasks:              maxTasks,
		maxRetries:            opts.MaxRetries,
		enableExecutionPrefix: opts.EnableExecutionPrefix,
		enableCompaction:      opts.EnableCompaction,
		Context:               map[string]any{},
		CompletedTasks:        map[string]*Task{},
		TaskShortNameMap:      map[string]string{},
		TaskRetryCount:        map[string]int{},
	}
}

func (e *Engine) push(p *PendingTask) { e.taskStack = append(e.taskStack, p) }

func (e *Engine) pop() *PendingTask {
	n := len(e.taskStack)
	p := e.taskStack[n-1]
	e.taskStack = e.taskStack[:n-1]
	return p
}

func (e *Engine) stackDescriptions() []string {
	out := make([]string, len(e.taskStack))
	for i, p := range e.taskStack {
		out[i] = p.Description
	}
	return out
}

func (e *Engine) snapshotContext() map[string]any {
	snap := make(map[string]any, len(e.Context))
	for k, v := range e.Context {
		snap[k] = v
	}
	return snap
}

// Run executes initialTask and everything it (transitively) spawns until
// the task stack is exhausted (spec.md §4.1).
func (e *Engine) Run(ctx context.Context, initialTask string) error {
	e.push(NewPendingTask(initialTask))

	ctx, _ = e.tracer.StartSession(ctx, initialTask)

	for len(e.taskStack) > 0 {
		if e.TaskExecutionCounter >= e.maxTasks {
			e.tracer.EndSession(trace.StatusFailed)
			return fmt.Errorf("%w: limit %d", ErrMaxTasksExceeded, e.maxTasks)
		}

		pending := e.pop()
		e.tracer.CaptureEngineState("before_resolve", e.stackDescriptions(), e.snapshotContext(), e.TaskExecutionCounter)

		task, err := e.resolveAndCreate(ctx, pending)
		if err != nil {
			var missing *TaskInputMissingError
			if errors.As(err, &missing) {
				if handled := e.retryOrFailCreation(ctx, pending, missing); handled != nil {
					e.tracer.EndSession(trace.StatusFailed)
					return handled
				}
				continue
			}
			e.tracer.EndSession(trace.StatusFailed)
			return fmt.Errorf("creating task %s: %w", pending.TaskID, err)
		}
		delete(e.TaskRetryCount, pending.TaskID)

		if err := e.execute(ctx, task); err != nil {
			e.tracer.EndSession(trace.StatusFailed)
			return fmt.Errorf("executing task %s: %w", task.TaskID, err)
		}
	}

	e.tracer.EndSession(trace.StatusCompleted)
	return nil
}

// retryOrFailCreation applies spec.md §4.1's missing-input recovery policy:
// push the failed task back under a fresh LLM-authored recovery task, up to
// maxRetries times, after which creation is abandoned for good. The stored
// retry count never exceeds maxRetries — the abandoning attempt is counted
// against the limit but not persisted past it (spec.md §8:
// "task_retry_count[id] <= max_retries").
func (e *Engine) retryOrFailCreation(ctx context.Context, pending *PendingTask, missing *TaskInputMissingError) error {
	count := e.TaskRetryCount[pending.TaskID] + 1
	if count > e.maxRetries {
		return &TaskCreationError{TaskID: pending.TaskID, Cause: missing}
	}
	e.TaskRetryCount[pending.TaskID] = count

	slog.Warn("engine: retrying task after missing input",
		"task_id", pending.TaskID, "field", missing.Field, "attempt", count)

	e.push(pending)
	recovery := childPendingTask(e.recoveryDescription(ctx, pending, missing), pending.TaskID, "recovery")
	e.push(recovery)
	return nil
}

// recoveryDescription asks the LLM to produce the recovery task's
// description, templated with the missing field's name and description plus
// the running context (spec.md §4.1 step 6;
// original_source/doc_execute_engine.py:generate_recovery_task). A
// completion failure falls back to a static template rather than aborting
// the run.
func (e *Engine) recoveryDescription(ctx context.Context, pending *PendingTask, missing *TaskInputMissingError) string {
	fallback := fmt.Sprintf(
		"Gather the missing input %q (%s) needed to complete: %s",
		missing.Field, missing.Description, pending.Description,
	)
	if e.client == nil {
		return fallback
	}

	contextJSON, _ := json.Marshal(e.snapshotContext())
	req := llmtool.CompletionRequest{
		Model: e.model,
		Messages: []llmtool.Message{
			{Role: "system", Content: "Write a short task description for gathering one missing input so the original task can proceed. Reply with the task description only, no preamble."},
			{Role: "user", Content: fmt.Sprintf(
				"Missing field: %s\nField description: %s\nOriginal task: %s\nCurrent context: %s",
				missing.Field, missing.Description, pending.Description, contextJSON,
			)},
		},
	}

	completion, err := e.client.Complete(ctx, req)
	if err != nil {
		slog.Warn("engine: recovery description call failed, using fallback template", "error", err)
		return fallback
	}
	description := strings.TrimSpace(completion.Content)
	if description == "" {
		return fallback
	}
	return description
}

// loadDocs loads the full corpus into a doc_id-keyed map, and separately
// returns the subset whose doc_id is rooted at "tools/" — the enum the
// no-candidate SOP-resolution fallback offers (spec.md §4.3).
func (e *Engine) loadDocs() (map[string]*sop.Document, []string, error) {
	all, err := e.loader.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	docs := make(map[string]*sop.Document, len(all))
	var toolDocIDs []string
	for _, d := range all {
		docs[d.DocID] = d
		if strings.HasPrefix(d.DocID, "tools/") {
			toolDocIDs = append(toolDocIDs, d.DocID)
		}
	}
	return docs, toolDocIDs, nil
}

// resolveAndCreate turns a PendingTask into an executable Task: resolve its
// SOP document, bind its tool, and synthesize extraction paths for any
// input field the document doesn't already pin (spec.md §4.3, §4.4).
func (e *Engine) resolveAndCreate(ctx context.Context, pending *PendingTask) (*Task, error) {
	e.Context["current_task"] = pending.Description

	docs, toolDocIDs, err := e.loadDocs()
	if err != nil {
		return nil, fmt.Errorf("%w: loading corpus: %v", ErrUnresolvableSOP, err)
	}

	ctx = e.tracer.StartPhase(ctx, "sop_resolution")
	e.tracer.StartDocumentSelection()
	resolution, err := e.resolver.Resolve(ctx, pending.Description, toolDocIDs)
	selected := ""
	if resolution != nil {
		selected = resolution.DocID
	}
	e.tracer.EndDocumentSelection(nil, selected, err)
	e.tracer.EndPhase(err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvableSOP, err)
	}

	ctx = e.tracer.StartPhase(ctx, "task_creation")

	doc, ok := docs[resolution.DocID]
	if !ok {
		doc, err = e.loader.Load(resolution.DocID)
		if err != nil {
			e.tracer.EndPhase(err)
			return nil, fmt.Errorf("%w: %v", ErrUnresolvableSOP, err)
		}
	}

	if doc.Tool.ToolID != "" {
		if _, err := e.tools.Get(doc.Tool.ToolID); err != nil {
			toolErr := &UnknownToolError{ToolID: doc.Tool.ToolID, DocID: resolution.DocID}
			e.tracer.EndPhase(toolErr)
			return nil, toolErr
		}
	}

	task := newTaskFromDoc(pending, resolution.DocID, doc, resolution.MessageToUser)
	e.TaskShortNameMap[task.TaskID] = task.ShortName

	if task.RequiresPlanningMetadata {
		pm, err := e.resolver.BuildPlanningMetadata(ctx, pending.Description, toolDocIDs, docs)
		if err != nil {
			slog.Warn("engine: building planning metadata failed", "task_id", task.TaskID, "error", err)
		} else {
			task.planningMetadata = pm
		}
	}

	if err := e.synthesizeMissingInputs(ctx, pending, task); err != nil {
		e.tracer.EndPhase(err)
		return nil, err
	}

	e.tracer.EndPhase(nil)
	return task, nil
}

// synthesizeMissingInputs fills task.InputJSONPath for every input field
// the document declares a description for but no path for, dispatching to
// the generator's one-by-one or batch mode per spec.md §4.4/§4.4a.
func (e *Engine) synthesizeMissingInputs(ctx context.Context, pending *PendingTask, task *Task) error {
	missing := map[string]string{}
	for field, desc := range task.InputDescription {
		if _, has := task.InputJSONPath[field]; has {
			continue
		}
		missing[field] = desc
	}
	if len(missing) == 0 {
		return nil
	}

	schema := pathgen.BuildSchema(e.Context, nil)

	if len(missing) == 1 {
		for field, desc := range missing {
			e.tracer.StartInputFieldExtraction(field, desc)
			extraction, err := e.generator.SynthesizeField(ctx, pending.Description, task.ShortName, desc, schema, e.Context)
			if err != nil {
				e.tracer.EndInputFieldExtraction(field, nil, "", nil, err)
				return fmt.Errorf("synthesizing input %q: %w", field, err)
			}
			if err := e.bindExtractedField(task, field, extraction); err != nil {
				e.tracer.EndInputFieldExtraction(field, nil, extractionPath(extraction), nil, err)
				return err
			}
			e.tracer.EndInputFieldExtraction(field, e.Context[lastTempKey(task, field)], extractionPath(extraction), nil, nil)
		}
		return nil
	}

	e.tracer.StartBatchInputFieldExtraction(missing)
	extractions, err := e.generator.SynthesizeBatch(ctx, pending.Description, task.ShortName, missing, schema, e.Context)
	if err != nil {
		e.tracer.EndBatchInputFieldExtraction(nil, nil, nil, err)
		return fmt.Errorf("synthesizing batch inputs: %w", err)
	}

	extractedValues := map[string]string{}
	generatedPaths := map[string]string{}
	for field, extraction := range extractions {
		if err := e.bindExtractedField(task, field, extraction); err != nil {
			e.tracer.EndBatchInputFieldExtraction(nil, extractedValues, generatedPaths, err)
			return err
		}
		extractedValues[field] = fmt.Sprintf("%v", e.Context[lastTempKey(task, field)])
		if p := extractionPath(extraction); p != "" {
			generatedPaths[field] = p
		}
	}
	e.tracer.EndBatchInputFieldExtraction(nil, extractedValues, generatedPaths, nil)
	return nil
}

// bindExtractedField evaluates extraction against the running context,
// stashes its value under a private temp key, and points the task's
// input_json_path at that key — or returns a TaskInputMissingError if the
// extraction itself reports the field can't be filled (spec.md §4.4 step 3).
func (e *Engine) bindExtractedField(task *Task, field string, extraction pathgen.Extraction) error {
	value, isMissing, reason, err := pathgen.EvaluateField(extraction, e.Context)
	if err != nil {
		return fmt.Errorf("evaluating extraction for %q: %w", field, err)
	}
	if isMissing {
		return &TaskInputMissingError{Field: field, Description: reason}
	}
	key := tempInputKey(task.TaskID, field)
	e.Context[key] = value
	task.InputJSONPath[field] = fmt.Sprintf("$.['%s']", key)
	return nil
}

func tempInputKey(taskID, field string) string {
	return fmt.Sprintf("_temp_input_%s_%s", taskID, field)
}

func lastTempKey(task *Task, field string) string { return tempInputKey(task.TaskID, field) }

func extractionPath(e pathgen.Extraction) string {
	if e.Kind == pathgen.KindPathRead {
		return e.Path
	}
	return ""
}

// execute runs a bound Task: resolve its inputs, render tool parameters,
// invoke the tool, write the result into context, and (unless the document
// opts out) mine the result for follow-up tasks (spec.md §4.1 step 4).
func (e *Engine) execute(ctx context.Context, task *Task) error {
	counter := e.TaskExecutionCounter
	ctx, _ = e.tracer.StartTaskExecution(ctx, task.TaskID, task.Description, counter, e.snapshotContext())
	e.TaskExecutionCounter++

	result, err := e.runTaskExecutionPhase(ctx, task)
	if err != nil {
		e.tracer.EndTaskExecution(e.snapshotContext(), trace.StatusFailed, err)
		return err
	}

	if err := e.runContextUpdatePhase(ctx, task, result); err != nil {
		e.tracer.EndTaskExecution(e.snapshotContext(), trace.StatusFailed, err)
		return err
	}

	e.CompletedTasks[task.TaskID] = task

	genErr := e.runNewTaskGenerationPhase(ctx, task, result)
	status := trace.StatusCompleted
	if genErr != nil {
		status = trace.StatusFailed
	}
	e.tracer.EndTaskExecution(e.snapshotContext(), status, genErr)
	return genErr
}

func (e *Engine) runTaskExecutionPhase(ctx context.Context, task *Task) (*tool.Result, error) {
	ctx = e.tracer.StartPhase(ctx, "task_execution")

	params := make(map[string]any, len(task.InputJSONPath))
	for field, path := range task.InputJSONPath {
		value, ok, err := pathgen.Get(e.Context, path)
		if err != nil {
			err = fmt.Errorf("resolving input %q at %q: %w", field, path, err)
			e.tracer.EndPhase(err)
			return nil, err
		}
		if !ok {
			err := fmt.Errorf("input %q: path %q not found in context", field, path)
			e.tracer.EndPhase(err)
			return nil, err
		}
		params[field] = value
	}

	toolParams := renderToolParams(task.ToolParameters, params)
	if task.RequiresPlanningMetadata && task.planningMetadata != nil {
		toolParams["available_tool_docs_xml"] = task.planningMetadata.AvailableToolDocsMarkdown
		toolParams["available_tool_docs_json"] = task.planningMetadata.AvailableToolDocsJSON
		toolParams["vector_tool_suggestions_xml"] = task.planningMetadata.VectorSuggestionsMarkdown
		toolParams["vector_tool_suggestions_json"] = task.planningMetadata.VectorSuggestionsJSON
	}

	result, err := e.invokeTool(ctx, task, toolParams)
	e.tracer.EndPhase(err)
	if err != nil {
		return nil, fmt.Errorf("invoking tool %q: %w", task.ToolID, err)
	}
	return result, nil
}

func (e *Engine) runContextUpdatePhase(ctx context.Context, task *Task, result *tool.Result) error {
	ctx = e.tracer.StartPhase(ctx, "context_update")

	outputPath := task.OutputJSONPath
	if outputPath == "" && task.OutputDescription != "" {
		schema := pathgen.BuildSchema(e.Context, nil)
		e.tracer.StartOutputPathGeneration()
		generated, err := e.generator.SynthesizeOutputPath(ctx, task.Description, task.ShortName, task.OutputDescription, schema, result.Output)
		prefixed := generated
		if e.enableExecutionPrefix && generated != "" {
			prefixed = pathgen.ApplyExecutionPrefix(generated, e.TaskExecutionCounter)
		}
		e.tracer.EndOutputPathGeneration(generated, prefixed, err)
		if err != nil {
			e.tracer.EndPhase(err)
			return fmt.Errorf("synthesizing output path: %w", err)
		}
		outputPath = prefixed
	} else if outputPath != "" && e.enableExecutionPrefix {
		outputPath = pathgen.ApplyExecutionPrefix(outputPath, e.TaskExecutionCounter)
	}

	if outputPath != "" {
		if err := pathgen.Set(e.Context, outputPath, result.Output); err != nil {
			err = fmt.Errorf("writing output to %q: %w", outputPath, err)
			e.tracer.EndPhase(err)
			return err
		}
		task.OutputJSONPath = outputPath
	}

	e.Context["last_task_output"] = result.Output
	e.LastTaskOutput = result.Output

	for k := range e.Context {
		if strings.HasPrefix(k, "_temp_input_") {
			delete(e.Context, k)
		}
	}

	e.tracer.EndPhase(nil)
	return nil
}

func (e *Engine) runNewTaskGenerationPhase(ctx context.Context, task *Task, result *tool.Result) error {
	ctx = e.tracer.StartPhase(ctx, "new_task_generation")

	var genErr error
	if !task.SkipNewTaskGeneration {
		newTasks, err := e.parseNewTasks(ctx, task, result.Output)
		if err != nil {
			genErr = err
		} else {
			for i := len(newTasks) - 1; i >= 0; i-- {
				e.push(newTasks[i])
			}
		}
	}

	if e.enableCompaction && genErr == nil {
		if err := e.tryCompact(ctx, task); err != nil {
			slog.Warn("engine: sub-tree compaction failed", "task_id", task.TaskID, "error", err)
		}
	}

	e.tracer.EndPhase(genErr)
	return genErr
}

// invokeTool runs a bound tool through its full retry loop: 1+MaxAttempts
// calls, deferring to the tool's RetryStrategy (and ValidationHinter, if
// it implements one) between attempts (spec.md §4.7).
func (e *Engine) invokeTool(ctx context.Context, task *Task, params map[string]any) (*tool.Result, error) {
	t, err := e.tools.Get(task.ToolID)
	if err != nil {
		return nil, &UnknownToolError{ToolID: task.ToolID, DocID: task.SOPDocID}
	}

	strategy := e.retryStrategyFor(t)
	attempts := 1 + strategy.MaxAttempts()
	curParams := params

	var lastResult *tool.Result
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		e.tracer.StartToolExecutionCapture()
		result, execErr := t.Execute(tool.Context{
			Context:    ctx,
			TaskID:     task.TaskID,
			Params:     curParams,
			Shared:     e.Context,
			SOPDocBody: task.SOPDocBody,
		})

		callErr := execErr
		if callErr == nil {
			if v, ok := t.(tool.ResultValidator); ok {
				callErr = v.Validate(result)
			}
		}

		var output any
		if result != nil {
			output = result.Output
		}
		e.tracer.EndToolExecutionCapture(task.ToolID, curParams, output, callErr)

		if callErr == nil {
			return result, nil
		}
		lastResult, lastErr = result, callErr
		if attempt == attempts-1 {
			break
		}

		hint := ""
		if h, ok := t.(tool.ValidationHinter); ok {
			hint = h.GetResultValidationHint(result, callErr)
		}
		curParams = strategy.PrepareRetry(curParams, result, hint)
	}
	return lastResult, fmt.Errorf("tool %q failed after %d attempt(s): %w", task.ToolID, attempts, lastErr)
}

func (e *Engine) retryStrategyFor(t tool.Tool) tool.RetryStrategy {
	if _, ok := t.(tool.ValidationHinter); ok {
		return tool.AppendValidationHintRetry{Attempts: e.maxRetries}
	}
	return tool.SimpleRetry{Attempts: e.maxRetries}
}

// renderToolParams substitutes "{field}" placeholders in the document's
// declared tool parameters with resolved input values, and passes through
// any resolved input that isn't referenced by a template verbatim (spec.md
// §4.1 step 4 point 2).
func renderToolParams(templates map[string]string, resolved map[string]any) map[string]any {
	out := make(map[string]any, len(resolved)+len(templates))
	for k, v := range resolved {
		out[k] = v
	}
	for k, tmpl := range templates {
		out[k] = placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
			name := m[1 : len(m)-1]
			if v, ok := resolved[name]; ok {
				return fmt.Sprintf("%v", v)
			}
			return m
		})
	}
	return out
}
