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

package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/observability"
	"github.com/kadirpekel/docflow/pkg/utils"
)

// Tracer captures the full execution-tracing tree for a single engine
// session, persisting it to a JSON file on every phase/sub-step boundary
// (spec.md §3 "Sessions are persisted incrementally") and opening an
// OpenTelemetry span per phase/sub-step alongside (SPEC_FULL.md's DOMAIN
// STACK table — "the two are complementary: OTel for live distributed
// tracing, the JSON tree for replay"). Single-owner: only the engine
// process constructing it writes to the trace file (spec.md §5).
type Tracer struct {
	mu sync.Mutex

	enabled    bool
	outputDir  string
	otelTracer trace.Tracer

	session         *Session
	sessionFile     string
	pinnedFile      string
	currentExec     *TaskExecutionRecord
	currentPhase    string
	currentSubStep  string
	llmCallSink     func(*LLMCall)

	activeSpans []activeSpan
}

type activeSpan struct {
	span trace.Span
}

// New constructs a Tracer writing session files under outputDir. otelTracer
// may be nil, in which case spans are skipped (tests, or
// observability disabled).
func New(outputDir string, enabled bool, otelTracer trace.Tracer) *Tracer {
	return &Tracer{
		enabled:    enabled,
		outputDir:  outputDir,
		otelTracer: otelTracer,
	}
}

// SetSessionFile pins the exact path the next session will persist to,
// overriding persist's default outputDir/session_<timestamp>_<id8>.json
// naming. Used by callers that must know the trace file's path before the
// session starts (e.g. cmd/docflow's "run" subcommand, launched by
// pkg/orchestrator with a --trace-file flag pointing at a file the
// orchestrator already pre-created). Must be called before StartSession.
func (t *Tracer) SetSessionFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pinnedFile = path
}

func (t *Tracer) now() time.Time { return time.Now().UTC() }

// StartSession begins a new trace session, returning its session id and a
// context carrying the root OTel span (spec.md §3 "Session").
func (t *Tracer) StartSession(ctx context.Context, initialTask string) (context.Context, string) {
	if !t.enabled {
		return ctx, ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.session = &Session{
		SessionID:              id,
		StartTime:              t.now(),
		InitialTaskDescription: initialTask,
		FinalStatus:            StatusStarted,
		EngineSnapshots:        make(map[string]EngineSnapshot),
	}
	t.sessionFile = t.pinnedFile

	ctx = t.startSpan(ctx, "session", id)
	t.persist()
	logger.GetLogger().Info("started trace session", "session_id", id)
	return ctx, id
}

// EndSession closes the session, persists the final file, and returns its
// path.
func (t *Tracer) EndSession(finalStatus Status) string {
	if !t.enabled {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return ""
	}

	t.session.EndTime = t.now()
	t.session.FinalStatus = finalStatus
	t.persist()
	t.endSpan()

	file := t.sessionFile
	logger.GetLogger().Info("ended trace session", "session_id", t.session.SessionID, "status", finalStatus, "file", file)
	t.session = nil
	return file
}

// CaptureEngineState records a named engine-state snapshot (spec.md §3
// "engine_snapshots" — typically "start", "end", "error").
func (t *Tracer) CaptureEngineState(name string, taskStack []string, ctxMap map[string]any, counter int) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return
	}
	t.session.EngineSnapshots[name] = EngineSnapshot{
		TaskStack:            append([]string{}, taskStack...),
		Context:              deepCopyMap(ctxMap),
		TaskExecutionCounter: counter,
	}
	t.persist()
}

// StartTaskExecution begins recording one task's execution record.
func (t *Tracer) StartTaskExecution(ctx context.Context, taskID, description string, counter int, stateBefore map[string]any) (context.Context, string) {
	if !t.enabled || t.session == nil {
		return ctx, ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.currentExec = &TaskExecutionRecord{
		TaskExecutionID:      id,
		TaskExecutionCounter: counter,
		TaskDescription:      description,
		TaskID:               taskID,
		StartTime:            t.now(),
		Status:               StatusStarted,
		EngineStateBefore:    deepCopyMap(stateBefore),
	}
	t.session.TaskExecutions = append(t.session.TaskExecutions, t.currentExec)

	ctx = t.startSpan(ctx, observability.SpanTaskExecution, description)
	t.persist()
	return ctx, id
}

// EndTaskExecution closes the current task execution record.
func (t *Tracer) EndTaskExecution(stateAfter map[string]any, status Status, err error) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentExec == nil {
		return
	}
	t.currentExec.EndTime = t.now()
	t.currentExec.Status = status
	if err != nil {
		t.currentExec.Error = err.Error()
	}
	t.currentExec.EngineStateAfter = deepCopyMap(stateAfter)
	t.persist()
	t.endSpan()
	t.currentExec = nil
}

// StartPhase begins one of the five fixed phases of spec.md §3 within the
// current task execution.
func (t *Tracer) StartPhase(ctx context.Context, name string) context.Context {
	if !t.enabled || t.currentExec == nil {
		return ctx
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentPhase = name
	t.currentSubStep = ""
	t.llmCallSink = nil

	start := t.now()
	switch name {
	case observability.SpanSOPResolution:
		t.currentExec.Phases.SopResolution = &SopResolutionPhase{StartTime: start, Status: StatusStarted}
	case observability.SpanTaskCreation:
		t.currentExec.Phases.TaskCreation = &TaskCreationPhase{StartTime: start, Status: StatusStarted, InputFieldExtractions: make(map[string]*InputFieldExtraction)}
	case observability.SpanTaskExecution:
		t.currentExec.Phases.TaskExecution = &TaskExecutionPhase{StartTime: start, Status: StatusStarted}
	case observability.SpanContextUpdate:
		t.currentExec.Phases.ContextUpdate = &ContextUpdatePhase{StartTime: start, Status: StatusStarted}
	case observability.SpanNewTaskGeneration:
		t.currentExec.Phases.NewTaskGeneration = &NewTaskGenerationPhase{StartTime: start, Status: StatusStarted}
	}

	return t.startSpan(ctx, name, "")
}

// EndPhase completes the current phase.
func (t *Tracer) EndPhase(err error) {
	if !t.enabled || t.currentExec == nil || t.currentPhase == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	status := StatusCompleted
	errStr := ""
	if err != nil {
		status = StatusFailed
		errStr = err.Error()
	}
	end := t.now()

	switch t.currentPhase {
	case observability.SpanSOPResolution:
		if p := t.currentExec.Phases.SopResolution; p != nil {
			p.EndTime, p.Status, p.Error = end, status, errStr
		}
	case observability.SpanTaskCreation:
		if p := t.currentExec.Phases.TaskCreation; p != nil {
			p.EndTime, p.Status, p.Error = end, status, errStr
		}
	case observability.SpanTaskExecution:
		if p := t.currentExec.Phases.TaskExecution; p != nil {
			p.EndTime, p.Status, p.Error = end, status, errStr
		}
	case observability.SpanContextUpdate:
		if p := t.currentExec.Phases.ContextUpdate; p != nil {
			p.EndTime, p.Status, p.Error = end, status, errStr
		}
	case observability.SpanNewTaskGeneration:
		if p := t.currentExec.Phases.NewTaskGeneration; p != nil {
			p.EndTime, p.Status, p.Error = end, status, errStr
		}
	}

	t.persist()
	t.endSpan()
	t.currentPhase = ""
}

// StartDocumentSelection begins the sop_resolution phase's sub-step.
func (t *Tracer) StartDocumentSelection() {
	if !t.enabled || t.currentPhase != observability.SpanSOPResolution {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.SopResolution
	if phase == nil {
		return
	}
	phase.DocumentSelection = &DocumentSelection{StartTime: t.now(), Status: StatusStarted}
	t.currentSubStep = "document_selection"
	t.llmCallSink = func(c *LLMCall) { phase.DocumentSelection.ValidationCall = c }
}

// EndDocumentSelection closes it with the resolver's findings.
func (t *Tracer) EndDocumentSelection(candidates []string, selected string, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.SopResolution
	if phase == nil || phase.DocumentSelection == nil {
		return
	}
	s := phase.DocumentSelection
	s.EndTime = t.now()
	s.Status = statusFor(err)
	if err != nil {
		s.Error = err.Error()
	}
	s.CandidateDocuments = candidates
	s.SelectedDocID = selected
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// StartInputFieldExtraction begins the per-field sub-step of task_creation.
func (t *Tracer) StartInputFieldExtraction(field, description string) {
	if !t.enabled || t.currentPhase != observability.SpanTaskCreation {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskCreation
	if phase == nil {
		return
	}
	extraction := &InputFieldExtraction{FieldName: field, Description: description, StartTime: t.now(), Status: StatusStarted}
	phase.InputFieldExtractions[field] = extraction
	t.currentSubStep = "input_field_extraction"
	first := true
	t.llmCallSink = func(c *LLMCall) {
		if first {
			extraction.ContextAnalysisCall = c
			first = false
			return
		}
		extraction.ExtractionCodeCall = c
	}
}

// EndInputFieldExtraction closes it with the synthesized extraction result.
func (t *Tracer) EndInputFieldExtraction(field string, extractedValue any, generatedPath string, candidateFields map[string]any, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskCreation
	if phase == nil {
		return
	}
	extraction, ok := phase.InputFieldExtractions[field]
	if !ok {
		return
	}
	extraction.EndTime = t.now()
	extraction.Status = statusFor(err)
	if err != nil {
		extraction.Error = err.Error()
	}
	extraction.ExtractedValue = extractedValue
	extraction.GeneratedPath = generatedPath
	extraction.CandidateFields = candidateFields
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// StartBatchInputFieldExtraction begins the batch-mode task_creation sub-step.
func (t *Tracer) StartBatchInputFieldExtraction(descriptions map[string]string) {
	if !t.enabled || t.currentPhase != observability.SpanTaskCreation {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskCreation
	if phase == nil {
		return
	}
	batch := &BatchInputFieldExtraction{InputDescriptions: descriptions, StartTime: t.now(), Status: StatusStarted}
	phase.BatchInputFieldExtraction = batch
	t.currentSubStep = "batch_input_field_extraction"
	first := true
	t.llmCallSink = func(c *LLMCall) {
		if first {
			batch.ContextAnalysisCall = c
			first = false
			return
		}
		batch.BatchExtractionCall = c
	}
}

// EndBatchInputFieldExtraction closes it with the batch extraction results.
func (t *Tracer) EndBatchInputFieldExtraction(candidateFields map[string]any, extractedValues, generatedPaths map[string]string, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskCreation
	if phase == nil || phase.BatchInputFieldExtraction == nil {
		return
	}
	b := phase.BatchInputFieldExtraction
	b.EndTime = t.now()
	b.Status = statusFor(err)
	if err != nil {
		b.Error = err.Error()
	}
	b.CandidateFields = candidateFields
	b.ExtractedValues = extractedValues
	b.GeneratedPaths = generatedPaths
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// StartOutputPathGeneration begins the output-path sub-step of
// context_update (spec.md §4.4 "Output path").
func (t *Tracer) StartOutputPathGeneration() {
	if !t.enabled || t.currentPhase != observability.SpanContextUpdate {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.ContextUpdate
	if phase == nil {
		return
	}
	phase.OutputPathGeneration = &OutputPathGeneration{StartTime: t.now(), Status: StatusStarted}
	t.currentSubStep = "output_path_generation"
	t.llmCallSink = func(c *LLMCall) { phase.OutputPathGeneration.PathGenerationCall = c }
}

// EndOutputPathGeneration closes it with the synthesized path.
func (t *Tracer) EndOutputPathGeneration(generatedPath, prefixedPath string, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.ContextUpdate
	if phase == nil || phase.OutputPathGeneration == nil {
		return
	}
	o := phase.OutputPathGeneration
	o.EndTime = t.now()
	o.Status = statusFor(err)
	if err != nil {
		o.Error = err.Error()
	}
	o.GeneratedPath = generatedPath
	o.PrefixedPath = prefixedPath
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// StartNewTaskGeneration begins the new_task_generation phase's sub-step
// (spec.md §4.5).
func (t *Tracer) StartNewTaskGeneration() {
	if !t.enabled || t.currentPhase != observability.SpanNewTaskGeneration {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.NewTaskGeneration
	if phase == nil {
		return
	}
	phase.TaskGeneration = &NewTaskGeneration{StartTime: t.now(), Status: StatusStarted}
	t.currentSubStep = "new_task_generation_step"
	t.llmCallSink = func(c *LLMCall) { phase.TaskGeneration.TaskGenerationCall = c }
}

// EndNewTaskGeneration closes it with the generated follow-up tasks.
func (t *Tracer) EndNewTaskGeneration(tasks []string, toolOutput any, taskDescription string, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.NewTaskGeneration
	if phase == nil || phase.TaskGeneration == nil {
		return
	}
	g := phase.TaskGeneration
	g.EndTime = t.now()
	g.Status = statusFor(err)
	if err != nil {
		g.Error = err.Error()
	}
	g.GeneratedTasks = tasks
	g.ToolOutput = toolOutput
	g.CurrentTaskDescription = taskDescription
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// StartToolExecutionCapture arms the task_execution phase to append any
// nested LLM calls the bound tool makes to its llm_calls list (spec.md
// §4.7 "trace_tool_execution_step"). Call EndToolExecutionCapture when the
// tool invocation returns.
func (t *Tracer) StartToolExecutionCapture() {
	if !t.enabled || t.currentPhase != observability.SpanTaskExecution {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskExecution
	if phase == nil {
		return
	}
	t.currentSubStep = "tool_execution"
	t.llmCallSink = func(c *LLMCall) { phase.LLMCalls = append(phase.LLMCalls, c) }
}

// EndToolExecutionCapture disarms the capture and records the tool call
// itself.
func (t *Tracer) EndToolExecutionCapture(toolID string, params map[string]any, output any, err error) {
	if !t.enabled || t.currentExec == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	phase := t.currentExec.Phases.TaskExecution
	if phase != nil {
		now := t.now()
		call := &ToolCall{
			CallID:     uuid.NewString(),
			ToolID:     toolID,
			Parameters: deepCopyMap(params),
			Output:     output,
			StartTime:  now,
			EndTime:    now,
			Status:     statusFor(err),
		}
		if err != nil {
			call.Error = err.Error()
		}
		phase.ToolExecution = call
	}
	t.currentSubStep = ""
	t.llmCallSink = nil
}

// LogLLMCall records an LLM interaction against whichever sub-step is
// currently active (spec.md §3's context-routed storage callback).
func (t *Tracer) LogLLMCall(prompt, response, model string, tokenUsage map[string]int, toolCalls []map[string]any) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	sink := t.llmCallSink
	t.mu.Unlock()
	if sink == nil {
		logger.GetLogger().Warn("LLM call logged with no active sub-step sink", "phase", t.currentPhase)
		return
	}
	now := t.now()
	sink(&LLMCall{
		CallID:     uuid.NewString(),
		Prompt:     prompt,
		Response:   response,
		StartTime:  now,
		EndTime:    now,
		Model:      model,
		TokenUsage: tokenUsage,
		ToolCalls:  toolCalls,
	})
	t.mu.Lock()
	t.persist()
	t.mu.Unlock()
}

func statusFor(err error) Status {
	if err != nil {
		return StatusFailed
	}
	return StatusCompleted
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// persist must be called with t.mu held.
func (t *Tracer) persist() {
	if t.session == nil {
		return
	}
	if t.sessionFile == "" {
		name := fmt.Sprintf("session_%s_%s.json", time.Now().UTC().Format("20060102_150405"), t.session.SessionID[:8])
		t.sessionFile = filepath.Join(t.outputDir, name)
	}
	if dir := filepath.Dir(t.sessionFile); dir != "" && dir != "." {
		if _, err := utils.EnsureDir(dir); err != nil {
			logger.GetLogger().Error("create trace session dir failed", "error", err, "dir", dir)
			return
		}
	}
	data, err := json.MarshalIndent(t.session, "", "  ")
	if err != nil {
		logger.GetLogger().Error("marshal trace session failed", "error", err)
		return
	}
	if err := utils.AtomicWriteFile(t.sessionFile, data, 0o644); err != nil {
		logger.GetLogger().Error("persist trace session failed", "error", err, "file", t.sessionFile)
	}
}

// startSpan opens an OTel span named name (with an optional descriptive
// attribute) and pushes it onto the active-span stack, to be closed by the
// matching endSpan. Returns the updated context. No-op if otelTracer is nil.
func (t *Tracer) startSpan(ctx context.Context, name, detail string) context.Context {
	if t.otelTracer == nil {
		return ctx
	}
	spanCtx, span := t.otelTracer.Start(ctx, name)
	if detail != "" {
		span.SetAttributes(attribute.String("docflow.detail", detail))
	}
	t.activeSpans = append(t.activeSpans, activeSpan{span: span})
	return spanCtx
}

// endSpan must be called with t.mu held; closes the most recently opened
// span (phases/sessions nest and close in LIFO order).
func (t *Tracer) endSpan() {
	if len(t.activeSpans) == 0 {
		return
	}
	last := t.activeSpans[len(t.activeSpans)-1]
	last.span.End()
	t.activeSpans = t.activeSpans[:len(t.activeSpans)-1]
}

// SessionFile returns the path the session is (or will be) persisted to.
func (t *Tracer) SessionFile() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionFile
}
