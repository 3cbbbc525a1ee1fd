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

// Package trace records the hierarchical execution-tracing tree of spec.md
// §3 "Trace session": Session -> TaskExecutionRecord[] -> Phase ->
// typed sub-step, persisted incrementally to a JSON file fixed at session
// creation, with an OpenTelemetry span opened alongside each phase/sub-step
// for live distributed tracing (SPEC_FULL.md's DOMAIN STACK table).
package trace

import "time"

// Status mirrors spec.md §3's ExecutionStatus enum.
type Status string

const (
	StatusStarted     Status = "started"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
	StatusRetrying    Status = "retrying"
)

// LLMCall records a single LLM interaction (spec.md §3 "LLM and tool calls
// are attached to the innermost active sub-step").
type LLMCall struct {
	CallID        string         `json:"tool_call_id"`
	Prompt        string         `json:"prompt"`
	Response      string         `json:"response"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Model         string         `json:"model,omitempty"`
	TokenUsage    map[string]int `json:"token_usage,omitempty"`
	ToolCalls     []map[string]any `json:"tool_calls,omitempty"`
	AllParameters map[string]any `json:"all_parameters,omitempty"`
}

// ToolCall records a single tool execution.
type ToolCall struct {
	CallID     string    `json:"tool_call_id"`
	ToolID     string    `json:"tool_id"`
	Parameters map[string]any `json:"parameters"`
	Output     any       `json:"output"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// DocumentSelection is the SOP resolver sub-step of the sop_resolution
// phase (spec.md §4.1 step 3, §4.3).
type DocumentSelection struct {
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time,omitempty"`
	Status            Status            `json:"status"`
	ValidationCall    *LLMCall          `json:"validation_call,omitempty"`
	CandidateDocuments []string         `json:"candidate_documents,omitempty"`
	SelectedDocID     string            `json:"selected_doc_id,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// InputFieldExtraction is the per-field sub-step of task_creation
// (spec.md §4.4 "1-input -> one-by-one").
type InputFieldExtraction struct {
	FieldName              string         `json:"field_name"`
	Description            string         `json:"description"`
	StartTime              time.Time      `json:"start_time"`
	EndTime                time.Time      `json:"end_time,omitempty"`
	Status                 Status         `json:"status"`
	ContextAnalysisCall    *LLMCall       `json:"context_analysis_call,omitempty"`
	ExtractionCodeCall     *LLMCall       `json:"extraction_code_generation_call,omitempty"`
	CandidateFields        map[string]any `json:"candidate_fields,omitempty"`
	GeneratedExtraction    string         `json:"generated_extraction_code,omitempty"`
	ExtractedValue         any            `json:"extracted_value,omitempty"`
	GeneratedPath          string         `json:"generated_path,omitempty"`
	Error                  string         `json:"error,omitempty"`
}

// BatchInputFieldExtraction is the batch-mode sub-step of task_creation
// (spec.md §4.4 "≥2-inputs -> batch").
type BatchInputFieldExtraction struct {
	InputDescriptions map[string]string `json:"input_descriptions"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time,omitempty"`
	Status            Status            `json:"status"`
	ContextAnalysisCall *LLMCall        `json:"context_analysis_call,omitempty"`
	BatchExtractionCall *LLMCall        `json:"batch_extraction_call,omitempty"`
	CandidateFields   map[string]any    `json:"candidate_fields,omitempty"`
	ExtractedValues   map[string]string `json:"extracted_values,omitempty"`
	GeneratedPaths    map[string]string `json:"generated_paths,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// OutputPathGeneration is the output-path sub-step shared by task_creation
// and context_update (spec.md §4.4 "Output path").
type OutputPathGeneration struct {
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time,omitempty"`
	Status           Status    `json:"status"`
	PathGenerationCall *LLMCall `json:"path_generation_call,omitempty"`
	GeneratedPath    string    `json:"generated_path,omitempty"`
	PrefixedPath     string    `json:"prefixed_path,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// NewTaskGeneration is the new_task_generation phase's sub-step (spec.md
// §4.5).
type NewTaskGeneration struct {
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time,omitempty"`
	Status              Status    `json:"status"`
	TaskGenerationCall  *LLMCall  `json:"task_generation_call,omitempty"`
	ToolOutput          any       `json:"tool_output,omitempty"`
	CurrentTaskDescription string `json:"current_task_description,omitempty"`
	GeneratedTasks      []string  `json:"generated_tasks,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// SopResolutionPhase wraps the document_selection sub-step.
type SopResolutionPhase struct {
	StartTime         time.Time          `json:"start_time"`
	EndTime           time.Time          `json:"end_time,omitempty"`
	Status            Status             `json:"status"`
	DocumentSelection *DocumentSelection `json:"document_selection,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// TaskCreationPhase wraps input-extraction and output-path sub-steps.
type TaskCreationPhase struct {
	StartTime                 time.Time                         `json:"start_time"`
	EndTime                   time.Time                         `json:"end_time,omitempty"`
	Status                    Status                            `json:"status"`
	SOPDocument               map[string]any                    `json:"sop_document,omitempty"`
	InputFieldExtractions     map[string]*InputFieldExtraction   `json:"input_field_extractions,omitempty"`
	BatchInputFieldExtraction *BatchInputFieldExtraction         `json:"batch_input_field_extraction,omitempty"`
	OutputPathGeneration      *OutputPathGeneration              `json:"output_path_generation,omitempty"`
	Error                     string                             `json:"error,omitempty"`
}

// TaskExecutionPhase wraps the bound-tool invocation and any nested LLM
// calls it makes (spec.md §4.7 "trace_tool_execution_step").
type TaskExecutionPhase struct {
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time,omitempty"`
	Status       Status     `json:"status"`
	ToolExecution *ToolCall `json:"tool_execution,omitempty"`
	LLMCalls     []*LLMCall `json:"llm_calls,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ContextUpdatePhase records what changed in context and output-path
// generation, if any (spec.md §4.1 step 4's points 5-8).
type ContextUpdatePhase struct {
	StartTime           time.Time             `json:"start_time"`
	EndTime             time.Time             `json:"end_time,omitempty"`
	Status              Status                `json:"status"`
	UpdatedPaths        []string              `json:"updated_paths,omitempty"`
	RemovedTempKeys     []string              `json:"removed_temp_keys,omitempty"`
	OutputPathGeneration *OutputPathGeneration `json:"output_path_generation,omitempty"`
	Error               string                `json:"error,omitempty"`
}

// NewTaskGenerationPhase wraps the new-task-parser sub-step.
type NewTaskGenerationPhase struct {
	StartTime      time.Time          `json:"start_time"`
	EndTime        time.Time          `json:"end_time,omitempty"`
	Status         Status             `json:"status"`
	TaskGeneration *NewTaskGeneration `json:"task_generation,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Phases holds every phase of a single task execution, keyed the way
// spec.md §3 describes ("Phase (sop_resolution | task_creation |
// task_execution | context_update | new_task_generation)").
type Phases struct {
	SopResolution     *SopResolutionPhase     `json:"sop_resolution,omitempty"`
	TaskCreation      *TaskCreationPhase      `json:"task_creation,omitempty"`
	TaskExecution     *TaskExecutionPhase     `json:"task_execution,omitempty"`
	ContextUpdate     *ContextUpdatePhase     `json:"context_update,omitempty"`
	NewTaskGeneration *NewTaskGenerationPhase `json:"new_task_generation,omitempty"`
}

// TaskExecutionRecord is the complete record of a single task execution
// (spec.md §3 "TaskExecutionRecord").
type TaskExecutionRecord struct {
	TaskExecutionID      string         `json:"task_execution_id"`
	TaskExecutionCounter int            `json:"task_execution_counter"`
	TaskDescription      string         `json:"task_description"`
	TaskID               string         `json:"task_id,omitempty"`
	StartTime            time.Time      `json:"start_time"`
	EndTime              time.Time      `json:"end_time,omitempty"`
	Status               Status         `json:"status"`
	Error                string         `json:"error,omitempty"`
	EngineStateBefore    map[string]any `json:"engine_state_before,omitempty"`
	EngineStateAfter     map[string]any `json:"engine_state_after,omitempty"`
	Phases               Phases         `json:"phases"`
}

// Session is the complete execution session (spec.md §3 "Trace session").
type Session struct {
	SessionID               string                         `json:"session_id"`
	StartTime                time.Time                      `json:"start_time"`
	EndTime                  time.Time                      `json:"end_time,omitempty"`
	InitialTaskDescription   string                         `json:"initial_task_description,omitempty"`
	FinalStatus              Status                         `json:"final_status"`
	EngineSnapshots          map[string]EngineSnapshot      `json:"engine_snapshots,omitempty"`
	TaskExecutions           []*TaskExecutionRecord         `json:"task_executions,omitempty"`
}

// EngineSnapshot captures engine state at a named point (spec.md §3
// "engine_snapshots"), e.g. "start", "end", "error".
type EngineSnapshot struct {
	TaskStack            []string       `json:"task_stack"`
	Context              map[string]any `json:"context"`
	TaskExecutionCounter int            `json:"task_execution_counter"`
}
