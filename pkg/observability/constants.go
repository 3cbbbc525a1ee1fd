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

package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrTaskID          = "task.id"
	AttrDocID           = "sop.doc_id"
	AttrToolID          = "tool.id"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPStatusCode  = "http.status_code"

	// Span names mirror pkg/trace's phase hierarchy (spec.md §2).
	SpanSOPResolution     = "docflow.sop_resolution"
	SpanTaskCreation      = "docflow.task_creation"
	SpanTaskExecution     = "docflow.task_execution"
	SpanContextUpdate     = "docflow.context_update"
	SpanNewTaskGeneration = "docflow.new_task_generation"
	SpanLLMRequest        = "docflow.llm_request"
	SpanToolExecution     = "docflow.tool_execution"
	SpanHTTPRequest       = "docflow.http_request"

	DefaultServiceName  = "docflow"
	DefaultMetricsPath  = "/metrics"
	DefaultSamplingRate = 1.0
)
