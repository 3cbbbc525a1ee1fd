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

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the docflow
// orchestrator and engine.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Job metrics (orchestrator, spec.md §4.8)
	jobsSubmitted  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsActive     *prometheus.GaugeVec
	jobsTerminated *prometheus.CounterVec

	// Task metrics (engine, spec.md §4.1)
	tasksExecuted  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskRetries    *prometheus.CounterVec

	// LLM metrics
	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	// Tool metrics (spec.md §4.7)
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	// HTTP metrics (orchestrator surface, spec.md §6.2)
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initJobMetrics()
	m.initTaskMetrics()
	m.initLLMMetrics()
	m.initToolMetrics()
	m.initHTTPMetrics()

	return m, nil
}

func (m *Metrics) initJobMetrics() {
	m.jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "job",
			Name:      "submitted_total",
			Help:      "Total number of jobs submitted to the orchestrator",
		},
		[]string{},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Job wall-clock duration from STARTING to a terminal state",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~4.5h
		},
		[]string{"status"},
	)

	m.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "job",
			Name:      "active",
			Help:      "Number of jobs currently RUNNING",
		},
		[]string{},
	)

	m.jobsTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "job",
			Name:      "terminated_total",
			Help:      "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.jobsSubmitted, m.jobDuration, m.jobsActive, m.jobsTerminated)
}

func (m *Metrics) initTaskMetrics() {
	m.tasksExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "executed_total",
			Help:      "Total number of tasks executed by the engine",
		},
		[]string{"doc_id"},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"doc_id"},
	)

	m.taskRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "retries_total",
			Help:      "Total number of task retries after a recoverable input-missing error",
		},
		[]string{"doc_id"},
	)

	m.registry.MustRegister(m.tasksExecuted, m.taskDuration, m.taskRetries)
}

func (m *Metrics) initLLMMetrics() {
	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM API calls",
		},
		[]string{"model", "purpose"},
	)

	m.llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM API call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"model", "purpose"},
	)

	m.llmTokensInput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "tokens_input_total",
			Help:      "Total number of input tokens consumed",
		},
		[]string{"model"},
	)

	m.llmTokensOutput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "tokens_output_total",
			Help:      "Total number of output tokens generated",
		},
		[]string{"model"},
	)

	m.llmErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total number of LLM API errors",
		},
		[]string{"model", "purpose"},
	)

	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput, m.llmErrors)
}

func (m *Metrics) initToolMetrics() {
	m.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool_id"},
	)

	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"tool_id"},
	)

	m.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "errors_total",
			Help:      "Total number of tool errors",
		},
		[]string{"tool_id"},
	)

	m.registry.MustRegister(m.toolCalls, m.toolCallDuration, m.toolErrors)
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests to the orchestrator surface",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

// RecordJobSubmitted records a job submission.
func (m *Metrics) RecordJobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues().Inc()
}

// RecordJobTerminated records a job reaching a terminal status.
func (m *Metrics) RecordJobTerminated(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTerminated.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetJobsActive sets the number of currently RUNNING jobs.
func (m *Metrics) SetJobsActive(count int) {
	if m == nil {
		return
	}
	m.jobsActive.WithLabelValues().Set(float64(count))
}

// RecordTaskExecuted records a task execution.
func (m *Metrics) RecordTaskExecuted(docID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(docID).Inc()
	m.taskDuration.WithLabelValues(docID).Observe(duration.Seconds())
}

// RecordTaskRetry records a task retry.
func (m *Metrics) RecordTaskRetry(docID string) {
	if m == nil {
		return
	}
	m.taskRetries.WithLabelValues(docID).Inc()
}

// RecordLLMCall records an LLM API call.
func (m *Metrics) RecordLLMCall(model, purpose string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model, purpose).Inc()
	m.llmCallDuration.WithLabelValues(model, purpose).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage.
func (m *Metrics) RecordLLMTokens(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmTokensInput.WithLabelValues(model).Add(float64(inputTokens))
	m.llmTokensOutput.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordLLMError records an LLM error.
func (m *Metrics) RecordLLMError(model, purpose string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(model, purpose).Inc()
}

// RecordToolCall records a tool invocation.
func (m *Metrics) RecordToolCall(toolID string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolID).Inc()
	m.toolCallDuration.WithLabelValues(toolID).Observe(duration.Seconds())
}

// RecordToolError records a tool error.
func (m *Metrics) RecordToolError(toolID string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(toolID).Inc()
}

// RecordHTTPRequest records an HTTP request to the orchestrator surface.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, statusCodeLabel(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
