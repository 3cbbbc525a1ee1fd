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

// Package orchestrator manages concurrent Job executions: accepting
// submissions, spawning isolated engine subprocesses, supervising their
// lifecycle, and persisting durable on-disk status (spec.md §4.8).
package orchestrator

import "time"

// Status is a Job's lifecycle state (spec.md §3 "Job").
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Job represents one submitted task execution and its tracked state
// (spec.md §3 "Job"). It round-trips to jobs/<job_id>/status.json.
type Job struct {
	JobID           string            `json:"job_id"`
	TaskDescription string            `json:"task_description"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at"`
	FinishedAt      *time.Time        `json:"finished_at"`
	TraceFiles      []string          `json:"trace_files"`
	PID             int               `json:"pid,omitempty"`
	MaxTasks        int               `json:"max_tasks"`
	Error           map[string]any    `json:"error,omitempty"`
	EnvVars         map[string]string `json:"env_vars"`

	// SandboxURL records the sandbox_url given at submission. Remote
	// sandbox execution is not implemented: executeJob fails a job that
	// has one with ErrSandboxUnavailable instead of running it.
	SandboxURL       string `json:"sandbox_url,omitempty"`
	SandboxSessionID string `json:"sandbox_session_id,omitempty"`
	SandboxLogPath   string `json:"sandbox_log_path,omitempty"`
}

// NewJob constructs a freshly QUEUED job.
func NewJob(jobID, taskDescription string, maxTasks int, envVars map[string]string, sandboxURL string) *Job {
	if envVars == nil {
		envVars = map[string]string{}
	}
	return &Job{
		JobID:           jobID,
		TaskDescription: taskDescription,
		Status:          StatusQueued,
		CreatedAt:       time.Now().UTC(),
		TraceFiles:      []string{},
		MaxTasks:        maxTasks,
		EnvVars:         envVars,
		SandboxURL:      sandboxURL,
	}
}

// IsTerminal reports whether Status is one a job cannot transition out of.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job is starting or running, i.e. has a
// subprocess (or is about to have one) that cancellation can act on.
func (j *Job) IsActive() bool {
	switch j.Status {
	case StatusRunning, StatusStarting:
		return true
	default:
		return false
	}
}
