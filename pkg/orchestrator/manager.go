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

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/utils"
)

const reservedJobIDEnvVar = "DOCFLOW_JOB_ID"

// Manager supervises concurrent Job executions: a single instance per
// orchestrator process (spec.md §4.8, §5 "Orchestrator"). Every admitted
// job acquires a slot from a bounded semaphore, exactly like the teacher's
// pkg/rag/store.go buffered-channel concurrency limiter.
type Manager struct {
	jobsDir, tracesDir string
	shutdownTimeout    time.Duration

	// runnerCmd is the argv prefix used to launch one job subprocess, e.g.
	// []string{os.Args[0], "run"}; overridable via RunnerModule (spec.md
	// §6.5 ORCHESTRATOR_RUNNER_MODULE test hook).
	runnerCmd []string

	sem chan struct{}

	mu      sync.Mutex
	jobs    map[string]*Job
	waiters map[string][]chan struct{}
}

// NewManager constructs a Manager rooted at jobsDir/tracesDir, reconciling
// any jobs left over from a prior process (spec.md §4.8 "cold start").
func NewManager(jobsDir, tracesDir string, maxParallel int, runnerCmd []string, shutdownTimeout time.Duration) (*Manager, error) {
	if _, err := utils.EnsureDir(jobsDir); err != nil {
		return nil, err
	}
	if _, err := utils.EnsureDir(tracesDir); err != nil {
		return nil, err
	}
	m := &Manager{
		jobsDir:         jobsDir,
		tracesDir:       tracesDir,
		shutdownTimeout: shutdownTimeout,
		runnerCmd:       runnerCmd,
		sem:             make(chan struct{}, maxParallel),
		jobs:            make(map[string]*Job),
		waiters:         make(map[string][]chan struct{}),
	}
	if err := m.loadExistingJobs(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadExistingJobs() error {
	entries, err := os.ReadDir(m.jobsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enumerate jobs dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		statusPath := filepath.Join(m.jobsDir, entry.Name(), "status.json")
		data, err := os.ReadFile(statusPath)
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			logger.GetLogger().Warn("orchestrator: skipping unreadable job status", "job_id", entry.Name(), "error", err)
			continue
		}
		if job.Status == StatusRunning && job.PID != 0 && !processAlive(job.PID) {
			job.Status = StatusFailed
			now := time.Now().UTC()
			job.FinishedAt = &now
			job.Error = map[string]any{"message": "process terminated unexpectedly"}
			m.persistStatus(&job)
		}
		m.jobs[job.JobID] = &job
	}
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// CreateJob persists request.json/<job_id>.task/env.json and schedules
// _launchJob asynchronously (spec.md §4.8 "create_job").
func (m *Manager) CreateJob(taskDescription string, maxTasks int, envVars map[string]string, sandboxURL string) (*Job, error) {
	jobID := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	job := NewJob(jobID, taskDescription, maxTasks, envVars, sandboxURL)

	jobDir := filepath.Join(m.jobsDir, jobID)
	if _, err := utils.EnsureDir(jobDir); err != nil {
		return nil, err
	}

	request := map[string]any{
		"task_description": taskDescription,
		"max_tasks":         maxTasks,
		"env_vars":          job.EnvVars,
		"sandbox_url":       sandboxURL,
		"created_at":        job.CreatedAt.Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(jobDir, "request.json"), request); err != nil {
		return nil, err
	}
	if err := utils.AtomicWriteFile(filepath.Join(jobDir, jobID+".task"), []byte(taskDescription), 0o644); err != nil {
		return nil, err
	}

	resolvedEnv := make(map[string]string, len(job.EnvVars)+1)
	for k, v := range job.EnvVars {
		resolvedEnv[k] = v
	}
	resolvedEnv[reservedJobIDEnvVar] = jobID
	if err := writeJSON(filepath.Join(jobDir, "env.json"), resolvedEnv); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.jobs[jobID] = job
	m.mu.Unlock()
	m.persistStatus(job)

	go m.launchJob(job)
	return job, nil
}

func (m *Manager) launchJob(job *Job) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()
	if err := m.executeJob(job); err != nil {
		m.mu.Lock()
		if job.Status != StatusCancelled {
			job.Status = StatusFailed
			now := time.Now().UTC()
			job.FinishedAt = &now
			job.Error = map[string]any{"message": err.Error()}
		}
		m.mu.Unlock()
		m.persistStatus(job)
		logger.GetLogger().Warn("orchestrator: job failed to start", "job_id", job.JobID, "error", err)
	}
	m.notifyTerminal(job.JobID)
}

func (m *Manager) executeJob(job *Job) error {
	m.mu.Lock()
	job.Status = StatusStarting
	started := time.Now().UTC()
	job.StartedAt = &started
	m.mu.Unlock()
	m.persistStatus(job)

	traceFilename := fmt.Sprintf("session_%s_%s.json", time.Now().Format("20060102_150405"), job.JobID[:8])
	tracePath := filepath.Join(m.tracesDir, traceFilename)
	if _, err := utils.EnsureDir(filepath.Dir(tracePath)); err == nil {
		if f, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			f.Close()
		}
	}
	m.mu.Lock()
	job.TraceFiles = append(job.TraceFiles, traceFilename)
	m.mu.Unlock()
	m.persistStatus(job)

	if job.SandboxURL != "" {
		return ErrSandboxUnavailable
	}
	return m.runLocal(job, tracePath)
}

func (m *Manager) runLocal(job *Job, tracePath string) error {
	jobDir := filepath.Join(m.jobsDir, job.JobID)
	taskFile := filepath.Join(jobDir, job.JobID+".task")
	envFile := filepath.Join(jobDir, "env.json")
	contextFile := filepath.Join(jobDir, "context.json")
	logPath := filepath.Join(jobDir, "engine_stdout.log")

	args := append(append([]string{}, m.runnerCmd[1:]...),
		"--job-id", job.JobID,
		"--task-file", taskFile,
		"--max-tasks", strconv.Itoa(job.MaxTasks),
		"--trace-file", tracePath,
		"--context-file", contextFile,
		"--env-file", envFile,
	)
	cmd := exec.Command(m.runnerCmd[0], args...)

	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to open engine log: %w", err)
	}
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}

	m.mu.Lock()
	job.PID = cmd.Process.Pid
	job.Status = StatusRunning
	m.mu.Unlock()
	m.persistStatus(job)

	waitErr := cmd.Wait()

	m.mu.Lock()
	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if job.Status != StatusCancelled {
		if waitErr == nil {
			job.Status = StatusCompleted
		} else {
			job.Status = StatusFailed
			job.Error = map[string]any{"message": waitErr.Error()}
		}
	}
	m.mu.Unlock()
	m.persistStatus(job)
	return nil
}

func (m *Manager) persistStatus(job *Job) {
	jobDir := filepath.Join(m.jobsDir, job.JobID)
	if err := writeJSON(filepath.Join(jobDir, "status.json"), job); err != nil {
		logger.GetLogger().Warn("orchestrator: failed to persist job status", "job_id", job.JobID, "error", err)
	}
}

func (m *Manager) notifyTerminal(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.waiters[jobID] {
		close(ch)
	}
	delete(m.waiters, jobID)
}

// ListJobs returns all known jobs ordered by created_at descending
// (spec.md §4.8 "list_jobs").
func (m *Manager) ListJobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs
}

// GetJob returns the job by id, or ErrJobNotFound.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// CancelJob SIGTERMs the job's subprocess, marking it CANCELLED
// immediately; final reconciliation happens when executeJob's Wait
// returns (spec.md §4.8 "cancel_job", §5 "optimistic cancellation").
func (m *Manager) CancelJob(jobID string) (bool, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return false, ErrJobNotFound
	}
	if !job.IsActive() {
		m.mu.Unlock()
		return false, nil
	}
	pid := job.PID
	job.Status = StatusCancelled
	now := time.Now().UTC()
	job.FinishedAt = &now
	m.mu.Unlock()
	m.persistStatus(job)

	if pid != 0 {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	return true, nil
}

// GetJobLogs reads the job's combined stdout/stderr log, optionally
// tailing the last tailLines lines.
func (m *Manager) GetJobLogs(jobID string, tailLines int) (string, error) {
	logPath := filepath.Join(m.jobsDir, jobID, "engine_stdout.log")
	data, err := os.ReadFile(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: no logs for job %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return "", err
	}
	if tailLines <= 0 {
		return string(data), nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.Join(lines, "\n"), nil
}

// WaitFor blocks until jobID reaches a terminal status or timeout elapses,
// returning the job's current state either way (spec.md §4.8 "wait_for").
func (m *Manager) WaitFor(ctx context.Context, jobID string, timeout time.Duration) (*Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if job.IsTerminal() {
		m.mu.Unlock()
		return job, nil
	}
	ch := make(chan struct{})
	m.waiters[jobID] = append(m.waiters[jobID], ch)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
	return m.GetJob(jobID)
}

// SandboxFileResolution is the outcome of ResolveSandboxFileRequest: a
// local path ready to serve.
type SandboxFileResolution struct {
	LocalPath string
	Filename  string
}

// ResolveSandboxFileRequest maps a job_id + requested path to a local file
// under that job's workdir, rejecting path traversal (spec.md §4.8
// "resolve_sandbox_file_request", §6.2 "traversal → 400"). Remote-sandbox
// file serving is not implemented (see DESIGN.md): a job submitted with a
// sandbox_url always resolves to ErrSandboxUnavailable here.
func (m *Manager) ResolveSandboxFileRequest(jobID, requestedPath string) (*SandboxFileResolution, error) {
	job, err := m.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.SandboxURL != "" {
		return nil, ErrSandboxUnavailable
	}

	workDir := filepath.Join(m.jobsDir, jobID, "workdir")
	candidate := filepath.Join(workDir, filepath.Clean(requestedPath))

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return nil, err
	}
	if absCandidate != absWorkDir && !strings.HasPrefix(absCandidate, absWorkDir+string(filepath.Separator)) {
		return nil, ErrPathTraversal
	}

	info, err := os.Stat(absCandidate)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", os.ErrNotExist, requestedPath)
	}
	if err != nil {
		return nil, err
	}
	return &SandboxFileResolution{LocalPath: absCandidate, Filename: filepath.Base(absCandidate)}, nil
}

// SyncJobContext returns the job's locally persisted context.json. Remote
// sandbox refresh is out of scope here (no sandbox session client is
// wired, see DESIGN.md); force is accepted for API-contract compatibility
// but only ever reads the local copy.
func (m *Manager) SyncJobContext(jobID string, _ bool) (map[string]any, error) {
	if _, err := m.GetJob(jobID); err != nil {
		return nil, err
	}
	contextPath := filepath.Join(m.jobsDir, jobID, "context.json")
	data, err := os.ReadFile(contextPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no context for job %s", os.ErrNotExist, jobID)
	}
	if err != nil {
		return nil, err
	}
	var ctx map[string]any
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context.json: %w", err)
	}
	return ctx, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return utils.AtomicWriteFile(path, data, 0o644)
}
