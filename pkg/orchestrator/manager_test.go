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

package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/orchestrator"
)

func newTestManager(t *testing.T, runnerCmd []string) (*orchestrator.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	m, err := orchestrator.NewManager(
		jobsDir,
		filepath.Join(dir, "traces"),
		2,
		runnerCmd,
		10*time.Second,
	)
	require.NoError(t, err)
	return m, jobsDir
}

func TestCreateJobRunsToCompletion(t *testing.T) {
	m, _ := newTestManager(t, []string{"sh", "-c", "echo hello runner"})

	job, err := m.CreateJob("do the thing", 10, nil, "")
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusQueued, job.Status)

	final, err := m.WaitFor(context.Background(), job.JobID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusCompleted, final.Status)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.FinishedAt)
	require.Len(t, final.TraceFiles, 1)

	logs, err := m.GetJobLogs(job.JobID, 0)
	require.NoError(t, err)
	require.Contains(t, logs, "hello runner")
}

func TestCreateJobMarksFailedOnNonZeroExit(t *testing.T) {
	m, _ := newTestManager(t, []string{"sh", "-c", "exit 1"})

	job, err := m.CreateJob("fail please", 10, nil, "")
	require.NoError(t, err)

	final, err := m.WaitFor(context.Background(), job.JobID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
}

func TestCancelJobOnNonActiveJobIsNoop(t *testing.T) {
	m, _ := newTestManager(t, []string{"sh", "-c", "true"})
	job, err := m.CreateJob("quick job", 10, nil, "")
	require.NoError(t, err)
	_, err = m.WaitFor(context.Background(), job.JobID, 5*time.Second)
	require.NoError(t, err)

	cancelled, err := m.CancelJob(job.JobID)
	require.NoError(t, err)
	require.False(t, cancelled)
}

func TestResolveSandboxFileRequestRejectsTraversal(t *testing.T) {
	m, _ := newTestManager(t, []string{"sh", "-c", "true"})
	job, err := m.CreateJob("job with files", 10, nil, "")
	require.NoError(t, err)
	_, err = m.WaitFor(context.Background(), job.JobID, 5*time.Second)
	require.NoError(t, err)

	_, err = m.ResolveSandboxFileRequest(job.JobID, "../../etc/passwd")
	require.ErrorIs(t, err, orchestrator.ErrPathTraversal)
}

func TestResolveSandboxFileRequestServesLocalFile(t *testing.T) {
	m, jobsDir := newTestManager(t, []string{"sh", "-c", "true"})
	job, err := m.CreateJob("job with files", 10, nil, "")
	require.NoError(t, err)
	_, err = m.WaitFor(context.Background(), job.JobID, 5*time.Second)
	require.NoError(t, err)

	workDir := filepath.Join(jobsDir, job.JobID, "workdir")
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "report.txt"), []byte("result"), 0o644))

	resolution, err := m.ResolveSandboxFileRequest(job.JobID, "report.txt")
	require.NoError(t, err)
	require.Equal(t, "report.txt", resolution.Filename)
	contents, err := os.ReadFile(resolution.LocalPath)
	require.NoError(t, err)
	require.Equal(t, "result", string(contents))
}

func TestGetJobLogsReturnsNotFoundBeforeAnyRun(t *testing.T) {
	m, _ := newTestManager(t, []string{"sh", "-c", "true"})
	_, err := m.GetJobLogs("nonexistent", 0)
	require.Error(t, err)
}
