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

package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/httpapi"
	"github.com/kadirpekel/docflow/pkg/orchestrator"
)

func newTestServer(t *testing.T) (*httpapi.Server, string) {
	t.Helper()
	jobsDir := filepath.Join(t.TempDir(), "jobs")
	tracesDir := filepath.Join(t.TempDir(), "traces")
	manager, err := orchestrator.NewManager(jobsDir, tracesDir, 2, []string{"sh", "-c", "exit 0"}, 5*time.Second)
	require.NoError(t, err)
	return httpapi.NewServer(":0", manager), jobsDir
}

func TestSubmitJobAndGetJob(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"task_description": "do the thing"})
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	jobID, _ := submitted["job_id"].(string)
	require.NotEmpty(t, jobID)

	getResp, err := http.Get(ts.URL + "/jobs/" + jobID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestSubmitJobRejectsEmptyTaskDescription(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"task_description": ""})
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobNotFoundReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/jobs/doesnotexist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthReportsJobCounts(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}

func TestSandboxFileEndpointRejectsTraversal(t *testing.T) {
	server, jobsDir := newTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()
	_ = jobsDir

	body, _ := json.Marshal(map[string]any{"task_description": "do the thing"})
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var submitted map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	jobID := submitted["job_id"].(string)

	fileResp, err := http.Get(ts.URL + "/sandbox/" + jobID + "/../../etc/passwd")
	require.NoError(t, err)
	defer fileResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, fileResp.StatusCode)
}
