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

package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/docflow/pkg/orchestrator"
)

type handlers struct {
	manager *orchestrator.Manager
}

// submitJobRequest mirrors the original's SubmitJobRequest validation
// (spec.md §6.2): task_description 1..10000 chars, max_tasks 1..1000.
type submitJobRequest struct {
	TaskDescription string            `json:"task_description"`
	MaxTasks        *int              `json:"max_tasks"`
	EnvVars         map[string]string `json:"env_vars"`
	SandboxURL      string            `json:"sandbox_url"`
}

func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.TaskDescription) == "" || len(req.TaskDescription) > 10000 {
		writeError(w, http.StatusBadRequest, "task_description must be 1-10000 characters")
		return
	}
	maxTasks := 50
	if req.MaxTasks != nil {
		maxTasks = *req.MaxTasks
	}
	if maxTasks < 1 || maxTasks > 1000 {
		writeError(w, http.StatusBadRequest, "max_tasks must be between 1 and 1000")
		return
	}
	for k := range req.EnvVars {
		if strings.TrimSpace(k) == "" {
			writeError(w, http.StatusBadRequest, "environment variable keys must be non-empty strings")
			return
		}
	}

	job, err := h.manager.CreateJob(req.TaskDescription, maxTasks, req.EnvVars, req.SandboxURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.JobID, "status": job.Status})
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.manager.ListJobs()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]*orchestrator.Job, 0, len(jobs))
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		if limit < len(jobs) {
			jobs = jobs[:limit]
		}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := h.manager.GetJob(jobID)
	if err != nil {
		writeJobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	cancelled, err := h.manager.CancelJob(jobID)
	if err != nil {
		writeJobLookupError(w, err)
		return
	}
	job, err := h.manager.GetJob(jobID)
	if err != nil {
		writeJobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID, "status": job.Status, "cancelled": cancelled,
	})
}

func (h *handlers) getJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := h.manager.GetJob(jobID); err != nil {
		writeJobLookupError(w, err)
		return
	}

	tail := 0
	if tailParam := r.URL.Query().Get("tail"); tailParam != "" {
		parsed, err := strconv.Atoi(tailParam)
		if err != nil || parsed < 1 || parsed > 10000 {
			writeError(w, http.StatusBadRequest, "tail must be between 1 and 10000")
			return
		}
		tail = parsed
	}

	logs, err := h.manager.GetJobLogs(jobID, tail)
	if err != nil {
		writeJobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "logs": logs})
}

func (h *handlers) getJobContext(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	refresh := r.URL.Query().Get("refresh") == "true"

	ctx, err := h.manager.SyncJobContext(jobID, refresh)
	if err != nil {
		writeJobLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "context": ctx})
}

// syncTrace mirrors the original's trace-refresh endpoint contract, but
// every trace in docflow is produced locally by the job's own subprocess
// (spec.md §6.5: no remote sandbox client is wired), so synced is always
// true once the job's job_id matches a known job.
func (h *handlers) syncTrace(w http.ResponseWriter, r *http.Request) {
	traceID := strings.TrimSuffix(strings.TrimSpace(chi.URLParam(r, "trace_id")), ".json")
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "trace ID is required")
		return
	}
	job, err := h.manager.GetJob(traceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "trace not associated with any known job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id":   traceID,
		"job_id":     job.JobID,
		"synced":     true,
		"job_status": job.Status,
		"is_terminal": job.IsTerminal(),
	})
}

func (h *handlers) getSandboxFile(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	requestedPath := chi.URLParam(r, "*")

	resolution, err := h.manager.ResolveSandboxFileRequest(jobID, requestedPath)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, orchestrator.ErrPathTraversal):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, os.ErrNotExist):
			writeError(w, http.StatusNotFound, "file not found")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	mediaType := mime.TypeByExtension(filepath.Ext(resolution.Filename))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+resolution.Filename+`"`)
	http.ServeFile(w, r, resolution.LocalPath)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	jobs := h.manager.ListJobs()
	active := 0
	for _, j := range jobs {
		if j.IsActive() || j.Status == orchestrator.StatusQueued {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": active,
		"total_jobs":  len(jobs),
	})
}

func writeJobLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
