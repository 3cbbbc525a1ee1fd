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
	"encoding/json"
	"fmt"
	"os"
)

// Reconstructor replays a persisted Session file, answering questions about
// engine state at any point in the execution history without re-running the
// job. It is read-only and has no relationship to the Tracer that wrote the
// file it loads.
type Reconstructor struct {
	session *Session
}

// LoadReconstructor reads a session JSON file from disk.
func LoadReconstructor(path string) (*Reconstructor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: read session file: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("trace: decode session file: %w", err)
	}
	return &Reconstructor{session: &session}, nil
}

// Session returns the underlying decoded session.
func (r *Reconstructor) Session() *Session {
	return r.session
}

// EngineStateAtTask returns the engine_state_after snapshot of the task
// execution with the given counter, or nil if no such task executed.
func (r *Reconstructor) EngineStateAtTask(counter int) map[string]any {
	for _, exec := range r.session.TaskExecutions {
		if exec.TaskExecutionCounter == counter {
			return exec.EngineStateAfter
		}
	}
	return nil
}

// TaskExecutionsFrom returns every task execution record with a counter
// greater than or equal to from, in original recorded order.
func (r *Reconstructor) TaskExecutionsFrom(from int) []*TaskExecutionRecord {
	var out []*TaskExecutionRecord
	for _, exec := range r.session.TaskExecutions {
		if exec.TaskExecutionCounter >= from {
			out = append(out, exec)
		}
	}
	return out
}

// TaskExecution returns the task execution record with the given counter,
// or nil if absent.
func (r *Reconstructor) TaskExecution(counter int) *TaskExecutionRecord {
	for _, exec := range r.session.TaskExecutions {
		if exec.TaskExecutionCounter == counter {
			return exec
		}
	}
	return nil
}

// Summary renders a short human-readable digest of the session: its final
// status and, per task execution, its counter, description, status, and
// failing phase if any.
func (r *Reconstructor) Summary() string {
	s := r.session
	out := fmt.Sprintf("session %s: %s -> %s (%d task executions)\n",
		s.SessionID, s.StartTime.Format("15:04:05"), s.FinalStatus, len(s.TaskExecutions))

	for _, exec := range s.TaskExecutions {
		line := fmt.Sprintf("  [%d] %s: %s", exec.TaskExecutionCounter, exec.Status, exec.TaskDescription)
		if exec.Status == StatusFailed {
			if phase := failingPhase(exec); phase != "" {
				line += fmt.Sprintf(" (failed in %s: %s)", phase, exec.Error)
			}
		}
		out += line + "\n"
	}
	return out
}

func failingPhase(exec *TaskExecutionRecord) string {
	switch {
	case exec.Phases.SopResolution != nil && exec.Phases.SopResolution.Status == StatusFailed:
		return "sop_resolution"
	case exec.Phases.TaskCreation != nil && exec.Phases.TaskCreation.Status == StatusFailed:
		return "task_creation"
	case exec.Phases.TaskExecution != nil && exec.Phases.TaskExecution.Status == StatusFailed:
		return "task_execution"
	case exec.Phases.ContextUpdate != nil && exec.Phases.ContextUpdate.Status == StatusFailed:
		return "context_update"
	case exec.Phases.NewTaskGeneration != nil && exec.Phases.NewTaskGeneration.Status == StatusFailed:
		return "new_task_generation"
	default:
		return ""
	}
}
