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

package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/docflow/pkg/sop"
)

// newTaskID derives a stable 16-hex-character task identifier, unique
// within a session (spec.md §3 "PendingTask"). It is not content-derived —
// a random UUIDv4 truncated to its first 16 hex digits gives the required
// shape and collision resistance without a separate hashing scheme.
func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// PendingTask is a task description awaiting resolution into an executable
// Task. It is what lives on the engine's LIFO task stack (spec.md §3).
type PendingTask struct {
	TaskID           string
	Description      string
	ShortName        string
	ParentTaskID     string
	GeneratedByPhase string // "", "new_task_generation", or "recovery" (TaskInputMissingError retry)
}

// NewPendingTask builds a root PendingTask with a fresh task ID.
func NewPendingTask(description string) *PendingTask {
	return &PendingTask{TaskID: newTaskID(), Description: description}
}

// childPendingTask builds a PendingTask generated during a parent task's
// execution (new_task_generation phase) or recovery (missing-input retry).
func childPendingTask(description, parentTaskID, generatedByPhase string) *PendingTask {
	return &PendingTask{
		TaskID:           newTaskID(),
		Description:      description,
		ParentTaskID:     parentTaskID,
		GeneratedByPhase: generatedByPhase,
	}
}

// Task is a PendingTask after resolveAndCreate has bound it to a SOP
// document: a fully specified unit of work ready for execute (spec.md §3
// "Task", §4.1, §4.3).
type Task struct {
	TaskID       string
	Description  string
	ShortName    string
	ParentTaskID string

	SOPDocID                 string
	SOPDocBody               string
	ToolID                   string
	ToolParameters           map[string]string
	InputJSONPath            map[string]string
	OutputJSONPath           string
	OutputDescription        string
	InputDescription         map[string]string
	SkipNewTaskGeneration    bool
	RequiresPlanningMetadata bool

	// MessageToUser carries the resolver's disambiguation note, if any,
	// through to the task record (spec.md §4.3).
	MessageToUser string

	planningMetadata *sop.PlanningMetadata
}

// newTaskFromDoc binds a PendingTask to a resolved SOP document.
func newTaskFromDoc(pending *PendingTask, docID string, doc *sop.Document, messageToUser string) *Task {
	inputJSONPath := make(map[string]string, len(doc.InputJSONPath))
	for k, v := range doc.InputJSONPath {
		inputJSONPath[k] = v
	}
	return &Task{
		TaskID:                   pending.TaskID,
		Description:              pending.Description,
		ShortName:                pending.ShortName,
		ParentTaskID:             pending.ParentTaskID,
		SOPDocID:                 docID,
		SOPDocBody:               doc.Body,
		ToolID:                   doc.Tool.ToolID,
		ToolParameters:           doc.Tool.Parameters,
		InputJSONPath:            inputJSONPath,
		OutputJSONPath:           doc.OutputJSONPath,
		OutputDescription:        doc.OutputDescription,
		InputDescription:         doc.InputDescription,
		SkipNewTaskGeneration:    doc.SkipNewTaskGeneration,
		RequiresPlanningMetadata: doc.RequiresPlanningMetadata,
		MessageToUser:            messageToUser,
	}
}
