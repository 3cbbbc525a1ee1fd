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
	"errors"
	"fmt"
)

// Sentinel errors for the task loop (spec.md §4.1, §4.3, §4.4). Callers
// inspect with errors.Is/errors.As rather than string matching.
var (
	// ErrTaskInputMissing means an input field's description could not be
	// resolved to a context path. The main loop catches this, retries the
	// failing task up to MaxRetries times, and on exhaustion raises
	// ErrTaskCreation instead.
	ErrTaskInputMissing = errors.New("engine: task input missing")

	// ErrTaskCreation means a task could not be turned into an executable
	// Task at all — either MaxRetries was exhausted recovering from a
	// missing input, or an unrecoverable error occurred during resolution.
	ErrTaskCreation = errors.New("engine: task creation failed")

	// ErrUnresolvableSOP means no SOP document could be resolved for a
	// task's description, including the general/fallback document.
	ErrUnresolvableSOP = errors.New("engine: unable to resolve SOP document")

	// ErrUnknownTool means a document's tool binding names a tool that is
	// not registered.
	ErrUnknownTool = errors.New("engine: unknown tool")

	// ErrMaxTasksExceeded means the engine popped more tasks than
	// MaxTasks allows in a single run — a circuit breaker against runaway
	// new-task generation (spec.md §4.1 "Resource limits").
	ErrMaxTasksExceeded = errors.New("engine: max tasks exceeded")
)

// TaskInputMissingError carries the field and description that failed
// extraction, for the recovery-task prompt built in the main loop.
type TaskInputMissingError struct {
	Field       string
	Description string
}

func (e *TaskInputMissingError) Error() string {
	return fmt.Sprintf("%v: field %q (%s)", ErrTaskInputMissing, e.Field, e.Description)
}

func (e *TaskInputMissingError) Unwrap() error { return ErrTaskInputMissing }

// TaskCreationError wraps the terminal failure of resolveAndCreate,
// carrying the task whose creation failed and the underlying cause.
type TaskCreationError struct {
	TaskID string
	Cause  error
}

func (e *TaskCreationError) Error() string {
	return fmt.Sprintf("%v: task %s: %v", ErrTaskCreation, e.TaskID, e.Cause)
}

func (e *TaskCreationError) Unwrap() error { return errors.Join(ErrTaskCreation, e.Cause) }

// UnknownToolError names the tool ID that a document bound to but that is
// absent from the registry.
type UnknownToolError struct {
	ToolID string
	DocID  string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("%v: %q (required by %s)", ErrUnknownTool, e.ToolID, e.DocID)
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }
