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
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/docflow/pkg/llmtool"
)

// extractNewTasksSchema is the function-call schema the new-task parser
// must honor (spec.md §4.5 "extract_new_tasks").
var extractNewTasksSchema = llmtool.ToolDefinition{
	Name:        "extract_new_tasks",
	Description: "List any follow-up tasks implied by this tool's output that still need to happen to satisfy the original ask.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"think_process": map[string]any{"type": "string"},
			"tasks": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"tasks"},
	},
}

// assignShortNamesSchema names each newly extracted task for the trace and
// short-name map (spec.md §4.5 "assign_short_names").
var assignShortNamesSchema = llmtool.ToolDefinition{
	Name:        "assign_short_names",
	Description: "Assign each task a short, snake_case identifier suitable for logging and display.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"names": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task_id":    map[string]any{"type": "string"},
						"short_name": map[string]any{"type": "string"},
					},
					"required": []string{"task_id", "short_name"},
				},
			},
		},
		"required": []string{"names"},
	},
}

type newTaskArgs struct {
	ThinkProcess string   `json:"think_process"`
	Tasks        []string `json:"tasks"`
}

type shortNameEntry struct {
	TaskID    string `json:"task_id"`
	ShortName string `json:"short_name"`
}

type shortNameArgs struct {
	Names []shortNameEntry `json:"names"`
}

// parseNewTasks asks the model what, if anything, the just-completed task's
// output implies needs to happen next, then assigns each resulting task a
// short name in a second call (spec.md §4.5). Both calls run through the
// engine's tracer sub-step, not the phase-level call a caller may already
// have open.
func (e *Engine) parseNewTasks(ctx context.Context, task *Task, toolOutput any) ([]*PendingTask, error) {
	e.tracer.StartNewTaskGeneration()

	outputJSON, _ := json.Marshal(toolOutput)
	req := llmtool.CompletionRequest{
		Model: e.model,
		Tools: []llmtool.ToolDefinition{extractNewTasksSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Given a completed task and its output, decide what follow-up tasks (if any) remain to satisfy the original request. Return an empty list if nothing remains."},
			{Role: "user", Content: fmt.Sprintf("Completed task: %s\nTool output: %s", task.Description, outputJSON)},
		},
	}

	completion, err := e.client.Complete(ctx, req)
	if err != nil {
		e.tracer.EndNewTaskGeneration(nil, toolOutput, task.Description, err)
		return nil, fmt.Errorf("engine: extracting new tasks: %w", err)
	}

	call := findToolCallByName(completion.ToolCalls, extractNewTasksSchema.Name)
	if call == nil {
		e.tracer.EndNewTaskGeneration(nil, toolOutput, task.Description, nil)
		return nil, nil
	}

	var args newTaskArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		e.tracer.EndNewTaskGeneration(nil, toolOutput, task.Description, err)
		return nil, fmt.Errorf("engine: decoding extract_new_tasks: %w", err)
	}

	if len(args.Tasks) == 0 {
		e.tracer.EndNewTaskGeneration(nil, toolOutput, task.Description, nil)
		return nil, nil
	}

	pending := make([]*PendingTask, len(args.Tasks))
	for i, desc := range args.Tasks {
		pending[i] = childPendingTask(desc, task.TaskID, "new_task_generation")
	}

	e.assignShortNames(ctx, pending)

	e.tracer.EndNewTaskGeneration(args.Tasks, toolOutput, task.Description, nil)
	return pending, nil
}

// assignShortNames runs the second new-task-generation call, naming every
// task produced this round. A failure here is non-fatal — the tasks still
// run, just unnamed in the trace and short-name map.
func (e *Engine) assignShortNames(ctx context.Context, pending []*PendingTask) {
	if len(pending) == 0 {
		return
	}

	descs := make([]map[string]string, len(pending))
	for i, p := range pending {
		descs[i] = map[string]string{"task_id": p.TaskID, "description": p.Description}
	}
	descJSON, _ := json.Marshal(descs)

	req := llmtool.CompletionRequest{
		Model: e.model,
		Tools: []llmtool.ToolDefinition{assignShortNamesSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Assign each task a short snake_case name."},
			{Role: "user", Content: fmt.Sprintf("Tasks: %s", descJSON)},
		},
	}

	completion, err := e.client.Complete(ctx, req)
	if err != nil {
		return
	}
	call := findToolCallByName(completion.ToolCalls, assignShortNamesSchema.Name)
	if call == nil {
		return
	}
	var args shortNameArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		return
	}

	byID := make(map[string]string, len(args.Names))
	for _, n := range args.Names {
		byID[n.TaskID] = n.ShortName
	}
	for _, p := range pending {
		if name, ok := byID[p.TaskID]; ok {
			p.ShortName = name
			e.TaskShortNameMap[p.TaskID] = name
		}
	}
}

func findToolCallByName(calls []llmtool.ToolCall, name string) *llmtool.ToolCall {
	for i := range calls {
		if calls[i].Name == name {
			return &calls[i]
		}
	}
	return nil
}

func decodeArgs(args map[string]any, out any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
