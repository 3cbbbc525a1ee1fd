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
	"github.com/kadirpekel/docflow/pkg/pathgen"
)

// evaluateSubtreeSchema is the function-call schema sub-tree compaction
// requires (spec.md §4.6 "evaluate_and_summarize_subtree").
var evaluateSubtreeSchema = llmtool.ToolDefinition{
	Name:        "evaluate_and_summarize_subtree",
	Description: "Decide whether a completed task and its descendants already satisfy the original requirement, and if so summarize their combined outputs.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"requirements_met":             map[string]any{"type": "boolean"},
			"summary":                      map[string]any{"type": "string"},
			"check_requirement_one_by_one": map[string]any{"type": "string"},
			"deliverable_output_paths": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
			},
			"missing_requirements": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
			},
			"new_task_to_execute": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"requirements_met"},
	},
}

type evaluateSubtreeArgs struct {
	RequirementsMet     bool     `json:"requirements_met"`
	Summary             string   `json:"summary"`
	DeliverablePaths    []string `json:"deliverable_output_paths"`
	MissingRequirements []string `json:"missing_requirements"`
	NewTaskToExecute    []string `json:"new_task_to_execute"`
}

// tryCompact evaluates whether task's completed sub-tree already satisfies
// the original requirement and, if so, collapses its descendants' outputs
// into a single summarized artifact (spec.md §4.6). A leaf task (no
// completed descendants) has nothing to compact and is a no-op.
func (e *Engine) tryCompact(ctx context.Context, task *Task) error {
	descendants := e.collectDescendants(task.TaskID)
	if len(descendants) == 0 {
		return nil
	}

	subtree := append(descendants, task)
	topKeys := collectTopLevelKeys(subtree)
	if len(topKeys) == 0 {
		return nil
	}

	dump, _ := json.Marshal(topKeys)
	req := llmtool.CompletionRequest{
		Model: e.model,
		Tools: []llmtool.ToolDefinition{evaluateSubtreeSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Decide whether the combined outputs of this task and its descendants already satisfy the original requirement. If they do, write a summary; if not, list the remaining tasks needed."},
			{Role: "user", Content: fmt.Sprintf("Task: %s\nCandidate output keys: %s", task.Description, dump)},
		},
	}

	completion, err := e.client.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("engine: evaluating sub-tree: %w", err)
	}
	call := findToolCallByName(completion.ToolCalls, evaluateSubtreeSchema.Name)
	if call == nil {
		return nil
	}
	var args evaluateSubtreeArgs
	if err := decodeArgs(call.Arguments, &args); err != nil {
		return fmt.Errorf("engine: decoding evaluate_and_summarize_subtree: %w", err)
	}

	if !args.RequirementsMet {
		for _, desc := range args.NewTaskToExecute {
			e.push(childPendingTask(desc, task.TaskID, "new_task_generation"))
		}
		return nil
	}

	compacted := make(map[string]any, len(topKeys))
	for _, key := range topKeys {
		if v, ok := e.Context[key]; ok {
			compacted[key] = v
		}
	}
	payload := map[string]any{"summary": args.Summary, "compacted_output": compacted}

	schema := pathgen.BuildSchema(e.Context, nil)
	newPath, err := e.generator.SynthesizeOutputPath(ctx, task.Description, task.ShortName, "compacted sub-tree summary", schema, payload)
	if err != nil || newPath == "" {
		newPath = fmt.Sprintf("$.compacted_%s", task.TaskID)
	}
	if err := pathgen.Set(e.Context, newPath, payload); err != nil {
		return fmt.Errorf("engine: writing compacted output: %w", err)
	}

	for _, key := range topKeys {
		delete(e.Context, key)
	}

	task.OutputJSONPath = newPath
	e.Context["last_task_output"] = payload
	e.LastTaskOutput = payload
	return nil
}

// collectDescendants walks CompletedTasks' parent_task_id links to find
// every completed descendant of root (spec.md Open Questions: "the task
// graph is a tree ... compaction traverses descendants via an adjacency
// map keyed by parent_task_id").
func (e *Engine) collectDescendants(rootID string) []*Task {
	children := make(map[string][]*Task)
	for _, t := range e.CompletedTasks {
		if t.ParentTaskID != "" {
			children[t.ParentTaskID] = append(children[t.ParentTaskID], t)
		}
	}

	var out []*Task
	queue := children[rootID]
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		out = append(out, t)
		queue = append(queue, children[t.TaskID]...)
	}
	return out
}

// collectTopLevelKeys gathers the distinct top-level context keys each
// task in tasks wrote its output to.
func collectTopLevelKeys(tasks []*Task) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, t := range tasks {
		if t.OutputJSONPath == "" {
			continue
		}
		key, err := pathgen.TopLevelKey(t.OutputJSONPath)
		if err != nil || key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
