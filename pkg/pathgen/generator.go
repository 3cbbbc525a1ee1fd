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

package pathgen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/docflow/pkg/llmtool"
)

// Schema describes context's shape for the candidate-analysis and
// extraction-synthesis prompts (spec.md §4.4: "a type-schema view of
// context"). Keys starting with "_temp_input_" are excluded.
type Schema map[string]string

// BuildSchema inspects ctx's top-level keys and annotates each with its Go
// type name; meaning optionally supplies a human label per key.
func BuildSchema(ctx map[string]any, meaning map[string]string) Schema {
	schema := make(Schema, len(ctx))
	for k, v := range ctx {
		if strings.HasPrefix(k, "_temp_input_") {
			continue
		}
		t := fmt.Sprintf("%T", v)
		if label, ok := meaning[k]; ok {
			t = fmt.Sprintf("%s (%s)", t, label)
		}
		schema[k] = t
	}
	return schema
}

// IsSmall reports whether schema is small enough to skip LLM candidate
// narrowing (spec.md §4.4: "< ~1000 chars and < 10 entries").
func (s Schema) IsSmall() bool {
	if len(s) >= 10 {
		return false
	}
	b, _ := json.Marshal(s)
	return len(b) < 1000
}

// Generator synthesizes input-extraction and output-placement paths via the
// candidate-analysis / extraction-synthesis / output-path-generation LLM
// calls of spec.md §4.4.
type Generator struct {
	Client llmtool.Client
	Model  string
}

// candidate is one JSON-path the candidate-analysis call proposed, resolved
// against context.
type candidate struct {
	Path  string
	Value any
}

// SynthesizeField runs the one-by-one extraction flow for a single field
// (spec.md §4.4 "1-input -> one-by-one"): candidate analysis, then
// extraction synthesis, returning the synthesized Extraction (possibly
// Missing).
func (g *Generator) SynthesizeField(ctx context.Context, userAsk, shortName, fieldDescription string, schema Schema, contextData map[string]any) (Extraction, error) {
	candidates, err := g.candidateAnalysis(ctx, userAsk, shortName, fieldDescription, schema, contextData)
	if err != nil {
		return Extraction{}, fmt.Errorf("pathgen: candidate analysis: %w", err)
	}
	return g.synthesizeExtraction(ctx, fieldDescription, candidates)
}

// SynthesizeBatch runs the batch extraction flow for >=2 fields (spec.md
// §4.4 "batch"): a single candidate-analysis pass covering all fields,
// followed by one extraction-synthesis call per field.
func (g *Generator) SynthesizeBatch(ctx context.Context, userAsk, shortName string, fieldDescriptions map[string]string, schema Schema, contextData map[string]any) (map[string]Extraction, error) {
	combined := strings.Join(sortedValues(fieldDescriptions), "; ")
	candidates, err := g.candidateAnalysis(ctx, userAsk, shortName, combined, schema, contextData)
	if err != nil {
		return nil, fmt.Errorf("pathgen: batch candidate analysis: %w", err)
	}

	out := make(map[string]Extraction, len(fieldDescriptions))
	for field, desc := range fieldDescriptions {
		e, err := g.synthesizeExtraction(ctx, desc, candidates)
		if err != nil {
			return nil, fmt.Errorf("pathgen: batch field %q: %w", field, err)
		}
		out[field] = e
	}
	return out, nil
}

func (g *Generator) candidateAnalysis(ctx context.Context, userAsk, shortName, fieldDescription string, schema Schema, contextData map[string]any) ([]candidate, error) {
	if schema.IsSmall() {
		return g.allCandidates(schema, contextData), nil
	}

	schemaJSON, _ := json.Marshal(schema)
	req := llmtool.CompletionRequest{
		Model: g.Model,
		Messages: []llmtool.Message{
			{Role: "system", Content: "Identify which context paths are plausible sources for the requested field. Reply with a JSON array of JSON-paths, most likely first."},
			{Role: "user", Content: fmt.Sprintf("User ask: %s\nTask: %s\nField: %s\nContext schema: %s", userAsk, shortName, fieldDescription, schemaJSON)},
		},
	}
	completion, err := g.Client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var paths []string
	if err := json.Unmarshal([]byte(completion.Content), &paths); err != nil {
		return nil, fmt.Errorf("pathgen: candidate analysis returned non-array response: %w", err)
	}

	seen := make(map[string]struct{}, len(paths))
	var out []candidate
	for _, p := range paths {
		v, ok, err := Get(contextData, p)
		if err != nil || !ok {
			continue
		}
		key := fmt.Sprint(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate{Path: p, Value: v})
	}
	return out, nil
}

func (g *Generator) allCandidates(schema Schema, contextData map[string]any) []candidate {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]struct{}, len(keys))
	var out []candidate
	for _, k := range keys {
		v := contextData[k]
		key := fmt.Sprint(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate{Path: "$." + k, Value: v})
	}
	return out
}

// extractionSchema is the function-call schema the LLM must honor when
// synthesizing an Extraction (SPEC_FULL.md §4.4a "synthesize_extraction").
var extractionSchema = llmtool.ToolDefinition{
	Name:        "synthesize_extraction",
	Description: "Describe how to extract the requested field from the candidate context values as a small extraction plan, not code.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []string{"path_read", "literal", "regex", "missing"},
			},
			"path":    map[string]any{"type": "string"},
			"value":   map[string]any{"type": "string"},
			"pattern": map[string]any{"type": "string"},
			"group":   map[string]any{"type": "integer"},
			"reason":  map[string]any{"type": "string"},
		},
		"required": []string{"kind"},
	},
}

// extractionPlan mirrors extractionSchema's JSON shape.
type extractionPlan struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Value   string `json:"value"`
	Pattern string `json:"pattern"`
	Group   int    `json:"group"`
	Reason  string `json:"reason"`
}

func (g *Generator) synthesizeExtraction(ctx context.Context, fieldDescription string, candidates []candidate) (Extraction, error) {
	if len(candidates) == 0 {
		return MissingExtraction("no candidates found in context"), nil
	}

	dump, _ := json.Marshal(candidates)
	req := llmtool.CompletionRequest{
		Model: g.Model,
		Tools: []llmtool.ToolDefinition{extractionSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Choose an extraction plan for the field from the candidate values. Prefer path_read; use regex only to pull a substring; use literal only for a short constant; use missing if nothing fits."},
			{Role: "user", Content: fmt.Sprintf("Field: %s\nCandidates: %s", fieldDescription, dump)},
		},
	}

	completion, err := g.Client.Complete(ctx, req)
	if err != nil {
		return Extraction{}, err
	}

	call := findToolCall(completion.ToolCalls, extractionSchema.Name)
	if call == nil {
		return MissingExtraction("model returned no synthesize_extraction call"), nil
	}

	plan, err := decodePlan(call.Arguments)
	if err != nil {
		return Extraction{}, fmt.Errorf("pathgen: invalid extraction plan: %w", err)
	}

	return planToExtraction(plan), nil
}

func decodePlan(args map[string]any) (extractionPlan, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return extractionPlan{}, err
	}
	var p extractionPlan
	if err := json.Unmarshal(b, &p); err != nil {
		return extractionPlan{}, err
	}
	return p, nil
}

func planToExtraction(p extractionPlan) Extraction {
	switch p.Kind {
	case "path_read":
		return PathReadExtraction(p.Path)
	case "literal":
		return LiteralExtraction(p.Value)
	case "regex":
		return RegexExtraction(p.Path, p.Pattern, p.Group)
	default:
		reason := p.Reason
		if reason == "" {
			reason = "model selected kind=missing"
		}
		return MissingExtraction(reason)
	}
}

func findToolCall(calls []llmtool.ToolCall, name string) *llmtool.ToolCall {
	for i := range calls {
		if calls[i].Name == name {
			return &calls[i]
		}
	}
	return nil
}

func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// outputPathSchema is the function-call schema for output-path generation
// (spec.md §4.4 "Output path": "generate_output_path(output_path)").
var outputPathSchema = llmtool.ToolDefinition{
	Name:        "generate_output_path",
	Description: "Propose a snake_case JSON path, rooted at $., for where this tool's output should be stored.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"output_path": map[string]any{"type": "string"},
		},
		"required": []string{"output_path"},
	},
}

// SynthesizeOutputPath proposes a storage path for a tool's output, given
// the user's original ask, the task's short name, an output description,
// and the tool's raw output (spec.md §4.4 "Output path"). A model response
// missing the expected tool call falls back to "$.output" (non-fatal); a
// wrong tool-call name is fatal.
func (g *Generator) SynthesizeOutputPath(ctx context.Context, userAsk, shortName, outputDescription string, schema Schema, toolOutput any) (string, error) {
	outputJSON, _ := json.Marshal(toolOutput)
	schemaJSON, _ := json.Marshal(schema)

	req := llmtool.CompletionRequest{
		Model: g.Model,
		Tools: []llmtool.ToolDefinition{outputPathSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Propose where this output should live in the shared context."},
			{Role: "user", Content: fmt.Sprintf("User ask: %s\nTask: %s\nOutput description: %s\nContext schema: %s\nTool output: %s",
				userAsk, shortName, outputDescription, schemaJSON, outputJSON)},
		},
	}

	completion, err := g.Client.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	if len(completion.ToolCalls) == 0 {
		return "$.output", nil
	}

	call := findToolCall(completion.ToolCalls, outputPathSchema.Name)
	if call == nil {
		return "", fmt.Errorf("pathgen: expected %q tool call, got %q", outputPathSchema.Name, completion.ToolCalls[0].Name)
	}

	path, _ := call.Arguments["output_path"].(string)
	if path == "" {
		return "$.output", nil
	}
	return path, nil
}
