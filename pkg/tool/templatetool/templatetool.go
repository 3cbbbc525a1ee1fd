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

// Package templatetool fills a SOP document's body via simple "{key}"
// placeholder substitution, the Go analogue of the original tool's
// str.format-based template fill (spec.md §1 "template fill" tool type).
package templatetool

import (
	"fmt"
	"regexp"

	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/tool"
)

const ToolID = "TEMPLATE"

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Tool fills the bound SOP document's body against the task's resolved
// parameters. It deliberately stops short of Go's text/template directive
// syntax — the original uses str.format, a flat "{var}" substitution with
// no control flow, and that is the contract SOP documents are written
// against.
type Tool struct{}

func (Tool) ID() string { return ToolID }

func (Tool) Execute(ctx tool.Context) (*tool.Result, error) {
	if ctx.SOPDocBody == "" {
		return nil, fmt.Errorf("templatetool: sop_doc_body is required")
	}

	logger.GetLogger().Debug("templatetool: filling template",
		"task_id", ctx.TaskID, "template_len", len(ctx.SOPDocBody), "params", len(ctx.Params))

	content, missing := fill(ctx.SOPDocBody, ctx.Params)
	if missing != "" {
		return nil, fmt.Errorf("templatetool: missing variable %q in parameters", missing)
	}

	used := map[string]any{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(ctx.SOPDocBody, -1) {
		if v, ok := ctx.Params[m[1]]; ok {
			used[m[1]] = v
		}
	}

	return &tool.Result{Output: map[string]any{
		"content":                 content,
		"template_variables_used": used,
	}}, nil
}

// GetResultValidationHint implements tool.ValidationHinter.
func (Tool) GetResultValidationHint(*tool.Result, error) string {
	return "The result is a template filled text, check if there is any unfilled variable like {variable}"
}

// fill replaces every "{name}" placeholder in body with its value from
// params, formatted with fmt.Sprint (the Go equivalent of Python's
// str.format coercing each substituted value to its string form). It
// returns the first referenced-but-unbound variable name, if any.
func fill(body string, params map[string]any) (string, string) {
	var missing string
	result := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		if missing != "" {
			return match
		}
		name := match[1 : len(match)-1]
		v, ok := params[name]
		if !ok {
			missing = name
			return match
		}
		return fmt.Sprint(v)
	})
	return result, missing
}
