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

// Package sop loads and resolves Standard Operating Procedure documents:
// markdown files with a YAML front matter binding a tool, plus a body whose
// level-2 sections are addressable as tool-parameter bodies (spec.md §4.2).
package sop

import (
	"fmt"
	"strings"
)

// ToolBinding names the tool a document invokes and its static parameters.
// String parameter values of the form "{parameters.<Title>}" are resolved at
// load time to the content of the body section titled <Title>.
type ToolBinding struct {
	ToolID     string            `yaml:"tool_id"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

// Document is a single loaded SOP (spec.md §3 SOPDocument).
type Document struct {
	// DocID is the corpus-relative path without extension, e.g. "tools/bash".
	DocID string

	Description       string            `yaml:"description"`
	Aliases           []string          `yaml:"aliases,omitempty"`
	Tool              ToolBinding       `yaml:"tool"`
	InputJSONPath     map[string]string `yaml:"input_json_path,omitempty"`
	OutputJSONPath    string            `yaml:"output_json_path,omitempty"`
	InputDescription  map[string]string `yaml:"input_description,omitempty"`
	OutputDescription string            `yaml:"output_description,omitempty"`

	RequiresPlanningMetadata bool `yaml:"requires_planning_metadata,omitempty"`
	SkipNewTaskGeneration    bool `yaml:"skip_new_task_generation,omitempty"`

	// Body is the raw markdown body, after the front-matter fence.
	Body string

	// Sections maps a level-2 heading title to its body (spec.md §3: "a
	// parameters map keyed by heading title"). Built by parseSections.
	Sections map[string]string
}

// frontMatterFence separates YAML front matter from the markdown body.
const frontMatterFence = "---"

// rawDocument mirrors the YAML front-matter shape for decoding; it excludes
// DocID, Body and Sections, which are derived rather than declared.
type rawDocument struct {
	Description       string            `yaml:"description"`
	Aliases           []string          `yaml:"aliases,omitempty"`
	Tool              ToolBinding       `yaml:"tool"`
	InputJSONPath     map[string]string `yaml:"input_json_path,omitempty"`
	OutputJSONPath    string            `yaml:"output_json_path,omitempty"`
	InputDescription  map[string]string `yaml:"input_description,omitempty"`
	OutputDescription string            `yaml:"output_description,omitempty"`

	RequiresPlanningMetadata bool `yaml:"requires_planning_metadata,omitempty"`
	SkipNewTaskGeneration    bool `yaml:"skip_new_task_generation,omitempty"`
}

// DisplayAliases returns aliases that are meaningfully distinct from the
// bare doc_id and the "doc_id: description" form — duplicates of either are
// dropped (spec.md §3 aliases invariant), trimmed and deduplicated.
func (d *Document) DisplayAliases() []string {
	canonical := d.DocID
	withDescription := d.DocID + ": " + d.Description

	seen := make(map[string]struct{}, len(d.Aliases))
	out := make([]string, 0, len(d.Aliases))
	for _, a := range d.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || a == canonical || a == withDescription {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Section returns the body of the named level-2 section, trimmed, and
// whether it was found.
func (d *Document) Section(title string) (string, bool) {
	s, ok := d.Sections[strings.TrimSpace(title)]
	return s, ok
}

// TerminalName returns the last path segment of the doc_id, used by the
// resolver's lexical match as a secondary candidate key (spec.md §4.3).
func (d *Document) TerminalName() string {
	idx := strings.LastIndex(d.DocID, "/")
	if idx < 0 {
		return d.DocID
	}
	return d.DocID[idx+1:]
}

func (d *Document) validate() error {
	if d.Tool.ToolID == "" {
		return fmt.Errorf("%w: %s: missing tool.tool_id", ErrInvalidDocument, d.DocID)
	}
	return nil
}
