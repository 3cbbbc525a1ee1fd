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

package sop

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/docflow/pkg/logger"
)

// sectionHeading matches a level-2 markdown heading: "## Title".
var sectionHeading = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// docParamRef matches a tool-parameter value of the form "{parameters.Title}".
var docParamRef = regexp.MustCompile(`^\{parameters\.(.+)\}$`)

// Loader enumerates and loads SOP documents from a corpus directory
// (spec.md §4.2). Each *.md file under Root, addressed by its path relative
// to Root with the extension stripped, is one doc_id.
type Loader struct {
	Root string
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Root: dir}
}

// ListDocIDs recursively scans Root for *.md files and returns their doc_ids
// (directory-qualified, extension stripped, forward-slash separated).
func (l *Loader) ListDocIDs() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		ids = append(ids, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sop: scan corpus %q: %w", l.Root, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads and parses a single document by doc_id.
func (l *Loader) Load(docID string) (*Document, error) {
	path := filepath.Join(l.Root, filepath.FromSlash(docID)+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocNotFound, docID)
		}
		return nil, fmt.Errorf("sop: read %q: %w", docID, err)
	}
	return parseDocument(docID, raw)
}

// LoadAll loads every document in the corpus, logging and skipping (not
// failing the whole load) any individual document that fails validation.
func (l *Loader) LoadAll() ([]*Document, error) {
	ids, err := l.ListDocIDs()
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		doc, err := l.Load(id)
		if err != nil {
			logger.GetLogger().Warn("skipping invalid SOP document", "doc_id", id, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseDocument(docID string, raw []byte) (*Document, error) {
	content := string(raw)
	fmBody, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, docID, err)
	}

	var rd rawDocument
	if err := yaml.Unmarshal([]byte(fmBody), &rd); err != nil {
		return nil, fmt.Errorf("%w: %s: front matter: %v", ErrInvalidDocument, docID, err)
	}

	doc := &Document{
		DocID:                    docID,
		Description:              rd.Description,
		Aliases:                  rd.Aliases,
		Tool:                     rd.Tool,
		InputJSONPath:            rd.InputJSONPath,
		OutputJSONPath:           rd.OutputJSONPath,
		InputDescription:         rd.InputDescription,
		OutputDescription:        rd.OutputDescription,
		RequiresPlanningMetadata: rd.RequiresPlanningMetadata,
		SkipNewTaskGeneration:    rd.SkipNewTaskGeneration,
		Body:                     body,
	}
	doc.Sections = parseSections(body)

	if err := doc.validate(); err != nil {
		return nil, err
	}

	resolveParameterRefs(doc)

	return doc, nil
}

// splitFrontMatter separates the leading "---\n<yaml>\n---\n" block from the
// remaining markdown body. Absent front matter is a load error (spec.md §3).
func splitFrontMatter(content string) (frontMatter, body string, err error) {
	content = strings.TrimPrefix(content, "\xef\xbb\xbf")
	if !strings.HasPrefix(strings.TrimLeft(content, "\r\n"), frontMatterFence) {
		return "", "", fmt.Errorf("missing front matter fence")
	}
	content = strings.TrimLeft(content, "\r\n")
	rest := strings.TrimPrefix(content, frontMatterFence)
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n"+frontMatterFence)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated front matter fence")
	}
	fm := rest[:idx]
	remainder := rest[idx+len("\n"+frontMatterFence):]
	remainder = strings.TrimPrefix(remainder, "\r\n")
	remainder = strings.TrimPrefix(remainder, "\n")
	return fm, remainder, nil
}

// parseSections indexes level-2 headings into a title→body map. Duplicate
// titles are a validation warning (spec.md §4.2), not an error — the last
// occurrence wins, logged.
func parseSections(body string) map[string]string {
	locs := sectionHeading.FindAllStringSubmatchIndex(body, -1)
	sections := make(map[string]string, len(locs))

	for i, loc := range locs {
		title := strings.TrimSpace(body[loc[2]:loc[3]])
		contentStart := loc[1]
		contentEnd := len(body)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		content := strings.TrimSpace(body[contentStart:contentEnd])

		if _, dup := sections[title]; dup {
			slog.Warn("sop: duplicate section title", "title", title)
		}
		sections[title] = content
	}
	return sections
}

// resolveParameterRefs rewrites tool parameter values of the form
// "{parameters.Title}" to the content of the named section, logging (not
// failing) when the section is missing (spec.md §3).
func resolveParameterRefs(doc *Document) {
	for k, v := range doc.Tool.Parameters {
		m := docParamRef.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		section, ok := doc.Section(title)
		if !ok {
			slog.Warn("sop: tool parameter references missing section",
				"doc_id", doc.DocID, "parameter", k, "section", title)
			continue
		}
		doc.Tool.Parameters[k] = section
	}
}
