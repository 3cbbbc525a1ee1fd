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

package sop_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/sop"
)

const validDoc = `---
description: "Binds a document to the template tool"
tool:
  tool_id: TEMPLATE
  parameters:
    body: "{parameters.Body}"
---

## Body

Dear {name}, your request has been filed.
`

func writeDoc(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLoaderListDocIDsFindsNestedMarkdown(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "top.md", validDoc)
	writeDoc(t, root, "nested/child.md", validDoc)
	writeDoc(t, root, "ignored.txt", "not markdown")

	loader := sop.NewLoader(root)
	ids, err := loader.ListDocIDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"top", "nested/child"}, ids)
}

func TestLoaderLoadResolvesParameterSectionRefs(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "greet.md", validDoc)

	loader := sop.NewLoader(root)
	doc, err := loader.Load("greet")
	require.NoError(t, err)
	require.Equal(t, "TEMPLATE", doc.Tool.ToolID)
	require.Contains(t, doc.Tool.Parameters["body"], "Dear {name}")
}

func TestLoaderLoadMissingFrontMatterFails(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "broken.md", "# Just a heading\n\nNo front matter here.\n")

	loader := sop.NewLoader(root)
	_, err := loader.Load("broken")
	require.Error(t, err)
	require.ErrorIs(t, err, sop.ErrInvalidDocument)
}

func TestLoaderLoadUnknownDocIDReturnsNotFound(t *testing.T) {
	loader := sop.NewLoader(t.TempDir())
	_, err := loader.Load("nope")
	require.ErrorIs(t, err, sop.ErrDocNotFound)
}

func TestLoaderLoadAllSkipsInvalidDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "good.md", validDoc)
	writeDoc(t, root, "bad.md", "no front matter")

	loader := sop.NewLoader(root)
	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "good", docs[0].DocID)
}
