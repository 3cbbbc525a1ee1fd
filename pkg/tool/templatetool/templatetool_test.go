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

package templatetool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/tool/templatetool"
)

func TestExecuteFillsPlaceholders(t *testing.T) {
	tl := templatetool.Tool{}
	result, err := tl.Execute(tool.Context{
		SOPDocBody: "Hello {name}, your ticket is {ticket_id}.",
		Params:     map[string]any{"name": "Ada", "ticket_id": 42},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello Ada, your ticket is 42.", result.Output["content"])

	used, ok := result.Output["template_variables_used"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Ada", used["name"])
	require.Equal(t, 42, used["ticket_id"])
}

func TestExecuteErrorsOnMissingVariable(t *testing.T) {
	tl := templatetool.Tool{}
	_, err := tl.Execute(tool.Context{
		SOPDocBody: "Hello {name}.",
		Params:     map[string]any{},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "name")
}

func TestExecuteErrorsOnMissingBody(t *testing.T) {
	tl := templatetool.Tool{}
	_, err := tl.Execute(tool.Context{Params: map[string]any{}})
	require.Error(t, err)
}

func TestExecuteIgnoresUnreferencedParams(t *testing.T) {
	tl := templatetool.Tool{}
	result, err := tl.Execute(tool.Context{
		SOPDocBody: "No placeholders here.",
		Params:     map[string]any{"unused": "value"},
	})
	require.NoError(t, err)
	require.Equal(t, "No placeholders here.", result.Output["content"])
	require.Empty(t, result.Output["template_variables_used"])
}
