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

package usertool_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/tool"
	"github.com/kadirpekel/docflow/pkg/tool/usertool"
)

func TestExecuteReadsUntilEndMarker(t *testing.T) {
	in := strings.NewReader("line one\nline two\n###END###\nnever read\n")
	var out bytes.Buffer
	tl := &usertool.Tool{In: in, Out: &out}

	result, err := tl.Execute(tool.Context{Params: map[string]any{"message": "please reply"}})
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", result.Output["user_reply"])
	require.Contains(t, out.String(), "please reply")
}

func TestExecuteReadsUntilEOF(t *testing.T) {
	in := strings.NewReader("only line")
	var out bytes.Buffer
	tl := &usertool.Tool{In: in, Out: &out}

	result, err := tl.Execute(tool.Context{Params: map[string]any{"message": "hi"}})
	require.NoError(t, err)
	require.Equal(t, "only line", result.Output["user_reply"])
}

func TestExecuteErrorsOnMissingMessage(t *testing.T) {
	tl := &usertool.Tool{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	_, err := tl.Execute(tool.Context{Params: map[string]any{}})
	require.Error(t, err)
}
