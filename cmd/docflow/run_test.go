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

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCmdLoadTaskFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.txt")
	require.NoError(t, os.WriteFile(path, []byte("do the thing"), 0o644))

	cmd := &RunCmd{TaskFile: path}
	task, err := cmd.loadTask()
	require.NoError(t, err)
	require.Equal(t, "do the thing", task)
}

func TestRunCmdLoadTaskFromFlag(t *testing.T) {
	cmd := &RunCmd{Task: "do the thing"}
	task, err := cmd.loadTask()
	require.NoError(t, err)
	require.Equal(t, "do the thing", task)
}

func TestRunCmdLoadTaskRequiresOneSource(t *testing.T) {
	cmd := &RunCmd{}
	_, err := cmd.loadTask()
	require.Error(t, err)
}

func TestRunCmdLoadTaskMissingFileErrors(t *testing.T) {
	cmd := &RunCmd{TaskFile: filepath.Join(t.TempDir(), "missing.txt")}
	_, err := cmd.loadTask()
	require.Error(t, err)
}

func TestWriteContextFileCreatesDirAndPersistsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs", "abc123", "context.json")
	context := map[string]any{"foo": "bar", "n": 1}

	require.NoError(t, writeContextFile(path, context))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "bar", got["foo"])
}
