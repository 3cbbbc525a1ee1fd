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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvFileEmptyPathIsNoOp(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
}

func TestLoadEnvFileAppliesVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"DOCFLOW_TEST_VAR": "hello", "DOCFLOW_TEST_NUM": 7}`), 0o644))

	t.Cleanup(func() {
		os.Unsetenv("DOCFLOW_TEST_VAR")
		os.Unsetenv("DOCFLOW_TEST_NUM")
	})

	require.NoError(t, loadEnvFile(path))
	require.Equal(t, "hello", os.Getenv("DOCFLOW_TEST_VAR"))
	require.Equal(t, "7", os.Getenv("DOCFLOW_TEST_NUM"))
}

func TestLoadEnvFileMissingFileErrors(t *testing.T) {
	err := loadEnvFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestLoadEnvFileMalformedJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	require.Error(t, loadEnvFile(path))
}
