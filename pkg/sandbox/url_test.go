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

package sandbox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/sandbox"
)

func TestBaseURLPrecedence(t *testing.T) {
	t.Setenv("WORKSPACE_SANDBOX_URL", "")
	t.Setenv("DEFAULT_WORKSPACE_SANDBOX_URL", "")
	t.Setenv("SANDBOX_BASE_URL", "")
	require.Equal(t, "", sandbox.BaseURL())

	t.Setenv("SANDBOX_BASE_URL", "http://fallback:8080/")
	require.Equal(t, "http://fallback:8080", sandbox.BaseURL())

	t.Setenv("DEFAULT_WORKSPACE_SANDBOX_URL", "http://default:8080/")
	require.Equal(t, "http://default:8080", sandbox.BaseURL())

	t.Setenv("WORKSPACE_SANDBOX_URL", "http://workspace:8080/")
	require.Equal(t, "http://workspace:8080", sandbox.BaseURL())
}
