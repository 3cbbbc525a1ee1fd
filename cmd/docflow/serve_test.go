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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunnerCommandDefaultsToSelfRunSubcommand(t *testing.T) {
	cmd := runnerCommand("")
	require.Len(t, cmd, 2)
	require.Equal(t, "run", cmd[1])
}

func TestRunnerCommandSplitsConfiguredModule(t *testing.T) {
	cmd := runnerCommand("python3 -m orchestrator_service.runner")
	require.Equal(t, []string{"python3", "-m", "orchestrator_service.runner"}, cmd)
}
