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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMinimalConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := "orchestrator:\n  schedules_dir: " + filepath.Join(dir, "schedules") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScheduleCreateListSuspendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := writeMinimalConfig(t, dir)
	cli := &CLI{Config: configPath}

	create := &scheduleCreateCmd{
		ScheduleID: "nightly-report",
		Name:       "Nightly Report",
		Cron:       "0 2 * * *",
		Timezone:   "UTC",
		Task:       "generate the nightly report",
		MaxTasks:   10,
	}
	require.NoError(t, create.Run(cli))

	list := &scheduleListCmd{Format: "json"}
	require.NoError(t, list.Run(cli))

	suspend := &scheduleSuspendCmd{ScheduleID: "nightly-report"}
	require.NoError(t, suspend.Run(cli))

	store, cleanup, err := openScheduleStore(context.Background(), configPath)
	require.NoError(t, err)
	defer cleanup()

	spec, err := store.LoadSpec("nightly-report")
	require.NoError(t, err)
	require.True(t, spec.Suspend)

	resume := &scheduleSuspendCmd{ScheduleID: "nightly-report", Resume: true}
	require.NoError(t, resume.Run(cli))

	spec, err = store.LoadSpec("nightly-report")
	require.NoError(t, err)
	require.False(t, spec.Suspend)
}

func TestScheduleListEmptyStorePrintsWithoutError(t *testing.T) {
	dir := t.TempDir()
	configPath := writeMinimalConfig(t, dir)
	cli := &CLI{Config: configPath}

	list := &scheduleListCmd{Format: "table"}
	require.NoError(t, list.Run(cli))
}

func TestScheduleSuspendUnknownScheduleErrors(t *testing.T) {
	dir := t.TempDir()
	configPath := writeMinimalConfig(t, dir)
	cli := &CLI{Config: configPath}

	suspend := &scheduleSuspendCmd{ScheduleID: "does-not-exist"}
	require.Error(t, suspend.Run(cli))
}
