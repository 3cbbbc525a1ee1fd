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

package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/schedule"
)

func TestStoreSaveAndLoadSpecRoundTrips(t *testing.T) {
	store := schedule.NewStore(t.TempDir())
	spec := validSpec()

	require.NoError(t, store.SaveSpec(spec))

	loaded, err := store.LoadSpec(spec.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, spec.Cron, loaded.Cron)
	require.Equal(t, spec.JobTemplate.TaskDescription, loaded.JobTemplate.TaskDescription)
}

func TestStoreLoadSpecMissingReturnsNotFound(t *testing.T) {
	store := schedule.NewStore(t.TempDir())
	_, err := store.LoadSpec("nope")
	require.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

func TestStoreLoadStatusIfPresentReturnsNilWithoutError(t *testing.T) {
	store := schedule.NewStore(t.TempDir())
	require.NoError(t, store.SaveSpec(validSpec()))

	status, err := store.LoadStatusIfPresent("nightly-report")
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestStoreSaveAndLoadStatusRoundTrips(t *testing.T) {
	store := schedule.NewStore(t.TempDir())
	require.NoError(t, store.SaveSpec(validSpec()))

	now := time.Now().UTC().Truncate(time.Second)
	status := &schedule.Status{LastJobID: "job123", LastStatus: "COMPLETED", LastFinishedAt: &now}
	require.NoError(t, store.SaveStatus("nightly-report", status))

	loaded, err := store.LoadStatus("nightly-report")
	require.NoError(t, err)
	require.Equal(t, "job123", loaded.LastJobID)
	require.Equal(t, "COMPLETED", loaded.LastStatus)
	require.True(t, now.Equal(*loaded.LastFinishedAt))
}

func TestStoreListScheduleIDsSorted(t *testing.T) {
	store := schedule.NewStore(t.TempDir())
	b := validSpec()
	b.ScheduleID = "b-schedule"
	a := validSpec()
	a.ScheduleID = "a-schedule"
	require.NoError(t, store.SaveSpec(b))
	require.NoError(t, store.SaveSpec(a))

	ids, err := store.ListScheduleIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"a-schedule", "b-schedule"}, ids)
}
