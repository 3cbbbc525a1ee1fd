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

func validSpec() *schedule.Spec {
	return &schedule.Spec{
		ScheduleID: "nightly-report",
		Name:       "Nightly report",
		Cron:       "0 2 * * *",
		Timezone:   "UTC",
		JobTemplate: schedule.JobTemplate{
			TaskDescription: "generate the nightly report",
			MaxTasks:        20,
		},
	}
}

func TestValidateBasicRejectsMissingFields(t *testing.T) {
	spec := validSpec()
	spec.Cron = ""
	require.Error(t, spec.ValidateBasic())
}

func TestValidateBasicRejectsBadCron(t *testing.T) {
	spec := validSpec()
	spec.Cron = "not a cron expression"
	require.Error(t, spec.ValidateBasic())
}

func TestValidateBasicAcceptsWellFormedSpec(t *testing.T) {
	require.NoError(t, validSpec().ValidateBasic())
}

func TestNextFireAfterReturnsZeroWhenSuspended(t *testing.T) {
	spec := validSpec()
	spec.Suspend = true
	next, err := spec.NextFireAfter(time.Now())
	require.NoError(t, err)
	require.True(t, next.IsZero())
}

func TestNextFireAfterComputesNextCronFire(t *testing.T) {
	spec := validSpec()
	from := time.Date(2026, 7, 30, 3, 0, 0, 0, time.UTC)
	next, err := spec.NextFireAfter(from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC), next)
}
