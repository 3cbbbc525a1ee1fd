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

// Package schedule holds the durable spec/status pair for a cron-like
// schedule (spec.md §4.9, §3 "Schedule"): a user-authored spec.json and an
// engine-maintained status.json, persisted under schedules/<schedule_id>/.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobTemplate is the job shape a fired schedule instantiates (spec.md §3
// "Schedule ... job template").
type JobTemplate struct {
	TaskDescription string            `json:"task_description" yaml:"task_description"`
	MaxTasks        int               `json:"max_tasks" yaml:"max_tasks"`
	EnvVars         map[string]string `json:"env_vars" yaml:"env_vars"`
	SandboxURL      string            `json:"sandbox_url,omitempty" yaml:"sandbox_url,omitempty"`
}

// Spec is the user-authored intent for a schedule, persisted to spec.json.
type Spec struct {
	ScheduleID  string      `json:"schedule_id" yaml:"schedule_id"`
	Name        string      `json:"name" yaml:"name"`
	Cron        string      `json:"cron" yaml:"cron"`
	Timezone    string      `json:"timezone" yaml:"timezone"`
	Suspend     bool        `json:"suspend" yaml:"suspend"`
	JobTemplate JobTemplate `json:"job_template" yaml:"job_template"`
}

// ValidateBasic rejects a Spec missing required fields or carrying an
// unparsable cron expression (spec.md §4.9).
func (s *Spec) ValidateBasic() error {
	if strings.TrimSpace(s.ScheduleID) == "" {
		return fmt.Errorf("schedule_id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(s.Cron) == "" {
		return fmt.Errorf("cron is required")
	}
	if strings.TrimSpace(s.Timezone) == "" {
		return fmt.Errorf("timezone is required")
	}
	if strings.TrimSpace(s.JobTemplate.TaskDescription) == "" {
		return fmt.Errorf("job_template.task_description is required")
	}
	if _, err := cronParser.Parse(s.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}
	return nil
}

// NextFireAfter returns the next time the schedule should fire after from,
// honoring Timezone and Suspend.
func (s *Spec) NextFireAfter(from time.Time) (time.Time, error) {
	if s.Suspend {
		return time.Time{}, nil
	}
	schedule, err := cronParser.Parse(s.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}
	loc := time.UTC
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		} else {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}
	return schedule.Next(from.In(loc)), nil
}

// Status is the engine-maintained runtime state for a schedule, persisted
// to status.json.
type Status struct {
	LastJobID        string     `json:"last_job_id,omitempty"`
	LastScheduledFor *time.Time `json:"last_scheduled_for,omitempty"`
	LastStartedAt    *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt   *time.Time `json:"last_finished_at,omitempty"`
	LastStatus       string     `json:"last_status,omitempty"`
	NextScheduledFor *time.Time `json:"next_scheduled_for,omitempty"`
	Pending          bool       `json:"pending"`
	LastError        string     `json:"last_error,omitempty"`
}
