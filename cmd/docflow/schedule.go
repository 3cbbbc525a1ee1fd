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
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/docflow/pkg/config"
	"github.com/kadirpekel/docflow/pkg/schedule"
)

// ScheduleCmd manages durable schedules: create/list/suspend over
// pkg/schedule.Store. Firing schedules into jobs is not this binary's
// job — spec.md §1 scopes only the storage interface, not a cron daemon
// ("The scheduler itself is not required by the core contract; only the
// storage interface is specified").
type ScheduleCmd struct {
	Create scheduleCreateCmd  `cmd:"" help:"Create or update a schedule."`
	List   scheduleListCmd    `cmd:"" help:"List schedules."`
	Suspend scheduleSuspendCmd `cmd:"" help:"Suspend or resume a schedule."`
}

func openScheduleStore(ctx context.Context, configPath string) (*schedule.Store, func(), error) {
	cfg, loader, err := config.LoadConfigFile(ctx, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cleanup := func() {
		if loader != nil {
			loader.Close()
		}
	}
	return schedule.NewStore(cfg.Orchestrator.SchedulesDir), cleanup, nil
}

type scheduleCreateCmd struct {
	ScheduleID      string `required:"" name:"schedule-id" help:"Unique schedule identifier."`
	Name            string `required:"" help:"Human-readable schedule name."`
	Cron            string `required:"" help:"Cron expression (minute hour dom month dow)."`
	Timezone        string `default:"UTC" help:"IANA timezone for cron evaluation."`
	Suspend         bool   `help:"Create the schedule in a suspended state."`
	Task            string `required:"" name:"task" help:"Task description the fired job should run."`
	MaxTasks        int    `name:"max-tasks" default:"50" help:"max_tasks for jobs this schedule fires."`
}

func (c *scheduleCreateCmd) Run(cli *CLI) error {
	store, cleanup, err := openScheduleStore(context.Background(), cli.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	spec := &schedule.Spec{
		ScheduleID: c.ScheduleID,
		Name:       c.Name,
		Cron:       c.Cron,
		Timezone:   c.Timezone,
		Suspend:    c.Suspend,
		JobTemplate: schedule.JobTemplate{
			TaskDescription: c.Task,
			MaxTasks:        c.MaxTasks,
		},
	}
	if err := store.SaveSpec(spec); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", c.ScheduleID, err)
	}
	fmt.Printf("schedule %s created\n", c.ScheduleID)
	return nil
}

type scheduleListCmd struct {
	Format string `short:"f" help:"Output format: table, json." default:"table" enum:"table,json"`
}

type scheduleListEntry struct {
	Spec   *schedule.Spec   `json:"spec"`
	Status *schedule.Status `json:"status,omitempty"`
}

func (c *scheduleListCmd) Run(cli *CLI) error {
	store, cleanup, err := openScheduleStore(context.Background(), cli.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := store.ListScheduleIDs()
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	entries := make([]scheduleListEntry, 0, len(ids))
	for _, id := range ids {
		spec, err := store.LoadSpec(id)
		if err != nil {
			return fmt.Errorf("failed to load schedule %s: %w", id, err)
		}
		status, err := store.LoadStatusIfPresent(id)
		if err != nil {
			return fmt.Errorf("failed to load status for %s: %w", id, err)
		}
		entries = append(entries, scheduleListEntry{Spec: spec, Status: status})
	}

	if c.Format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("no schedules")
		return nil
	}
	fmt.Printf("%-24s %-24s %-20s %-10s %s\n", "SCHEDULE_ID", "NAME", "CRON", "SUSPENDED", "LAST_STATUS")
	for _, e := range entries {
		lastStatus := "-"
		if e.Status != nil && e.Status.LastStatus != "" {
			lastStatus = e.Status.LastStatus
		}
		fmt.Printf("%-24s %-24s %-20s %-10t %s\n", e.Spec.ScheduleID, e.Spec.Name, e.Spec.Cron, e.Spec.Suspend, lastStatus)
	}
	return nil
}

type scheduleSuspendCmd struct {
	ScheduleID string `arg:"" name:"schedule-id" help:"Schedule identifier."`
	Resume     bool   `help:"Resume (un-suspend) instead of suspending."`
}

func (c *scheduleSuspendCmd) Run(cli *CLI) error {
	store, cleanup, err := openScheduleStore(context.Background(), cli.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	spec, err := store.LoadSpec(c.ScheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", c.ScheduleID, err)
	}
	spec.Suspend = !c.Resume
	if err := store.SaveSpec(spec); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", c.ScheduleID, err)
	}
	if spec.Suspend {
		fmt.Printf("schedule %s suspended\n", c.ScheduleID)
	} else {
		fmt.Printf("schedule %s resumed\n", c.ScheduleID)
	}
	return nil
}
