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
	"path/filepath"

	"github.com/kadirpekel/docflow/pkg/config"
	"github.com/kadirpekel/docflow/pkg/engine"
	"github.com/kadirpekel/docflow/pkg/utils"
)

// RunCmd runs a single job to completion. It is invoked by
// pkg/orchestrator.Manager as a subprocess — one job per process — and
// never by an interactive user directly (original_source/orchestrator_service/runner.py).
// Errors propagate uncaught so the orchestrator can detect failure via the
// subprocess's exit code.
type RunCmd struct {
	JobID      string `required:"" name:"job-id" help:"Job identifier."`
	Task       string `help:"Task description (deprecated, prefer --task-file)."`
	TaskFile   string `name:"task-file" help:"Path to a file containing the task description." type:"path"`
	MaxTasks   int    `name:"max-tasks" default:"50" help:"Maximum number of tasks the engine may execute."`
	TraceFile  string `name:"trace-file" help:"Pre-created trace session file path." type:"path"`
	ContextFile string `name:"context-file" help:"Path to persist the final job context as JSON." type:"path"`
	EnvFile    string `name:"env-file" help:"Path to a JSON file of environment variables to apply before running." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	if err := loadEnvFile(c.EnvFile); err != nil {
		return err
	}

	taskText, err := c.loadTask()
	if err != nil {
		return err
	}
	fmt.Printf("Starting job %s with task: %s\n", c.JobID, taskText)

	ctx := context.Background()
	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if loader != nil {
		defer loader.Close()
	}

	collab, err := buildEngineCollaborators(ctx, cfg, nil, true)
	if err != nil {
		return err
	}

	if c.TraceFile != "" {
		collab.tracer.SetSessionFile(c.TraceFile)
	}
	if c.MaxTasks > 0 {
		collab.opts.MaxTasks = c.MaxTasks
	}

	eng := engine.New(collab.opts)
	if err := eng.Run(ctx, taskText); err != nil {
		return fmt.Errorf("job %s failed: %w", c.JobID, err)
	}

	contextFile := c.ContextFile
	if contextFile == "" {
		contextFile = filepath.Join("jobs", c.JobID, "context.json")
	}
	if err := writeContextFile(contextFile, eng.Context); err != nil {
		return err
	}

	fmt.Printf("Job %s completed successfully\n", c.JobID)
	return nil
}

func (c *RunCmd) loadTask() (string, error) {
	if c.TaskFile != "" {
		data, err := os.ReadFile(c.TaskFile)
		if err != nil {
			return "", fmt.Errorf("failed to read task description file %s: %w", c.TaskFile, err)
		}
		return string(data), nil
	}
	if c.Task != "" {
		return c.Task, nil
	}
	return "", fmt.Errorf("either --task-file or --task must be provided")
}

func writeContextFile(path string, context map[string]any) error {
	if _, err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create context file directory: %w", err)
	}
	data, err := json.MarshalIndent(context, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job context: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist job context: %w", err)
	}
	return nil
}
