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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kadirpekel/docflow/pkg/config"
	"github.com/kadirpekel/docflow/pkg/httpapi"
	"github.com/kadirpekel/docflow/pkg/observability"
	"github.com/kadirpekel/docflow/pkg/orchestrator"
)

// ServeCmd starts the orchestrator HTTP server: pkg/orchestrator.Manager
// behind pkg/httpapi.Server (spec.md §6.1, §6.2).
type ServeCmd struct {
	Addr string `help:"Override the orchestrator.bind_addr config value." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("docflow: shutting down")
		cancel()
	}()

	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if loader != nil {
		defer loader.Close()
	}

	obsManager, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer obsManager.Shutdown(context.Background())

	runnerCmd := runnerCommand(cfg.Orchestrator.RunnerModule)
	manager, err := orchestrator.NewManager(
		cfg.Orchestrator.JobsDir,
		cfg.Orchestrator.TracesDir,
		cfg.Orchestrator.MaxParallelJobs,
		runnerCmd,
		time.Duration(cfg.Orchestrator.JobShutdownTimeoutSeconds)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	addr := c.Addr
	if addr == "" {
		addr = cfg.Orchestrator.BindAddr
	}
	server := httpapi.NewServer(addr, manager)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	slog.Info("docflow: orchestrator listening", "addr", addr)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Orchestrator.JobShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}

// runnerCommand builds the argv prefix used to launch one job subprocess.
// An empty RunnerModule defaults to re-invoking this same binary's own
// "run" subcommand, mirroring the original's in-process
// "python -m orchestrator_service.runner" default (spec.md §6.5).
func runnerCommand(runnerModule string) []string {
	if runnerModule == "" {
		self, err := os.Executable()
		if err != nil {
			self = os.Args[0]
		}
		return []string{self, "run"}
	}
	return strings.Fields(runnerModule)
}
