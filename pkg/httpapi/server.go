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

// Package httpapi exposes pkg/orchestrator's Manager over HTTP (spec.md
// §6.2), the same job-submission/inspection surface the original FastAPI
// application serves.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/orchestrator"
)

// Server wraps an orchestrator.Manager behind an HTTP router. Start/Stop
// follow the teacher's transport.JSONRPCHandler shape: a net/http.Server
// constructed lazily in Start, shut down gracefully in Stop.
type Server struct {
	Addr    string
	Manager *orchestrator.Manager

	httpServer *http.Server
}

// NewServer constructs a Server bound to addr, serving manager.
func NewServer(addr string, manager *orchestrator.Manager) *Server {
	return &Server{Addr: addr, Manager: manager}
}

// Router builds the chi router implementing spec.md §6.2's endpoint
// table. Exported so cmd/docflow's "serve" subcommand and tests can drive
// it directly via httptest without starting a real listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	h := &handlers{manager: s.Manager}

	r.Get("/health", h.health)
	r.Post("/jobs", h.submitJob)
	r.Get("/jobs", h.listJobs)
	r.Get("/jobs/{job_id}", h.getJob)
	r.Post("/jobs/{job_id}/cancel", h.cancelJob)
	r.Get("/jobs/{job_id}/logs", h.getJobLogs)
	r.Get("/jobs/{job_id}/context", h.getJobContext)
	r.Post("/traces/{trace_id}/sync", h.syncTrace)
	r.Get("/sandbox/{job_id}/*", h.getSandboxFile)

	return r
}

// Start begins serving in a background goroutine and returns after 200ms,
// or sooner with the error if ListenAndServe fails first (mirroring
// transport.Server.Start's async-start shape rather than blocking the
// caller).
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("httpapi: server failed to start: %w", err)
	case <-time.After(200 * time.Millisecond):
		logger.GetLogger().Info("httpapi: listening", "addr", s.Addr)
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.GetLogger().Debug("httpapi: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
