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

package orchestrator

import "errors"

// ErrJobNotFound is returned when a job_id has no known Job.
var ErrJobNotFound = errors.New("job not found")

// ErrPathTraversal is returned by ResolveSandboxFileRequest when the
// requested path escapes the job's sandbox workdir (spec.md §4.8, §6.2
// "traversal → 400").
var ErrPathTraversal = errors.New("requested path escapes sandbox workdir")

// ErrSandboxUnavailable is returned for a job submitted with a sandbox_url:
// remote sandbox execution and file serving are not implemented.
var ErrSandboxUnavailable = errors.New("sandbox execution is not configured")
