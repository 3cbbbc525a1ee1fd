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
	"encoding/json"
	"fmt"
	"os"
)

// loadEnvFile reads path as a flat JSON object and applies each entry to
// the process environment, mirroring
// original_source/orchestrator_service/env_file.py's load_env_file: a
// no-op on an empty path, a descriptive error on I/O failure or malformed
// JSON, and string-coercion of every value before the os.Setenv call.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read env file %q: %w", path, err)
	}

	vars := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &vars); err != nil {
			return fmt.Errorf("failed to parse env file %q as JSON: %w", path, err)
		}
	}

	for k, v := range vars {
		if err := os.Setenv(k, fmt.Sprintf("%v", v)); err != nil {
			return fmt.Errorf("failed to set environment variable %q: %w", k, err)
		}
	}
	return nil
}
