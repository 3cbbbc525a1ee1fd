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

// Package sandbox centralizes how every module (CLI tools, the HTTP file
// proxy) resolves the sandbox base URL, so they agree on one precedence
// order instead of each reading environment variables independently.
package sandbox

import (
	"os"
	"strings"
)

// BaseURL returns the sandbox base URL with precedence
// WORKSPACE_SANDBOX_URL > DEFAULT_WORKSPACE_SANDBOX_URL > SANDBOX_BASE_URL,
// trailing slashes stripped. Returns "" if none are set.
func BaseURL() string {
	base := firstNonEmpty(
		os.Getenv("WORKSPACE_SANDBOX_URL"),
		os.Getenv("DEFAULT_WORKSPACE_SANDBOX_URL"),
		os.Getenv("SANDBOX_BASE_URL"),
	)
	return strings.TrimRight(base, "/")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
