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

package pathgen

import (
	"fmt"
	"strconv"
	"strings"
)

// No third-party JSONPath implementation appears anywhere in the example
// pack (see DESIGN.md); docflow's context paths are a small, fixed subset
// of JSONPath (root-qualified dotted keys, bracket-quoted keys for
// generated temp keys, and numeric array indices) so a minimal evaluator
// is implemented directly rather than pulled in as a dependency.

// segment is one step of a parsed path: either a map key or an array index.
type segment struct {
	key      string
	index    int
	isIndex  bool
}

// ParsePath parses a docflow JSON path such as "$.foo.bar[0]" or
// "$.['temp-key']" into its segments.
func ParsePath(path string) ([]segment, error) {
	if !strings.HasPrefix(path, "$.") && path != "$" {
		return nil, fmt.Errorf("pathgen: path must start with \"$.\": %q", path)
	}
	rest := strings.TrimPrefix(path, "$")
	rest = strings.TrimPrefix(rest, ".")

	var segs []segment
	for len(rest) > 0 {
		switch {
		case strings.HasPrefix(rest, "['") || strings.HasPrefix(rest, "[\""):
			end := strings.IndexAny(rest[2:], "'\"")
			if end < 0 {
				return nil, fmt.Errorf("pathgen: unterminated bracket key in %q", path)
			}
			key := rest[2 : 2+end]
			segs = append(segs, segment{key: key})
			rest = rest[2+end+1:]
			rest = strings.TrimPrefix(rest, "]")
			rest = strings.TrimPrefix(rest, ".")
		case strings.HasPrefix(rest, "["):
			end := strings.Index(rest, "]")
			if end < 0 {
				return nil, fmt.Errorf("pathgen: unterminated bracket index in %q", path)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return nil, fmt.Errorf("pathgen: invalid array index in %q: %w", path, err)
			}
			segs = append(segs, segment{index: idx, isIndex: true})
			rest = rest[end+1:]
			rest = strings.TrimPrefix(rest, ".")
		default:
			end := strings.IndexAny(rest, ".[")
			var key string
			if end < 0 {
				key = rest
				rest = ""
			} else {
				key = rest[:end]
				rest = rest[end:]
				rest = strings.TrimPrefix(rest, ".")
			}
			segs = append(segs, segment{key: key})
		}
	}
	return segs, nil
}

// Get resolves path against ctx, returning the value and whether it was
// found. A missing intermediate key or out-of-range index is "not found",
// not an error.
func Get(ctx map[string]any, path string) (any, bool, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	var cur any = ctx
	for _, s := range segs {
		if s.isIndex {
			arr, ok := cur.([]any)
			if !ok || s.index < 0 || s.index >= len(arr) {
				return nil, false, nil
			}
			cur = arr[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		v, ok := m[s.key]
		if !ok {
			return nil, false, nil
		}
		cur = v
	}
	return cur, true, nil
}

// Set writes value at path within ctx, creating intermediate maps as
// needed. Only dotted-key paths (no array indices) are supported for
// writes — the engine never synthesizes an indexed output path.
func Set(ctx map[string]any, path string, value any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("pathgen: empty path")
	}
	cur := ctx
	for _, s := range segs[:len(segs)-1] {
		if s.isIndex {
			return fmt.Errorf("pathgen: array index writes are not supported: %q", path)
		}
		next, ok := cur[s.key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[s.key] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if last.isIndex {
		return fmt.Errorf("pathgen: array index writes are not supported: %q", path)
	}
	cur[last.key] = value
	return nil
}

// TopLevelKey returns the first segment's key, used by the execution-prefix
// policy (spec.md §4.4, §9 Open Question 1).
func TopLevelKey(path string) (string, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 || segs[0].isIndex {
		return "", fmt.Errorf("pathgen: path has no leading key: %q", path)
	}
	return segs[0].key, nil
}

// ApplyExecutionPrefix rewrites "$.foo[...]"/"$.foo.bar" to
// "$.msgN_foo[...]"/"$.msgN_foo.bar" (spec.md §4.4: "$.foo -> $.msg<N>_foo,
// preserving trailing bracket/dot structure"). Paths that are empty or do
// not start with "$." pass through unchanged.
func ApplyExecutionPrefix(path string, n int) string {
	if path == "" || !strings.HasPrefix(path, "$.") {
		return path
	}
	rest := strings.TrimPrefix(path, "$.")
	end := strings.IndexAny(rest, ".[")
	if end < 0 {
		return fmt.Sprintf("$.msg%d_%s", n, rest)
	}
	return fmt.Sprintf("$.msg%d_%s%s", n, rest[:end], rest[end:])
}
