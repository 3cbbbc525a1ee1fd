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
	"regexp"
	"sort"
	"strings"
)

// maxLiteralWords bounds a Literal extraction per SPEC_FULL.md §4.4a ("hard-
// coded literal (<50 words)").
const maxLiteralWords = 50

// Evaluate interprets e against ctx, returning the extracted value. A
// Missing extraction evaluates successfully to (nil, nil) — it is the
// caller's job to treat a Missing Extraction as the trigger for
// engine.ErrTaskInputMissing (spec.md §9: "Missing is returned as an
// Extraction variant ... not via a sentinel string").
func Evaluate(e Extraction, ctx map[string]any) (any, error) {
	switch e.Kind {
	case KindMissing:
		return nil, nil

	case KindPathRead:
		v, ok, err := Get(ctx, e.Path)
		if err != nil {
			return nil, fmt.Errorf("pathgen: path_read %q: %w", e.Path, err)
		}
		if !ok {
			return nil, nil
		}
		return v, nil

	case KindLiteral:
		if n := len(strings.Fields(e.Value)); n > maxLiteralWords {
			return nil, fmt.Errorf("pathgen: literal exceeds %d words (%d)", maxLiteralWords, n)
		}
		return e.Value, nil

	case KindRegex:
		v, ok, err := Get(ctx, e.Path)
		if err != nil {
			return nil, fmt.Errorf("pathgen: regex read %q: %w", e.Path, err)
		}
		if !ok {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("pathgen: regex extraction requires a string value at %q", e.Path)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pathgen: invalid regex %q: %w", e.Pattern, err)
		}
		m := re.FindStringSubmatch(s)
		if m == nil || e.Group >= len(m) {
			return nil, nil
		}
		return m[e.Group], nil

	case KindConcat:
		var b strings.Builder
		for _, part := range e.Parts {
			v, err := Evaluate(part, ctx)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, nil
			}
			b.WriteString(fmt.Sprint(v))
		}
		return b.String(), nil

	case KindAggregate:
		out := make(map[string]any, len(e.Fields))
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := Evaluate(e.Fields[k], ctx)
			if err != nil {
				return nil, fmt.Errorf("pathgen: aggregate field %q: %w", k, err)
			}
			out[k] = v
		}
		return out, nil

	default:
		return nil, fmt.Errorf("pathgen: unknown extraction kind %d", e.Kind)
	}
}

// EvaluateField evaluates e against ctx and reports Missing as a distinct
// outcome, matching the single-field extraction flow of spec.md §4.4 step
// 1.3: a Missing variant (or a nil value from any other variant) becomes
// the caller's cue to raise ErrTaskInputMissing instead of binding a path.
func EvaluateField(e Extraction, ctx map[string]any) (value any, missing bool, reason string, err error) {
	if e.Kind == KindMissing {
		reason := e.Reason
		if reason == "" {
			reason = "extraction could not locate a value among the candidates"
		}
		return nil, true, reason, nil
	}
	v, err := Evaluate(e, ctx)
	if err != nil {
		return nil, false, "", err
	}
	if v == nil {
		return nil, true, "extraction resolved to no value", nil
	}
	return v, false, "", nil
}
