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

package pathgen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/pathgen"
)

func TestGetResolvesDottedAndIndexedPaths(t *testing.T) {
	ctx := map[string]any{
		"foo": map[string]any{
			"bar": []any{"a", "b", "c"},
		},
	}
	v, ok, err := pathgen.Get(ctx, "$.foo.bar[1]")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestGetMissingKeyIsNotFoundNotError(t *testing.T) {
	ctx := map[string]any{"foo": map[string]any{}}
	v, ok, err := pathgen.Get(ctx, "$.foo.missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestGetOutOfRangeIndexIsNotFound(t *testing.T) {
	ctx := map[string]any{"items": []any{"only-one"}}
	_, ok, err := pathgen.Get(ctx, "$.items[5]")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetCreatesIntermediateMaps(t *testing.T) {
	ctx := map[string]any{}
	require.NoError(t, pathgen.Set(ctx, "$.a.b.c", "value"))

	v, ok, err := pathgen.Get(ctx, "$.a.b.c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", v)
}

func TestSetRejectsArrayIndexWrites(t *testing.T) {
	ctx := map[string]any{}
	err := pathgen.Set(ctx, "$.items[0]", "value")
	require.Error(t, err)
}

func TestSetBracketQuotedKey(t *testing.T) {
	ctx := map[string]any{}
	require.NoError(t, pathgen.Set(ctx, "$.['temp-key']", "value"))

	v, ok, err := pathgen.Get(ctx, "$.['temp-key']")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", v)
}

func TestTopLevelKey(t *testing.T) {
	key, err := pathgen.TopLevelKey("$.foo.bar[0]")
	require.NoError(t, err)
	require.Equal(t, "foo", key)
}

func TestTopLevelKeyRejectsLeadingIndex(t *testing.T) {
	_, err := pathgen.TopLevelKey("$.[0]")
	require.Error(t, err)
}

func TestApplyExecutionPrefix(t *testing.T) {
	require.Equal(t, "$.msg3_foo", pathgen.ApplyExecutionPrefix("$.foo", 3))
	require.Equal(t, "$.msg3_foo.bar", pathgen.ApplyExecutionPrefix("$.foo.bar", 3))
	require.Equal(t, "$.msg3_foo[0]", pathgen.ApplyExecutionPrefix("$.foo[0]", 3))
}

func TestApplyExecutionPrefixPassesThroughNonDollarPaths(t *testing.T) {
	require.Equal(t, "", pathgen.ApplyExecutionPrefix("", 3))
	require.Equal(t, "plain", pathgen.ApplyExecutionPrefix("plain", 3))
}
