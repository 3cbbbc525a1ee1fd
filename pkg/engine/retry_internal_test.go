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

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
)

type recoveryFakeClient struct {
	completion *llmtool.Completion
	err        error
	lastReq    llmtool.CompletionRequest
}

func (c *recoveryFakeClient) Complete(_ context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return c.completion, nil
}

func (c *recoveryFakeClient) Embed(context.Context, string) ([]float32, error) { return nil, nil }

func TestRecoveryDescriptionUsesLLMCompletion(t *testing.T) {
	client := &recoveryFakeClient{completion: &llmtool.Completion{Content: "Ask the user for their account id."}}
	e := New(Options{Client: client, Model: "test-model"})

	pending := NewPendingTask("close the account")
	missing := &TaskInputMissingError{Field: "account_id", Description: "the account to close"}

	desc := e.recoveryDescription(context.Background(), pending, missing)
	require.Equal(t, "Ask the user for their account id.", desc)
	require.Equal(t, "test-model", client.lastReq.Model)
	require.Contains(t, client.lastReq.Messages[1].Content, "account_id")
	require.Contains(t, client.lastReq.Messages[1].Content, "close the account")
}

func TestRecoveryDescriptionFallsBackOnCompletionError(t *testing.T) {
	client := &recoveryFakeClient{err: context.DeadlineExceeded}
	e := New(Options{Client: client, Model: "test-model"})

	pending := NewPendingTask("close the account")
	missing := &TaskInputMissingError{Field: "account_id", Description: "the account to close"}

	desc := e.recoveryDescription(context.Background(), pending, missing)
	require.Contains(t, desc, "account_id")
	require.Contains(t, desc, "close the account")
}

func TestRecoveryDescriptionFallsBackOnEmptyCompletion(t *testing.T) {
	client := &recoveryFakeClient{completion: &llmtool.Completion{Content: "   "}}
	e := New(Options{Client: client, Model: "test-model"})

	pending := NewPendingTask("close the account")
	missing := &TaskInputMissingError{Field: "account_id", Description: "the account to close"}

	desc := e.recoveryDescription(context.Background(), pending, missing)
	require.Contains(t, desc, "account_id")
}

func TestRetryOrFailCreationStoresCountCappedAtMaxRetries(t *testing.T) {
	client := &recoveryFakeClient{completion: &llmtool.Completion{Content: "retry task"}}
	e := New(Options{Client: client, Model: "test-model", MaxRetries: 1})

	pending := NewPendingTask("do the thing")
	missing := &TaskInputMissingError{Field: "x", Description: "x desc"}

	err := e.retryOrFailCreation(context.Background(), pending, missing)
	require.NoError(t, err)
	require.Equal(t, 1, e.TaskRetryCount[pending.TaskID])
	require.Len(t, e.taskStack, 2)

	err = e.retryOrFailCreation(context.Background(), pending, missing)
	require.Error(t, err)
	var creationErr *TaskCreationError
	require.ErrorAs(t, err, &creationErr)
	require.Equal(t, 1, e.TaskRetryCount[pending.TaskID], "stored count must not exceed max_retries on the abandon path")
}
