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

package llmtool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/tool"
)

type scriptedClient struct {
	completions []*llmtool.Completion
	errs        []error
	calls       int
	lastReq     llmtool.CompletionRequest
}

func (c *scriptedClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	c.lastReq = req
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var completion *llmtool.Completion
	if i < len(c.completions) {
		completion = c.completions[i]
	}
	return completion, err
}

func (c *scriptedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func baseCtx(req llmtool.CompletionRequest) tool.Context {
	return tool.Context{
		Context: context.Background(),
		Params:  map[string]any{"request": req},
	}
}

func TestToolExecuteReturnsOutputOnFirstSuccess(t *testing.T) {
	client := &scriptedClient{completions: []*llmtool.Completion{{Content: "hello"}}}
	lt := &llmtool.Tool{Client: client, Model: "gpt-test"}

	res, err := lt.Execute(baseCtx(llmtool.CompletionRequest{Messages: []llmtool.Message{{Role: "user", Content: "hi"}}}))
	require.NoError(t, err)
	require.Equal(t, "hello", res.Output["content"])
	require.Equal(t, 1, client.calls)
}

func TestToolExecuteMissingRequestParamErrors(t *testing.T) {
	lt := &llmtool.Tool{Client: &scriptedClient{}, Model: "gpt-test"}
	_, err := lt.Execute(tool.Context{Context: context.Background(), Params: map[string]any{}})
	require.Error(t, err)
}

func TestToolExecuteDefaultsModelFromTool(t *testing.T) {
	client := &scriptedClient{completions: []*llmtool.Completion{{Content: "ok"}}}
	lt := &llmtool.Tool{Client: client, Model: "configured-model"}

	_, err := lt.Execute(baseCtx(llmtool.CompletionRequest{}))
	require.NoError(t, err)
	require.Equal(t, "configured-model", client.lastReq.Model)
}

func TestToolExecuteRetriesOnValidatorFailure(t *testing.T) {
	client := &scriptedClient{completions: []*llmtool.Completion{
		{Content: "bad"},
		{Content: "good"},
	}}
	attempts := 0
	lt := &llmtool.Tool{
		Client:     client,
		Model:      "gpt-test",
		Strategies: []tool.RetryStrategy{tool.SimpleRetry{Attempts: 1}},
		Validators: []llmtool.Validator{func(c *llmtool.Completion) error {
			attempts++
			if c.Content != "good" {
				return errors.New("not good enough")
			}
			return nil
		}},
	}

	res, err := lt.Execute(baseCtx(llmtool.CompletionRequest{}))
	require.NoError(t, err)
	require.Equal(t, "good", res.Output["content"])
	require.Equal(t, 2, client.calls)
	require.Equal(t, 2, attempts)
}

func TestToolExecuteExhaustsRetriesAndReturnsLastError(t *testing.T) {
	client := &scriptedClient{completions: []*llmtool.Completion{{Content: "bad"}, {Content: "bad"}}}
	lt := &llmtool.Tool{
		Client:     client,
		Model:      "gpt-test",
		Strategies: []tool.RetryStrategy{tool.SimpleRetry{Attempts: 1}},
		Validators: []llmtool.Validator{func(c *llmtool.Completion) error {
			return errors.New("always rejected")
		}},
	}

	_, err := lt.Execute(baseCtx(llmtool.CompletionRequest{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "always rejected")
	require.Equal(t, 2, client.calls)
}

func TestToolExecuteAppendsValidationHintOnRetry(t *testing.T) {
	client := &scriptedClient{completions: []*llmtool.Completion{
		{Content: "bad"},
		{Content: "good"},
	}}
	lt := &llmtool.Tool{
		Client:     client,
		Model:      "gpt-test",
		Strategies: []tool.RetryStrategy{tool.AppendValidationHintRetry{Attempts: 1}},
		Validators: []llmtool.Validator{func(c *llmtool.Completion) error {
			if c.Content != "good" {
				return errors.New("needs more detail")
			}
			return nil
		}},
	}

	_, err := lt.Execute(baseCtx(llmtool.CompletionRequest{Messages: []llmtool.Message{{Role: "user", Content: "hi"}}}))
	require.NoError(t, err)
	last := client.lastReq.Messages[len(client.lastReq.Messages)-1]
	require.Contains(t, last.Content, "needs more detail")
}

func TestToolGetResultValidationHintReflectsError(t *testing.T) {
	lt := &llmtool.Tool{}
	require.Contains(t, lt.GetResultValidationHint(nil, errors.New("boom")), "boom")
	require.NotEmpty(t, lt.GetResultValidationHint(nil, nil))
}

func TestToolExecuteWrapsCompletionFailure(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("network down")}}
	lt := &llmtool.Tool{Client: client, Model: "gpt-test"}

	_, err := lt.Execute(baseCtx(llmtool.CompletionRequest{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "network down")
}
