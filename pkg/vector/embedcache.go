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

package vector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/utils"
)

// CachingClient wraps an llmtool.Client so repeated Embed calls for the
// same text under the same model are served from an on-disk JSON cache
// instead of re-querying the provider (spec.md §6.1:
// ".cache/embeddings/<model>.json"). Complete is passed through
// untouched — only embeddings are cached, mirroring
// llmtool.TracingClient's decorator shape.
type CachingClient struct {
	Inner llmtool.Client
	Model string
	Dir   string

	mu     sync.Mutex
	loaded bool
	data   map[string][]float32
}

// NewCachingClient wraps inner, caching embeddings for model under
// dir/<model>.json. dir is created on first use.
func NewCachingClient(inner llmtool.Client, model, dir string) *CachingClient {
	return &CachingClient{Inner: inner, Model: model, Dir: dir}
}

func (c *CachingClient) Complete(ctx context.Context, req llmtool.CompletionRequest) (*llmtool.Completion, error) {
	return c.Inner.Complete(ctx, req)
}

// Embed returns the cached embedding for text if present, otherwise
// fetches it from Inner and persists it before returning.
func (c *CachingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if err := c.ensureLoaded(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if cached, ok := c.data[text]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	embedding, err := c.Inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[text] = embedding
	if err := c.persist(); err != nil {
		logger.GetLogger().Warn("embedcache: failed to persist cache", "model", c.Model, "error", err)
	}
	return embedding, nil
}

// cachePath returns dir/<model>.json, with path separators in the model
// name sanitized the way the original Python cache does ("/" -> "_", so
// e.g. "provider/model" doesn't create nested directories).
func (c *CachingClient) cachePath() string {
	safeModel := strings.ReplaceAll(c.Model, "/", "_")
	return filepath.Join(c.Dir, safeModel+".json")
}

func (c *CachingClient) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	c.data = map[string][]float32{}

	raw, err := os.ReadFile(c.cachePath())
	if os.IsNotExist(err) {
		c.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	// A corrupt cache file is treated as empty rather than a fatal
	// error, matching the original's load-tolerant behavior.
	if err := json.Unmarshal(raw, &c.data); err != nil {
		logger.GetLogger().Warn("embedcache: discarding unreadable cache file", "path", c.cachePath(), "error", err)
		c.data = map[string][]float32{}
	}
	c.loaded = true
	return nil
}

func (c *CachingClient) persist() error {
	data, err := json.Marshal(c.data)
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(c.cachePath(), data, 0o644)
}

var _ llmtool.Client = (*CachingClient)(nil)
