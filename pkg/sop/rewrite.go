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

package sop

import (
	"container/list"
	"sync"
)

// rewriteCacheCapacity bounds the query-rewrite cache (SPEC_FULL.md
// SUPPLEMENTED FEATURES: "a bounded in-process LRU cache of original query
// -> rewritten query, capacity 512", grounded on
// original_source/utils/sop_query_rewrite.go's in-memory memoization).
const rewriteCacheCapacity = 512

// rewriteCache is a small LRU mapping an original task description to its
// LLM-rewritten SOP-style query (spec.md §4.3 point 5's "query-rewrite
// stage"), avoiding a repeat LLM call for a description the resolver has
// already rewritten.
type rewriteCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type rewriteCacheEntry struct {
	key   string
	value string
}

func newRewriteCache(capacity int) *rewriteCache {
	if capacity <= 0 {
		capacity = rewriteCacheCapacity
	}
	return &rewriteCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *rewriteCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*rewriteCacheEntry).value, true
}

func (c *rewriteCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*rewriteCacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&rewriteCacheEntry{key: key, value: value})
	c.entries[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*rewriteCacheEntry).key)
		}
	}
}
