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

// Package vector abstracts the similarity-search backend behind the SOP
// resolver's vector-search fallback (spec.md §4.3 point 5).
package vector

import "context"

// Result is a single similarity-search hit.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Provider abstracts a vector-store backend. docflow ships two: an
// embedded chromem-go store (default, zero external services) and a
// Qdrant client (production clusters).
type Provider interface {
	// Name identifies the backend, for logging.
	Name() string

	// Upsert stores or replaces the vector for id within collection.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK nearest neighbors of vector in collection.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter additionally restricts results to those matching
	// filter (exact-match metadata equality).
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes a single document by id.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes every document matching filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// CreateCollection ensures collection exists, sized for vectors of
	// vectorDimension.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// DeleteCollection removes collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases any resources (connections, file handles) held by
	// the provider.
	Close() error
}

// NilProvider is a no-op Provider, returned by NewProvider for a nil
// config. Its Search returns no hits, so the resolver's tool-selection
// enum carries no vector candidates (spec.md §4.3 point 4); the resolver
// still embeds (and, per its rewrite mode, rewrites) the query first.
type NilProvider struct{}

func (NilProvider) Name() string { return "nil" }

func (NilProvider) Upsert(context.Context, string, string, []float32, map[string]any) error {
	return nil
}

func (NilProvider) Search(context.Context, string, []float32, int) ([]Result, error) {
	return nil, nil
}

func (NilProvider) SearchWithFilter(context.Context, string, []float32, int, map[string]any) ([]Result, error) {
	return nil, nil
}

func (NilProvider) Delete(context.Context, string, string) error { return nil }

func (NilProvider) DeleteByFilter(context.Context, string, map[string]any) error { return nil }

func (NilProvider) CreateCollection(context.Context, string, int) error { return nil }

func (NilProvider) DeleteCollection(context.Context, string) error { return nil }

func (NilProvider) Close() error { return nil }

var _ Provider = NilProvider{}
