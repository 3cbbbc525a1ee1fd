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

import "errors"

var (
	// ErrDocNotFound is returned by Loader.Load when doc_id has no
	// corresponding file in the corpus.
	ErrDocNotFound = errors.New("sop: document not found")

	// ErrInvalidDocument is returned when a document's front matter is
	// missing, malformed, or lacks a required field (spec.md §3 invariant:
	// "missing front matter, absent tool, or absent tool.tool_id is a load
	// error").
	ErrInvalidDocument = errors.New("sop: invalid document")
)
