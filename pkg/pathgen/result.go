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

// Package pathgen synthesizes JSON paths for task input extraction and
// output placement (spec.md §4.4). Per the Design Notes re-architecture
// (spec.md §9, SPEC_FULL.md §4.4a), the LLM never emits executable code: it
// emits a small, validated Extraction DSL document that this package
// parses and evaluates with a single interpreter (dsl.go).
package pathgen

// Kind tags an Extraction variant.
type Kind int

const (
	KindPathRead Kind = iota
	KindLiteral
	KindRegex
	KindConcat
	KindAggregate
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindPathRead:
		return "path_read"
	case KindLiteral:
		return "literal"
	case KindRegex:
		return "regex"
	case KindConcat:
		return "concat"
	case KindAggregate:
		return "aggregate"
	case KindMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Extraction is the tagged sum type replacing the original's sentinel
// return value (spec.md §9: "Sentinel-carrying return values ... should
// become a tagged sum type"). Only the fields matching Kind are populated.
type Extraction struct {
	Kind Kind

	// PathRead
	Path string

	// Literal
	Value string

	// Regex: captures group Group of Pattern applied to the string value at Path.
	Pattern string
	Group   int

	// Concat
	Parts []Extraction

	// Aggregate
	Fields map[string]Extraction

	// Missing
	Reason string
}

// PathReadExtraction builds a direct JSON-path read.
func PathReadExtraction(path string) Extraction { return Extraction{Kind: KindPathRead, Path: path} }

// LiteralExtraction builds a hard-coded literal.
func LiteralExtraction(value string) Extraction { return Extraction{Kind: KindLiteral, Value: value} }

// RegexExtraction builds a regex-capture extraction.
func RegexExtraction(path, pattern string, group int) Extraction {
	return Extraction{Kind: KindRegex, Path: path, Pattern: pattern, Group: group}
}

// ConcatExtraction builds a string concatenation of sub-extractions.
func ConcatExtraction(parts ...Extraction) Extraction {
	return Extraction{Kind: KindConcat, Parts: parts}
}

// AggregateExtraction builds a multi-field object aggregation.
func AggregateExtraction(fields map[string]Extraction) Extraction {
	return Extraction{Kind: KindAggregate, Fields: fields}
}

// MissingExtraction marks a field the candidates could not supply. This is
// a variant of Extraction, not an error — the caller decides whether a
// Missing result is fatal (spec.md §9).
func MissingExtraction(reason string) Extraction { return Extraction{Kind: KindMissing, Reason: reason} }

// IsMissing reports whether e represents an unresolvable extraction.
func (e Extraction) IsMissing() bool { return e.Kind == KindMissing }
