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
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kadirpekel/docflow/pkg/llmtool"
	"github.com/kadirpekel/docflow/pkg/logger"
	"github.com/kadirpekel/docflow/pkg/vector"
)

// RewriteMode controls the query-rewrite stage of vector candidate lookup
// (spec.md §4.3 point 5).
type RewriteMode string

const (
	RewriteOff    RewriteMode = "off"
	RewriteAuto   RewriteMode = "auto"
	RewriteAlways RewriteMode = "always"
)

// defaultRewriteThreshold is the top-score floor below which "auto" mode
// triggers a query rewrite (spec.md §4.3 point 5: "default 0.5").
const defaultRewriteThreshold = 0.5

// vectorCollection is the chromem/Qdrant collection holding indexed SOP
// documents (doc_id, "doc_id: description", and each alias, one vector per
// entry, per spec.md §4.3 point 5).
const vectorCollection = "sop_documents"

// generalFallbackDocID is adopted when no resolver stage yields a doc_id
// (spec.md §4.1 step 2); it is also one of the tool-selection enum's
// entries.
const generalFallbackDocID = "general/fallback"

// generalPlanDocID is the planner document, always offered in the
// tool-selection enum.
const generalPlanDocID = "general/plan"

// webUserCommunicateDocID is carried specially: when the no-candidate
// fallback selects it, the engine must propagate MessageToUser downstream
// (spec.md §4.3 point 4).
const webUserCommunicateDocID = "tools/web_user_communicate"

// explicitReferencePatterns match an unambiguous user reference to a
// specific doc_id or filename (spec.md §4.3 point 2), letting the resolver
// skip LLM disambiguation entirely.
var explicitReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfollow\s+` + "`" + `?([\w./-]+)` + "`" + `?`),
	regexp.MustCompile("(?i)!`([\\w./-]+)`"),
	regexp.MustCompile(`(?i)根据\s*([\w./-]+)`),
	regexp.MustCompile(`(?i)根据文档\s*([\w./-]+)`),
}

// docsByID indexes a document slice (as returned by Loader.LoadAll) by
// doc_id for the resolver's lookup-heavy algorithm.
func docsByID(docs []*Document) map[string]*Document {
	out := make(map[string]*Document, len(docs))
	for _, d := range docs {
		out[d.DocID] = d
	}
	return out
}

// candidate is one lexical or vector hit considered during resolution.
type candidate struct {
	DocID     string
	MatchKind string // "id", "filename", "vector"
	Score     float32
}

// Resolution is the outcome of resolving a task description to a doc_id
// (spec.md §4.3).
type Resolution struct {
	DocID            string
	MessageToUser    string
	PlanningMetadata *PlanningMetadata
}

// PlanningMetadata carries the available-tools and vector-candidate views
// injected into planner prompts for SOPs that request it (spec.md §4.3
// point 6, §4.1 step 3's available_tool_docs_xml/vector_tool_suggestions_xml).
type PlanningMetadata struct {
	AvailableToolDocsMarkdown string
	AvailableToolDocsJSON     string
	VectorSuggestionsMarkdown string
	VectorSuggestionsJSON     string
}

// Resolver implements the two-stage (lexical -> LLM) resolver with a
// vector-search fallback (spec.md §4.3).
type Resolver struct {
	Loader *Loader
	Client llmtool.Client
	Vector vector.Provider
	Model  string

	RewriteMode      RewriteMode
	RewriteThreshold float64
	VectorTopK       int

	cache *rewriteCache
}

// NewResolver constructs a Resolver with defaults matching spec.md §4.3
// (rewrite mode "auto", threshold 0.5, top-5 vector candidates).
func NewResolver(loader *Loader, client llmtool.Client, vec vector.Provider, model string) *Resolver {
	return &Resolver{
		Loader:           loader,
		Client:           client,
		Vector:           vec,
		Model:            model,
		RewriteMode:      RewriteAuto,
		RewriteThreshold: defaultRewriteThreshold,
		VectorTopK:       5,
		cache:            newRewriteCache(rewriteCacheCapacity),
	}
}

// Resolve picks a single doc_id for description, following spec.md §4.3's
// five-step algorithm. toolDocIDs is the set of tools/* doc ids eligible
// for the no-candidate fallback's enum.
func (r *Resolver) Resolve(ctx context.Context, description string, toolDocIDs []string) (*Resolution, error) {
	docList, err := r.Loader.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("sop: resolver: loading corpus: %w", err)
	}
	docs := docsByID(docList)

	candidates := lexicalCandidates(description, docs)

	if len(candidates) == 1 {
		if explicitlyReferences(description, candidates[0].DocID, docs[candidates[0].DocID].TerminalName()) {
			return &Resolution{DocID: candidates[0].DocID}, nil
		}
	}

	if len(candidates) > 0 {
		docID, err := r.disambiguate(ctx, description, candidates, docs)
		if err != nil {
			return nil, err
		}
		if docID != "" {
			return &Resolution{DocID: docID}, nil
		}
	}

	return r.fallback(ctx, description, toolDocIDs, docs)
}

// lexicalCandidates builds the candidate set from case-insensitive
// word-boundary matches of each doc_id (and its terminal filename) against
// description, skipping purely-alphanumeric (too-generic) ids (spec.md
// §4.3 point 1).
func lexicalCandidates(description string, docs map[string]*Document) []candidate {
	seen := make(map[string]struct{})
	var out []candidate

	for docID, doc := range docs {
		if !isGenericID(docID) && wordBoundaryMatch(description, docID) {
			if _, dup := seen[docID]; !dup {
				seen[docID] = struct{}{}
				out = append(out, candidate{DocID: docID, MatchKind: "id"})
			}
			continue
		}
		terminal := doc.TerminalName()
		if !isGenericID(terminal) && wordBoundaryMatch(description, terminal) {
			if _, dup := seen[docID]; !dup {
				seen[docID] = struct{}{}
				out = append(out, candidate{DocID: docID, MatchKind: "filename"})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

var alphanumericOnly = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// isGenericID reports whether id is too generic a lexical candidate — a
// bare alphanumeric token with no path/word structure (spec.md §4.3 point
// 1: "unless the id is purely alphanumeric").
func isGenericID(id string) bool {
	return alphanumericOnly.MatchString(id)
}

func wordBoundaryMatch(description, token string) bool {
	pattern := `(?i)\b` + regexp.QuoteMeta(token) + `\b`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(description)
}

// explicitlyReferences reports whether description matches one of the
// explicit-reference patterns naming docID or terminal (spec.md §4.3
// point 2). References commonly carry the corpus's on-disk ".md"
// extension ("Follow tools/bash.md", spec.md §8 scenario 1;
// original_source/sop_document.py:_explicit_doc_reference_patterns), so
// that suffix is stripped before comparison.
func explicitlyReferences(description, docID, terminal string) bool {
	for _, re := range explicitReferencePatterns {
		m := re.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		ref := stripMarkdownExt(strings.TrimSpace(m[1]))
		if strings.EqualFold(ref, docID) || strings.EqualFold(ref, terminal) {
			return true
		}
	}
	return false
}

// stripMarkdownExt removes a trailing ".md" (case-insensitive), matching
// the original's unanchored search for the bare doc_id/filename within the
// reference text.
func stripMarkdownExt(ref string) string {
	if len(ref) > 3 && strings.EqualFold(ref[len(ref)-3:], ".md") {
		return ref[:len(ref)-3]
	}
	return ref
}

// docIDTag extracts X from a "<doc_id>X</doc_id>" response.
var docIDTag = regexp.MustCompile(`(?s)<doc_id>\s*(.*?)\s*</doc_id>`)

// disambiguate presents each candidate to the LLM and requires a
// <doc_id>X</doc_id> response naming one of them, or NONE (spec.md §4.3
// point 3). Returns "" (no error) when the model declines or answers NONE.
func (r *Resolver) disambiguate(ctx context.Context, description string, candidates []candidate, docs map[string]*Document) (string, error) {
	var b strings.Builder
	b.WriteString("Candidate SOP documents:\n")
	for _, c := range candidates {
		doc := docs[c.DocID]
		b.WriteString(fmt.Sprintf("- id=%s match=%s description=%q aliases=%v\n",
			c.DocID, c.MatchKind, doc.Description, doc.DisplayAliases()))
	}

	req := llmtool.CompletionRequest{
		Model: r.Model,
		Messages: []llmtool.Message{
			{Role: "system", Content: "Pick the single best-matching document for the task description. Reply with exactly <doc_id>X</doc_id> where X is one of the candidate ids, or <doc_id>NONE</doc_id>."},
			{Role: "user", Content: fmt.Sprintf("Task: %s\n\n%s", description, b.String())},
		},
	}

	completion, err := r.Client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("sop: resolver: disambiguation call: %w", err)
	}

	m := docIDTag.FindStringSubmatch(completion.Content)
	if m == nil {
		return "", nil
	}
	picked := strings.TrimSpace(m[1])
	if picked == "" || strings.EqualFold(picked, "NONE") {
		return "", nil
	}
	for _, c := range candidates {
		if c.DocID == picked {
			return picked, nil
		}
	}
	logger.GetLogger().Warn("resolver: disambiguation picked a doc_id outside the candidates, ignoring", "doc_id", picked)
	return "", nil
}

// selectToolForTaskSchema is the function-call schema for the no-candidate
// fallback (spec.md §4.3 point 4).
var selectToolForTaskSchema = llmtool.ToolDefinition{
	Name:        "select_tool_for_task",
	Description: "Select which document (tool or plan) can complete this task, or report that none can.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"can_complete_with_tool": map[string]any{"type": "boolean"},
			"selected_tool_doc":      map[string]any{"type": "string"},
			"reasoning":              map[string]any{"type": "string"},
			"message_to_user":        map[string]any{"type": "string"},
		},
		"required": []string{"can_complete_with_tool", "selected_tool_doc", "reasoning"},
	},
}

// fallback runs the no-candidate tool-selection flow (spec.md §4.3 point
// 4): vector candidates plus every tools/* doc id plus general/plan and
// general/fallback form a hard-constrained enum, and the model must pick
// one via
// select_tool_for_task.
func (r *Resolver) fallback(ctx context.Context, description string, toolDocIDs []string, docs map[string]*Document) (*Resolution, error) {
	vectorHits, err := r.vectorCandidates(ctx, description)
	if err != nil {
		logger.GetLogger().Warn("resolver: vector candidate lookup failed, continuing without it", "error", err)
		vectorHits = nil
	}

	enum := buildEnum(vectorHits, toolDocIDs)

	req := llmtool.CompletionRequest{
		Model: r.Model,
		Tools: []llmtool.ToolDefinition{selectToolForTaskSchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Select exactly one document id from the allowed list that can complete this task, or general/plan if none can directly."},
			{Role: "user", Content: fmt.Sprintf("Task: %s\nAllowed doc ids: %s", description, strings.Join(enum, ", "))},
		},
	}

	completion, err := r.Client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sop: resolver: tool-selection call: %w", err)
	}

	call := findCall(completion.ToolCalls, selectToolForTaskSchema.Name)
	if call == nil {
		return nil, fmt.Errorf("sop: resolver: tool-selection must call %q, model returned none", selectToolForTaskSchema.Name)
	}

	selected, _ := call.Arguments["selected_tool_doc"].(string)
	if !contains(enum, selected) {
		return nil, fmt.Errorf("sop: resolver: tool-selection picked %q outside the allowed enum", selected)
	}

	res := &Resolution{DocID: selected}
	if selected == webUserCommunicateDocID {
		res.MessageToUser, _ = call.Arguments["message_to_user"].(string)
	}
	if selected == "" {
		res.DocID = generalFallbackDocID
	}
	return res, nil
}

func findCall(calls []llmtool.ToolCall, name string) *llmtool.ToolCall {
	for i := range calls {
		if calls[i].Name == name {
			return &calls[i]
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func buildEnum(vectorHits []candidate, toolDocIDs []string) []string {
	seen := make(map[string]struct{})
	var enum []string
	for _, c := range vectorHits {
		if _, dup := seen[c.DocID]; dup {
			continue
		}
		seen[c.DocID] = struct{}{}
		enum = append(enum, c.DocID)
	}
	for _, id := range toolDocIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		enum = append(enum, id)
	}
	for _, id := range []string{generalPlanDocID, generalFallbackDocID} {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			enum = append(enum, id)
		}
	}
	return enum
}

// vectorCandidates queries the similarity index for description, applying
// the query-rewrite stage per r.RewriteMode (spec.md §4.3 point 5).
func (r *Resolver) vectorCandidates(ctx context.Context, description string) ([]candidate, error) {
	if r.Vector == nil {
		return nil, nil
	}

	primary, err := r.searchVector(ctx, description)
	if err != nil {
		return nil, err
	}

	rewritten, shouldRewrite := r.maybeRewrite(ctx, description, topScore(primary))
	if !shouldRewrite {
		return primary, nil
	}

	secondary, err := r.searchVector(ctx, rewritten)
	if err != nil {
		logger.GetLogger().Warn("resolver: rewritten-query vector search failed", "error", err)
		return primary, nil
	}

	return mergeByBestScore(primary, secondary), nil
}

func topScore(candidates []candidate) float32 {
	var best float32
	for _, c := range candidates {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

func (r *Resolver) searchVector(ctx context.Context, query string) ([]candidate, error) {
	embedding, err := r.Client.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sop: resolver: embedding query: %w", err)
	}
	topK := r.VectorTopK
	if topK <= 0 {
		topK = 5
	}
	results, err := r.Vector.Search(ctx, vectorCollection, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("sop: resolver: vector search: %w", err)
	}

	out := make([]candidate, 0, len(results))
	for _, res := range results {
		docID, _ := res.Metadata["doc_id"].(string)
		if docID == "" {
			docID = res.ID
		}
		out = append(out, candidate{DocID: docID, MatchKind: "vector", Score: res.Score})
	}
	return out, nil
}

// maybeRewrite decides whether to perform the query-rewrite stage, and
// returns the rewritten query when it does (spec.md §4.3 point 5: "off,
// auto, always"; auto triggers below threshold).
func (r *Resolver) maybeRewrite(ctx context.Context, description string, topScoreSoFar float32) (string, bool) {
	switch r.RewriteMode {
	case RewriteOff:
		return "", false
	case RewriteAlways:
		// fall through
	case RewriteAuto:
		threshold := r.RewriteThreshold
		if threshold == 0 {
			threshold = defaultRewriteThreshold
		}
		if float64(topScoreSoFar) >= threshold {
			return "", false
		}
	default:
		return "", false
	}

	if cached, ok := r.cache.Get(description); ok {
		return cached, true
	}

	rewritten, err := r.rewriteQuery(ctx, description)
	if err != nil {
		logger.GetLogger().Warn("resolver: query rewrite failed, skipping", "error", err)
		return "", false
	}
	r.cache.Put(description, rewritten)
	return rewritten, true
}

var rewriteQuerySchema = llmtool.ToolDefinition{
	Name:        "rewrite_sop_query",
	Description: "Rewrite the task description as a short SOP-style search query (5-12 words).",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"query"},
	},
}

func (r *Resolver) rewriteQuery(ctx context.Context, description string) (string, error) {
	req := llmtool.CompletionRequest{
		Model: r.Model,
		Tools: []llmtool.ToolDefinition{rewriteQuerySchema},
		Messages: []llmtool.Message{
			{Role: "system", Content: "Rewrite the task as a concise 5-12 word SOP-style search query."},
			{Role: "user", Content: description},
		},
	}
	completion, err := r.Client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	call := findCall(completion.ToolCalls, rewriteQuerySchema.Name)
	if call == nil {
		return "", fmt.Errorf("sop: resolver: rewrite call returned no %q", rewriteQuerySchema.Name)
	}
	q, _ := call.Arguments["query"].(string)
	if q == "" {
		return "", fmt.Errorf("sop: resolver: rewrite call returned empty query")
	}
	return q, nil
}

// mergeByBestScore merges two candidate lists, deduped by doc_id with the
// best score winning and ties broken by first appearance (spec.md §4.3
// point 5), sorted by score descending.
func mergeByBestScore(a, b []candidate) []candidate {
	best := make(map[string]candidate, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))

	add := func(list []candidate) {
		for _, c := range list {
			existing, ok := best[c.DocID]
			if !ok {
				best[c.DocID] = c
				order = append(order, c.DocID)
				continue
			}
			if c.Score > existing.Score {
				best[c.DocID] = c
			}
		}
	}
	add(a)
	add(b)

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// BuildPlanningMetadata formats the available-tool-docs and vector-
// candidate views for injection into planner prompts (spec.md §4.3 point
// 6), for SOPs whose RequiresPlanningMetadata is set.
func (r *Resolver) BuildPlanningMetadata(ctx context.Context, description string, toolDocIDs []string, docs map[string]*Document) (*PlanningMetadata, error) {
	vectorHits, err := r.vectorCandidates(ctx, description)
	if err != nil {
		vectorHits = nil
	}

	sort.Strings(toolDocIDs)

	var mdTools, mdVector strings.Builder
	type toolDoc struct {
		DocID       string `json:"doc_id"`
		Description string `json:"description"`
	}
	type vectorDoc struct {
		DocID string  `json:"doc_id"`
		Score float32 `json:"score"`
	}

	var toolDocs []toolDoc
	for _, id := range toolDocIDs {
		desc := ""
		if d, ok := docs[id]; ok {
			desc = d.Description
		}
		mdTools.WriteString(fmt.Sprintf("- %s: %s\n", id, desc))
		toolDocs = append(toolDocs, toolDoc{DocID: id, Description: desc})
	}

	var vectorDocs []vectorDoc
	for _, c := range vectorHits {
		mdVector.WriteString(fmt.Sprintf("- %s (score=%.3f)\n", c.DocID, c.Score))
		vectorDocs = append(vectorDocs, vectorDoc{DocID: c.DocID, Score: c.Score})
	}

	toolJSON, _ := json.Marshal(toolDocs)
	vectorJSON, _ := json.Marshal(vectorDocs)

	return &PlanningMetadata{
		AvailableToolDocsMarkdown: mdTools.String(),
		AvailableToolDocsJSON:     string(toolJSON),
		VectorSuggestionsMarkdown: mdVector.String(),
		VectorSuggestionsJSON:     string(vectorJSON),
	}, nil
}
