// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlu

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// HeuristicClassifier
// =============================================================================

// scoring weights. Example similarity dominates; token overlap and keyword
// hits refine the ranking between intents with similar example phrasing.
const (
	weightSimilarity   = 0.6
	weightTokenOverlap = 0.4
	keywordBoost       = 0.1
	keywordBoostCap    = 0.2
)

// intentCorpus is the precomputed classification material for one intent.
type intentCorpus struct {
	id       string
	examples []string        // normalized example phrases
	tokens   map[string]bool // union of example + description tokens
	keywords []string        // normalized keywords
}

// HeuristicClassifier ranks intents with lexical similarity against the
// catalog's example corpus. It is deterministic, runs in microseconds, and
// needs no network, so it always runs first; an LLM pass only refines its
// output when the ranking is uncertain.
//
// # Thread Safety
//
// Safe for concurrent use; all state is immutable after construction.
type HeuristicClassifier struct {
	corpora []intentCorpus
	logger  *slog.Logger
}

// NewHeuristicClassifier precomputes the normalized corpus for every intent
// in the catalog.
//
// # Inputs
//
//   - cat: The loaded intent catalog. Must not be nil.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *HeuristicClassifier: The constructed classifier. Never nil.
func NewHeuristicClassifier(cat *catalog.Catalog, logger *slog.Logger) *HeuristicClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	corpora := make([]intentCorpus, 0, cat.Len())
	for _, in := range cat.All() {
		c := intentCorpus{id: in.ID, tokens: make(map[string]bool)}
		for _, ex := range in.Examples {
			norm := Normalize(ex)
			c.examples = append(c.examples, norm)
			for _, t := range Tokens(norm) {
				c.tokens[t] = true
			}
		}
		for _, t := range Tokens(Normalize(in.Description)) {
			c.tokens[t] = true
		}
		for _, kw := range in.Keywords {
			c.keywords = append(c.keywords, Normalize(kw))
		}
		corpora = append(corpora, c)
	}

	return &HeuristicClassifier{corpora: corpora, logger: logger}
}

// Classify ranks every catalog intent against the question.
//
// # Description
//
// Score per intent: weightSimilarity * best example similarity +
// weightTokenOverlap * Jaccard overlap between question tokens and the
// intent corpus, plus a capped boost per matched keyword. Candidates are
// returned in descending score order; zero-scored intents are dropped.
// Slot hints (count, period, status labels) are extracted once from the
// question and attached to every candidate.
//
// # Thread Safety
//
// Safe for concurrent use.
func (h *HeuristicClassifier) Classify(ctx context.Context, question string) ([]Candidate, error) {
	_, span := tracer.Start(ctx, "nlu.HeuristicClassifier.Classify")
	defer span.End()

	norm := Normalize(question)
	qTokens := tokenSet(Tokens(norm))
	hints := ExtractSlots(norm)

	var out []Candidate
	for _, c := range h.corpora {
		score := h.score(norm, qTokens, c)
		if score <= 0 {
			continue
		}
		out = append(out, Candidate{IntentID: c.id, Confidence: score, Hints: hints})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	span.SetAttributes(
		attribute.String("query_preview", truncate(norm, 80)),
		attribute.Int("candidates", len(out)),
	)
	return out, nil
}

// score computes the lexical score of one intent corpus for the question.
func (h *HeuristicClassifier) score(norm string, qTokens map[string]bool, c intentCorpus) float64 {
	var bestSim float64
	for _, ex := range c.examples {
		if s := sequenceRatio(norm, ex); s > bestSim {
			bestSim = s
		}
	}

	overlap := jaccard(qTokens, c.tokens)

	var boost float64
	for _, kw := range c.keywords {
		if qTokens[kw] {
			boost += keywordBoost
		}
	}
	if boost > keywordBoostCap {
		boost = keywordBoostCap
	}

	score := weightSimilarity*bestSim + weightTokenOverlap*overlap + boost
	if score > 1 {
		score = 1
	}
	return score
}

// jaccard computes |a ∩ b| / |a ∪ b| for two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var inter int
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// sequenceRatio is a similarity ratio in [0, 1] between two strings:
// 2 * LCS / (len(a) + len(b)) over runes.
func sequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
