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
	"time"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// EscalatingClassifier
// =============================================================================

// maxEscalationOptions caps how many heuristic candidates are offered to
// the model. Beyond the first few the heuristic ranking is noise anyway.
const maxEscalationOptions = 5

// Picker is the LLM side of escalation: given a question and a short list
// of intent options, return the id of the best match ("" for none).
type Picker interface {
	Pick(ctx context.Context, question string, options []IntentOption) (string, error)
}

// EscalatingClassifier wraps the heuristic classifier and consults an LLM
// only when the heuristic ranking is uncertain.
//
// # Description
//
// The heuristic always runs. Escalation triggers when the top score is
// below the confidence floor, or when the runner-up is within the tie
// margin of the top. The model only re-ranks candidates the heuristic
// already produced; a pick outside that set is treated as a hallucination
// and discarded. LLM failures degrade to the heuristic ranking, so the
// classifier as a whole never fails because the model is down.
//
// # Thread Safety
//
// Safe for concurrent use.
type EscalatingClassifier struct {
	primary   Classifier
	picker    Picker
	floor     float64
	tieMargin float64
	options   map[string]IntentOption
	logger    *slog.Logger
}

// NewEscalatingClassifier constructs the escalating classifier.
//
// # Inputs
//
//   - primary: The heuristic classifier. Must not be nil.
//   - picker: The LLM picker. Nil disables escalation entirely.
//   - cat: The catalog, used to describe candidates to the model.
//   - floor: Confidence floor below which escalation triggers. Zero or
//     negative uses 0.55.
//   - tieMargin: Score gap under which top-two candidates count as tied.
//     Negative uses 0; zero disables tie escalation.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *EscalatingClassifier: The constructed classifier. Never nil.
func NewEscalatingClassifier(primary Classifier, picker Picker, cat *catalog.Catalog,
	floor, tieMargin float64, logger *slog.Logger) *EscalatingClassifier {

	if logger == nil {
		logger = slog.Default()
	}
	if floor <= 0 {
		floor = 0.55
	}
	if tieMargin < 0 {
		tieMargin = 0
	}

	opts := make(map[string]IntentOption, cat.Len())
	for _, in := range cat.All() {
		opts[in.ID] = IntentOption{
			ID:          in.ID,
			Description: in.Description,
			Examples:    in.Examples,
		}
	}

	return &EscalatingClassifier{
		primary:   primary,
		picker:    picker,
		floor:     floor,
		tieMargin: tieMargin,
		options:   opts,
		logger:    logger,
	}
}

// Classify ranks intents, escalating to the LLM when the heuristic is
// uncertain.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *EscalatingClassifier) Classify(ctx context.Context, question string) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "nlu.EscalatingClassifier.Classify")
	defer span.End()

	candidates, err := e.primary.Classify(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		span.SetAttributes(attribute.Int("candidates", 0))
		return candidates, nil
	}

	span.SetAttributes(
		attribute.String("top_intent", candidates[0].IntentID),
		attribute.Float64("top_confidence", candidates[0].Confidence),
	)

	if e.picker == nil || !e.uncertain(candidates) {
		classificationTotal.WithLabelValues("heuristic").Inc()
		span.SetAttributes(attribute.Bool("escalated", false))
		return candidates, nil
	}

	return e.escalate(ctx, question, candidates)
}

// uncertain reports whether the heuristic ranking needs an LLM pass.
func (e *EscalatingClassifier) uncertain(candidates []Candidate) bool {
	if candidates[0].Confidence < e.floor {
		return true
	}
	if e.tieMargin > 0 && len(candidates) > 1 {
		return candidates[0].Confidence-candidates[1].Confidence < e.tieMargin
	}
	return false
}

// escalate consults the model and re-ranks the heuristic candidates.
func (e *EscalatingClassifier) escalate(ctx context.Context, question string, candidates []Candidate) ([]Candidate, error) {
	limit := len(candidates)
	if limit > maxEscalationOptions {
		limit = maxEscalationOptions
	}
	opts := make([]IntentOption, 0, limit)
	for _, c := range candidates[:limit] {
		opts = append(opts, e.options[c.IntentID])
	}

	start := time.Now()
	pick, err := e.picker.Pick(ctx, question, opts)
	llmLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.Warn("llm classification failed, using heuristic ranking",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		classificationTotal.WithLabelValues("llm_error").Inc()
		return candidates, nil
	}
	if pick == "" {
		// The model saw no match; trust the heuristic order.
		classificationTotal.WithLabelValues("heuristic").Inc()
		return candidates, nil
	}

	idx := -1
	for i, c := range candidates {
		if c.IntentID == pick {
			idx = i
			break
		}
	}
	if idx < 0 {
		// The model named an intent it was never offered.
		e.logger.Warn("llm classifier hallucinated intent id",
			slog.String("pick", pick),
			slog.String("question_preview", truncate(question, 80)),
		)
		classificationTotal.WithLabelValues("hallucination").Inc()
		return candidates, nil
	}

	picked := candidates[idx]
	if picked.Confidence < e.floor {
		picked.Confidence = e.floor
	}
	reordered := make([]Candidate, 0, len(candidates))
	reordered = append(reordered, picked)
	for i, c := range candidates {
		if i != idx {
			reordered = append(reordered, c)
		}
	}

	e.logger.Info("llm classification accepted",
		slog.String("intent", picked.IntentID),
		slog.Duration("duration", time.Since(start)),
	)
	classificationTotal.WithLabelValues("escalated").Inc()
	return reordered, nil
}
