// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nlu turns a free-text question into a ranked list of intent
// candidates plus raw slot hints. It never binds SQL and never talks to a
// database: classification here is advisory, and everything it produces is
// re-validated downstream against the declared parameter schemas.
package nlu

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	classificationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askdb",
		Subsystem: "nlu",
		Name:      "classification_total",
		Help:      "Classification events by outcome: heuristic, escalated, hallucination, llm_error",
	}, []string{"outcome"})

	llmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "askdb",
		Subsystem: "nlu",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM classification calls",
		Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 3.0, 5.0},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("askdb.nlu")

// =============================================================================
// Classifier Contract
// =============================================================================

// Candidate is one ranked classification result.
type Candidate struct {
	// IntentID is the catalog id of the candidate intent.
	IntentID string

	// Confidence is the classifier's score in [0, 1]. Scores are only
	// comparable within a single Classify call.
	Confidence float64

	// Hints carries raw, unvalidated slot text found during classification
	// (e.g. "n" -> "5", "periodo" -> "ontem"). Downstream extraction treats
	// these as suggestions, never as validated values.
	Hints map[string]string
}

// Classifier ranks catalog intents for a question.
//
// # Description
//
// Classify returns candidates in descending confidence order. An empty
// slice means the question matched nothing; a non-nil error means the
// classifier itself failed and the caller decides whether that is fatal.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, question string) ([]Candidate, error)
}

// truncate shortens s for log/span attributes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
