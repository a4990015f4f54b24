// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns a classified question into a bound, driver-ready
// SQL query, or into one of the typed resolution failures (no match,
// ambiguous match, extraction failure).
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "askdb",
	Subsystem: "resolver",
	Name:      "resolution_total",
	Help:      "Resolution outcomes: resolved, no_match, ambiguous, extraction_failed, classifier_error",
}, []string{"outcome"})

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("askdb.resolver")

// =============================================================================
// Resolver
// =============================================================================

// Config carries the resolution policy knobs.
type Config struct {
	// ConfidenceFloor is the minimum classification score an intent needs
	// to be considered at all. Default: 0.55.
	ConfidenceFloor float64

	// TieMargin is the score gap under which the top two candidates count
	// as tied. Two tied candidates that both extract successfully are an
	// ambiguous match. Zero disables the check.
	TieMargin float64

	// LimitCap is the global ceiling for bound LIMIT values. Requests above
	// it are clamped at bind time. Zero disables clamping.
	LimitCap int64
}

// Resolver maps free-text questions to bound queries.
//
// # Description
//
// Resolve walks the classifier's candidates in descending confidence
// order, attempting parameter extraction for each candidate at or above
// the confidence floor. The first candidate whose parameters all extract
// and validate wins and is bound into a ResolvedQuery. Tied top candidates
// that both extract successfully surface as AmbiguousMatchError instead of
// silently picking one.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	classifier nlu.Classifier
	extractor  *Extractor
	catalog    *catalog.Catalog
	config     Config
	logger     *slog.Logger
}

// New creates a Resolver.
//
// # Inputs
//
//   - classifier: Ranks intents for a question. Must not be nil.
//   - cat: The loaded catalog. Must not be nil.
//   - config: Policy knobs. Zero floor defaults to 0.55.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *Resolver: The constructed resolver. Never nil.
func New(classifier nlu.Classifier, cat *catalog.Catalog, config Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConfidenceFloor <= 0 {
		config.ConfidenceFloor = 0.55
	}
	return &Resolver{
		classifier: classifier,
		extractor:  NewExtractor(cat),
		catalog:    cat,
		config:     config,
		logger:     logger,
	}
}

// Resolve turns a question into a bound query or a typed failure.
//
// # Outputs
//
//   - *ResolvedQuery: The bound query on success.
//   - error: *NoMatchError, *AmbiguousMatchError, *ExtractionError, or a
//     wrapped classifier/bind failure.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Resolver) Resolve(ctx context.Context, question string) (*ResolvedQuery, error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	candidates, err := r.classifier.Classify(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		resolutionTotal.WithLabelValues("classifier_error").Inc()
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	eligible := candidates[:0:0]
	for _, c := range candidates {
		if c.Confidence >= r.config.ConfidenceFloor {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 {
		nm := &NoMatchError{Question: question}
		if len(candidates) > 0 {
			nm.BestIntent = candidates[0].IntentID
			nm.BestConfidence = candidates[0].Confidence
		}
		span.SetAttributes(attribute.String("outcome", "no_match"))
		resolutionTotal.WithLabelValues("no_match").Inc()
		return nil, nm
	}

	span.SetAttributes(
		attribute.String("top_intent", eligible[0].IntentID),
		attribute.Float64("top_confidence", eligible[0].Confidence),
		attribute.Int("eligible", len(eligible)),
	)

	// Tied top candidates: if both extract cleanly, the question genuinely
	// supports two readings and the caller must disambiguate.
	if r.config.TieMargin > 0 && len(eligible) > 1 &&
		eligible[0].Confidence-eligible[1].Confidence < r.config.TieMargin {

		first, firstErr := r.tryCandidate(eligible[0])
		second, secondErr := r.tryCandidate(eligible[1])
		switch {
		case firstErr == nil && secondErr == nil:
			amb := &AmbiguousMatchError{
				IntentA: eligible[0].IntentID, ConfidenceA: eligible[0].Confidence,
				IntentB: eligible[1].IntentID, ConfidenceB: eligible[1].Confidence,
			}
			span.SetAttributes(attribute.String("outcome", "ambiguous"))
			resolutionTotal.WithLabelValues("ambiguous").Inc()
			return nil, amb
		case firstErr == nil:
			return r.finish(span, first)
		case secondErr == nil:
			return r.finish(span, second)
		}
		// Neither tied candidate extracted; fall through to the ordered
		// walk so remaining candidates still get a chance.
	}

	var firstFailure *ExtractionError
	for _, c := range eligible {
		rq, extErr := r.tryCandidate(c)
		if extErr == nil {
			return r.finish(span, rq)
		}
		if firstFailure == nil {
			firstFailure = extErr
		}
		r.logger.Debug("candidate extraction failed",
			slog.String("intent", c.IntentID),
			slog.Float64("confidence", c.Confidence),
			slog.String("reason", extErr.Reason),
		)
	}

	span.SetAttributes(attribute.String("outcome", "extraction_failed"))
	resolutionTotal.WithLabelValues("extraction_failed").Inc()
	return nil, firstFailure
}

// tryCandidate extracts and binds one candidate.
func (r *Resolver) tryCandidate(c nlu.Candidate) (*ResolvedQuery, *ExtractionError) {
	in, ok := r.catalog.Lookup(c.IntentID)
	if !ok {
		// Classifier and catalog disagree; treat as a per-candidate
		// failure rather than aborting resolution.
		return nil, newExtractionError(c.IntentID, "", "intent is not registered")
	}
	values, extErr := r.extractor.Extract(in, c.Hints)
	if extErr != nil {
		return nil, extErr
	}
	rq, err := Bind(in, values, c.Confidence, r.config.LimitCap)
	if err != nil {
		return nil, newExtractionError(in.ID, "", "binding failed: %v", err)
	}
	return rq, nil
}

// finish records the success path.
func (r *Resolver) finish(span trace.Span, rq *ResolvedQuery) (*ResolvedQuery, error) {
	if rq.LimitClamped {
		r.logger.Warn("requested limit clamped to global cap",
			slog.String("intent", rq.Intent.ID),
			slog.Int64("cap", r.config.LimitCap),
		)
	}
	span.SetAttributes(
		attribute.String("outcome", "resolved"),
		attribute.String("intent", rq.Intent.ID),
		attribute.String("sql_digest", rq.Digest()),
	)
	resolutionTotal.WithLabelValues("resolved").Inc()
	return rq, nil
}
