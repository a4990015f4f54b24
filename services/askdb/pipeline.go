// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package askdb wires the full question pipeline: resolve the question to
// a bound query, firewall it, gate its execution plan, route it to a
// database target, and shape the result into an answer.
package askdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/dbexec"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/gate"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/resolver"
	"github.com/google/uuid"
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

var (
	pipelineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askdb",
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Pipeline requests by outcome: answered, no_match, ambiguous, extraction_failed, firewall_blocked, plan_blocked, assessment_failed, execution_failed",
	}, []string{"outcome"})

	pipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "askdb",
		Subsystem: "pipeline",
		Name:      "request_latency_seconds",
		Help:      "End-to-end pipeline latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("askdb.pipeline")

// =============================================================================
// Outcome
// =============================================================================

// Answer is the successful terminal product of the pipeline.
type Answer struct {
	// CorrID is the request correlation id.
	CorrID string

	// IntentID and Confidence describe the resolution.
	IntentID   string
	Confidence float64

	// Text is a short natural-language summary of the result.
	Text string

	// Columns and Rows carry the materialized result.
	Columns []string
	Rows    [][]string

	// Truncated is true when rows were cut at the payload cap.
	Truncated bool

	// Target names the database target that served the query; empty when
	// the result came from the cache.
	Target string

	// SQLDigest is the short digest of the executed SQL.
	SQLDigest string

	// Elapsed is the end-to-end processing time.
	Elapsed time.Duration
}

// PlanGate assesses a bound query's execution plan.
type PlanGate interface {
	Assess(ctx context.Context, sql string, args []any) (*gate.Assessment, error)
}

// QueryRouter executes a bound query against a database target.
type QueryRouter interface {
	Execute(ctx context.Context, intentID, query string, args []any) (*dbexec.RowSet, dbexec.Target, error)
}

// QueryResolver turns a question into a bound query.
type QueryResolver interface {
	Resolve(ctx context.Context, question string) (*resolver.ResolvedQuery, error)
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline runs a question through resolution, the firewall, the plan
// gate, and execution.
//
// # Thread Safety
//
// Safe for concurrent use.
type Pipeline struct {
	resolver QueryResolver
	gate     PlanGate
	router   QueryRouter
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
//
// # Inputs
//
//   - res: Question resolver. Must not be nil.
//   - planGate: Plan safety gate. Must not be nil.
//   - router: Execution router. Must not be nil.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *Pipeline: The constructed pipeline. Never nil.
func NewPipeline(res QueryResolver, planGate PlanGate, router QueryRouter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{resolver: res, gate: planGate, router: router, logger: logger}
}

// Handle answers one question.
//
// # Description
//
// Stages, in order, each failing the request with its own typed error:
//
//  1. Resolve: classification + extraction + binding.
//  2. Firewall: syntactic check of the bound SQL.
//  3. Gate: EXPLAIN-based plan assessment, fail closed.
//  4. Execute: replica-first routing with primary fallback.
//
// # Outputs
//
//   - *Answer: The shaped result on success.
//   - error: One of the typed failures from resolution, the firewall, the
//     gate, or execution. The route layer maps each type to a status.
//
// # Thread Safety
//
// Safe for concurrent use.
func (p *Pipeline) Handle(ctx context.Context, question string) (*Answer, error) {
	corrID := uuid.NewString()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("corr_id", corrID))

	logger := p.logger.With(slog.String("corr_id", corrID))

	rq, err := p.resolver.Resolve(ctx, question)
	if err != nil {
		p.fail(span, logger, "resolve", err, start)
		return nil, err
	}

	digest := rq.Digest()
	logger = logger.With(
		slog.String("intent", rq.Intent.ID),
		slog.String("sql_digest", digest),
	)
	span.SetAttributes(
		attribute.String("intent", rq.Intent.ID),
		attribute.String("sql_digest", digest),
	)

	if err := CheckSQL(rq.SQL, rq.Intent.Returns.RowsExpected()); err != nil {
		pipelineTotal.WithLabelValues("firewall_blocked").Inc()
		p.fail(span, logger, "firewall", err, start)
		return nil, err
	}

	if _, err := p.gate.Assess(ctx, rq.SQL, rq.Args); err != nil {
		p.fail(span, logger, "gate", err, start)
		return nil, err
	}

	rs, target, err := p.router.Execute(ctx, rq.Intent.ID, rq.SQL, rq.Args)
	if err != nil {
		pipelineTotal.WithLabelValues("execution_failed").Inc()
		p.fail(span, logger, "execute", err, start)
		return nil, err
	}

	elapsed := time.Since(start)
	answer := &Answer{
		CorrID:     corrID,
		IntentID:   rq.Intent.ID,
		Confidence: rq.Confidence,
		Text:       formatAnswer(rq, rs),
		Columns:    rs.Columns,
		Rows:       rs.Rows,
		Truncated:  rs.Truncated,
		Target:     string(target),
		SQLDigest:  digest,
		Elapsed:    elapsed,
	}

	pipelineTotal.WithLabelValues("answered").Inc()
	pipelineLatency.Observe(elapsed.Seconds())
	logger.Info("question answered",
		slog.String("target", answer.Target),
		slog.Int("rows", len(rs.Rows)),
		slog.Bool("truncated", rs.Truncated),
		slog.Duration("elapsed", elapsed),
	)
	return answer, nil
}

// fail records a pipeline failure uniformly.
func (p *Pipeline) fail(span trace.Span, logger *slog.Logger, stage string, err error, start time.Time) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	logger.Warn("pipeline request failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
		slog.Duration("elapsed", time.Since(start)),
	)
	pipelineLatency.Observe(time.Since(start).Seconds())
	switch stage {
	case "resolve":
		// resolver metrics already count the precise outcome; here we only
		// count the pipeline-level failure class.
		pipelineTotal.WithLabelValues(resolveOutcome(err)).Inc()
	case "gate":
		pipelineTotal.WithLabelValues(gateOutcome(err)).Inc()
	}
}

// resolveOutcome maps a resolution error to a pipeline outcome label.
func resolveOutcome(err error) string {
	switch err.(type) {
	case *resolver.NoMatchError:
		return "no_match"
	case *resolver.AmbiguousMatchError:
		return "ambiguous"
	case *resolver.ExtractionError:
		return "extraction_failed"
	default:
		return "resolve_failed"
	}
}

// gateOutcome maps a gate error to a pipeline outcome label.
func gateOutcome(err error) string {
	if _, ok := err.(*gate.BlockedError); ok {
		return "plan_blocked"
	}
	return "assessment_failed"
}

// formatAnswer builds the short natural-language summary.
func formatAnswer(rq *resolver.ResolvedQuery, rs *dbexec.RowSet) string {
	var suffix string
	if period, ok := periodValue(rq); ok {
		suffix = fmt.Sprintf(" no periodo %q", period.Label)
	}

	if !rq.Intent.Returns.RowsExpected() {
		if v, ok := rs.Scalar(); ok {
			return fmt.Sprintf("Total%s: %s.", suffix, v)
		}
		return "Consulta executada, sem resultado."
	}

	n := len(rs.Rows)
	switch {
	case n == 0:
		return fmt.Sprintf("Nenhum registro encontrado%s.", suffix)
	case rs.Truncated:
		return fmt.Sprintf("Retornando os primeiros %d registros%s (resultado truncado).", n, suffix)
	case n == 1:
		return fmt.Sprintf("1 registro encontrado%s.", suffix)
	default:
		return fmt.Sprintf("%d registros encontrados%s.", n, suffix)
	}
}

// periodValue returns the resolved period of the query, if it bound one.
func periodValue(rq *resolver.ResolvedQuery) (nlu.Period, bool) {
	for _, v := range rq.Values {
		if p, ok := v.(nlu.Period); ok {
			return p, true
		}
	}
	return nlu.Period{}, false
}
