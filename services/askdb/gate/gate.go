// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate assesses the execution plan of a bound query before it is
// allowed to run. The gate fails closed: when the plan cannot be obtained
// or understood, the query does not run.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var assessmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "askdb",
	Subsystem: "gate",
	Name:      "assessment_total",
	Help:      "Plan assessments by verdict: allow, block_full_scan, block_row_ceiling, error",
}, []string{"verdict"})

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("askdb.gate")

// =============================================================================
// Plan Model
// =============================================================================

// PlanRow is one row of a query's execution plan, one per table access.
type PlanRow struct {
	// Table is the accessed table (or derived table alias).
	Table string

	// ScanType is the access strategy: ALL, index, range, ref, eq_ref,
	// const, system.
	ScanType string

	// Key is the index chosen for the access. Empty means no index.
	Key string

	// Rows is the optimizer's estimate of examined rows.
	Rows int64
}

// Explainer obtains the execution plan of a bound query without running it.
type Explainer interface {
	Explain(ctx context.Context, sql string, args []any) ([]PlanRow, error)
}

// =============================================================================
// Assessment Results
// =============================================================================

// Block rules.
const (
	RuleFullScan   = "full_scan"   // unindexed full table or index scan
	RuleRowCeiling = "row_ceiling" // estimated rows above the ceiling
)

// Assessment is the gate's verdict for one query.
type Assessment struct {
	// Allowed is true when the query may run.
	Allowed bool

	// Rule names the rule that blocked the query. Empty when allowed.
	Rule string

	// Table is the table the blocking rule fired on. Empty when allowed
	// or when the rule is plan-wide.
	Table string

	// EstimatedRows is the largest per-table row estimate in the plan.
	EstimatedRows int64
}

// BlockedError is returned when the plan was readable and the gate refused
// the query.
type BlockedError struct {
	Assessment Assessment
}

func (e *BlockedError) Error() string {
	if e.Assessment.Table != "" {
		return fmt.Sprintf("query blocked by plan gate: %s on table %s (estimated rows %d)",
			e.Assessment.Rule, e.Assessment.Table, e.Assessment.EstimatedRows)
	}
	return fmt.Sprintf("query blocked by plan gate: %s (estimated rows %d)",
		e.Assessment.Rule, e.Assessment.EstimatedRows)
}

// AssessmentError is returned when the plan could not be obtained or
// understood. It always means the query did NOT run.
type AssessmentError struct {
	Cause error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("plan assessment failed, query not executed: %v", e.Cause)
}

func (e *AssessmentError) Unwrap() error { return e.Cause }

// =============================================================================
// Gate
// =============================================================================

// Config carries the gate's policy knobs.
type Config struct {
	// MaxEstimatedRows is the ceiling on any per-table row estimate.
	// Default: 50000.
	MaxEstimatedRows int64
}

// Gate runs EXPLAIN on bound queries and blocks plans that would scan too
// much.
//
// # Description
//
// Two rules, both blocking:
//
//   - full_scan: a table is accessed with scan type ALL or index and no
//     chosen key. Unbounded scans are refused regardless of the current
//     row estimate, because the estimate grows with the table.
//   - row_ceiling: a table's estimated rows exceed MaxEstimatedRows.
//
// Any failure to obtain or parse the plan is an AssessmentError; the gate
// never falls open.
//
// # Thread Safety
//
// Safe for concurrent use.
type Gate struct {
	explainer Explainer
	config    Config
	logger    *slog.Logger
}

// New creates a Gate.
//
// # Inputs
//
//   - explainer: Plan source. Must not be nil.
//   - config: Policy knobs. Zero ceiling defaults to 50000.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *Gate: The constructed gate. Never nil.
func New(explainer Explainer, config Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxEstimatedRows <= 0 {
		config.MaxEstimatedRows = 50000
	}
	return &Gate{explainer: explainer, config: config, logger: logger}
}

// Assess obtains and judges the execution plan of a bound query.
//
// # Outputs
//
//   - *Assessment: The verdict when the plan was readable (allowed or not).
//   - error: *BlockedError when the plan was refused, *AssessmentError when
//     the plan could not be obtained. Nil only when the query may run.
//
// # Thread Safety
//
// Safe for concurrent use.
func (g *Gate) Assess(ctx context.Context, sql string, args []any) (*Assessment, error) {
	ctx, span := tracer.Start(ctx, "gate.Assess")
	defer span.End()

	plan, err := g.explainer.Explain(ctx, sql, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "explain failed")
		assessmentTotal.WithLabelValues("error").Inc()
		return nil, &AssessmentError{Cause: err}
	}
	if len(plan) == 0 {
		err := fmt.Errorf("explain returned an empty plan")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty plan")
		assessmentTotal.WithLabelValues("error").Inc()
		return nil, &AssessmentError{Cause: err}
	}

	assessment := g.judge(plan)
	span.SetAttributes(
		attribute.Bool("allowed", assessment.Allowed),
		attribute.String("rule", assessment.Rule),
		attribute.Int64("estimated_rows", assessment.EstimatedRows),
	)

	if !assessment.Allowed {
		g.logger.Warn("plan gate blocked query",
			slog.String("rule", assessment.Rule),
			slog.String("table", assessment.Table),
			slog.Int64("estimated_rows", assessment.EstimatedRows),
		)
		assessmentTotal.WithLabelValues("block_" + assessment.Rule).Inc()
		return assessment, &BlockedError{Assessment: *assessment}
	}

	assessmentTotal.WithLabelValues("allow").Inc()
	return assessment, nil
}

// judge applies the blocking rules to a readable plan.
func (g *Gate) judge(plan []PlanRow) *Assessment {
	a := &Assessment{Allowed: true}
	for _, row := range plan {
		if row.Rows > a.EstimatedRows {
			a.EstimatedRows = row.Rows
		}
	}
	for _, row := range plan {
		scan := strings.ToUpper(row.ScanType)
		if (scan == "ALL" || scan == "INDEX") && row.Key == "" {
			a.Allowed = false
			a.Rule = RuleFullScan
			a.Table = row.Table
			return a
		}
		if row.Rows > g.config.MaxEstimatedRows {
			a.Allowed = false
			a.Rule = RuleRowCeiling
			a.Table = row.Table
			return a
		}
	}
	return a
}
