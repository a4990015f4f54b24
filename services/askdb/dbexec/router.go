// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dbexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	executionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askdb",
		Subsystem: "executor",
		Name:      "execution_total",
		Help:      "Query attempts by target and outcome",
	}, []string{"target", "outcome"})

	resultCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "askdb",
		Subsystem: "executor",
		Name:      "result_cache_total",
		Help:      "Result cache lookups: hit, miss",
	}, []string{"outcome"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("askdb.dbexec")

// =============================================================================
// ExecutionError
// =============================================================================

// ExecutionError means both targets failed (or the replica was skipped and
// the primary failed). Both causes are preserved so the operator sees why
// the replica was unavailable AND why the fallback failed.
type ExecutionError struct {
	// ReplicaErr is the replica's failure, or the reason it was skipped.
	ReplicaErr error

	// PrimaryErr is the primary's failure.
	PrimaryErr error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed on both targets: replica: %v; primary: %v",
		e.ReplicaErr, e.PrimaryErr)
}

// Unwrap exposes both causes to errors.Is/As.
func (e *ExecutionError) Unwrap() []error {
	return []error{e.ReplicaErr, e.PrimaryErr}
}

// =============================================================================
// Router
// =============================================================================

// Router executes bound queries replica-first with a single fallback to
// the primary.
//
// # Description
//
// Order of operations per query:
//
//  1. Result cache lookup (when a cache is configured). A hit skips the
//     database entirely.
//  2. Replica attempt, unless the health cache currently marks the
//     replica unhealthy. Success marks it healthy and returns.
//  3. Primary attempt. Success returns with the replica's failure logged;
//     failure returns an ExecutionError carrying both causes.
//
// The health cache only ever suppresses the replica. The primary is always
// attempted when reached; there is nothing to fall back to after it.
//
// # Thread Safety
//
// Safe for concurrent use.
type Router struct {
	replica QueryRunner
	primary QueryRunner
	health  *HealthCache
	cache   *ResultCache
	logger  *slog.Logger
}

// NewRouter creates a Router.
//
// # Inputs
//
//   - replica: Replica runner. Must not be nil.
//   - primary: Primary runner. Must not be nil.
//   - health: Health cache. Nil creates one with the default TTL.
//   - cache: Result cache. Nil disables result caching.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *Router: The constructed router. Never nil.
func NewRouter(replica, primary QueryRunner, health *HealthCache, cache *ResultCache, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = NewHealthCache(0)
	}
	return &Router{
		replica: replica,
		primary: primary,
		health:  health,
		cache:   cache,
		logger:  logger,
	}
}

// Execute runs the bound query, replica first.
//
// # Inputs
//
//   - ctx: Context for cancellation/timeout. Must not be nil.
//   - intentID: The resolved intent id, used for cache keys and logging.
//   - query: Driver-ready SQL.
//   - args: Positional bind arguments.
//
// # Outputs
//
//   - *RowSet: The materialized result.
//   - Target: Which target served it. Empty on cache hits and failure.
//   - error: *ExecutionError when both targets failed.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Router) Execute(ctx context.Context, intentID, query string, args []any) (*RowSet, Target, error) {
	ctx, span := tracer.Start(ctx, "dbexec.Router.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("intent", intentID))

	if rs, ok := r.cache.Get(intentID, query, args); ok {
		resultCacheTotal.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return rs, "", nil
	}
	resultCacheTotal.WithLabelValues("miss").Inc()

	var replicaErr error
	if healthy, known := r.health.Healthy(TargetReplica); known && !healthy {
		replicaErr = fmt.Errorf("replica skipped: marked unhealthy within health TTL")
		executionTotal.WithLabelValues(string(TargetReplica), "skipped").Inc()
		span.SetAttributes(attribute.Bool("replica_skipped", true))
	} else {
		rs, err := r.replica.Query(ctx, query, args)
		if err == nil {
			r.health.MarkHealthy(TargetReplica)
			executionTotal.WithLabelValues(string(TargetReplica), "success").Inc()
			span.SetAttributes(attribute.String("served_by", string(TargetReplica)))
			r.cache.Set(intentID, query, args, rs)
			return rs, TargetReplica, nil
		}
		replicaErr = err
		r.health.MarkUnhealthy(TargetReplica)
		executionTotal.WithLabelValues(string(TargetReplica), "error").Inc()
		r.logger.Warn("replica query failed, falling back to primary",
			slog.String("intent", intentID),
			slog.String("error", err.Error()),
		)
	}

	rs, err := r.primary.Query(ctx, query, args)
	if err != nil {
		executionTotal.WithLabelValues(string(TargetPrimary), "error").Inc()
		execErr := &ExecutionError{ReplicaErr: replicaErr, PrimaryErr: err}
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "both targets failed")
		return nil, "", execErr
	}

	executionTotal.WithLabelValues(string(TargetPrimary), "success").Inc()
	span.SetAttributes(attribute.String("served_by", string(TargetPrimary)))
	r.cache.Set(intentID, query, args, rs)
	return rs, TargetPrimary, nil
}
