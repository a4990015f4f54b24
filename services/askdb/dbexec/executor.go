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
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// Row Set Model
// =============================================================================

// RowSet is the materialized result of one SELECT. Values are stringified
// at scan time: the route layer serializes them as-is, and the cache can
// gob-encode them without registering driver types.
type RowSet struct {
	// Columns are the result column names, in select order.
	Columns []string

	// Rows holds one string slice per row. SQL NULL scans to "".
	Rows [][]string

	// Truncated is true when the result was cut at the payload cap.
	Truncated bool
}

// Scalar returns the first value of the first row, for single-aggregate
// results.
func (rs *RowSet) Scalar() (string, bool) {
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return "", false
	}
	return rs.Rows[0][0], true
}

// =============================================================================
// QueryRunner
// =============================================================================

// QueryRunner executes one bound SELECT against one target.
type QueryRunner interface {
	Query(ctx context.Context, query string, args []any) (*RowSet, error)
}

// =============================================================================
// SQLRunner
// =============================================================================

// SQLRunner runs bound queries against a MySQL pool with a per-query
// deadline and a hard cap on materialized rows.
//
// # Thread Safety
//
// Safe for concurrent use (delegates to *sql.DB).
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
}

// NewSQLRunner creates a runner over db.
//
// # Inputs
//
//   - db: Open connection pool. Must not be nil.
//   - timeout: Per-query deadline. Zero uses 10s.
//   - maxRows: Payload cap. Results longer than this are truncated and
//     flagged. Zero uses 5000.
func NewSQLRunner(db *sql.DB, timeout time.Duration, maxRows int) *SQLRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &SQLRunner{db: db, timeout: timeout, maxRows: maxRows}
}

// Query executes the bound SELECT and materializes up to maxRows rows.
func (r *SQLRunner) Query(ctx context.Context, query string, args []any) (*RowSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	rs := &RowSet{Columns: cols}
	scan := make([]any, len(cols))
	raw := make([]sql.NullString, len(cols))
	for i := range raw {
		scan[i] = &raw[i]
	}

	for rows.Next() {
		if len(rs.Rows) >= r.maxRows {
			rs.Truncated = true
			break
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		row := make([]string, len(cols))
		for i := range raw {
			row[i] = raw[i].String
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	return rs, nil
}

// Ping verifies connectivity, for readiness checks.
func (r *SQLRunner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}
