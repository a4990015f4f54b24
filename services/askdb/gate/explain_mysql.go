// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// MySQL Explainer
// =============================================================================

// MySQLExplainer obtains tabular EXPLAIN output from a MySQL-compatible
// server over database/sql.
//
// # Description
//
// Runs "EXPLAIN <sql>" with the query's own bind arguments and maps the
// columns the gate cares about (table, type, key, rows) by name, so the
// exact column set of the server version does not matter. EXPLAIN runs
// against the same pool the query would, so the plan reflects the real
// schema and statistics.
//
// # Thread Safety
//
// Safe for concurrent use (delegates to *sql.DB).
type MySQLExplainer struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMySQLExplainer creates an explainer over db.
//
// # Inputs
//
//   - db: Open connection pool. Must not be nil.
//   - timeout: Per-EXPLAIN deadline. Zero uses 2s.
func NewMySQLExplainer(db *sql.DB, timeout time.Duration) *MySQLExplainer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MySQLExplainer{db: db, timeout: timeout}
}

// Explain runs EXPLAIN on the bound query and parses the plan rows.
func (e *MySQLExplainer) Explain(ctx context.Context, query string, args []any) ([]PlanRow, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, "EXPLAIN "+query, args...)
	if err != nil {
		return nil, fmt.Errorf("explain query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("explain columns: %w", err)
	}

	// Column positions by lowercased name; EXPLAIN output casing varies.
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(c)] = i
	}
	for _, required := range []string{"table", "type", "rows"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("explain output missing column %q", required)
		}
	}

	var plan []PlanRow
	scan := make([]any, len(cols))
	raw := make([]sql.NullString, len(cols))
	for i := range raw {
		scan[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("explain scan: %w", err)
		}
		var row PlanRow
		row.Table = raw[idx["table"]].String
		row.ScanType = raw[idx["type"]].String
		if i, ok := idx["key"]; ok {
			row.Key = raw[i].String
		}
		if s := raw[idx["rows"]].String; s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("explain rows estimate %q: %w", s, err)
			}
			row.Rows = n
		}
		plan = append(plan, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("explain rows: %w", err)
	}
	return plan, nil
}
