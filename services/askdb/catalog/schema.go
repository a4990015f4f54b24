// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// =============================================================================
// Schema Guard
// =============================================================================

// Schema is an upper-normalized snapshot of the database schema: table name
// to the set of its column names. It guards against schema drift — an intent
// that references a dropped table or column must stop the process at
// startup, not fail per request.
type Schema map[string]map[string]bool

const schemaQuery = `
SELECT TABLE_NAME, COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = DATABASE()`

// LoadSchema snapshots INFORMATION_SCHEMA for the connection's default
// database.
//
// # Inputs
//
//   - ctx: Context bounding the query.
//   - db: Open pool on the database the intents run against.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - Schema: Table to column-set map, names upper-cased.
//   - error: Non-nil when the snapshot query fails.
func LoadSchema(ctx context.Context, db *sql.DB, logger *slog.Logger) (Schema, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rows, err := db.QueryContext(ctx, schemaQuery)
	if err != nil {
		return nil, fmt.Errorf("snapshot information_schema: %w", err)
	}
	defer rows.Close()

	snapshot := make(Schema)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan information_schema row: %w", err)
		}
		table = strings.ToUpper(table)
		if snapshot[table] == nil {
			snapshot[table] = make(map[string]bool)
		}
		snapshot[table][strings.ToUpper(column)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read information_schema: %w", err)
	}

	logger.Info("schema snapshot loaded", slog.Int("tables", len(snapshot)))
	return snapshot, nil
}

// Check cross-references every catalog intent against the snapshot: the
// main table must exist, and the period filter column, when declared, must
// exist on that table. All mismatches are collected into one
// *ConfigurationError so an operator sees the full drift at once.
func (s Schema) Check(cat *Catalog) error {
	var problems []string

	for _, in := range cat.All() {
		table := strings.ToUpper(in.Table)
		cols, ok := s[table]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"%s: table %q does not exist in the database", in.ID, in.Table))
			continue
		}
		if in.Period != nil && in.Period.Column != "" {
			if !cols[strings.ToUpper(in.Period.Column)] {
				problems = append(problems, fmt.Sprintf(
					"%s: period column %q not found on table %q", in.ID, in.Period.Column, in.Table))
			}
		}
	}

	if len(problems) > 0 {
		return newConfigError("", "schema drift: %s", strings.Join(problems, "; "))
	}
	return nil
}
