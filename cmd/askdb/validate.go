// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/config"
)

var validateAgainstDB bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the intent catalog and the runtime policy",
	Long: `Loads the runtime policy and every catalog file under the intents
directory, running the same validation the server runs at startup. Prints
one fingerprint line per intent and exits non-zero on the first problem.

With --db the intents are also cross-checked against INFORMATION_SCHEMA of
the database named by ASKDB_PRIMARY_DSN, catching schema drift before a
deploy.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateAgainstDB, "db", false,
		"also cross-check intents against the database schema (needs ASKDB_PRIMARY_DSN)")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	policy, err := config.Load(policyPath)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(intentsDir, nil)
	if err != nil {
		return err
	}

	for _, in := range cat.All() {
		fmt.Fprintln(cmd.OutOrStdout(), catalog.Fingerprint(in))
	}

	if validateAgainstDB {
		if err := checkSchema(cmd.Context(), cat); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema: ok")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d intents, limit cap %d, confidence floor %.2f\n",
		cat.Len(), policy.Resolver.LimitCap, policy.Resolver.ConfidenceFloor)
	return nil
}

// checkSchema runs the startup schema-drift check on demand.
func checkSchema(ctx context.Context, cat *catalog.Catalog) error {
	dsn := os.Getenv("ASKDB_PRIMARY_DSN")
	if dsn == "" {
		return errors.New("--db requires ASKDB_PRIMARY_DSN")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	schema, err := catalog.LoadSchema(ctx, db, nil)
	if err != nil {
		return err
	}
	return schema.Check(cat)
}
