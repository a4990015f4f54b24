// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package askdb

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// SQL Firewall
// =============================================================================
//
// The catalog already guarantees templates are safe at load time; the
// firewall re-checks the bound SQL right before it reaches a database, so
// a future catalog bug or template regression cannot slip a mutating or
// unbounded statement through. It is purely syntactic and deterministic.

// FirewallError means the bound SQL violated a firewall rule. The query
// did not reach any database.
type FirewallError struct {
	// Rule names the violated rule.
	Rule string
}

func (e *FirewallError) Error() string {
	return fmt.Sprintf("sql firewall rejected query: %s", e.Rule)
}

var (
	firewallSelectPattern  = regexp.MustCompile(`(?is)^\s*select\b`)
	firewallLimitPattern   = regexp.MustCompile(`(?i)\blimit\b`)
	firewallRandPattern    = regexp.MustCompile(`(?i)order\s+by\s+rand\s*\(`)
	firewallStarPattern    = regexp.MustCompile(`(?is)^\s*select\s+\*`)
	firewallCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/|--[^\n]*|#[^\n]*`)
)

// firewallForbidden are statement keywords that must never appear in a
// query headed for execution.
var firewallForbidden = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE",
	"GRANT", "REVOKE", "REPLACE", "CALL", "UNION", "INTO", "OUTFILE",
	"LOAD_FILE", "SLEEP", "BENCHMARK",
}

// CheckSQL verifies a bound statement against the firewall rules.
//
// # Description
//
// Rules: single SELECT statement only; no comments; no forbidden keywords
// (writes, UNION, INTO, file and timing functions); no SELECT *; no ORDER
// BY RAND(); row-returning statements must carry a LIMIT.
//
// # Inputs
//
//   - sql: The bound, driver-ready statement.
//   - returnsRows: Whether the statement is expected to return a row
//     listing (enforces LIMIT).
//
// # Outputs
//
//   - error: *FirewallError on the first violated rule, nil when clean.
func CheckSQL(sql string, returnsRows bool) error {
	if firewallCommentPattern.MatchString(sql) {
		return &FirewallError{Rule: "comments are not allowed"}
	}
	if !firewallSelectPattern.MatchString(sql) {
		return &FirewallError{Rule: "statement is not a SELECT"}
	}
	if strings.Contains(strings.TrimRight(strings.TrimSpace(sql), ";"), ";") {
		return &FirewallError{Rule: "multiple statements are not allowed"}
	}
	if firewallStarPattern.MatchString(sql) {
		return &FirewallError{Rule: "SELECT * is not allowed"}
	}
	if firewallRandPattern.MatchString(sql) {
		return &FirewallError{Rule: "ORDER BY RAND() is not allowed"}
	}

	upper := strings.ToUpper(sql)
	for _, kw := range firewallForbidden {
		if containsWord(upper, kw) {
			return &FirewallError{Rule: fmt.Sprintf("keyword %s is not allowed", kw)}
		}
	}

	if returnsRows && !firewallLimitPattern.MatchString(sql) {
		return &FirewallError{Rule: "row-returning statement has no LIMIT"}
	}
	return nil
}

// containsWord reports whether kw occurs as a whole word in upper-cased
// SQL text.
func containsWord(upperSQL, kw string) bool {
	idx := 0
	for {
		i := strings.Index(upperSQL[idx:], kw)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(upperSQL[i-1])
		after := i+len(kw) >= len(upperSQL) || !isWordChar(upperSQL[i+len(kw)])
		if before && after {
			return true
		}
		idx = i + len(kw)
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
