// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlu

import (
	"regexp"
	"strings"
)

// =============================================================================
// Slot Hint Extraction
// =============================================================================
//
// Slot hints are raw substrings lifted from the normalized question. They
// are suggestions only: the extractor downstream re-parses and validates
// every hint against the intent's declared parameter schema.

// Hint keys produced by ExtractSlots.
const (
	HintCount  = "n"       // requested row count ("ultimos 5 pedidos")
	HintPeriod = "periodo" // period phrase ("ontem", "ultimos 7 dias", dates)
	HintStatus = "status"  // status label ("faturado", "cancelado", "aberto")
)

var (
	// countPattern requires an explicit trigger word so a bare number in a
	// date or an id never becomes a row count.
	countPattern = regexp.MustCompile(`\b(?:ultimos?|ultimas?|top)\s+(\d{1,4})\b`)

	// countSuffixPattern catches "5 pedidos" phrasing without a trigger.
	countSuffixPattern = regexp.MustCompile(`\b(\d{1,4})\s+(?:pedidos?|registros?|itens|linhas)\b`)

	// timeUnitPattern rejects numbers that quantify time, not rows:
	// "ultimos 7 dias" is a period, never a count.
	timeUnitPattern = regexp.MustCompile(`^\s*(?:h|horas?|min|minutos?|dias?|semanas?|mes(?:es)?|anos?)\b`)

	// statusPattern matches the status labels of the order domain.
	statusPattern = regexp.MustCompile(`\b(faturados?|cancelados?|abertos?|em aberto)\b`)

	// Period phrase patterns, most specific first.
	periodRangePattern    = regexp.MustCompile(`\b(?:de|entre)\s+(\d{2}/\d{2}/\d{4})\s+(?:a|ate|e)\s+(\d{2}/\d{2}/\d{4})\b`)
	periodLastDaysPattern = regexp.MustCompile(`\bultim[oa]s?\s+(\d{1,3})\s+dias?\b`)
	periodSingleDate      = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)
	periodLabelPattern    = regexp.MustCompile(`\b(hoje|ontem|anteontem|semana passada|mes atual|este mes|mes anterior|mes passado)\b`)
)

// ExtractSlots scans a normalized question for slot hints.
//
// # Inputs
//
//   - normalized: Question text already passed through Normalize.
//
// # Outputs
//
//   - map[string]string: Hint key to raw hint text. Never nil; empty when
//     the question carries no recognizable slot.
func ExtractSlots(normalized string) map[string]string {
	hints := make(map[string]string)

	if m := countPattern.FindStringSubmatchIndex(normalized); m != nil {
		rest := normalized[m[3]:]
		if !timeUnitPattern.MatchString(rest) {
			hints[HintCount] = normalized[m[2]:m[3]]
		}
	}
	if _, ok := hints[HintCount]; !ok {
		if m := countSuffixPattern.FindStringSubmatch(normalized); m != nil {
			hints[HintCount] = m[1]
		}
	}

	if m := statusPattern.FindString(normalized); m != "" {
		hints[HintStatus] = canonicalStatus(m)
	}

	if p := extractPeriodPhrase(normalized); p != "" {
		hints[HintPeriod] = p
	}

	return hints
}

// extractPeriodPhrase returns the period phrase of the question, preferring
// explicit date ranges over relative labels.
func extractPeriodPhrase(normalized string) string {
	if m := periodRangePattern.FindString(normalized); m != "" {
		return m
	}
	if m := periodLastDaysPattern.FindString(normalized); m != "" {
		return m
	}
	if m := periodLabelPattern.FindString(normalized); m != "" {
		return m
	}
	if m := periodSingleDate.FindString(normalized); m != "" {
		return m
	}
	return ""
}

// canonicalStatus collapses plural and phrasal status mentions onto the
// singular domain label.
func canonicalStatus(match string) string {
	switch {
	case strings.HasPrefix(match, "faturado"):
		return "faturado"
	case strings.HasPrefix(match, "cancelado"):
		return "cancelado"
	default:
		return "aberto"
	}
}
