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
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// Period Resolution (pt-BR)
// =============================================================================

// Period is a resolved half-open date range [Start, End).
type Period struct {
	Start time.Time
	End   time.Time

	// Label is the phrase the range was resolved from, kept for answers
	// and logging.
	Label string
}

// Days returns the span length in whole days.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// ResolvePeriod turns a normalized period phrase into a concrete date range.
//
// # Description
//
// Supported phrases: "hoje", "ontem", "anteontem", "semana passada" (the
// previous Monday-to-Monday week), "mes atual" / "este mes", "mes anterior"
// / "mes passado", "ultimos N dias" (N calendar days ending today,
// inclusive), explicit "de dd/mm/yyyy a dd/mm/yyyy" ranges, and a single
// "dd/mm/yyyy" date. Ranges are half-open: End is the first instant NOT in
// the period, so SQL filters use col >= :ini AND col < :fim.
//
// # Inputs
//
//   - phrase: Normalized period phrase (ExtractSlots output).
//   - now: Reference instant. Resolution happens in now's location.
//
// # Outputs
//
//   - Period: The resolved range.
//   - error: Non-nil when the phrase is not a recognized period.
func ResolvePeriod(phrase string, now time.Time) (Period, error) {
	today := midnight(now)

	switch phrase {
	case "hoje":
		return Period{Start: today, End: today.AddDate(0, 0, 1), Label: phrase}, nil
	case "ontem":
		return Period{Start: today.AddDate(0, 0, -1), End: today, Label: phrase}, nil
	case "anteontem":
		return Period{Start: today.AddDate(0, 0, -2), End: today.AddDate(0, 0, -1), Label: phrase}, nil
	case "semana passada":
		weekStart := today.AddDate(0, 0, -mondayOffset(today)-7)
		return Period{Start: weekStart, End: weekStart.AddDate(0, 0, 7), Label: phrase}, nil
	case "mes atual", "este mes":
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return Period{Start: monthStart, End: monthStart.AddDate(0, 1, 0), Label: phrase}, nil
	case "mes anterior", "mes passado":
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return Period{Start: monthStart.AddDate(0, -1, 0), End: monthStart, Label: phrase}, nil
	}

	if m := periodLastDaysPattern.FindStringSubmatch(phrase); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Period{}, fmt.Errorf("invalid day count in period %q", phrase)
		}
		// "ultimos N dias" includes today, so the window opens N-1 days back.
		return Period{Start: today.AddDate(0, 0, -(n - 1)), End: today.AddDate(0, 0, 1), Label: phrase}, nil
	}

	if m := periodRangePattern.FindStringSubmatch(phrase); m != nil {
		start, err := parseBRDate(m[1], now.Location())
		if err != nil {
			return Period{}, err
		}
		end, err := parseBRDate(m[2], now.Location())
		if err != nil {
			return Period{}, err
		}
		if end.Before(start) {
			return Period{}, fmt.Errorf("period %q ends before it starts", phrase)
		}
		return Period{Start: start, End: end.AddDate(0, 0, 1), Label: phrase}, nil
	}

	if periodSingleDate.MatchString(phrase) {
		day, err := parseBRDate(phrase, now.Location())
		if err != nil {
			return Period{}, err
		}
		return Period{Start: day, End: day.AddDate(0, 0, 1), Label: phrase}, nil
	}

	return Period{}, fmt.Errorf("unrecognized period phrase %q", phrase)
}

// parseBRDate parses a dd/mm/yyyy date at midnight in loc.
func parseBRDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("02/01/2006", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// midnight truncates t to the start of its day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOffset returns the number of days since the most recent Monday.
func mondayOffset(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 6
	}
	return wd - 1
}
