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
	"testing"
	"time"
)

// Wednesday, 2026-02-18 15:04:05 UTC — a fixed reference keeps relative
// labels deterministic.
var refNow = time.Date(2026, 2, 18, 15, 4, 5, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePeriodRelativeLabels(t *testing.T) {
	cases := []struct {
		phrase    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"hoje", day(2026, 2, 18), day(2026, 2, 19)},
		{"ontem", day(2026, 2, 17), day(2026, 2, 18)},
		{"anteontem", day(2026, 2, 16), day(2026, 2, 17)},
		{"semana passada", day(2026, 2, 9), day(2026, 2, 16)},
		{"mes atual", day(2026, 2, 1), day(2026, 3, 1)},
		{"mes anterior", day(2026, 1, 1), day(2026, 2, 1)},
		{"ultimos 7 dias", day(2026, 2, 12), day(2026, 2, 19)},
		{"ultimos 1 dias", day(2026, 2, 18), day(2026, 2, 19)},
	}
	for _, tc := range cases {
		p, err := ResolvePeriod(tc.phrase, refNow)
		if err != nil {
			t.Errorf("ResolvePeriod(%q) failed: %v", tc.phrase, err)
			continue
		}
		if !p.Start.Equal(tc.wantStart) || !p.End.Equal(tc.wantEnd) {
			t.Errorf("ResolvePeriod(%q) = [%v, %v), want [%v, %v)",
				tc.phrase, p.Start, p.End, tc.wantStart, tc.wantEnd)
		}
	}
}

func TestResolvePeriodExplicitRange(t *testing.T) {
	p, err := ResolvePeriod("de 01/02/2026 a 15/02/2026", refNow)
	if err != nil {
		t.Fatalf("ResolvePeriod failed: %v", err)
	}
	// End is exclusive: the 15th is included, so End is the 16th.
	if !p.Start.Equal(day(2026, 2, 1)) || !p.End.Equal(day(2026, 2, 16)) {
		t.Errorf("range = [%v, %v), want [2026-02-01, 2026-02-16)", p.Start, p.End)
	}
	if p.Days() != 15 {
		t.Errorf("Days = %d, want 15", p.Days())
	}
}

func TestResolvePeriodSingleDate(t *testing.T) {
	p, err := ResolvePeriod("10/03/2026", refNow)
	if err != nil {
		t.Fatalf("ResolvePeriod failed: %v", err)
	}
	if !p.Start.Equal(day(2026, 3, 10)) || !p.End.Equal(day(2026, 3, 11)) {
		t.Errorf("range = [%v, %v), want single day 2026-03-10", p.Start, p.End)
	}
}

func TestResolvePeriodRejectsInvertedRange(t *testing.T) {
	if _, err := ResolvePeriod("de 15/02/2026 a 01/02/2026", refNow); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestResolvePeriodRejectsUnknownPhrase(t *testing.T) {
	if _, err := ResolvePeriod("sei la quando", refNow); err == nil {
		t.Error("expected error for unknown phrase")
	}
}

func TestResolvePeriodRejectsInvalidDate(t *testing.T) {
	if _, err := ResolvePeriod("31/02/2026", refNow); err == nil {
		t.Error("expected error for impossible date")
	}
}
