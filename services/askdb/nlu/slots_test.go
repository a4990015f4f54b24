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

import "testing"

func TestNormalizeFoldsAccentsAndPunctuation(t *testing.T) {
	got := Normalize("Quais os ÚLTIMOS 5 pedidos, faturados?")
	want := "quais os ultimos 5 pedidos faturados"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeKeepsDates(t *testing.T) {
	got := Normalize("pedidos de 01/02/2026 a 15/02/2026")
	want := "pedidos de 01/02/2026 a 15/02/2026"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestTokensAppliesSynonyms(t *testing.T) {
	got := Tokens("ultimas vendas de pvs")
	want := []string{"ultimas", "pedidos", "de", "pedidos"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractSlotsCount(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"me mostra os ultimos 5 pedidos", "5"},
		{"top 20 pedidos faturados", "20"},
		{"lista 15 pedidos do mes", "15"},
		{"ultimos pedidos", ""},
	}
	for _, tc := range cases {
		hints := ExtractSlots(Normalize(tc.text))
		if got := hints[HintCount]; got != tc.want {
			t.Errorf("ExtractSlots(%q)[n] = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractSlotsCountIgnoresTimeUnits(t *testing.T) {
	// "ultimos 7 dias" quantifies time; it must surface as a period, not a
	// row count.
	hints := ExtractSlots(Normalize("pedidos dos ultimos 7 dias"))
	if got := hints[HintCount]; got != "" {
		t.Errorf("count hint = %q, want empty", got)
	}
	if got := hints[HintPeriod]; got != "ultimos 7 dias" {
		t.Errorf("period hint = %q, want %q", got, "ultimos 7 dias")
	}
}

func TestExtractSlotsStatus(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"pedidos faturados de ontem", "faturado"},
		{"quantos pedidos cancelados", "cancelado"},
		{"pedidos em aberto", "aberto"},
		{"ultimos pedidos", ""},
	}
	for _, tc := range cases {
		hints := ExtractSlots(Normalize(tc.text))
		if got := hints[HintStatus]; got != tc.want {
			t.Errorf("ExtractSlots(%q)[status] = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractSlotsPeriodPhrases(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"quantos pedidos hoje", "hoje"},
		{"contagem de ontem", "ontem"},
		{"pedidos da semana passada", "semana passada"},
		{"faturamento do mes anterior", "mes anterior"},
		{"pedidos de 01/02/2026 a 15/02/2026", "de 01/02/2026 a 15/02/2026"},
		{"pedidos de 10/03/2026", "10/03/2026"},
	}
	for _, tc := range cases {
		hints := ExtractSlots(Normalize(tc.text))
		if got := hints[HintPeriod]; got != tc.want {
			t.Errorf("ExtractSlots(%q)[periodo] = %q, want %q", tc.text, got, tc.want)
		}
	}
}
