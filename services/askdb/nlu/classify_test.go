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
	"context"
	"errors"
	"testing"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New([]*catalog.Intent{
		{
			ID:          "vendas.listar_ultimos_N_pedidos",
			Description: "lista os ultimos N pedidos",
			Examples:    []string{"me mostra os ultimos 5 pedidos", "ultimos pedidos faturados"},
			Keywords:    []string{"pedidos", "ultimos"},
		},
		{
			ID:          "vendas.contagem_por_periodo",
			Description: "conta pedidos num periodo",
			Examples:    []string{"quantos pedidos hoje", "contagem de pedidos de ontem"},
			Keywords:    []string{"quantos", "contagem"},
		},
	}, nil)
}

// mockPicker is a hand-rolled Picker fake.
type mockPicker struct {
	pickFn func(ctx context.Context, question string, options []IntentOption) (string, error)
	calls  int
}

func (m *mockPicker) Pick(ctx context.Context, question string, options []IntentOption) (string, error) {
	m.calls++
	return m.pickFn(ctx, question, options)
}

func TestHeuristicClassifierRanksListingFirst(t *testing.T) {
	h := NewHeuristicClassifier(testCatalog(), nil)

	got, err := h.Classify(context.Background(), "me mostra os ultimos 5 pedidos")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	if got[0].IntentID != "vendas.listar_ultimos_N_pedidos" {
		t.Errorf("top = %s, want listing intent", got[0].IntentID)
	}
	if got[0].Confidence <= 0.5 {
		t.Errorf("top confidence = %f, want > 0.5 for near-verbatim example", got[0].Confidence)
	}
	if got[0].Hints[HintCount] != "5" {
		t.Errorf("count hint = %q, want 5", got[0].Hints[HintCount])
	}
}

func TestHeuristicClassifierRanksCountFirst(t *testing.T) {
	h := NewHeuristicClassifier(testCatalog(), nil)

	got, err := h.Classify(context.Background(), "quantos pedidos tivemos ontem")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(got) == 0 || got[0].IntentID != "vendas.contagem_por_periodo" {
		t.Fatalf("top candidate = %v, want count intent first", got)
	}
	if got[0].Hints[HintPeriod] != "ontem" {
		t.Errorf("period hint = %q, want ontem", got[0].Hints[HintPeriod])
	}
}

func TestEscalatingClassifierSkipsLLMWhenConfident(t *testing.T) {
	cat := testCatalog()
	picker := &mockPicker{pickFn: func(context.Context, string, []IntentOption) (string, error) {
		return "vendas.contagem_por_periodo", nil
	}}
	e := NewEscalatingClassifier(NewHeuristicClassifier(cat, nil), picker, cat, 0.55, 0.05, nil)

	got, err := e.Classify(context.Background(), "me mostra os ultimos 5 pedidos")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if picker.calls != 0 {
		t.Errorf("picker called %d times for a confident ranking, want 0", picker.calls)
	}
	if got[0].IntentID != "vendas.listar_ultimos_N_pedidos" {
		t.Errorf("top = %s, want heuristic winner", got[0].IntentID)
	}
}

func TestEscalatingClassifierAcceptsValidPick(t *testing.T) {
	cat := testCatalog()
	picker := &mockPicker{pickFn: func(context.Context, string, []IntentOption) (string, error) {
		return "vendas.contagem_por_periodo", nil
	}}
	// Floor above any heuristic score forces escalation.
	e := NewEscalatingClassifier(NewHeuristicClassifier(cat, nil), picker, cat, 0.99, 0, nil)

	got, err := e.Classify(context.Background(), "numeros de pedidos do periodo")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if picker.calls != 1 {
		t.Fatalf("picker calls = %d, want 1", picker.calls)
	}
	if got[0].IntentID != "vendas.contagem_por_periodo" {
		t.Errorf("top = %s, want LLM pick promoted", got[0].IntentID)
	}
	if got[0].Confidence < 0.99 {
		t.Errorf("promoted confidence = %f, want >= floor", got[0].Confidence)
	}
}

func TestEscalatingClassifierDiscardsHallucination(t *testing.T) {
	cat := testCatalog()
	picker := &mockPicker{pickFn: func(context.Context, string, []IntentOption) (string, error) {
		return "vendas.intencao_inventada", nil
	}}
	e := NewEscalatingClassifier(NewHeuristicClassifier(cat, nil), picker, cat, 0.99, 0, nil)

	got, err := e.Classify(context.Background(), "pedidos recentes")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("hallucinated pick wiped the heuristic ranking")
	}
	for _, c := range got {
		if c.IntentID == "vendas.intencao_inventada" {
			t.Error("hallucinated intent survived into the ranking")
		}
	}
}

func TestEscalatingClassifierDegradesOnLLMError(t *testing.T) {
	cat := testCatalog()
	picker := &mockPicker{pickFn: func(context.Context, string, []IntentOption) (string, error) {
		return "", errors.New("model unavailable")
	}}
	e := NewEscalatingClassifier(NewHeuristicClassifier(cat, nil), picker, cat, 0.99, 0, nil)

	got, err := e.Classify(context.Background(), "pedidos recentes")
	if err != nil {
		t.Fatalf("Classify must not fail when the LLM is down, got: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("LLM error wiped the heuristic ranking")
	}
}

func TestEscalatingClassifierNilPicker(t *testing.T) {
	cat := testCatalog()
	e := NewEscalatingClassifier(NewHeuristicClassifier(cat, nil), nil, cat, 0.99, 0, nil)

	got, err := e.Classify(context.Background(), "pedidos recentes")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("nil picker must fall back to heuristic ranking")
	}
}
