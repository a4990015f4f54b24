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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/dbexec"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/gate"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/resolver"
)

func refTime() time.Time {
	return time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
}

// Hand-rolled fakes for the pipeline's three stages.

type mockResolver struct {
	resolveFn func(ctx context.Context, question string) (*resolver.ResolvedQuery, error)
}

func (m *mockResolver) Resolve(ctx context.Context, question string) (*resolver.ResolvedQuery, error) {
	return m.resolveFn(ctx, question)
}

type mockGate struct {
	assessFn func(ctx context.Context, sql string, args []any) (*gate.Assessment, error)
	calls    int
}

func (m *mockGate) Assess(ctx context.Context, sql string, args []any) (*gate.Assessment, error) {
	m.calls++
	return m.assessFn(ctx, sql, args)
}

type mockExecRouter struct {
	executeFn func(ctx context.Context, intentID, query string, args []any) (*dbexec.RowSet, dbexec.Target, error)
	calls     int
}

func (m *mockExecRouter) Execute(ctx context.Context, intentID, query string, args []any) (*dbexec.RowSet, dbexec.Target, error) {
	m.calls++
	return m.executeFn(ctx, intentID, query, args)
}

func listQuery() *resolver.ResolvedQuery {
	return &resolver.ResolvedQuery{
		Intent: &catalog.Intent{
			ID:      "vendas.listar_ultimos_N_pedidos",
			Returns: catalog.ReturnsRows,
		},
		SQL:        "SELECT id, cliente FROM pedidos WHERE status IN (?,?) ORDER BY criado_em DESC LIMIT ?",
		Args:       []any{int64(3), int64(5), int64(10)},
		Values:     map[string]any{"n": int64(10)},
		Confidence: 0.91,
	}
}

func allowGate() *mockGate {
	return &mockGate{assessFn: func(context.Context, string, []any) (*gate.Assessment, error) {
		return &gate.Assessment{Allowed: true}, nil
	}}
}

func rowsRouter(rs *dbexec.RowSet) *mockExecRouter {
	return &mockExecRouter{executeFn: func(context.Context, string, string, []any) (*dbexec.RowSet, dbexec.Target, error) {
		return rs, dbexec.TargetReplica, nil
	}}
}

func TestHandleAnswersListing(t *testing.T) {
	rs := &dbexec.RowSet{
		Columns: []string{"id", "cliente"},
		Rows:    [][]string{{"1", "acme"}, {"2", "globex"}},
	}
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return listQuery(), nil
		}},
		allowGate(),
		rowsRouter(rs),
		nil,
	)

	a, err := p.Handle(context.Background(), "ultimos 10 pedidos")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if a.CorrID == "" {
		t.Error("missing correlation id")
	}
	if a.IntentID != "vendas.listar_ultimos_N_pedidos" {
		t.Errorf("intent = %s", a.IntentID)
	}
	if len(a.Rows) != 2 || a.Target != "replica" {
		t.Errorf("rows=%d target=%s, want 2/replica", len(a.Rows), a.Target)
	}
	if !strings.Contains(a.Text, "2 registros") {
		t.Errorf("answer text = %q, want row count summary", a.Text)
	}
	if a.SQLDigest == "" || strings.Contains(a.SQLDigest, "SELECT") {
		t.Errorf("digest = %q, want short digest without raw SQL", a.SQLDigest)
	}
}

func TestHandleFormatsAggregateWithPeriod(t *testing.T) {
	period, _ := nlu.ResolvePeriod("ontem", refTime())
	rq := &resolver.ResolvedQuery{
		Intent: &catalog.Intent{
			ID:      "vendas.contagem_por_periodo",
			Returns: catalog.ReturnsAggregate,
		},
		SQL:        "SELECT COUNT(*) AS total FROM pedidos WHERE criado_em >= ? AND criado_em < ?",
		Args:       []any{period.Start, period.End},
		Values:     map[string]any{"periodo": period},
		Confidence: 0.8,
	}
	rs := &dbexec.RowSet{Columns: []string{"total"}, Rows: [][]string{{"42"}}}

	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) { return rq, nil }},
		allowGate(),
		rowsRouter(rs),
		nil,
	)

	a, err := p.Handle(context.Background(), "quantos pedidos ontem")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(a.Text, "42") || !strings.Contains(a.Text, "ontem") {
		t.Errorf("answer text = %q, want total and period label", a.Text)
	}
}

func TestHandlePropagatesResolutionFailure(t *testing.T) {
	wantErr := &resolver.NoMatchError{Question: "x"}
	g := allowGate()
	r := rowsRouter(nil)
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return nil, wantErr
		}},
		g, r, nil,
	)

	_, err := p.Handle(context.Background(), "x")
	var nm *resolver.NoMatchError
	if !errors.As(err, &nm) {
		t.Fatalf("error = %v, want *NoMatchError", err)
	}
	if g.calls != 0 || r.calls != 0 {
		t.Error("downstream stages ran after resolution failed")
	}
}

func TestHandleFirewallBlocksBeforeGate(t *testing.T) {
	rq := listQuery()
	rq.SQL = "SELECT id FROM pedidos UNION SELECT id FROM usuarios LIMIT ?"
	g := allowGate()
	r := rowsRouter(nil)
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) { return rq, nil }},
		g, r, nil,
	)

	_, err := p.Handle(context.Background(), "x")
	var fw *FirewallError
	if !errors.As(err, &fw) {
		t.Fatalf("error = %v, want *FirewallError", err)
	}
	if g.calls != 0 || r.calls != 0 {
		t.Error("gate or executor ran on firewalled SQL")
	}
}

func TestHandleGateBlockStopsExecution(t *testing.T) {
	g := &mockGate{assessFn: func(context.Context, string, []any) (*gate.Assessment, error) {
		a := &gate.Assessment{Allowed: false, Rule: gate.RuleFullScan, Table: "pedidos"}
		return a, &gate.BlockedError{Assessment: *a}
	}}
	r := rowsRouter(nil)
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return listQuery(), nil
		}},
		g, r, nil,
	)

	_, err := p.Handle(context.Background(), "x")
	var blocked *gate.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("error = %v, want *BlockedError", err)
	}
	if r.calls != 0 {
		t.Error("executor ran a blocked query")
	}
}

func TestHandleAssessmentFailureFailsClosed(t *testing.T) {
	g := &mockGate{assessFn: func(context.Context, string, []any) (*gate.Assessment, error) {
		return nil, &gate.AssessmentError{Cause: errors.New("explain timeout")}
	}}
	r := rowsRouter(nil)
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return listQuery(), nil
		}},
		g, r, nil,
	)

	_, err := p.Handle(context.Background(), "x")
	var assessErr *gate.AssessmentError
	if !errors.As(err, &assessErr) {
		t.Fatalf("error = %v, want *AssessmentError", err)
	}
	if r.calls != 0 {
		t.Error("executor ran while the plan was unassessable")
	}
}

func TestHandlePropagatesExecutionError(t *testing.T) {
	r := &mockExecRouter{executeFn: func(context.Context, string, string, []any) (*dbexec.RowSet, dbexec.Target, error) {
		return nil, "", &dbexec.ExecutionError{
			ReplicaErr: errors.New("replica down"),
			PrimaryErr: errors.New("primary down"),
		}
	}}
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return listQuery(), nil
		}},
		allowGate(), r, nil,
	)

	_, err := p.Handle(context.Background(), "x")
	var execErr *dbexec.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
}

func TestHandleTruncatedAnswerText(t *testing.T) {
	rs := &dbexec.RowSet{Columns: []string{"id"}, Rows: [][]string{{"1"}, {"2"}}, Truncated: true}
	p := NewPipeline(
		&mockResolver{resolveFn: func(context.Context, string) (*resolver.ResolvedQuery, error) {
			return listQuery(), nil
		}},
		allowGate(), rowsRouter(rs), nil,
	)

	a, err := p.Handle(context.Background(), "x")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !a.Truncated || !strings.Contains(a.Text, "truncado") {
		t.Errorf("truncation not surfaced: truncated=%v text=%q", a.Truncated, a.Text)
	}
}
