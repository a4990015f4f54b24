// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dbexec

import (
	"context"
	"errors"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

func newTestCache(t *testing.T, ttl time.Duration) *ResultCache {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewResultCache(db, ttl, nil)
}

func TestResultCacheRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute)
	rs := &RowSet{Columns: []string{"id", "cliente"}, Rows: [][]string{{"1", "acme"}, {"2", "globex"}}}

	c.Set("vendas.listar", "SELECT ... LIMIT ?", []any{int64(5)}, rs)

	got, ok := c.Get("vendas.listar", "SELECT ... LIMIT ?", []any{int64(5)})
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got.Rows) != 2 || got.Rows[1][1] != "globex" {
		t.Errorf("cached rows = %v, want original row set", got.Rows)
	}
}

func TestResultCacheMissOnDifferentArgs(t *testing.T) {
	c := newTestCache(t, time.Minute)
	rs := &RowSet{Columns: []string{"total"}, Rows: [][]string{{"42"}}}
	c.Set("vendas.contagem", "SELECT ...", []any{int64(5)}, rs)

	if _, ok := c.Get("vendas.contagem", "SELECT ...", []any{int64(6)}); ok {
		t.Error("different args must not share a cache entry")
	}
}

func TestResultCacheNeverStoresTruncatedResults(t *testing.T) {
	c := newTestCache(t, time.Minute)
	rs := &RowSet{Columns: []string{"id"}, Rows: [][]string{{"1"}}, Truncated: true}
	c.Set("vendas.listar", "SELECT ...", nil, rs)

	if _, ok := c.Get("vendas.listar", "SELECT ...", nil); ok {
		t.Error("truncated result was cached")
	}
}

func TestResultCacheNilReceiverIsNoOp(t *testing.T) {
	var c *ResultCache
	c.Set("x", "SELECT 1", nil, sampleRows)
	if _, ok := c.Get("x", "SELECT 1", nil); ok {
		t.Error("nil cache reported a hit")
	}
	if err := c.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestRouterServesFromCacheWithoutTouchingTargets(t *testing.T) {
	c := newTestCache(t, time.Minute)
	replica := okRunner(sampleRows)
	primary := okRunner(sampleRows)
	r := NewRouter(replica, primary, NewHealthCache(time.Minute), c, nil)

	// First execution populates the cache via the replica.
	if _, _, err := r.Execute(context.Background(), "x", "SELECT ...", []any{int64(1)}); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	// Second execution must be served from the cache.
	rs, target, err := r.Execute(context.Background(), "x", "SELECT ...", []any{int64(1)})
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if target != "" {
		t.Errorf("target = %q, want empty for cache hit", target)
	}
	if replica.calls != 1 {
		t.Errorf("replica calls = %d, want 1 (second served from cache)", replica.calls)
	}
	if v, _ := rs.Scalar(); v != "42" {
		t.Errorf("cached scalar = %q, want 42", v)
	}
}

func TestRouterCacheHitEvenWhenTargetsDown(t *testing.T) {
	c := newTestCache(t, time.Minute)
	rs := &RowSet{Columns: []string{"total"}, Rows: [][]string{{"7"}}}
	c.Set("x", "SELECT ...", nil, rs)

	r := NewRouter(failRunner(errors.New("down")), failRunner(errors.New("down")), NewHealthCache(time.Minute), c, nil)
	got, _, err := r.Execute(context.Background(), "x", "SELECT ...", nil)
	if err != nil {
		t.Fatalf("Execute failed despite warm cache: %v", err)
	}
	if v, _ := got.Scalar(); v != "7" {
		t.Errorf("scalar = %q, want 7", v)
	}
}
