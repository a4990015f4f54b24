// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Resolver.ConfidenceFloor != 0.55 {
		t.Errorf("ConfidenceFloor = %f, want 0.55", p.Resolver.ConfidenceFloor)
	}
	if p.Resolver.LimitCap != 1000 {
		t.Errorf("LimitCap = %d, want 1000", p.Resolver.LimitCap)
	}
	if p.Executor.HealthTTL.Std() != 15*time.Second {
		t.Errorf("HealthTTL = %v, want 15s", p.Executor.HealthTTL.Std())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writePolicy(t, `
resolver:
  confidence_floor: 0.7
  limit_cap: 200
executor:
  query_timeout: 3s
  cache_ttl: 0s
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Resolver.ConfidenceFloor != 0.7 {
		t.Errorf("ConfidenceFloor = %f, want override 0.7", p.Resolver.ConfidenceFloor)
	}
	if p.Resolver.LimitCap != 200 {
		t.Errorf("LimitCap = %d, want override 200", p.Resolver.LimitCap)
	}
	if p.Executor.QueryTimeout.Std() != 3*time.Second {
		t.Errorf("QueryTimeout = %v, want 3s", p.Executor.QueryTimeout.Std())
	}
	if p.Executor.CacheTTL.Std() != 0 {
		t.Errorf("CacheTTL = %v, want disabled", p.Executor.CacheTTL.Std())
	}
	// Untouched sections keep defaults.
	if p.Gate.MaxEstimatedRows != 50000 {
		t.Errorf("MaxEstimatedRows = %d, want default 50000", p.Gate.MaxEstimatedRows)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writePolicy(t, `
resolver:
  confidence_floor: 1.5
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for floor above 1")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	path := writePolicy(t, `
executor:
  query_timeout: muito tempo
`)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed duration")
	}
}

func TestLoadRejectsLLMEnabledWithoutEndpoint(t *testing.T) {
	path := writePolicy(t, `
llm:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for enabled LLM without base_url/model")
	}
}
