// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the runtime policy: every tunable threshold of the
// pipeline lives here or in the environment, never in code.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Duration
// =============================================================================

// Duration wraps time.Duration for YAML values like "15s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// =============================================================================
// Policy
// =============================================================================

// Policy is the full runtime policy of the service.
//
// # Thread Safety
//
// Immutable after Load; safe for concurrent readers.
type Policy struct {
	Resolver ResolverPolicy `yaml:"resolver"`
	Gate     GatePolicy     `yaml:"gate"`
	Executor ExecutorPolicy `yaml:"executor"`
	LLM      LLMPolicy      `yaml:"llm"`
}

// ResolverPolicy tunes classification and binding.
type ResolverPolicy struct {
	// ConfidenceFloor is the minimum score an intent needs to be eligible.
	ConfidenceFloor float64 `yaml:"confidence_floor" validate:"gt=0,lte=1"`

	// TieMargin is the gap under which the top two candidates are tied.
	TieMargin float64 `yaml:"tie_margin" validate:"gte=0,lt=1"`

	// LimitCap is the global ceiling for bound LIMIT values.
	LimitCap int64 `yaml:"limit_cap" validate:"gt=0"`
}

// GatePolicy tunes the plan safety gate.
type GatePolicy struct {
	// MaxEstimatedRows blocks plans estimated above this many rows.
	MaxEstimatedRows int64 `yaml:"max_estimated_rows" validate:"gt=0"`

	// ExplainTimeout bounds one EXPLAIN call.
	ExplainTimeout Duration `yaml:"explain_timeout"`
}

// ExecutorPolicy tunes query execution and caching.
type ExecutorPolicy struct {
	// QueryTimeout bounds one SELECT.
	QueryTimeout Duration `yaml:"query_timeout"`

	// MaxRowsPayload truncates materialized results.
	MaxRowsPayload int `yaml:"max_rows_payload" validate:"gt=0"`

	// HealthTTL is how long a replica health observation stays valid.
	HealthTTL Duration `yaml:"health_ttl"`

	// CacheTTL is the result cache entry lifetime. Zero disables the
	// result cache.
	CacheTTL Duration `yaml:"cache_ttl"`
}

// LLMPolicy configures the optional LLM classification escalation.
type LLMPolicy struct {
	// Enabled turns LLM escalation on. The API key comes from the
	// ASKDB_LLM_API_KEY environment variable, never from this file.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url" validate:"required_if=Enabled true,omitempty,url"`

	// Model is the chat model name.
	Model string `yaml:"model" validate:"required_if=Enabled true"`

	// Timeout bounds one classification call.
	Timeout Duration `yaml:"timeout"`
}

// Default returns the built-in policy. Every field can be overridden by
// the policy file; absent fields keep these values.
func Default() Policy {
	return Policy{
		Resolver: ResolverPolicy{
			ConfidenceFloor: 0.55,
			TieMargin:       0.05,
			LimitCap:        1000,
		},
		Gate: GatePolicy{
			MaxEstimatedRows: 50000,
			ExplainTimeout:   Duration(2 * time.Second),
		},
		Executor: ExecutorPolicy{
			QueryTimeout:   Duration(10 * time.Second),
			MaxRowsPayload: 5000,
			HealthTTL:      Duration(15 * time.Second),
			CacheTTL:       Duration(60 * time.Second),
		},
		LLM: LLMPolicy{
			Enabled: false,
			Timeout: Duration(3 * time.Second),
		},
	}
}

// Load reads the policy file at path over the defaults and validates the
// result. An empty path returns the validated defaults.
//
// # Outputs
//
//   - Policy: The effective policy.
//   - error: Non-nil on unreadable file, malformed YAML, or a value that
//     fails validation. The caller must treat it as fatal.
func Load(path string) (Policy, error) {
	p := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(p); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}
