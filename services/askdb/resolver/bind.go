// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
)

// =============================================================================
// SQL Binding
// =============================================================================

// ResolvedQuery is the terminal product of resolution: the selected intent,
// the driver-ready SQL, and the positional arguments. The SQL text is
// always the intent's template with placeholders rewritten; request values
// travel exclusively as driver arguments.
type ResolvedQuery struct {
	// Intent is the selected catalog intent.
	Intent *catalog.Intent

	// SQL is the template with :name placeholders rewritten to ? markers.
	SQL string

	// Args are the positional driver arguments, in placeholder order.
	Args []any

	// Values holds the validated parameter values by name (int64,
	// nlu.Period, []int64), kept for answer formatting and logging.
	Values map[string]any

	// Confidence is the classification score of the selected intent.
	Confidence float64

	// LimitClamped is true when the requested LIMIT exceeded the global
	// cap and was clamped down to it.
	LimitClamped bool
}

// Digest returns a short stable digest of the bound SQL text, for logs and
// cache keys. Raw SQL never appears in log output.
func (rq *ResolvedQuery) Digest() string {
	sum := sha1.Sum([]byte(rq.SQL))
	return hex.EncodeToString(sum[:])[:12]
}

// bindPattern matches :name placeholders, every occurrence. Unlike the
// catalog's declaration check this must not deduplicate: a parameter
// referenced twice binds two arguments.
var bindPattern = regexp.MustCompile(`(^|[^:\w]):([a-zA-Z_][a-zA-Z0-9_]*)`)

// Bind rewrites the intent template into driver SQL with positional args.
//
// # Description
//
// Walks the template left to right. Each :name occurrence is replaced by
// driver markers and contributes arguments in order: int parameters bind
// one value, periodo parameters bind a time per _ini/_fim placeholder, and
// dominio parameters expand to one marker per accepted code (so IN-lists
// stay fully parametrized). When limitCap > 0 the LIMIT parameter's value
// is clamped to the cap before binding.
//
// # Inputs
//
//   - in: The selected intent.
//   - values: Validated values from Extract.
//   - limitCap: Global LIMIT ceiling. Zero disables clamping.
//
// # Outputs
//
//   - *ResolvedQuery: The bound query. Never nil on success.
//   - error: Non-nil only on a template/values mismatch, which indicates a
//     catalog defect that load-time validation should have caught.
func Bind(in *catalog.Intent, values map[string]any, confidence float64, limitCap int64) (*ResolvedQuery, error) {
	rq := &ResolvedQuery{
		Intent:     in,
		Values:     values,
		Confidence: confidence,
	}

	if limitCap > 0 {
		for _, p := range in.Params {
			if !p.Limit {
				continue
			}
			if v, ok := values[p.Name].(int64); ok && v > limitCap {
				values[p.Name] = limitCap
				rq.LimitClamped = true
			}
		}
	}

	var sb strings.Builder
	var bindErr error
	last := 0
	for _, m := range bindPattern.FindAllStringSubmatchIndex(in.SQL, -1) {
		if bindErr != nil {
			break
		}
		// m[2]:m[3] is the prefix char, m[4]:m[5] the placeholder name.
		sb.WriteString(in.SQL[last:m[3]])
		name := in.SQL[m[4]:m[5]]
		last = m[1]

		markers, args, err := bindOne(in, name, values)
		if err != nil {
			bindErr = err
			break
		}
		sb.WriteString(markers)
		rq.Args = append(rq.Args, args...)
	}
	if bindErr != nil {
		return nil, bindErr
	}
	sb.WriteString(in.SQL[last:])

	rq.SQL = sb.String()
	return rq, nil
}

// bindOne produces the driver markers and arguments for one placeholder.
func bindOne(in *catalog.Intent, placeholder string, values map[string]any) (string, []any, error) {
	// Periodo placeholders carry the _ini/_fim suffix; map them back to
	// the declaring parameter.
	if strings.HasSuffix(placeholder, "_ini") || strings.HasSuffix(placeholder, "_fim") {
		base := placeholder[:len(placeholder)-4]
		if p, ok := in.Param(base); ok && p.Type == catalog.ParamPeriod {
			period, ok := values[base].(nlu.Period)
			if !ok {
				return "", nil, fmt.Errorf("bind %s: no period value for %q", in.ID, base)
			}
			if strings.HasSuffix(placeholder, "_ini") {
				return "?", []any{period.Start}, nil
			}
			return "?", []any{period.End}, nil
		}
	}

	p, ok := in.Param(placeholder)
	if !ok {
		return "", nil, fmt.Errorf("bind %s: template placeholder :%s has no parameter", in.ID, placeholder)
	}

	switch p.Type {
	case catalog.ParamInt:
		v, ok := values[p.Name].(int64)
		if !ok {
			return "", nil, fmt.Errorf("bind %s: no int value for %q", in.ID, p.Name)
		}
		return "?", []any{v}, nil
	case catalog.ParamDomain:
		codes, ok := values[p.Name].([]int64)
		if !ok || len(codes) == 0 {
			return "", nil, fmt.Errorf("bind %s: no codes for %q", in.ID, p.Name)
		}
		markers := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
		args := make([]any, len(codes))
		for i, c := range codes {
			args[i] = c
		}
		return markers, args, nil
	default:
		return "", nil, fmt.Errorf("bind %s: parameter %q has unbindable type %q", in.ID, p.Name, p.Type)
	}
}
