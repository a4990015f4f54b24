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
	"strconv"
	"time"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/catalog"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/nlu"
)

// =============================================================================
// Parameter Extractor
// =============================================================================

// Extractor resolves an intent's declared parameters from classifier hints.
//
// # Description
//
// For each declared parameter, resolution tries in order: the classifier's
// slot hint for the parameter name, then the declared default, then (for
// the LIMIT parameter) the intent's limit_padrao rule. Every resolved value
// is validated against the declared type and bounds; the first failure
// aborts extraction with an ExtractionError naming the parameter. A
// required parameter with no resolvable value is always a failure, never a
// silent default.
//
// # Thread Safety
//
// Safe for concurrent use; state is immutable after construction.
type Extractor struct {
	catalog *catalog.Catalog

	// now supplies the reference instant for period resolution. Tests
	// override it; production uses time.Now.
	now func() time.Time
}

// NewExtractor creates an extractor over the loaded catalog.
func NewExtractor(cat *catalog.Catalog) *Extractor {
	return &Extractor{catalog: cat, now: time.Now}
}

// Extract resolves and validates every parameter of the intent.
//
// # Inputs
//
//   - in: The candidate intent.
//   - hints: Raw slot hints from classification, keyed by parameter name.
//     May be nil.
//
// # Outputs
//
//   - map[string]any: Parameter name to validated value. Int parameters
//     yield int64, periodo parameters yield nlu.Period, dominio parameters
//     yield []int64 of accepted codes.
//   - *ExtractionError: Non-nil on the first parameter that fails.
func (x *Extractor) Extract(in *catalog.Intent, hints map[string]string) (map[string]any, *ExtractionError) {
	values := make(map[string]any, len(in.Params))
	for _, p := range in.Params {
		switch p.Type {
		case catalog.ParamInt:
			v, err := x.extractInt(in, p, hints)
			if err != nil {
				return nil, err
			}
			values[p.Name] = v
		case catalog.ParamPeriod:
			v, err := x.extractPeriod(in, p, hints)
			if err != nil {
				return nil, err
			}
			values[p.Name] = v
		case catalog.ParamDomain:
			v, err := x.extractDomain(in, p, hints)
			if err != nil {
				return nil, err
			}
			values[p.Name] = v
		default:
			return nil, newExtractionError(in.ID, p.Name, "unsupported parameter type %q", p.Type)
		}
	}
	return values, nil
}

// extractInt resolves a bounded integer parameter.
func (x *Extractor) extractInt(in *catalog.Intent, p catalog.ParamSpec, hints map[string]string) (int64, *ExtractionError) {
	raw, ok := hints[p.Name]
	if !ok || raw == "" {
		if p.Required {
			return 0, newExtractionError(in.ID, p.Name, "required value missing from question")
		}
		raw = p.Default
		if raw == "" && p.Limit && in.Rules.DefaultLimit > 0 {
			raw = strconv.FormatInt(in.Rules.DefaultLimit, 10)
		}
		if raw == "" {
			return 0, newExtractionError(in.ID, p.Name, "no value in question and no default configured")
		}
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newExtractionError(in.ID, p.Name, "value %q is not an integer", raw)
	}
	if p.Min != 0 || p.Max != 0 {
		if v < p.Min {
			return 0, newExtractionError(in.ID, p.Name, "value %d is below the minimum of %d", v, p.Min)
		}
		if p.Max > 0 && v > p.Max {
			return 0, newExtractionError(in.ID, p.Name, "value %d exceeds the maximum of %d", v, p.Max)
		}
	}
	if p.Limit && in.Rules.MaxLimit > 0 && v > in.Rules.MaxLimit {
		return 0, newExtractionError(in.ID, p.Name, "value %d exceeds the maximum of %d", v, in.Rules.MaxLimit)
	}
	return v, nil
}

// extractPeriod resolves a date-range parameter and enforces the intent's
// retention window.
func (x *Extractor) extractPeriod(in *catalog.Intent, p catalog.ParamSpec, hints map[string]string) (nlu.Period, *ExtractionError) {
	phrase, ok := hints[p.Name]
	if !ok || phrase == "" {
		if p.Required {
			return nlu.Period{}, newExtractionError(in.ID, p.Name, "question names no period")
		}
		phrase = p.Default
		if phrase == "" {
			return nlu.Period{}, newExtractionError(in.ID, p.Name, "no period in question and no default configured")
		}
	}

	now := x.now()
	period, err := nlu.ResolvePeriod(phrase, now)
	if err != nil {
		return nlu.Period{}, newExtractionError(in.ID, p.Name, "could not understand period %q", phrase)
	}

	if in.Period != nil && in.Period.RetentionDays > 0 {
		oldest := now.AddDate(0, 0, -in.Period.RetentionDays)
		if period.Start.Before(oldest) {
			return nlu.Period{}, newExtractionError(in.ID, p.Name,
				"period starts before the %d-day retention window", in.Period.RetentionDays)
		}
	}
	if !period.End.After(period.Start) {
		return nlu.Period{}, newExtractionError(in.ID, p.Name, "period %q is empty", phrase)
	}
	return period, nil
}

// extractDomain resolves an enumerated parameter to its code list. An
// absent optional value binds every code of the domain, so an unfiltered
// question still runs the exact template.
func (x *Extractor) extractDomain(in *catalog.Intent, p catalog.ParamSpec, hints map[string]string) ([]int64, *ExtractionError) {
	dom, ok := x.catalog.Domain(p.Domain)
	if !ok {
		return nil, newExtractionError(in.ID, p.Name, "domain %q is not configured", p.Domain)
	}

	label, present := hints[p.Name]
	if !present || label == "" {
		if p.Required {
			return nil, newExtractionError(in.ID, p.Name, "required value missing from question")
		}
		if p.Default != "" {
			label = p.Default
		} else {
			codes := dom.AllCodes()
			if len(codes) == 0 {
				return nil, newExtractionError(in.ID, p.Name, "domain %q has no codes", p.Domain)
			}
			return codes, nil
		}
	}

	codes := dom.CodesFor(label)
	if len(codes) == 0 {
		return nil, newExtractionError(in.ID, p.Name, "value %q is not part of domain %q", label, p.Domain)
	}
	return codes, nil
}
