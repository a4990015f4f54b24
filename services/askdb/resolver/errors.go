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

import "fmt"

// =============================================================================
// Resolution Error Taxonomy
// =============================================================================
//
// Every failure mode of resolution is a distinct type so the route layer
// can map each to its own HTTP status without string matching.

// NoMatchError means no catalog intent reached the confidence floor for
// the question.
type NoMatchError struct {
	// Question is the original question text.
	Question string

	// BestIntent and BestConfidence describe the closest miss, when any
	// intent scored at all. Useful for "did you mean" diagnostics.
	BestIntent     string
	BestConfidence float64
}

func (e *NoMatchError) Error() string {
	if e.BestIntent == "" {
		return "no intent matched the question"
	}
	return fmt.Sprintf("no intent matched the question (closest: %s at %.2f)", e.BestIntent, e.BestConfidence)
}

// AmbiguousMatchError means two intents scored within the tie margin and
// both extracted successfully, so neither can be preferred safely.
type AmbiguousMatchError struct {
	// IntentA is the higher-scored of the tied pair.
	IntentA     string
	ConfidenceA float64

	// IntentB is the runner-up.
	IntentB     string
	ConfidenceB float64
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("question is ambiguous between %s (%.2f) and %s (%.2f)",
		e.IntentA, e.ConfidenceA, e.IntentB, e.ConfidenceB)
}

// ExtractionError means a parameter of the selected intent could not be
// resolved to a valid value. It names the parameter and the reason so the
// user can rephrase.
type ExtractionError struct {
	// IntentID is the intent whose extraction failed.
	IntentID string

	// Param is the parameter at fault.
	Param string

	// Reason describes the failure in user-presentable terms.
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("intent %s: parameter %q: %s", e.IntentID, e.Param, e.Reason)
}

func newExtractionError(intentID, param, format string, args ...any) *ExtractionError {
	return &ExtractionError{IntentID: intentID, Param: param, Reason: fmt.Sprintf(format, args...)}
}
