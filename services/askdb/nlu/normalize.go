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
	"strings"
	"unicode"
)

// =============================================================================
// Text Normalization (pt-BR)
// =============================================================================

// accentFold maps accented Latin runes to their base form. Questions arrive
// with inconsistent accenting ("ultimos" vs "últimos"); classification and
// slot regexes only ever see the folded form.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}

// synonyms collapses common domain shorthand onto the canonical token used
// by the catalog corpus.
var synonyms = map[string]string{
	"pvs":    "pedidos",
	"pv":     "pedido",
	"vendas": "pedidos",
	"venda":  "pedido",
	"qtd":    "quantos",
	"qtde":   "quantos",
}

// Normalize lowercases s, folds accents, and collapses punctuation and
// whitespace runs to single spaces. Slashes and colons survive so explicit
// dates (dd/mm/yyyy) stay intact.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' || r == ':':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits normalized text into tokens with synonyms applied.
func Tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if canonical, ok := synonyms[f]; ok {
			f = canonical
		}
		out = append(out, f)
	}
	return out
}

// tokenSet builds a membership set from tokens.
func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
