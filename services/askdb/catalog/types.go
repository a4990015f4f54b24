// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads and validates the intent catalog: the fixed,
// configuration-driven registry of supported natural-language question
// shapes and the parametrized SQL template bound to each one.
//
// The catalog is loaded once at startup and is read-only afterwards. All
// validation happens at load time; a catalog that loads successfully is
// safe to serve from for the lifetime of the process.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Parameter Schema
// =============================================================================

// ParamType identifies the value shape of a declared intent parameter.
type ParamType string

const (
	// ParamInt is a bounded integer parameter (e.g. N in "last N orders").
	ParamInt ParamType = "int"

	// ParamPeriod is a date range parameter. It resolves to two bind
	// placeholders, :<name>_ini and :<name>_fim.
	ParamPeriod ParamType = "periodo"

	// ParamDomain is an enumerated parameter whose accepted values come
	// from a named domain (e.g. order status). It binds as an IN-list of
	// domain codes.
	ParamDomain ParamType = "dominio"
)

// ParamSpec declares one parameter of an intent's SQL template.
//
// # Description
//
// The spec carries everything the extractor needs to turn free text (or a
// classifier hint) into a validated, typed value: the type, whether the
// parameter is required, the default used when the text is silent, and the
// bounds or domain that constrain accepted values.
//
// # Thread Safety
//
// Immutable after catalog load; safe for concurrent use.
type ParamSpec struct {
	// Name is the parameter name as it appears in template placeholders.
	Name string `yaml:"nome" validate:"required"`

	// Type is one of int, periodo, dominio.
	Type ParamType `yaml:"tipo" validate:"required,oneof=int periodo dominio"`

	// Required marks the parameter as mandatory. A required parameter with
	// no resolvable value is an extraction failure, never a silent default.
	Required bool `yaml:"obrigatorio"`

	// Default is the value substituted when the parameter is optional and
	// absent from the question. For int parameters it is the numeric
	// default; for periodo parameters it is a period label such as
	// "ultimos 30 dias"; for dominio parameters the empty string means
	// "all codes of the domain".
	Default string `yaml:"padrao"`

	// Min and Max bound int parameters (inclusive). Both zero means
	// unbounded; the global limit cap still applies to LIMIT parameters.
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`

	// Domain names the value domain for dominio parameters.
	Domain string `yaml:"dominio"`

	// Limit marks the int parameter that feeds the template's LIMIT
	// clause. The policy-level limit cap is enforced against it.
	Limit bool `yaml:"limite"`
}

// Placeholders returns the template placeholder names this parameter binds.
//
// Int and dominio parameters bind a single :<name> placeholder. Periodo
// parameters bind :<name>_ini and :<name>_fim.
func (p ParamSpec) Placeholders() []string {
	if p.Type == ParamPeriod {
		return []string{p.Name + "_ini", p.Name + "_fim"}
	}
	return []string{p.Name}
}

// =============================================================================
// Intent
// =============================================================================

// ReturnShape describes what a template produces.
type ReturnShape string

const (
	// ReturnsRows marks row-listing templates. They must carry a LIMIT.
	ReturnsRows ReturnShape = "linhas"

	// ReturnsAggregate marks single-row aggregate templates (COUNT, SUM).
	ReturnsAggregate ReturnShape = "agregado_unico"
)

// RowsExpected reports whether the shape produces a row listing.
func (s ReturnShape) RowsExpected() bool {
	return s == ReturnsRows
}

// PeriodRule constrains the date-range parameter of an intent.
type PeriodRule struct {
	// Column is the physical date column filtered by the period.
	Column string `yaml:"coluna"`

	// RetentionDays is the maximum lookback window. A resolved period
	// starting earlier than now-RetentionDays is rejected at extraction.
	// Zero means unlimited.
	RetentionDays int `yaml:"retencao_dias"`
}

// Rules carries per-intent result-shaping policy.
type Rules struct {
	// DefaultLimit is the LIMIT used when the question names no count.
	DefaultLimit int64 `yaml:"limit_padrao"`

	// MaxLimit caps the LIMIT a question may request from this intent.
	MaxLimit int64 `yaml:"limit_max"`
}

// Intent is one supported question shape: a stable identifier, a
// parametrized SQL template, the parameter schema, and validation rules.
//
// # Description
//
// The bound SQL executed for a request is always this template with values
// bound as driver arguments; parameter values are never interpolated into
// the SQL text. Intents are immutable after catalog load.
//
// # Thread Safety
//
// Immutable after load; safe for unlimited concurrent readers.
type Intent struct {
	// ID is the unique, stable key: "<namespace>.<name>".
	ID string

	// Description and Examples form the classification corpus for this
	// intent. Keywords add extra ranking signal.
	Description string   `yaml:"descricao"`
	Examples    []string `yaml:"exemplos"`
	Keywords    []string `yaml:"palavras_chave"`

	// Table is the principal table, recorded for plan diagnostics.
	Table string `yaml:"tabela_principal"`

	// SQL is the parametrized template. Placeholders use the :name form
	// and are rewritten to driver placeholders at bind time.
	SQL string `yaml:"sql"`

	// Returns declares the result shape (linhas or agregado_unico).
	Returns ReturnShape `yaml:"retorna"`

	// Params is the declared parameter schema, in declaration order.
	Params []ParamSpec `yaml:"parametros"`

	// Period constrains the intent's date-range parameter, if any.
	Period *PeriodRule `yaml:"periodo"`

	// Rules carries limit defaults and caps.
	Rules Rules `yaml:"regras"`
}

// Param returns the declared spec for name, if any.
func (in *Intent) Param(name string) (ParamSpec, bool) {
	for _, p := range in.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// placeholderPattern matches :name template placeholders. A preceding colon
// is excluded so PostgreSQL-style casts never match; templates here are
// MySQL, but the guard is cheap.
var placeholderPattern = regexp.MustCompile(`(^|[^:\w]):([a-zA-Z_][a-zA-Z0-9_]*)`)

// Placeholders returns the distinct placeholder names referenced by the
// template, in first-occurrence order.
func (in *Intent) Placeholders() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(in.SQL, -1) {
		name := m[2]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// =============================================================================
// Domains
// =============================================================================

// DomainItem is one code/label pair of a value domain.
type DomainItem struct {
	Code  int64  `yaml:"codigo"`
	Label string `yaml:"rotulo"`
}

// Domain is a named enumeration of accepted codes for dominio parameters.
// Labels may repeat: "cancelado" can map to several status codes, all of
// which bind into the IN-list.
type Domain struct {
	Name  string
	Items []DomainItem
}

// CodesFor returns every code whose label matches (case-insensitive).
func (d Domain) CodesFor(label string) []int64 {
	var codes []int64
	want := strings.ToLower(strings.TrimSpace(label))
	for _, it := range d.Items {
		if strings.ToLower(it.Label) == want {
			codes = append(codes, it.Code)
		}
	}
	return codes
}

// AllCodes returns every code of the domain, in declaration order.
func (d Domain) AllCodes() []int64 {
	codes := make([]int64, 0, len(d.Items))
	for _, it := range d.Items {
		codes = append(codes, it.Code)
	}
	return codes
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the loaded, validated intent registry.
//
// # Thread Safety
//
// Read-only after Load returns; safe for unlimited concurrent readers.
type Catalog struct {
	intents []*Intent
	byID    map[string]*Intent
	domains map[string]Domain
}

// New assembles a catalog from already-built intents and domains, bypassing
// file loading and validation. Load is the production path; New exists for
// tests and embedding callers that construct intents programmatically.
func New(intents []*Intent, domains map[string]Domain) *Catalog {
	c := &Catalog{
		byID:    make(map[string]*Intent, len(intents)),
		domains: make(map[string]Domain, len(domains)),
	}
	for _, in := range intents {
		c.byID[in.ID] = in
		c.intents = append(c.intents, in)
	}
	for name, d := range domains {
		if d.Name == "" {
			d.Name = name
		}
		c.domains[name] = d
	}
	return c
}

// Lookup returns the intent registered under id.
func (c *Catalog) Lookup(id string) (*Intent, bool) {
	in, ok := c.byID[id]
	return in, ok
}

// All returns every intent in configuration insertion order. The order is
// stable so resolver iteration is deterministic.
func (c *Catalog) All() []*Intent {
	return c.intents
}

// Domain returns the named value domain.
func (c *Catalog) Domain(name string) (Domain, bool) {
	d, ok := c.domains[name]
	return d, ok
}

// Len returns the number of registered intents.
func (c *Catalog) Len() int {
	return len(c.intents)
}

// =============================================================================
// ConfigurationError
// =============================================================================

// ConfigurationError is a fatal catalog defect detected at load time. The
// process must not start serving with a catalog that failed to load.
type ConfigurationError struct {
	// File is the configuration file at fault, when known.
	File string

	// Reason describes the defect.
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("intent catalog: %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("intent catalog: %s", e.Reason)
}

func newConfigError(file, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{File: file, Reason: fmt.Sprintf(format, args...)}
}
