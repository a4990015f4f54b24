// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Catalog Loader
// =============================================================================
//
// Intent definitions live in YAML files under a single directory, one file
// per namespace. Files are read in sorted name order and intents within a
// file in declaration order, so All() iteration is deterministic across
// restarts regardless of filesystem enumeration order.
//
// Every defect found here is a ConfigurationError: the process fails fast
// instead of serving a catalog that could bind the wrong SQL.

// intentFile is the on-disk shape of one catalog file.
type intentFile struct {
	Namespace string                  `yaml:"namespace"`
	Domains   map[string][]DomainItem `yaml:"dominios"`
	Intents   []intentEntry           `yaml:"intents"`
}

// intentEntry wraps an Intent with its registration name and enable flag.
type intentEntry struct {
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"habilitado"`
	Intent  `yaml:",inline"`
}

// selectPattern accepts only statements that begin with SELECT. The catalog
// is read-only by contract; a write template is a configuration defect, not
// a runtime condition.
var selectPattern = regexp.MustCompile(`(?is)^\s*select\b`)

// forbiddenKeywords are statement keywords that must never appear in a
// registered template, even inside an otherwise SELECT-shaped statement.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "REPLACE", "LOAD", "CALL",
}

// Load reads, validates, and assembles the intent catalog from dir.
//
// # Description
//
// Reads every *.yaml / *.yml file under dir (non-recursive), merges their
// domains and intents, and validates the result:
//
//   - intent ids (namespace.name) must be unique across all files
//   - every template placeholder must be covered by a declared parameter
//   - every declared parameter must be referenced by the template
//   - templates must be single SELECT statements with no write keywords
//   - row-returning templates must carry a LIMIT
//   - dominio parameters must reference a loaded domain
//
// Disabled intents (habilitado: false) are skipped with a log line, the
// same way the original configuration treated them.
//
// # Inputs
//
//   - dir: Directory containing catalog YAML files. Must exist.
//   - logger: Logger for skip diagnostics. May be nil.
//
// # Outputs
//
//   - *Catalog: The validated catalog. Never nil on success.
//   - error: *ConfigurationError on any defect. The caller must treat it
//     as fatal and refuse to start.
func Load(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newConfigError(dir, "read catalog directory: %v", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, newConfigError(dir, "no catalog files found")
	}

	cat := &Catalog{
		byID:    make(map[string]*Intent),
		domains: make(map[string]Domain),
	}
	validate := validator.New()

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, newConfigError(path, "read: %v", err)
		}

		var file intentFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, newConfigError(path, "parse: %v", err)
		}

		ns := file.Namespace
		if ns == "" {
			ns = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		for name, items := range file.Domains {
			// Last definition wins on duplicate domain names, matching the
			// original loader's merge behavior.
			cat.domains[name] = Domain{Name: name, Items: items}
		}

		for i := range file.Intents {
			entry := &file.Intents[i]
			if entry.Name == "" {
				return nil, newConfigError(path, "intent #%d has no name", i+1)
			}

			id := ns + "." + entry.Name
			if entry.Enabled != nil && !*entry.Enabled {
				logger.Info("catalog: skipping disabled intent", slog.String("intent", id))
				continue
			}

			in := entry.Intent
			in.ID = id
			if err := validateIntent(&in, cat, validate, path); err != nil {
				return nil, err
			}
			if _, dup := cat.byID[id]; dup {
				return nil, newConfigError(path, "duplicate intent id %q", id)
			}

			registered := in
			cat.byID[id] = &registered
			cat.intents = append(cat.intents, &registered)
		}
	}

	if len(cat.intents) == 0 {
		return nil, newConfigError(dir, "catalog loaded zero enabled intents")
	}

	logger.Info("catalog loaded",
		slog.Int("intents", len(cat.intents)),
		slog.Int("domains", len(cat.domains)),
	)
	return cat, nil
}

// validateIntent checks one intent definition against the catalog rules.
func validateIntent(in *Intent, cat *Catalog, validate *validator.Validate, path string) error {
	if in.Table == "" {
		return newConfigError(path, "intent %q: missing tabela_principal", in.ID)
	}
	if strings.TrimSpace(in.SQL) == "" {
		return newConfigError(path, "intent %q: missing sql template", in.ID)
	}
	if in.Returns != ReturnsRows && in.Returns != ReturnsAggregate {
		return newConfigError(path, "intent %q: retorna must be %q or %q", in.ID, ReturnsRows, ReturnsAggregate)
	}

	if !selectPattern.MatchString(in.SQL) {
		return newConfigError(path, "intent %q: template is not a SELECT statement", in.ID)
	}
	upper := strings.ToUpper(in.SQL)
	for _, kw := range forbiddenKeywords {
		if keywordPresent(upper, kw) {
			return newConfigError(path, "intent %q: template contains forbidden keyword %s", in.ID, kw)
		}
	}
	if in.Returns == ReturnsRows && !keywordPresent(upper, "LIMIT") {
		return newConfigError(path, "intent %q: row-returning template has no LIMIT", in.ID)
	}

	// Parameter schema checks.
	declared := make(map[string]ParamSpec)
	for _, p := range in.Params {
		if err := validate.Struct(p); err != nil {
			return newConfigError(path, "intent %q: parameter %q: %v", in.ID, p.Name, err)
		}
		if _, dup := declared[p.Name]; dup {
			return newConfigError(path, "intent %q: duplicate parameter %q", in.ID, p.Name)
		}
		if p.Type == ParamDomain {
			if p.Domain == "" {
				return newConfigError(path, "intent %q: parameter %q declares no domain", in.ID, p.Name)
			}
			if _, ok := cat.domains[p.Domain]; !ok {
				return newConfigError(path, "intent %q: parameter %q references unknown domain %q", in.ID, p.Name, p.Domain)
			}
		}
		declared[p.Name] = p
	}

	// Placeholder coverage: both directions are defects. A placeholder with
	// no declared parameter would bind nothing; a declared parameter with no
	// placeholder would silently never constrain the query.
	covered := make(map[string]string) // placeholder -> param name
	for _, p := range in.Params {
		for _, ph := range p.Placeholders() {
			covered[ph] = p.Name
		}
	}
	used := make(map[string]bool)
	for _, ph := range in.Placeholders() {
		param, ok := covered[ph]
		if !ok {
			return newConfigError(path, "intent %q: template placeholder :%s has no declared parameter", in.ID, ph)
		}
		used[param] = true
	}
	for _, p := range in.Params {
		if !used[p.Name] {
			return newConfigError(path, "intent %q: declared parameter %q is never referenced by the template", in.ID, p.Name)
		}
	}

	// Limit parameter sanity: exactly one int parameter may be the LIMIT
	// feeder, and row-returning intents need one.
	var limitParams int
	for _, p := range in.Params {
		if p.Limit {
			if p.Type != ParamInt {
				return newConfigError(path, "intent %q: limit parameter %q must be an int", in.ID, p.Name)
			}
			limitParams++
		}
	}
	if limitParams > 1 {
		return newConfigError(path, "intent %q: more than one limit parameter", in.ID)
	}
	if in.Returns == ReturnsRows && limitParams == 0 {
		return newConfigError(path, "intent %q: row-returning intent declares no limit parameter", in.ID)
	}

	return nil
}

// keywordPresent reports whether kw occurs as a whole word in upper-cased
// SQL text.
func keywordPresent(upperSQL, kw string) bool {
	idx := 0
	for {
		i := strings.Index(upperSQL[idx:], kw)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(upperSQL[i-1])
		after := i+len(kw) >= len(upperSQL) || !isWordByte(upperSQL[i+len(kw)])
		if before && after {
			return true
		}
		idx = i + len(kw)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// Fingerprint returns a stable human-readable summary line for one intent,
// used by the validate subcommand.
func Fingerprint(in *Intent) string {
	return fmt.Sprintf("%-40s %-12s table=%s params=%d", in.ID, in.Returns, in.Table, len(in.Params))
}
