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
	"errors"
	"strings"
	"testing"
)

func schemaSnapshot() Schema {
	return Schema{
		"PEDIDOS": {"ID": true, "STATUS": true, "CRIADO_EM": true, "VALOR_TOTAL": true},
		"CLIENTES": {"ID": true, "RAZAO_SOCIAL": true},
	}
}

func schemaIntent(id, table, periodColumn string) *Intent {
	in := &Intent{ID: id, Table: table, Returns: ReturnsRows}
	if periodColumn != "" {
		in.Period = &PeriodRule{Column: periodColumn, RetentionDays: 365}
	}
	return in
}

func TestSchemaCheckPasses(t *testing.T) {
	cat := New([]*Intent{
		schemaIntent("vendas.listar", "pedidos", "criado_em"),
		schemaIntent("vendas.clientes", "clientes", ""),
	}, nil)

	if err := schemaSnapshot().Check(cat); err != nil {
		t.Errorf("Check = %v, want nil for matching schema", err)
	}
}

func TestSchemaCheckMissingTable(t *testing.T) {
	cat := New([]*Intent{schemaIntent("vendas.listar", "pedidos_old", "")}, nil)

	err := schemaSnapshot().Check(cat)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Check = %v, want *ConfigurationError", err)
	}
	if !strings.Contains(cfgErr.Reason, "pedidos_old") {
		t.Errorf("Reason = %q, want the missing table named", cfgErr.Reason)
	}
}

func TestSchemaCheckMissingPeriodColumn(t *testing.T) {
	cat := New([]*Intent{schemaIntent("vendas.listar", "pedidos", "data_emissao")}, nil)

	err := schemaSnapshot().Check(cat)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Check = %v, want *ConfigurationError", err)
	}
	if !strings.Contains(cfgErr.Reason, "data_emissao") {
		t.Errorf("Reason = %q, want the missing column named", cfgErr.Reason)
	}
}

func TestSchemaCheckCollectsEveryMismatch(t *testing.T) {
	cat := New([]*Intent{
		schemaIntent("vendas.a", "inexistente", ""),
		schemaIntent("vendas.b", "pedidos", "coluna_fantasma"),
	}, nil)

	err := schemaSnapshot().Check(cat)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Check = %v, want *ConfigurationError", err)
	}
	if !strings.Contains(cfgErr.Reason, "inexistente") || !strings.Contains(cfgErr.Reason, "coluna_fantasma") {
		t.Errorf("Reason = %q, want both mismatches reported", cfgErr.Reason)
	}
}

func TestSchemaCheckIsCaseInsensitive(t *testing.T) {
	cat := New([]*Intent{schemaIntent("vendas.listar", "Pedidos", "Criado_Em")}, nil)

	if err := schemaSnapshot().Check(cat); err != nil {
		t.Errorf("Check = %v, want nil regardless of name casing", err)
	}
}
