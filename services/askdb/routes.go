// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package askdb

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/dbexec"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/gate"
	"github.com/ferdnandolima/llm-sql-skeleton/services/askdb/resolver"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// HTTP Surface
// =============================================================================

// askRequest is the question payload.
type askRequest struct {
	Question string `json:"pergunta" binding:"required"`
}

// askResponse is the successful answer payload.
type askResponse struct {
	CorrID     string     `json:"corr_id"`
	Intent     string     `json:"intencao"`
	Confidence float64    `json:"confianca"`
	Text       string     `json:"resposta"`
	Columns    []string   `json:"colunas,omitempty"`
	Rows       [][]string `json:"linhas,omitempty"`
	Truncated  bool       `json:"truncado,omitempty"`
	Target     string     `json:"origem,omitempty"`
	ElapsedMS  int64      `json:"elapsed_ms"`
}

// errorResponse is the failure payload. Tipo is a stable machine-readable
// code; Mensagem is user-presentable.
type errorResponse struct {
	Type    string `json:"tipo"`
	Message string `json:"mensagem"`
	Detail  any    `json:"detalhe,omitempty"`
}

// ReadinessCheck reports whether downstream dependencies are reachable.
type ReadinessCheck func(ctx context.Context) error

// RegisterRoutes mounts the API on engine.
//
// # Description
//
// Routes:
//
//   - POST /v1/ask — the question pipeline.
//   - GET /healthz — process liveness, always 200.
//   - GET /readyz — dependency readiness via the supplied check.
//   - GET /metrics — Prometheus exposition.
//
// Failure statuses: 422 for questions the service understood but cannot
// serve (no match, extraction failure), 409 for ambiguous questions, 403
// for queries refused by the firewall or the plan gate, 503 when the plan
// could not be assessed or both database targets failed.
func RegisterRoutes(engine *gin.Engine, pipeline *Pipeline, ready ReadinessCheck, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		if ready != nil {
			if err := ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/v1/ask", func(c *gin.Context) {
		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{
				Type:    "requisicao_invalida",
				Message: "corpo deve ser JSON com o campo 'pergunta'",
			})
			return
		}

		answer, err := pipeline.Handle(c.Request.Context(), req.Question)
		if err != nil {
			status, body := mapError(err)
			c.JSON(status, body)
			return
		}

		c.JSON(http.StatusOK, askResponse{
			CorrID:     answer.CorrID,
			Intent:     answer.IntentID,
			Confidence: answer.Confidence,
			Text:       answer.Text,
			Columns:    answer.Columns,
			Rows:       answer.Rows,
			Truncated:  answer.Truncated,
			Target:     answer.Target,
			ElapsedMS:  answer.Elapsed.Milliseconds(),
		})
	})
}

// mapError translates a pipeline failure to an HTTP status and body.
func mapError(err error) (int, errorResponse) {
	var (
		noMatch    *resolver.NoMatchError
		ambiguous  *resolver.AmbiguousMatchError
		extraction *resolver.ExtractionError
		firewall   *FirewallError
		blocked    *gate.BlockedError
		assessment *gate.AssessmentError
		execution  *dbexec.ExecutionError
	)

	switch {
	case errors.As(err, &noMatch):
		return http.StatusUnprocessableEntity, errorResponse{
			Type:    "sem_correspondencia",
			Message: "nenhuma consulta conhecida corresponde a pergunta",
		}
	case errors.As(err, &ambiguous):
		return http.StatusConflict, errorResponse{
			Type:    "ambigua",
			Message: "a pergunta corresponde a mais de uma consulta; reformule com mais detalhes",
			Detail: gin.H{
				"opcoes": []string{ambiguous.IntentA, ambiguous.IntentB},
			},
		}
	case errors.As(err, &extraction):
		return http.StatusUnprocessableEntity, errorResponse{
			Type:    "parametro_invalido",
			Message: extraction.Reason,
			Detail:  gin.H{"parametro": extraction.Param},
		}
	case errors.As(err, &firewall):
		return http.StatusForbidden, errorResponse{
			Type:    "bloqueada_firewall",
			Message: "a consulta foi bloqueada por regra de seguranca",
		}
	case errors.As(err, &blocked):
		return http.StatusForbidden, errorResponse{
			Type:    "bloqueada_plano",
			Message: "a consulta foi bloqueada por custo estimado de execucao",
			Detail: gin.H{
				"regra":            blocked.Assessment.Rule,
				"linhas_estimadas": blocked.Assessment.EstimatedRows,
			},
		}
	case errors.As(err, &assessment):
		return http.StatusServiceUnavailable, errorResponse{
			Type:    "avaliacao_indisponivel",
			Message: "nao foi possivel avaliar o plano de execucao; a consulta nao foi executada",
		}
	case errors.As(err, &execution):
		return http.StatusServiceUnavailable, errorResponse{
			Type:    "execucao_indisponivel",
			Message: "nenhum banco de dados disponivel para executar a consulta",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Type:    "erro_interno",
			Message: "erro interno ao processar a pergunta",
		}
	}
}
