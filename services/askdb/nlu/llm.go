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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ChatClassifier - LLM Tie-Breaking over an OpenAI-Compatible Endpoint
// =============================================================================

// IntentOption is one intent offered to the model for selection.
type IntentOption struct {
	ID          string
	Description string
	Examples    []string
}

// ChatClassifierConfig configures the LLM classifier.
type ChatClassifierConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or a local
	// OpenAI-compatible server. Must not be empty.
	BaseURL string

	// APIKey is sent as a Bearer token. Empty skips the Authorization
	// header (local servers).
	APIKey string

	// Model is the chat model name. Must not be empty.
	Model string

	// Timeout bounds a single classification call. Default: 3s.
	Timeout time.Duration

	// Temperature controls randomness. Default: 0.0 (deterministic picks).
	Temperature float64

	// MaxTokens limits the response. The reply is a single intent id, so
	// the default of 32 is generous.
	MaxTokens int
}

// DefaultChatClassifierConfig returns sensible defaults.
func DefaultChatClassifierConfig() ChatClassifierConfig {
	return ChatClassifierConfig{
		Timeout:     3 * time.Second,
		Temperature: 0.0,
		MaxTokens:   32,
	}
}

// ChatClassifier asks an OpenAI-compatible chat endpoint to pick the intent
// that best matches a question. It is only consulted when the heuristic
// ranking is uncertain; its answer is advisory and validated by the caller.
//
// # Thread Safety
//
// Safe for concurrent use.
type ChatClassifier struct {
	config     ChatClassifierConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// chat wire types (OpenAI-compatible).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewChatClassifier creates an LLM classifier.
//
// # Inputs
//
//   - config: Endpoint configuration. BaseURL and Model must be set.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *ChatClassifier: The constructed classifier.
//   - error: Non-nil if BaseURL or Model is empty.
func NewChatClassifier(config ChatClassifierConfig, logger *slog.Logger) (*ChatClassifier, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("chat classifier: BaseURL must not be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("chat classifier: Model must not be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClassifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Pick asks the model which option matches the question.
//
// # Description
//
// The model sees every option's id, description, and one example, and must
// answer with exactly one id or the literal "nenhum". The returned string
// is the model's raw pick, trimmed; the caller validates it against the
// known option set before trusting it.
//
// # Outputs
//
//   - string: The model's pick, or "" when it answered "nenhum".
//   - error: Non-nil on transport, API, or parse failure.
func (c *ChatClassifier) Pick(ctx context.Context, question string, options []IntentOption) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("chat classifier: no options to rank")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Voce classifica perguntas sobre um banco de dados de pedidos.\n")
	sb.WriteString("Escolha a intencao que melhor corresponde a pergunta do usuario.\n")
	sb.WriteString("Responda SOMENTE com o id da intencao, sem explicacao.\n")
	sb.WriteString("Se nenhuma corresponder, responda exatamente: nenhum\n\n")
	sb.WriteString("Intencoes disponiveis:\n")
	for _, opt := range options {
		sb.WriteString(fmt.Sprintf("  - id: %s\n    descricao: %s\n", opt.ID, opt.Description))
		if len(opt.Examples) > 0 {
			sb.WriteString(fmt.Sprintf("    exemplo: %s\n", opt.Examples[0]))
		}
	}

	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: sb.String()},
			{Role: "user", Content: question},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("chat classifier: marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("chat classifier: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat classifier: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("chat classifier: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat classifier: API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("chat classifier: parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat classifier: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat classifier: empty choices")
	}

	pick := strings.TrimSpace(parsed.Choices[0].Message.Content)
	pick = strings.Trim(pick, "`\"'")
	if strings.EqualFold(pick, "nenhum") {
		return "", nil
	}
	return pick, nil
}
