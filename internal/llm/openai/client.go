package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
)

// Name identifies the provider in logs.
func (c *Client) Name() string { return "openai:" + c.cfg.Model }

// Complete implements llm.Completer with a single chat/completions call,
// retried on transient failures.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.log)

	messages := make([]map[string]any, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, map[string]any{"role": "system", "content": s})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.User})

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": req.Temperature,
		"messages":    messages,
	}
	if req.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	err := llm.WithRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, log, func(int) error {
		var err error
		raw, _, err = llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, log)
		return err
	})
	if err != nil {
		log.Error("llm.openai.http_error", "model", c.cfg.Model, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("%w: decode chat response: %w", common.ErrUpstream, err)
	}
	if len(cc.Choices) == 0 {
		log.Error("llm.openai.no_choices", "raw", string(raw))
		return "", fmt.Errorf("%w: no choices in chat response", common.ErrUpstream)
	}

	log.Debug("llm.openai.ok",
		"model", c.cfg.Model,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}
