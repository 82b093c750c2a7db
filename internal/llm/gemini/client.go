// Package gemini adapts the Google GenAI SDK to llm.Completer.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
)

type Config struct {
	APIKey       string
	Model        string // default gemini-2.5-flash
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

type Client struct {
	cfg    Config
	models *genai.Models
	log    *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, common.NewAppError(common.CodeConfig, "gemini api key is required", common.ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cfg: cfg, models: client.Models, log: logger}, nil
}

func (c *Client) Name() string { return "gemini:" + c.cfg.Model }

// Complete implements llm.Completer.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.log)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if s := strings.TrimSpace(req.System); s != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s}}}
	}

	var text string
	err := llm.WithRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, log, func(int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		result, err := c.models.GenerateContent(callCtx, c.cfg.Model, genai.Text(req.User), config)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: gemini generate: %w", common.ErrUpstream, err)
		}
		text = result.Text()
		return nil
	})
	if err != nil {
		log.Error("llm.gemini.failed", "model", c.cfg.Model, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	log.Debug("llm.gemini.ok", "model", c.cfg.Model, "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(text), nil
}
