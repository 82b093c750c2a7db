package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for an OpenAI-compatible chat/completions endpoint (DeepSeek by default).
type Config struct {
	APIKey       string        // if empty, falls back to env DEEPSEEK_API_KEY then OPENAI_API_KEY
	BaseURL      string        // default https://api.deepseek.com/v1
	Model        string        // default deepseek-chat
	Timeout      time.Duration // http client timeout
	MaxRetries   int           // extra attempts on 429/5xx/transport errors
	RetryBackoff time.Duration // linear backoff step
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}
