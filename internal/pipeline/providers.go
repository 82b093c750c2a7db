package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm/gemini"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm/openai"
	"github.com/joseph-ayodele/illustration-analyzer/internal/ocr"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

// NewCompleter builds the model client named by cfg.Provider. It returns a nil
// Completer for ProviderNone.
func NewCompleter(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case common.ProviderNone, "":
		return nil, nil
	case common.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: time.Second,
		}, logger), nil
	case common.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown LLM provider %q", cfg.Provider), common.ErrInvalidInput)
}

// NewFromConfig wires extractor, parser and narrator into a Processor.
// Without a provider, parsing fails per document and commentary uses the template.
func NewFromConfig(c llm.Completer, tx extract.TextExtractor, cfg *common.Config, logger *slog.Logger, opts ...Option) *Processor {
	parser := llm.NewSchemaParser(c, llm.ParserConfig{
		Temperature:   cfg.LLM.Temperature,
		MaxInputChars: cfg.LLM.MaxInputChars,
	}, logger)
	narrator := llm.NewNarrator(c, llm.NarratorConfig{Temperature: cfg.LLM.NarrativeTemperature}, logger)
	opts = append([]Option{WithDocumentTimeout(cfg.Pipeline.DocumentTimeout)}, opts...)
	return NewProcessor(logger, tx, parser, narrator, opts...)
}

// Build assembles the OCR extractor, the configured model client and the
// processor from cfg.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, m *telemetry.Metrics) (*Processor, llm.Completer, error) {
	c, err := NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}
	extractor := ocr.NewExtractor(ocr.Config{
		TesseractLang: cfg.OCR.Language,
		DPI:           cfg.OCR.DPI,
		TessdataDir:   cfg.OCR.TessdataDir,
		HeicConverter: cfg.OCR.HeicConverter,
		TempDir:       cfg.OCR.TempDir,
	}, logger)
	proc := NewFromConfig(c, extract.NewOCRAdapter(extractor, logger), cfg, logger,
		WithExtractTimeout(cfg.OCR.Timeout),
		WithMetrics(m),
	)
	return proc, c, nil
}

// DecodePolicy reads a policy record from JSON. It accepts the same key
// spellings and loose numbers as the model output.
func DecodePolicy(data []byte) (finance.PolicyRecord, error) {
	var rec finance.PolicyRecord
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return rec, common.NewAppError(common.CodeInvalidInput, "policy must be a JSON object", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	normalized, _, err := llm.NormalizePolicyJSON(m, nil)
	if err != nil {
		return rec, common.NewAppError(common.CodeInvalidInput, "invalid policy", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	if err := llm.ValidatePolicyJSON(normalized); err != nil {
		return rec, common.NewAppError(common.CodeInvalidInput, "invalid policy", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return rec, common.NewAppError(common.CodeInvalidInput, "invalid policy", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	if rec.BenefitTable == nil {
		rec.BenefitTable = []finance.BenefitRow{}
	}
	return rec, nil
}
