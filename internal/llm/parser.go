package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
)

// ParserConfig tunes the schema parser.
type ParserConfig struct {
	Temperature   float32 // 0 keeps extraction deterministic
	MaxInputChars int     // document text is cut to this many runes; 0 = no limit
}

type schemaParser struct {
	c      Completer
	cfg    ParserConfig
	logger *slog.Logger
}

// NewSchemaParser builds a SchemaParser on top of any Completer.
func NewSchemaParser(c Completer, cfg ParserConfig, logger *slog.Logger) SchemaParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &schemaParser{c: c, cfg: cfg, logger: logger}
}

func (p *schemaParser) ParsePolicy(ctx context.Context, req ParseRequest) (finance.PolicyRecord, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFrom(ctx, p.logger).With("call_id", rid)

	if p.c == nil {
		return finance.PolicyRecord{}, nil, common.NewAppError(common.CodeUpstream,
			"no LLM provider configured for parsing", common.ErrNotConfigured)
	}

	log.Info("llm.parse.start",
		"provider", p.c.Name(),
		"file", req.FileName,
		"text_len", len(req.Text),
		"tables_len", len(req.TablesTSV),
	)

	content, err := p.c.Complete(ctx, CompletionRequest{
		System:      BuildParseSystemPrompt(),
		User:        BuildParseUserPrompt(req, p.cfg.MaxInputChars),
		Temperature: p.cfg.Temperature,
		JSON:        true,
	})
	if err != nil {
		log.Error("llm.parse.completion_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return finance.PolicyRecord{}, nil, fmt.Errorf("parse completion: %w", err)
	}

	decoded, method, err := DecodeLenient(content)
	if err != nil {
		log.Error("llm.parse.decode_failed",
			"error", err,
			"content", truncateBody(content, 2048),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return finance.PolicyRecord{}, []byte(content), common.NewAppError(common.CodeMalformedPolicy,
			"model output is not JSON", fmt.Errorf("%w: %w", common.ErrMalformedPolicy, err))
	}
	if method != DecodeStrict {
		log.Warn("llm.parse.lenient_decode", "method", method)
	}

	normalized, _, err := NormalizePolicyJSON(decoded, log)
	if err != nil {
		log.Error("llm.parse.normalize_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return finance.PolicyRecord{}, []byte(content), err
	}
	if err := ValidatePolicyJSON(normalized); err != nil {
		log.Error("llm.parse.schema_validation_failed",
			"error", err,
			"content", string(normalized),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return finance.PolicyRecord{}, normalized, common.NewAppError(common.CodeMalformedPolicy,
			"policy JSON failed validation", fmt.Errorf("%w: %w", common.ErrMalformedPolicy, err))
	}

	var out finance.PolicyRecord
	if err := json.Unmarshal(normalized, &out); err != nil {
		log.Error("llm.parse.unmarshal_failed", "error", err)
		return finance.PolicyRecord{}, normalized, common.NewAppError(common.CodeMalformedPolicy,
			"policy JSON does not fit the record", fmt.Errorf("%w: %w", common.ErrMalformedPolicy, err))
	}
	if out.BenefitTable == nil {
		out.BenefitTable = []finance.BenefitRow{}
	}

	log.Info("llm.parse.ok",
		"product", out.ProductName,
		"premium", out.FirstYearPremium,
		"payment_years", out.PaymentYears,
		"rows", len(out.BenefitTable),
		"decode", method,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, normalized, nil
}
