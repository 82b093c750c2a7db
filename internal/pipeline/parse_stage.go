package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
)

// ParseStage sends extracted text to the schema parser.
type ParseStage struct {
	Parser llm.SchemaParser
	Logger *slog.Logger
}

func NewParseStage(parser llm.SchemaParser, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{Parser: parser, Logger: logger}
}

func (s *ParseStage) Run(ctx context.Context, name string, text extract.TextExtractionResult) (finance.PolicyRecord, error) {
	rec, raw, err := s.Parser.ParsePolicy(ctx, llm.ParseRequest{
		Text:      text.Text,
		TablesTSV: text.TablesTSV(),
		FileName:  name,
	})
	if err != nil {
		if len(raw) > 0 {
			s.Logger.Debug("pipeline.parse.raw", "file", name, "raw", string(raw))
		}
		return finance.PolicyRecord{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(rec.BenefitTable) == 0 {
		s.Logger.Warn("pipeline.parse.empty_table", "file", name, "product", rec.ProductName)
	}
	return rec, nil
}
