package extract

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/illustration-analyzer/internal/ocr"
)

type OCRAdapter struct {
	e      *ocr.Extractor
	logger *slog.Logger
}

func NewOCRAdapter(e *ocr.Extractor, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{e: e, logger: logger}
}

func (a *OCRAdapter) Extract(ctx context.Context, path string) (TextExtractionResult, error) {
	r, err := a.e.Extract(ctx, path)
	return fromOCR(r), err
}

func (a *OCRAdapter) ExtractBytes(ctx context.Context, name string, data []byte) (TextExtractionResult, error) {
	r, err := a.e.ExtractBytes(ctx, name, data)
	if err == nil && len(r.Warnings) > 0 {
		a.logger.Debug("extract.warnings", "file", name, "warnings", r.Warnings)
	}
	return fromOCR(r), err
}

func fromOCR(r ocr.ExtractionResult) TextExtractionResult {
	tables := make([]Table, 0, len(r.Tables))
	for _, t := range r.Tables {
		tables = append(tables, Table{Page: t.Page, Rows: t.Rows})
	}
	return TextExtractionResult{
		Text:       r.Text,
		Tables:     tables,
		Pages:      r.Pages,
		SourceType: r.SourceType,
		Method:     r.Method,
		Language:   r.Language,
		Duration:   r.Duration,
		Warnings:   r.Warnings,
		Confidence: r.Confidence,
	}
}
