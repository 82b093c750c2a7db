package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
)

// ExtractStage turns a document into text and tables.
type ExtractStage struct {
	TextExtractor extract.TextExtractor
	Logger        *slog.Logger
	Timeout       time.Duration // 0 = bounded only by the document timeout
}

func NewExtractStage(tx extract.TextExtractor, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{TextExtractor: tx, Logger: logger}
}

// Run extracts doc from memory, or from disk when no bytes were supplied.
func (s *ExtractStage) Run(ctx context.Context, doc Document) (extract.TextExtractionResult, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	var (
		res extract.TextExtractionResult
		err error
	)
	if doc.Data == nil && doc.Path != "" {
		res, err = s.TextExtractor.Extract(ctx, doc.Path)
	} else {
		res, err = s.TextExtractor.ExtractBytes(ctx, doc.Name, doc.Data)
	}
	if err != nil {
		return res, fmt.Errorf("extract %s: %w", doc.Name, err)
	}
	if res.Confidence > 0 && res.Confidence < LowConfidence {
		s.Logger.Warn("pipeline.extract.low_confidence",
			"file", doc.Name, "method", res.Method, "confidence", res.Confidence)
	}
	return res, nil
}

// LowConfidence flags OCR output that is likely to confuse the parser.
const LowConfidence float32 = 0.6
