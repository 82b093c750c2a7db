package extract

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
)

// TextExtractor is Stage 1: document -> text and tables.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextExtractionResult, error)
	ExtractBytes(ctx context.Context, name string, data []byte) (TextExtractionResult, error)
}

// Table is a grid of cell strings found on one page.
type Table struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

type TextExtractionResult struct {
	Text       string
	Tables     []Table
	Pages      int
	SourceType constants.FileFormat
	Method     string
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// TablesTSV renders every table as tab-separated text, one blank line between tables.
func (r TextExtractionResult) TablesTSV() string {
	var b strings.Builder
	for i, t := range r.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, row := range t.Rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
