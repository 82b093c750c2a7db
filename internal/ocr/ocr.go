package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "chi_sim+eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 200
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	HeicConverter       string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text

	TempDir string // where uploads and rendered pages are spooled
}

// Table is a grid of cells lifted from one page (or one HTML <table>).
type Table struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

type ExtractionResult struct {
	Text       string
	Tables     []Table
	Pages      int
	SourceType constants.FileFormat
	Method     string // "pdf-text" | "pdf-layout" | "pdf-ocr" | "image-ocr" | "html" | "txt"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithRunner swaps the command runner (tests use a fake).
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "chi_sim+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	format, ok := constants.MapExtToFormat(ext)
	if !ok {
		e.logger.Error("ocr.extract.unsupported", "path", path, "ext", ext)
		return ExtractionResult{}, common.NewAppError(common.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported extension %q", ext), common.ErrUnsupportedFormat)
	}
	e.logger.Debug("ocr.extract.start", "path", path, "format", format)

	var (
		res ExtractionResult
		err error
	)
	switch format {
	case constants.FormatPDF:
		res, err = e.extractPDF(ctx, path)
	case constants.FormatImage:
		res, err = e.extractImageFile(ctx, path, ext)
	case constants.FormatHTML:
		res, err = e.extractHTML(path)
	case constants.FormatTXT:
		res, err = e.extractTXT(path)
	}
	res.SourceType = format
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("ocr.extract.failed", "path", path, "method", res.Method, "error", err)
		return res, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return res, common.NewAppError(common.CodeEmptyDocument,
			filepath.Base(path)+" produced no text", common.ErrEmptyDocument)
	}
	e.logger.Info("ocr.extract.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"tables", len(res.Tables),
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// ExtractBytes spools an uploaded document to a temp file named after the
// original so the extension drives format detection, then extracts it.
func (e *Extractor) ExtractBytes(ctx context.Context, name string, data []byte) (ExtractionResult, error) {
	ext := filepath.Ext(name)
	if !constants.IsAllowedExt(ext) {
		return ExtractionResult{}, common.NewAppError(common.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported extension %q", constants.NormalizeExt(ext)), common.ErrUnsupportedFormat)
	}
	f, err := os.CreateTemp(e.cfg.TempDir, "ill-upload-*"+strings.ToLower(ext))
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("spool upload: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return ExtractionResult{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return ExtractionResult{}, fmt.Errorf("spool upload: %w", err)
	}
	return e.Extract(ctx, f.Name())
}

func (e *Extractor) extractTXT(path string) (ExtractionResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{Method: "txt"}, fmt.Errorf("read text: %w", err)
	}
	text := strings.ToValidUTF8(string(raw), "")
	return ExtractionResult{
		Text:   Normalize(text),
		Tables: DetectTables(text),
		Pages:  1,
		Method: "txt",
	}, nil
}
