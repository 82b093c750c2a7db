package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extractPDF tries the embedded text layer, then pdftotext, then OCR of the
// rendered pages, stopping at the first strategy that yields text. Tables are
// detected from the layout-preserving pdftotext output when it is available.
func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	var warns []string

	layerText, layerPages, err := pdfTextLayer(path, e.cfg.MaxPages)
	if err != nil {
		warns = append(warns, err.Error())
	}

	layoutText, layoutPages, w, layoutErr := e.pdfToText(ctx, path)
	warns = append(warns, w...)
	if layoutErr != nil {
		warns = append(warns, "pdftotext: "+layoutErr.Error())
	}

	switch {
	case strings.TrimSpace(layerText) != "":
		return ExtractionResult{
			Text:     Normalize(layerText),
			Tables:   DetectTables(layoutText),
			Pages:    layerPages,
			Method:   "pdf-text",
			Warnings: warns,
		}, nil
	case strings.TrimSpace(layoutText) != "":
		return ExtractionResult{
			Text:     Normalize(layoutText),
			Tables:   DetectTables(layoutText),
			Pages:    layoutPages,
			Method:   "pdf-layout",
			Warnings: warns,
		}, nil
	}

	e.logger.Info("ocr.pdf.no_text_layer", "path", path)
	ocrText, ocrPages, w, err := e.pdfToOCR(ctx, path)
	warns = append(warns, w...)
	res := ExtractionResult{
		Text:     Normalize(ocrText),
		Tables:   DetectTables(ocrText),
		Pages:    ocrPages,
		Method:   "pdf-ocr",
		Language: e.cfg.TesseractLang,
		Warnings: warns,
	}
	if err != nil {
		return res, fmt.Errorf("pdf ocr: %w", err)
	}
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.cfg.MaxPages))
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, append(args, path, "-")...)
	if err != nil {
		return "", 0, nonEmpty(string(errb)), err
	}
	text = string(out)
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(strings.TrimRight(text, "\f\n"), "\f")
	return text, pages, nil, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp(e.cfg.TempDir, "ill-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tmp.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 200 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, nonEmpty(string(errb)), err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool { return pageIndex(matches[i]) < pageIndex(matches[j]) })
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for i, img := range matches {
		txt, w, err := e.tesseractOCR(ctx, img)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, err.Error())
		}
		if i > 0 {
			b.WriteString("\f")
		}
		b.WriteString(txt)
	}
	return b.String(), len(matches), warns, nil
}

// pageIndex pulls N out of ".../page-N.png" so page 10 sorts after page 9.
func pageIndex(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	n := 0
	if i := strings.LastIndexByte(base, '-'); i >= 0 {
		fmt.Sscanf(base[i+1:], "%d", &n)
	}
	return n
}

func nonEmpty(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}
