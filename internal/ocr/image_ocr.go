package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
)

func (e *Extractor) extractImageFile(ctx context.Context, path, ext string) (ExtractionResult, error) {
	var warns []string
	if ext == "heic" {
		out, w, cleanup, err := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, path, e.cfg.TempDir)
		if cleanup != nil {
			defer cleanup()
		}
		warns = append(warns, w...)
		if err != nil {
			return ExtractionResult{Method: "image-ocr", Warnings: warns}, err
		}
		path = out
	}
	res, err := e.extractImage(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	return res, err
}

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	raw, warn, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return ExtractionResult{Method: "image-ocr", Warnings: warn}, err
	}
	txt := Normalize(raw)

	var ocrConf float32
	if e.cfg.EnableTSVConfidence {
		c, w, err := e.tesseractTSVConfidence(ctx, path)
		warn = append(warn, w...)
		if err != nil {
			warn = append(warn, err.Error())
		}
		ocrConf = c
	}
	heurConf := heuristicConfidence(txt)

	// blend: weight OCR higher if present
	conf := heurConf
	if ocrConf > 0 {
		conf = min(0.7*ocrConf+0.3*heurConf, 1)
	}

	return ExtractionResult{
		Text:       txt,
		Tables:     DetectTables(raw),
		Pages:      1,
		SourceType: constants.FormatImage,
		Method:     "image-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warn,
		Confidence: conf,
	}, nil
}

func (e *Extractor) tesseractArgs(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	// keep runs of spaces so column layout survives for table detection
	args = append(args, "-c", "preserve_interword_spaces=1")
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path)...)
	if err != nil {
		return "", nonEmpty(string(errb)), fmt.Errorf("tesseract: %w", err)
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := append(e.tesseractArgs(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, nonEmpty(string(errb)), fmt.Errorf("tesseract TSV: %w", err)
	}
	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue
		} // header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	return float32(sum / n / 100.0), nil, nil
}
