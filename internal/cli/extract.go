package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/ocr"
)

type extractOutput struct {
	FileName   string          `json:"fileName"`
	Method     string          `json:"method"`
	Pages      int             `json:"pages"`
	Language   string          `json:"language,omitempty"`
	Confidence float32         `json:"confidence"`
	DurationMS int64           `json:"durationMs"`
	Warnings   []string        `json:"warnings,omitempty"`
	Tables     []extract.Table `json:"tables"`
	Text       string          `json:"text"`
}

func newExtractCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Print the text and tables extracted from one illustration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd)
			c := app.Config.OCR
			tx := extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{
				TesseractLang: c.Language,
				DPI:           c.DPI,
				TessdataDir:   c.TessdataDir,
				HeicConverter: c.HeicConverter,
				TempDir:       c.TempDir,
			}, app.Logger), app.Logger)

			res, err := tx.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				tables := res.Tables
				if tables == nil {
					tables = []extract.Table{}
				}
				return app.PrintJSON(extractOutput{
					FileName:   filepath.Base(args[0]),
					Method:     res.Method,
					Pages:      res.Pages,
					Language:   res.Language,
					Confidence: res.Confidence,
					DurationMS: res.Duration.Milliseconds(),
					Warnings:   res.Warnings,
					Tables:     tables,
					Text:       res.Text,
				})
			}
			fmt.Fprintln(app.Out, res.Text)
			fmt.Fprintf(app.Err, "method=%s pages=%d tables=%d confidence=%.2f\n",
				res.Method, res.Pages, len(res.Tables), res.Confidence)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full extraction as JSON")
	return cmd
}
