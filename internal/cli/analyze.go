package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/illustration-analyzer/internal/export"
	"github.com/joseph-ayodele/illustration-analyzer/internal/ingest"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		xlsxPath   string
		skipHidden bool
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE|DIR...",
		Short: "Analyze illustrations and print one result per document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd)
			ctx := cmd.Context()

			docs, err := collectDocuments(cmd, app, args, skipHidden)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no supported files found")
			}

			proc, err := app.Processor(ctx)
			if err != nil {
				return err
			}
			results := pipeline.NewBatch(proc, app.Config.Pipeline.Concurrency, app.Logger, nil).Run(ctx, docs)

			if xlsxPath != "" {
				data, err := export.NewService(app.Logger).ExportComparisonXLSX(ctx, results)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", xlsxPath, err)
				}
				app.Logger.Info("analyze.xlsx_written", "path", xlsxPath, "documents", len(results))
			}
			if err := app.PrintJSON(results); err != nil {
				return err
			}

			if strict {
				failed := 0
				for _, r := range results {
					if !r.OK() {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(results))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write a comparison workbook to this path")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and dot directories when walking")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any document fails")
	return cmd
}

// collectDocuments expands directories, drops unsupported extensions and
// duplicate content, and keeps argument order.
func collectDocuments(cmd *cobra.Command, app *App, args []string, skipHidden bool) ([]pipeline.Document, error) {
	ctx := cmd.Context()
	ing := ingest.NewIngestor(app.Logger)

	var docs []pipeline.Document
	add := func(r ingest.IngestionResult) {
		if r.Err != "" {
			app.Logger.Warn("analyze.skip", "path", r.SourcePath, "reason", r.Err)
			return
		}
		if r.Deduplicated {
			app.Logger.Info("analyze.duplicate", "path", r.SourcePath)
			return
		}
		docs = append(docs, pipeline.Document{Name: filepath.Base(r.SourcePath), Path: r.SourcePath})
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			results, stats, err := ing.IngestDirectory(ctx, arg, skipHidden)
			if err != nil {
				return nil, err
			}
			app.Logger.Info("analyze.directory",
				"root", arg,
				"scanned", stats.Scanned,
				"matched", stats.Matched,
				"deduplicated", stats.Deduplicated,
				"failed", stats.Failed,
			)
			for _, r := range results {
				add(r)
			}
			continue
		}
		r, err := ing.IngestPath(ctx, arg)
		if err != nil {
			app.Logger.Warn("analyze.skip", "path", arg, "error", err)
			continue
		}
		add(r)
	}
	return docs, nil
}
