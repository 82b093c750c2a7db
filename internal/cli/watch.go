package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/illustration-analyzer/internal/async"
	"github.com/joseph-ayodele/illustration-analyzer/internal/ingest"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

// ResultSuffix is appended to a watched file's name for its analysis output.
const ResultSuffix = ".analysis.json"

func newWatchCmd() *cobra.Command {
	var (
		initialScan bool
		debounce    time.Duration
		skipHidden  bool
		queueSize   int
	)
	cmd := &cobra.Command{
		Use:   "watch DIR...",
		Short: "Analyze illustrations as they appear and write <file>" + ResultSuffix,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := AppFrom(cmd)
			ctx := cmd.Context()

			proc, err := app.Processor(ctx)
			if err != nil {
				return err
			}
			ing := ingest.NewIngestor(app.Logger)
			q := async.NewProcessorQueue(analyzeToFile(proc, ing, app), app.Logger,
				async.WithWorkers(app.Config.Pipeline.Concurrency),
				async.WithQueueSize(queueSize),
				async.WithProcessTimeout(app.Config.Pipeline.DocumentTimeout),
			)

			paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
				Roots:       args,
				InitialScan: initialScan,
				Debounce:    debounce,
				SkipHidden:  skipHidden,
				Logger:      app.Logger,
			})
			if err != nil {
				return err
			}
			app.Logger.Info("watch.started", "roots", args, "initial_scan", initialScan)

			for {
				select {
				case <-ctx.Done():
					return drain(q, app, app.Config.Server.ShutdownTimeout)
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					app.Logger.Warn("watch.error", "error", err)
				case path, ok := <-paths:
					if !ok {
						return drain(q, app, app.Config.Server.ShutdownTimeout)
					}
					enqueuePath(ctx, q, ing, app, path)
				}
			}
		},
	}
	f := cmd.Flags()
	f.BoolVar(&initialScan, "initial-scan", true, "analyze files already present before watching")
	f.DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before a changed file is analyzed")
	f.BoolVar(&skipHidden, "skip-hidden", true, "ignore dot files and dot directories")
	f.IntVar(&queueSize, "queue-size", 256, "pending documents before the watcher blocks")
	return cmd
}

func enqueuePath(ctx context.Context, q async.Queue, ing *ingest.Ingestor, app *App, path string) {
	r, err := ing.IngestPath(ctx, path)
	if err != nil {
		app.Logger.Debug("watch.skip", "path", path, "error", err)
		return
	}
	if r.Deduplicated {
		app.Logger.Info("watch.duplicate", "path", r.SourcePath)
		return
	}
	job := async.Job{
		Path:        r.SourcePath,
		HashHex:     r.HashHex,
		SubmittedAt: time.Now(),
		TraceID:     uuid.NewString(),
	}
	if err := q.Enqueue(ctx, job); err != nil {
		ing.Forget(r.HashHex)
		app.Logger.Warn("watch.enqueue_failed", "path", r.SourcePath, "error", err)
	}
}

// analyzeToFile processes one job and writes the result next to the source
// file. Failed analyses are written too; their hash is forgotten so the next
// change to the file is picked up again.
func analyzeToFile(proc *pipeline.Processor, ing *ingest.Ingestor, app *App) async.Handler {
	return func(ctx context.Context, job async.Job) error {
		res := proc.ProcessDocument(ctx, pipeline.Document{Name: filepath.Base(job.Path), Path: job.Path})
		if !res.OK() {
			ing.Forget(job.HashHex)
		}
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		out := job.Path + ResultSuffix
		if err := writeFileAtomic(out, data); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		app.Logger.Info("watch.result_written",
			"path", out,
			"trace_id", job.TraceID,
			"status", res.Status,
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
		return nil
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".analysis-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func drain(q async.Queue, app *App, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	q.Shutdown(ctx)
	app.Logger.Info("watch.stopped")
	return nil
}
