package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

// DocumentProcessor is what a batch fans out to.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, doc Document) Result
}

// Batch analyzes several documents concurrently.
type Batch struct {
	proc        DocumentProcessor
	concurrency int
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

func NewBatch(proc DocumentProcessor, concurrency int, logger *slog.Logger, m *telemetry.Metrics) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Batch{proc: proc, concurrency: concurrency, logger: logger, metrics: m}
}

// Run returns one Result per document, in input order. Document failures are
// carried on their Result and never cancel the rest of the batch.
func (b *Batch) Run(ctx context.Context, docs []Document) []Result {
	start := time.Now()
	log := common.LoggerFrom(ctx, b.logger)
	b.metrics.ObserveBatch(len(docs))

	results := make([]Result, len(docs))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = b.proc.ProcessDocument(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	log.Info("pipeline.batch.done",
		"documents", len(docs),
		"failed", failed,
		"concurrency", b.concurrency,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}
