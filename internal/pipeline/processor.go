// Package pipeline runs an illustration through extraction, parsing, the
// metrics engine and commentary, one document at a time or as a batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

// Processor coordinates extract -> parse -> compute -> narrate for one document.
type Processor struct {
	Logger   *slog.Logger
	Extract  *ExtractStage
	Parse    *ParseStage
	Narrator llm.Narrator

	timeout time.Duration
	metrics *telemetry.Metrics
}

type Option func(*Processor)

// WithDocumentTimeout bounds the whole run of one document.
func WithDocumentTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithExtractTimeout bounds text extraction (OCR can be slow on long scans).
func WithExtractTimeout(d time.Duration) Option {
	return func(p *Processor) { p.Extract.Timeout = d }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(logger *slog.Logger, tx extract.TextExtractor, parser llm.SchemaParser, narrator llm.Narrator, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if narrator == nil {
		narrator = llm.TemplateNarrator{}
	}
	p := &Processor{
		Logger:   logger,
		Extract:  NewExtractStage(tx, logger),
		Parse:    NewParseStage(parser, logger),
		Narrator: narrator,
		timeout:  3 * time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessDocument never returns an error: failures are reported on the Result
// with the stage that failed, so one bad document cannot sink a batch.
func (p *Processor) ProcessDocument(ctx context.Context, doc Document) Result {
	start := time.Now()
	res := Result{
		DocumentID: uuid.NewString(),
		FileName:   doc.Name,
		Status:     constants.DocumentStatusOK,
	}
	ctx = common.WithDocumentID(ctx, res.DocumentID)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	log := common.LoggerFrom(ctx, p.Logger).With("file", doc.Name)
	log.Info("pipeline.document.start", "bytes", len(doc.Data))

	t := time.Now()
	text, err := p.Extract.Run(ctx, doc)
	p.metrics.ObserveStage(string(constants.StageExtract), time.Since(t))
	if err != nil {
		return p.fail(ctx, log, res, constants.StageExtract, err)
	}
	res.ExtractionMethod = text.Method
	res.Pages = text.Pages
	res.Warnings = append(res.Warnings, text.Warnings...)

	t = time.Now()
	rec, err := p.Parse.Run(ctx, doc.Name, text)
	p.metrics.ObserveStage(string(constants.StageParse), time.Since(t))
	if err != nil {
		return p.fail(ctx, log, res, constants.StageParse, err)
	}
	res.setPolicy(rec)

	t = time.Now()
	m, err := compute(rec)
	p.metrics.ObserveStage(string(constants.StageCompute), time.Since(t))
	if err != nil {
		return p.fail(ctx, log, res, constants.StageCompute, err)
	}
	res.setMetrics(m)

	t = time.Now()
	res.Summary = p.narrate(ctx, log, &res, rec, m)
	p.metrics.ObserveStage(string(constants.StageNarrate), time.Since(t))

	p.metrics.ObserveDocument(string(res.Status), "")
	log.Info("pipeline.document.ok",
		"product", res.ProductName,
		"rows", len(res.BenefitTable),
		"payback", res.ComputedPayback,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// Compute runs only the metrics engine on an already structured record.
func (p *Processor) Compute(rec finance.PolicyRecord) (Result, error) {
	res := Result{DocumentID: uuid.NewString(), Status: constants.DocumentStatusOK}
	res.setPolicy(rec)
	m, err := compute(rec)
	if err != nil {
		return res, err
	}
	res.setMetrics(m)
	return res, nil
}

// compute shields the caller from a panic in the engine; the engine is pure,
// so a panic means an input it does not handle.
func compute(rec finance.PolicyRecord) (m finance.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewAppError(common.CodeInternal, fmt.Sprintf("metrics engine: %v", r), common.ErrInternal)
		}
	}()
	return finance.Analyze(rec), nil
}

func (p *Processor) narrate(ctx context.Context, log *slog.Logger, res *Result, rec finance.PolicyRecord, m finance.Metrics) string {
	req := llm.NarrativeRequest{
		ProductName:     rec.ProductName,
		Payback:         m.ComputedPayback,
		IRRMin:          m.Stats.IRRMin,
		IRRMax:          m.Stats.IRRMax,
		AvgAnnualGrowth: m.Stats.AvgAnnualGrowth,
	}
	text, err := p.Narrator.Narrate(ctx, req)
	if err == nil && text != "" {
		return text
	}
	log.Warn("pipeline.narrate.fallback", "error", err)
	res.Warnings = append(res.Warnings, "narrative generated from template")
	return llm.TemplateNarrative(req)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, res Result, stage constants.Stage, err error) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = common.NewAppError(common.CodeTimeout, "document processing timed out", err)
	}
	res.Status = constants.DocumentStatusFailed
	res.Stage = stage
	res.ErrorCode = common.CodeOf(err)
	res.Error = err.Error()
	p.metrics.ObserveDocument(string(res.Status), string(stage))
	log.Error("pipeline.document.failed", "stage", stage, "code", res.ErrorCode, "error", err)
	return res
}
