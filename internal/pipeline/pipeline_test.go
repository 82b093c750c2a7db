package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
	"github.com/joseph-ayodele/illustration-analyzer/internal/telemetry"
)

type fakeExtractor struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (extract.TextExtractionResult, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return extract.TextExtractionResult{Text: "from disk " + path, Method: "txt", Pages: 1}, nil
}

func (f *fakeExtractor) ExtractBytes(_ context.Context, name string, data []byte) (extract.TextExtractionResult, error) {
	if strings.HasSuffix(name, ".exe") {
		return extract.TextExtractionResult{}, common.NewAppError(common.CodeUnsupportedFormat, "unsupported", common.ErrUnsupportedFormat)
	}
	if len(data) == 0 {
		return extract.TextExtractionResult{}, common.ErrEmptyDocument
	}
	return extract.TextExtractionResult{
		Text:   string(data),
		Method: "pdf-text",
		Pages:  2,
		Tables: []extract.Table{{Page: 1, Rows: [][]string{{"1", "500"}}}},
	}, nil
}

// fakeParser returns the record keyed by document text.
type fakeParser struct {
	records map[string]finance.PolicyRecord
	delay   time.Duration
	got     []llm.ParseRequest
	mu      sync.Mutex
}

func (f *fakeParser) ParsePolicy(ctx context.Context, req llm.ParseRequest) (finance.PolicyRecord, []byte, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return finance.PolicyRecord{}, nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	rec, ok := f.records[req.Text]
	if !ok {
		return finance.PolicyRecord{}, []byte("not json"), common.NewAppError(common.CodeMalformedPolicy, "bad output", common.ErrMalformedPolicy)
	}
	return rec, nil, nil
}

type fakeNarrator struct {
	err   error
	calls atomic.Int32
}

func (f *fakeNarrator) Narrate(_ context.Context, req llm.NarrativeRequest) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "review of " + req.ProductName, nil
}

func scenarioA() finance.PolicyRecord {
	return finance.PolicyRecord{
		ProductName:      "A",
		FirstYearPremium: 1000,
		PaymentYears:     5,
		BenefitTable: []finance.BenefitRow{
			{Year: 1, CashValue: 500},
			{Year: 3, CashValue: 3200},
			{Year: 5, CashValue: 5500},
			{Year: 10, CashValue: 12000},
		},
	}
}

func newTestProcessor(p *fakeParser, n llm.Narrator, opts ...Option) *Processor {
	return NewProcessor(nil, &fakeExtractor{}, p, n, opts...)
}

func TestProcessDocument_OK(t *testing.T) {
	parser := &fakeParser{records: map[string]finance.PolicyRecord{"doc-a": scenarioA()}}
	narrator := &fakeNarrator{}
	p := newTestProcessor(parser, narrator)

	res := p.ProcessDocument(context.Background(), Document{Name: "a.pdf", Data: []byte("doc-a")})

	require.True(t, res.OK(), res.Error)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, "a.pdf", res.FileName)
	assert.Equal(t, "A", res.ProductName)
	assert.Equal(t, []float64{-500, 200, 500, 7000}, res.Cashflows)
	require.NotNil(t, res.ComputedPayback)
	assert.Equal(t, 3, *res.ComputedPayback)
	require.Len(t, res.IRRTrend, 4)
	assert.Nil(t, res.IRRTrend[0])
	assert.Nil(t, res.IRRTrend[1])
	assert.NotNil(t, res.IRRTrend[2])
	assert.Equal(t, 5000.0, res.TotalPremium)
	assert.Equal(t, "review of A", res.Summary)
	assert.Equal(t, "pdf-text", res.ExtractionMethod)
	assert.Equal(t, 2, res.Pages)

	require.Len(t, parser.got, 1)
	assert.Equal(t, "1\t500\n", parser.got[0].TablesTSV)
	assert.Equal(t, "a.pdf", parser.got[0].FileName)
}

func TestProcessDocument_ReadsPathWhenNoData(t *testing.T) {
	tx := &fakeExtractor{}
	parser := &fakeParser{records: map[string]finance.PolicyRecord{"from disk /in/a.txt": scenarioA()}}
	p := NewProcessor(nil, tx, parser, nil)

	res := p.ProcessDocument(context.Background(), Document{Name: "a.txt", Path: "/in/a.txt"})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []string{"/in/a.txt"}, tx.paths)
	assert.NotEmpty(t, res.Summary)
}

func TestProcessDocument_StageFailures(t *testing.T) {
	p := newTestProcessor(&fakeParser{}, &fakeNarrator{})

	tests := []struct {
		name  string
		doc   Document
		stage constants.Stage
		code  string
	}{
		{"unsupported", Document{Name: "a.exe", Data: []byte("x")}, constants.StageExtract, common.CodeUnsupportedFormat},
		{"empty", Document{Name: "a.pdf", Data: []byte{}}, constants.StageExtract, common.CodeEmptyDocument},
		{"unparseable", Document{Name: "a.pdf", Data: []byte("???")}, constants.StageParse, common.CodeMalformedPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.ProcessDocument(context.Background(), tt.doc)
			assert.False(t, res.OK())
			assert.Equal(t, constants.DocumentStatusFailed, res.Status)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.NotEmpty(t, res.Error)
			assert.Nil(t, res.Cashflows)
		})
	}
}

func TestProcessDocument_NarrativeFallback(t *testing.T) {
	parser := &fakeParser{records: map[string]finance.PolicyRecord{"doc-a": scenarioA()}}
	narrator := &fakeNarrator{err: errors.New("provider down")}
	p := newTestProcessor(parser, narrator)

	res := p.ProcessDocument(context.Background(), Document{Name: "a.pdf", Data: []byte("doc-a")})
	require.True(t, res.OK())
	assert.Contains(t, res.Summary, "“A”第3年回本")
	assert.Contains(t, res.Warnings, "narrative generated from template")
	assert.Equal(t, int32(1), narrator.calls.Load())
}

func TestProcessDocument_Timeout(t *testing.T) {
	parser := &fakeParser{
		records: map[string]finance.PolicyRecord{"doc-a": scenarioA()},
		delay:   time.Second,
	}
	p := newTestProcessor(parser, &fakeNarrator{}, WithDocumentTimeout(20*time.Millisecond))

	res := p.ProcessDocument(context.Background(), Document{Name: "a.pdf", Data: []byte("doc-a")})
	assert.False(t, res.OK())
	assert.Equal(t, constants.StageParse, res.Stage)
	assert.Equal(t, common.CodeTimeout, res.ErrorCode)
}

func TestProcessDocument_RecordsMetrics(t *testing.T) {
	m := telemetry.New()
	parser := &fakeParser{records: map[string]finance.PolicyRecord{"doc-a": scenarioA()}}
	p := newTestProcessor(parser, &fakeNarrator{}, WithMetrics(m))

	p.ProcessDocument(context.Background(), Document{Name: "a.pdf", Data: []byte("doc-a")})
	p.ProcessDocument(context.Background(), Document{Name: "b.pdf", Data: []byte("nope")})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "illustrations_documents_total" {
			found = true
			assert.Len(t, f.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestCompute(t *testing.T) {
	p := newTestProcessor(&fakeParser{}, nil)

	res, err := p.Compute(scenarioA())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []float64{-500, 200, 500, 7000}, res.Cashflows)
	assert.Empty(t, res.Summary)
	assert.Equal(t, scenarioA(), res.Policy())
}

func TestCompute_LongHorizonYear(t *testing.T) {
	rec, err := DecodePolicy([]byte(`{"firstYearPremium":1000,"paymentYears":5,"benefitTable":[{"year":1000000000000,"cash_value":5000}]}`))
	require.NoError(t, err)
	p := newTestProcessor(&fakeParser{}, nil)

	done := make(chan struct{})
	var res Result
	go func() {
		defer close(done)
		res, err = p.Compute(rec)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("compute did not finish")
	}

	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []float64{0}, res.Cashflows)
	require.NotNil(t, res.ComputedPayback)
	assert.Equal(t, 1_000_000_000_000, *res.ComputedPayback)
	assert.Equal(t, []*float64{nil}, res.IRRTrend)
}

func TestBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	records := map[string]finance.PolicyRecord{}
	var docs []Document
	for i := 0; i < 9; i++ {
		text := fmt.Sprintf("doc-%d", i)
		if i%3 != 1 {
			rec := scenarioA()
			rec.ProductName = text
			records[text] = rec
		}
		docs = append(docs, Document{Name: text + ".pdf", Data: []byte(text)})
	}
	parser := &fakeParser{records: records, delay: time.Millisecond}
	b := NewBatch(newTestProcessor(parser, &fakeNarrator{}), 3, nil, nil)

	results := b.Run(context.Background(), docs)
	require.Len(t, results, len(docs))
	for i, r := range results {
		assert.Equal(t, docs[i].Name, r.FileName)
		if i%3 == 1 {
			assert.False(t, r.OK(), r.FileName)
			assert.Equal(t, constants.StageParse, r.Stage)
		} else {
			assert.True(t, r.OK(), r.FileName)
			assert.Equal(t, fmt.Sprintf("doc-%d", i), r.ProductName)
		}
	}
}

type countingProcessor struct {
	inFlight, peak atomic.Int32
}

func (c *countingProcessor) ProcessDocument(_ context.Context, doc Document) Result {
	n := c.inFlight.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.inFlight.Add(-1)
	return Result{FileName: doc.Name, Status: constants.DocumentStatusOK}
}

func TestBatch_RespectsConcurrencyLimit(t *testing.T) {
	cp := &countingProcessor{}
	docs := make([]Document, 12)
	for i := range docs {
		docs[i] = Document{Name: fmt.Sprint(i)}
	}
	results := NewBatch(cp, 2, nil, nil).Run(context.Background(), docs)
	assert.Len(t, results, 12)
	assert.LessOrEqual(t, cp.peak.Load(), int32(2))
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(context.Background(), common.LLMConfig{Provider: common.ProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCompleter(context.Background(), common.LLMConfig{Provider: common.ProviderOpenAI, APIKey: "k", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai:m", c.Name())

	_, err = NewCompleter(context.Background(), common.LLMConfig{Provider: "claude"}, nil)
	assert.Error(t, err)
}

func TestDecodePolicy(t *testing.T) {
	rec, err := DecodePolicy([]byte(`{
		"产品名称": "XYZ",
		"firstYearPremium": "1,000",
		"交多久": 5,
		"benefitTable": [{"year": 1, "cash_value": 500}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "XYZ", rec.ProductName)
	assert.Equal(t, 1000.0, rec.FirstYearPremium)
	assert.Equal(t, 5, rec.PaymentYears)
	assert.Len(t, rec.BenefitTable, 1)

	rec, err = DecodePolicy([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, rec.BenefitTable)

	_, err = DecodePolicy([]byte(`[1,2]`))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = DecodePolicy([]byte(`{"benefitTable": 7}`))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
