package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/illustration-analyzer/internal/async"
	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/extract"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
	"github.com/joseph-ayodele/illustration-analyzer/internal/ingest"
	"github.com/joseph-ayodele/illustration-analyzer/internal/llm"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

const policyJSON = `{"productName":"XYZ","firstYearPremium":1000,"paymentYears":5,
"benefitTable":[{"year":1,"cash_value":500},{"year":3,"cash_value":3200},{"year":5,"cash_value":5500},{"year":10,"cash_value":12000}]}`

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("LOG_LEVEL", "error")
}

func runRoot(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	isolateEnv(t)
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestComputeCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "policy.json", policyJSON)

	out, _, err := runRoot(t, "", "compute", path)
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "XYZ", res.ProductName)
	assert.Equal(t, []float64{-500, 200, 500, 7000}, res.Cashflows)
	require.NotNil(t, res.ComputedPayback)
	assert.Equal(t, 3, *res.ComputedPayback)
	assert.Equal(t, 5000.0, res.TotalPremium)
	require.Len(t, res.IRRTrend, 4)
	assert.Nil(t, res.IRRTrend[0])
	assert.Nil(t, res.IRRTrend[1])
	assert.NotNil(t, res.IRRTrend[2])
}

func TestComputeCommandStdin(t *testing.T) {
	out, _, err := runRoot(t, policyJSON, "compute", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"computedPayback": 3`)
}

func TestComputeCommandRejectsBadPolicy(t *testing.T) {
	_, _, err := runRoot(t, "[1,2,3]", "compute", "-")
	require.Error(t, err)
	assert.Equal(t, common.CodeInvalidInput, common.CodeOf(err))
}

func TestExtractCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plan.txt", "Year\tCash Value\n1\t500\n3\t3200\n")

	out, errOut, err := runRoot(t, "", "extract", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3200")
	assert.Contains(t, errOut, "method=txt")
}

func TestExtractCommandJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plan.txt", "hello illustration")

	out, _, err := runRoot(t, "", "extract", "--json", path)
	require.NoError(t, err)
	var got extractOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "plan.txt", got.FileName)
	assert.Equal(t, "txt", got.Method)
	assert.Contains(t, got.Text, "hello illustration")
	assert.NotNil(t, got.Tables)
}

func TestAnalyzeWithoutProviderReportsParseFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", policyJSON)
	xlsx := filepath.Join(t.TempDir(), "out.xlsx")

	out, _, err := runRoot(t, "", "analyze", "--xlsx", xlsx, dir)
	require.NoError(t, err)

	var results []pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].FileName)
	assert.False(t, results[0].OK())
	assert.Equal(t, "parse", string(results[0].Stage))

	data, err := os.ReadFile(xlsx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestAnalyzeStrictFailsOnDocumentError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", policyJSON)

	_, _, err := runRoot(t, "", "analyze", "--strict", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 documents failed")
}

func TestAnalyzeNoSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.exe", "x")

	_, _, err := runRoot(t, "", "analyze", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported files")
}

func TestCollectDocumentsSkipsDuplicatesHiddenAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "same")
	writeFile(t, dir, "b.txt", "same")
	writeFile(t, dir, "c.txt", "different")
	writeFile(t, dir, "d.exe", "binary")
	writeFile(t, dir, ".hidden/e.txt", "hidden")

	app := testApp()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	docs, err := collectDocuments(cmd, app, []string{dir}, true)
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		names = append(names, d.Name)
		assert.Nil(t, d.Data)
		assert.NotEmpty(t, d.Path)
	}
	assert.Equal(t, []string{"a.txt", "c.txt"}, names)
}

type fileExtractor struct{}

func (fileExtractor) Extract(_ context.Context, path string) (extract.TextExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.TextExtractionResult{}, err
	}
	return extract.TextExtractionResult{Text: string(data), Method: "txt"}, nil
}

func (fileExtractor) ExtractBytes(_ context.Context, _ string, data []byte) (extract.TextExtractionResult, error) {
	return extract.TextExtractionResult{Text: string(data), Method: "txt"}, nil
}

type jsonParser struct{}

func (jsonParser) ParsePolicy(_ context.Context, req llm.ParseRequest) (finance.PolicyRecord, []byte, error) {
	rec, err := pipeline.DecodePolicy([]byte(req.Text))
	return rec, []byte(req.Text), err
}

func testApp() *App {
	return &App{
		Config: common.DefaultConfig(),
		Logger: common.NewSlogLogger(common.LogConfig{Level: "error"}, &bytes.Buffer{}),
	}
}

func TestAnalyzeToFileWritesResult(t *testing.T) {
	app := testApp()
	path := writeFile(t, t.TempDir(), "plan.txt", policyJSON)
	proc := pipeline.NewProcessor(app.Logger, fileExtractor{}, jsonParser{}, nil)
	ing := ingest.NewIngestor(app.Logger)

	handle := analyzeToFile(proc, ing, app)
	require.NoError(t, handle(context.Background(), async.Job{Path: path, SubmittedAt: time.Now()}))

	data, err := os.ReadFile(path + ResultSuffix)
	require.NoError(t, err)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.True(t, res.OK())
	assert.Equal(t, "plan.txt", res.FileName)
	require.NotNil(t, res.ComputedPayback)
	assert.Equal(t, 3, *res.ComputedPayback)
	assert.NotEmpty(t, res.Summary)
}

func TestAnalyzeToFileForgetsFailedDocuments(t *testing.T) {
	app := testApp()
	path := writeFile(t, t.TempDir(), "broken.txt", "not a policy")
	proc := pipeline.NewProcessor(app.Logger, fileExtractor{}, jsonParser{}, nil)
	ing := ingest.NewIngestor(app.Logger)

	first, err := ing.IngestPath(context.Background(), path)
	require.NoError(t, err)

	handle := analyzeToFile(proc, ing, app)
	require.NoError(t, handle(context.Background(), async.Job{Path: first.SourcePath, HashHex: first.HashHex}))

	data, err := os.ReadFile(first.SourcePath + ResultSuffix)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "FAILED"`)

	again, err := ing.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, again.Deduplicated)
}

type recordingQueue struct {
	jobs []async.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func TestEnqueuePathDeduplicates(t *testing.T) {
	app := testApp()
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "same")
	b := writeFile(t, dir, "b.txt", "same")
	ing := ingest.NewIngestor(app.Logger)
	q := &recordingQueue{}

	enqueuePath(context.Background(), q, ing, app, a)
	enqueuePath(context.Background(), q, ing, app, b)
	enqueuePath(context.Background(), q, ing, app, filepath.Join(dir, "x.exe"))

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "a.txt", filepath.Base(q.jobs[0].Path))
	assert.NotEmpty(t, q.jobs[0].TraceID)
	assert.NotEmpty(t, q.jobs[0].HashHex)
}

func TestEnqueuePathForgetsOnRejectedJob(t *testing.T) {
	app := testApp()
	a := writeFile(t, t.TempDir(), "a.txt", "content")
	ing := ingest.NewIngestor(app.Logger)

	enqueuePath(context.Background(), &recordingQueue{err: async.ErrQueueClosed}, ing, app, a)

	r, err := ing.IngestPath(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, r.Deduplicated)
}
