package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
)

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeCompleter) Name() string { return "fake" }

const chineseReply = "```json\n" + `{
  "产品名称": "XYZ终身寿",
  "保多少": "50万",
  "保多久": "终身",
  "首年交多少": "¥1,000",
  "交多久": "5年",
  "利益演示表": [
    {"year": 1, "cash_value": 500, "surrender": 500},
    {"year": "3", "cash_value": "3,200"},
    {"保单年度": 5, "现金价值": 5500},
    {"year": 10, "cash_value": 12000, "surrender": null}
  ],
  "备注": "ignored"
}` + "\n```"

func TestSchemaParser_ParsesChineseKeys(t *testing.T) {
	fc := &fakeCompleter{reply: chineseReply}
	p := NewSchemaParser(fc, ParserConfig{MaxInputChars: 100}, nil)

	rec, raw, err := p.ParsePolicy(context.Background(), ParseRequest{
		Text:      strings.Repeat("字", 500),
		TablesTSV: "1\t500",
		FileName:  "xyz.pdf",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "XYZ终身寿", rec.ProductName)
	require.NotNil(t, rec.InsuredAmount)
	assert.Equal(t, 500000.0, *rec.InsuredAmount)
	require.NotNil(t, rec.InsuredTerm)
	assert.Equal(t, "终身", *rec.InsuredTerm)
	assert.Equal(t, 1000.0, rec.FirstYearPremium)
	assert.Equal(t, 5, rec.PaymentYears)
	require.Len(t, rec.BenefitTable, 4)
	assert.Equal(t, finance.BenefitRow{Year: 3, CashValue: 3200}, rec.BenefitTable[1])
	assert.Equal(t, 5, rec.BenefitTable[2].Year)
	assert.Equal(t, 5500.0, rec.BenefitTable[2].CashValue)
	require.NotNil(t, rec.BenefitTable[0].SurrenderValue)
	assert.Nil(t, rec.BenefitTable[3].SurrenderValue)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, float32(0), req.Temperature)
	assert.Contains(t, req.User, "…(truncated)")
	assert.Contains(t, req.User, "Detected tables")
	assert.Contains(t, req.User, "利益演示表")
	assert.Contains(t, req.System, "JSON")
}

func TestSchemaParser_MissingFieldsDefaultToZero(t *testing.T) {
	fc := &fakeCompleter{reply: `{"productName": "Bare", "firstYearPremium": null}`}
	p := NewSchemaParser(fc, ParserConfig{}, nil)

	rec, _, err := p.ParsePolicy(context.Background(), ParseRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Bare", rec.ProductName)
	assert.Zero(t, rec.FirstYearPremium)
	assert.Zero(t, rec.PaymentYears)
	assert.NotNil(t, rec.BenefitTable)
	assert.Empty(t, rec.BenefitTable)
	assert.Nil(t, rec.InsuredAmount)
}

func TestSchemaParser_TableNotAList(t *testing.T) {
	fc := &fakeCompleter{reply: `{"利益演示表": "see page 3"}`}
	p := NewSchemaParser(fc, ParserConfig{}, nil)

	_, _, err := p.ParsePolicy(context.Background(), ParseRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedPolicy)
}

func TestSchemaParser_NotJSON(t *testing.T) {
	fc := &fakeCompleter{reply: "Sorry, I cannot read this document."}
	p := NewSchemaParser(fc, ParserConfig{}, nil)

	_, _, err := p.ParsePolicy(context.Background(), ParseRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedPolicy)
}

func TestSchemaParser_CompletionError(t *testing.T) {
	fc := &fakeCompleter{err: &StatusError{StatusCode: 503}}
	p := NewSchemaParser(fc, ParserConfig{}, nil)

	_, _, err := p.ParsePolicy(context.Background(), ParseRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)
}

func TestSchemaParser_NoProvider(t *testing.T) {
	p := NewSchemaParser(nil, ParserConfig{}, nil)

	_, _, err := p.ParsePolicy(context.Background(), ParseRequest{Text: "x"})
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		method string
		key    string
	}{
		{"strict", `{"a": 1}`, DecodeStrict, "a"},
		{"fenced", "```json\n{\"a\": 1}\n```", DecodeStrict, "a"},
		{"wrapped in prose", `Here you go: {"a": 1} hope it helps`, DecodeSlice, "a"},
		{"trailing comma", `{"a": 1, "b": [1, 2,],}`, DecodeRepair, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, method, err := DecodeLenient(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.method, method)
			assert.Contains(t, m, tt.key)
		})
	}

	_, _, err := DecodeLenient("   ")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestParseLooseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,000.50", 1000.5, true},
		{"¥5000", 5000, true},
		{"RMB 200", 200, true},
		{"10年", 10, true},
		{"50万", 500000, true},
		{"1.2亿", 120000000, true},
		{"null", 0, false},
		{"终身", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLooseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-6, tt.in)
		}
	}
}

func TestNormalizePolicyJSON_CanonicalKeyWins(t *testing.T) {
	out, dropped, err := NormalizePolicyJSON(map[string]any{
		"productName": "Canonical",
		"产品名称":        "Alias",
		"extra":       true,
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"productName":"Canonical"}`, string(out))
	assert.Contains(t, dropped, "extra(unknown)")
}

func TestNormalizePolicyJSON_AliasPriorityIsStable(t *testing.T) {
	in := map[string]any{
		"premium":        1,
		"首年交多少":          2,
		"annual_premium": 3,
		"benefitTable": []any{
			map[string]any{"年度": 9, "policy_year": 2, "现价": 7, "cashValue": 100},
		},
	}
	for i := 0; i < 50; i++ {
		out, _, err := NormalizePolicyJSON(in, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"firstYearPremium":2,"benefitTable":[{"year":2,"cash_value":100}]}`, string(out))
	}
}

func TestNarrator_CleansMarkdown(t *testing.T) {
	fc := &fakeCompleter{reply: "## 点评\n\n**回本较快**，适合稳健人群。\n\n- 长期持有\n- 不要提前退保"}
	n := NewNarrator(fc, NarratorConfig{Temperature: 0.7}, nil)

	out, err := n.Narrate(context.Background(), NarrativeRequest{ProductName: "XYZ", Payback: ptrInt(3)})
	require.NoError(t, err)
	assert.Equal(t, "点评\n回本较快，适合稳健人群。\n长期持有\n不要提前退保", out)
	require.Len(t, fc.requests, 1)
	assert.Equal(t, float32(0.7), fc.requests[0].Temperature)
	assert.Contains(t, fc.requests[0].User, "第3年回本")
	assert.Contains(t, fc.requests[0].User, "IRR约在未知~未知")
}

func TestNarrator_NilCompleterUsesTemplate(t *testing.T) {
	n := NewNarrator(nil, NarratorConfig{}, nil)
	lo, hi, g := 1.5, 4.2, 37.41

	out, err := n.Narrate(context.Background(), NarrativeRequest{
		ProductName: "XYZ", Payback: ptrInt(3), IRRMin: &lo, IRRMax: &hi, AvgAnnualGrowth: &g,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "“XYZ”第3年回本，IRR约在1.50%~4.20%，年均现金价值增长约37.41%。")
	assert.Contains(t, out, "长期储蓄")
}

func TestTemplateNarrative_NoPayback(t *testing.T) {
	out := TemplateNarrative(NarrativeRequest{})
	assert.Contains(t, out, "该产品")
	assert.Contains(t, out, "回本年份未知")
}

func TestBuildNarrativePrompt(t *testing.T) {
	lo, hi := 2.346, 3.1
	p := BuildNarrativePrompt(NarrativeRequest{ProductName: "A", Payback: ptrInt(7), IRRMin: &lo, IRRMax: &hi})
	assert.Contains(t, p, "请简短点评“A”：第7年回本，IRR约在2.35%~3.10%，年均现金价值增长约未知")
	assert.Contains(t, p, "Markdown")
}

func TestWithRetry(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 2, time.Millisecond, nil, func(int) error {
			calls++
			if calls < 3 {
				return &StatusError{StatusCode: http.StatusTooManyRequests}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
	t.Run("gives up after the budget", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 1, time.Millisecond, nil, func(int) error {
			calls++
			return &StatusError{StatusCode: http.StatusBadGateway}
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})
	t.Run("does not retry client errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), 3, time.Millisecond, nil, func(int) error {
			calls++
			return &StatusError{StatusCode: http.StatusUnauthorized}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
	t.Run("does not retry plain errors", func(t *testing.T) {
		calls := 0
		_ = WithRetry(context.Background(), 3, time.Millisecond, nil, func(int) error {
			calls++
			return errors.New("bad request shape")
		})
		assert.Equal(t, 1, calls)
	})
}

func TestMarkdownToPlain(t *testing.T) {
	assert.Equal(t, "", MarkdownToPlain("  "))
	assert.Equal(t, "plain text", MarkdownToPlain("plain text"))
	assert.Equal(t, "a b\nc", MarkdownToPlain("a\nb\n\nc"))
	assert.Equal(t, "code line", MarkdownToPlain("```\ncode line\n```"))
}

func ptrInt(v int) *int { return &v }
