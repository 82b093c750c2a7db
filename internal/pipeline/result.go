package pipeline

import (
	"github.com/joseph-ayodele/illustration-analyzer/constants"
	"github.com/joseph-ayodele/illustration-analyzer/internal/finance"
)

// Document is one uploaded or discovered illustration. When Data is nil the
// file at Path is read by the extractor.
type Document struct {
	Name string
	Data []byte
	Path string
}

// Result is the per-document analysis returned by the API, the CLI and the
// watcher. Failed documents keep whatever was computed before the failing stage.
type Result struct {
	DocumentID string                   `json:"documentId"`
	FileName   string                   `json:"fileName"`
	Status     constants.DocumentStatus `json:"status"`
	Stage      constants.Stage          `json:"stage,omitempty"`
	ErrorCode  string                   `json:"errorCode,omitempty"`
	Error      string                   `json:"error,omitempty"`

	ProductName      string               `json:"productName"`
	InsuredAmount    *float64             `json:"insuredAmount"`
	InsuredTerm      *string              `json:"insuredTerm"`
	FirstYearPremium float64              `json:"firstYearPremium"`
	PaymentYears     int                  `json:"paymentYears"`
	BenefitTable     []finance.BenefitRow `json:"benefitTable"`

	Cashflows       []float64       `json:"cashflows"`
	ComputedPayback *int            `json:"computedPayback"`
	IRRTrend        []*float64      `json:"irrTrend"`
	TotalPremium    float64         `json:"totalPremium"`
	Stats           finance.Summary `json:"stats"`
	Summary         string          `json:"summary"`

	ExtractionMethod string   `json:"extractionMethod,omitempty"`
	Pages            int      `json:"pages,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// OK reports whether every mandatory stage succeeded.
func (r Result) OK() bool { return r.Status == constants.DocumentStatusOK }

// Policy rebuilds the parsed record carried by r.
func (r Result) Policy() finance.PolicyRecord {
	return finance.PolicyRecord{
		ProductName:      r.ProductName,
		InsuredAmount:    r.InsuredAmount,
		InsuredTerm:      r.InsuredTerm,
		FirstYearPremium: r.FirstYearPremium,
		PaymentYears:     r.PaymentYears,
		BenefitTable:     r.BenefitTable,
	}
}

func (r *Result) setPolicy(p finance.PolicyRecord) {
	r.ProductName = p.ProductName
	r.InsuredAmount = p.InsuredAmount
	r.InsuredTerm = p.InsuredTerm
	r.FirstYearPremium = p.FirstYearPremium
	r.PaymentYears = p.PaymentYears
	r.BenefitTable = p.BenefitTable
}

func (r *Result) setMetrics(m finance.Metrics) {
	r.Cashflows = m.Cashflows
	r.ComputedPayback = m.ComputedPayback
	r.IRRTrend = m.IRRTrend
	r.TotalPremium = m.TotalPremium
	r.Stats = m.Stats
}
