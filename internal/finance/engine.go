package finance

// Metrics is the engine output for one policy.
type Metrics struct {
	Cashflows       []float64  `json:"cashflows"`
	ComputedPayback *int       `json:"computedPayback"`
	IRRTrend        []*float64 `json:"irrTrend"`
	TotalPremium    float64    `json:"totalPremium"`
	Stats           Summary    `json:"stats"`
}

// Analyze runs cashflows, payback, IRR trend and summary statistics for p.
func Analyze(p PolicyRecord) Metrics {
	cashflows, payback := ComputeCashflows(p)
	trend := ComputeTrend(p, payback)
	return Metrics{
		Cashflows:       cashflows,
		ComputedPayback: payback,
		IRRTrend:        trend,
		TotalPremium:    p.TotalPremium(),
		Stats:           SummaryStats(p, trend),
	}
}
