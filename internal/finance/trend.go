package finance

import (
	"math"
	"slices"
)

// IRRFlows builds the holding-period vector for one benefit row: one entry per
// year 1..t, premium outflows while premiums are due, zeros afterwards, with the
// row's cash value realized in the final year. Rows with year <= 0 yield nil.
//
// The vector is O(year) in size; the trend itself solves the same vector in
// closed form (see holding).
func IRRFlows(p PolicyRecord, row BenefitRow) []float64 {
	t := row.Year
	if t <= 0 {
		return nil
	}
	flows := make([]float64, t)
	paid := p.paidYears(t)
	for i := 0; i < paid; i++ {
		flows[i] = -p.FirstYearPremium
	}
	flows[t-1] += row.CashValue
	return flows
}

// RawTrend computes the IRR (percent, 6 dp) of every row independently. A row
// whose vector has no root is nil.
func RawTrend(p PolicyRecord) []*float64 {
	trend := make([]*float64, len(p.BenefitTable))
	for i, row := range p.BenefitTable {
		h, ok := newHolding(p, row)
		if !ok {
			continue
		}
		r, ok := h.IRR()
		if !ok {
			continue
		}
		pct := roundTo(r*100, 6)
		trend[i] = &pct
	}
	return trend
}

// PadBeforePayback hides the first payback-1 entries of trend. Nothing is hidden
// when payback is nil or non-positive. The input slice is not modified.
func PadBeforePayback(trend []*float64, payback *int) []*float64 {
	out := slices.Clone(trend)
	if payback == nil || *payback <= 0 {
		return out
	}
	n := min(*payback-1, len(out))
	for i := 0; i < n; i++ {
		out[i] = nil
	}
	return out
}

// ComputeTrend is RawTrend followed by PadBeforePayback.
func ComputeTrend(p PolicyRecord, payback *int) []*float64 {
	return PadBeforePayback(RawTrend(p), payback)
}

// holding is the IRRFlows vector of one row without materializing it: premium
// outflows in periods 0..paid-1 and the cash value in period years-1. NPV is a
// geometric sum plus one discounted term, so the cost does not grow with the
// year, however large the parsed value is.
type holding struct {
	premium float64
	paid    int
	years   int
	value   float64
}

func newHolding(p PolicyRecord, row BenefitRow) (holding, bool) {
	if row.Year <= 0 {
		return holding{}, false
	}
	return holding{
		premium: p.FirstYearPremium,
		paid:    p.paidYears(row.Year),
		years:   row.Year,
		value:   row.CashValue,
	}, true
}

// NPV equals NPV(IRRFlows(p, row), r).
func (h holding) NPV(r float64) float64 {
	l := math.Log1p(r)
	var sum float64
	if h.premium != 0 {
		sum -= h.premium * annuityFactor(h.paid, r, l)
	}
	if h.value != 0 {
		sum += h.value * math.Exp(-float64(h.years-1)*l)
	}
	return sum
}

// slope is a central difference of NPV; the step is relative to 1+r so it
// never crosses r = -1.
func (h holding) slope(r float64) float64 {
	step := 1e-6 * (1 + r)
	return (h.NPV(r+step) - h.NPV(r-step)) / (2 * step)
}

func (h holding) hasSignChange() bool {
	// the last period carries the cash value, minus a premium when one is still due
	outflows, last := h.paid, h.value
	if h.paid == h.years {
		outflows--
		last -= h.premium
	}
	neg := (outflows > 0 && h.premium > 0) || last < 0
	pos := (outflows > 0 && h.premium < 0) || last > 0
	return neg && pos
}

// IRR solves the row's vector like IRR(IRRFlows(p, row)).
func (h holding) IRR() (float64, bool) {
	if !h.hasSignChange() {
		return 0, false
	}
	return solveIRR(h.NPV, h.slope)
}

// annuityFactor is sum_{i=0}^{n-1} (1+r)^-i, with l = log1p(r).
func annuityFactor(n int, r, l float64) float64 {
	switch {
	case n <= 0:
		return 0
	case r == 0:
		return float64(n)
	}
	return -math.Expm1(-float64(n)*l) * (1 + r) / r
}
