// Package finance turns a parsed benefit schedule into payback, net cashflow and
// IRR trend figures. Everything here is pure: no I/O, no logging, no shared state.
package finance

// BenefitRow is one year of an illustration schedule.
type BenefitRow struct {
	Year           int      `json:"year"`
	CashValue      float64  `json:"cash_value"`
	SurrenderValue *float64 `json:"surrender,omitempty"` // carried through, unused by the engine
}

// PolicyRecord is the structured form of one illustration document.
// Zero values stand in for absent or null fields.
type PolicyRecord struct {
	ProductName      string       `json:"productName"`
	InsuredAmount    *float64     `json:"insuredAmount"`
	InsuredTerm      *string      `json:"insuredTerm"`
	FirstYearPremium float64      `json:"firstYearPremium"`
	PaymentYears     int          `json:"paymentYears"`
	BenefitTable     []BenefitRow `json:"benefitTable"`
}

// paidYears is the number of premium installments due by the end of year t.
// Negative payment terms are treated as no premium at all.
func (p PolicyRecord) paidYears(t int) int {
	n := min(t, p.PaymentYears)
	if n < 0 {
		return 0
	}
	return n
}

// CumulativePremium is the total premium paid by the end of year t.
func (p PolicyRecord) CumulativePremium(t int) float64 {
	return p.FirstYearPremium * float64(p.paidYears(t))
}

// TotalPremium is the premium paid over the whole payment term.
func (p PolicyRecord) TotalPremium() float64 {
	return p.CumulativePremium(p.PaymentYears)
}
