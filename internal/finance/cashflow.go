package finance

// ComputeCashflows returns the net cashflow for every benefit row (cash value minus
// cumulative premium, in table order) and the payback year: the year of the first
// row whose net cashflow is non-negative, or nil when no row gets there.
//
// The table is scanned as given; rows are not sorted by year.
func ComputeCashflows(p PolicyRecord) ([]float64, *int) {
	cashflows := make([]float64, 0, len(p.BenefitTable))
	var payback *int
	for _, row := range p.BenefitTable {
		cf := row.CashValue - p.CumulativePremium(row.Year)
		cashflows = append(cashflows, cf)
		if payback == nil && cf >= 0 {
			year := row.Year
			payback = &year
		}
	}
	return cashflows, payback
}
