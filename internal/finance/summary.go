package finance

import (
	"math"

	"github.com/shopspring/decimal"
)

// Summary feeds the narrative stage. Nil means "not computable".
type Summary struct {
	AvgAnnualGrowth *float64 `json:"avgAnnualGrowth"`
	IRRMin          *float64 `json:"irrMin"`
	IRRMax          *float64 `json:"irrMax"`
}

// SummaryStats derives the cash value growth rate and the IRR range.
func SummaryStats(p PolicyRecord, trend []*float64) Summary {
	s := Summary{AvgAnnualGrowth: AverageAnnualGrowth(p.BenefitTable)}
	for _, v := range trend {
		if v == nil {
			continue
		}
		if s.IRRMin == nil || *v < *s.IRRMin {
			s.IRRMin = ptr(*v)
		}
		if s.IRRMax == nil || *v > *s.IRRMax {
			s.IRRMax = ptr(*v)
		}
	}
	return s
}

// AverageAnnualGrowth is the compound growth of cash value from the first row to
// the last, annualized over the last row's year, in percent (2 dp).
func AverageAnnualGrowth(table []BenefitRow) *float64 {
	if len(table) < 2 {
		return nil
	}
	first, last := table[0], table[len(table)-1]
	if first.CashValue == 0 || last.Year == 0 {
		return nil
	}
	g := math.Pow(last.CashValue/first.CashValue, 1/float64(last.Year))
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return nil
	}
	return ptr(roundTo((g-1)*100, 2))
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func ptr[T any](v T) *T { return &v }
