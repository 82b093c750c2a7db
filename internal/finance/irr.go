package finance

import "math"

const (
	irrGuess        = 0.10
	irrTolerance    = 1e-10
	irrMaxIter      = 100
	bisectMaxIter   = 300
	irrLowerBound   = -0.9999
	irrScanUpperEnd = 10.0
)

// IRR solves NPV(flows, r) = 0 for r > -1 with period-1 compounding, where
// flows[0] is undiscounted. ok is false when the vector has no sign change
// (all zero included) or no root could be located.
//
// Newton-Raphson from 10% first; when it diverges or leaves the domain, the
// rate is bracketed on a coarse grid and bisected.
func IRR(flows []float64) (float64, bool) {
	if !hasSignChange(flows) {
		return 0, false
	}
	return solveIRR(
		func(r float64) float64 { return NPV(flows, r) },
		func(r float64) float64 { return npvDerivative(flows, r) },
	)
}

// solveIRR finds a root of npv on (-1, irrScanUpperEnd]. The result is always
// finite; a non-finite candidate counts as no root.
func solveIRR(npv, slope func(float64) float64) (float64, bool) {
	r, ok := newtonIRR(npv, slope, irrGuess)
	if !ok {
		lo, hi, found := bracketIRR(npv)
		if !found {
			return 0, false
		}
		r, ok = bisectIRR(npv, lo, hi)
	}
	if !ok || math.IsNaN(r) || math.IsInf(r, 0) || r <= -1 {
		return 0, false
	}
	return r, true
}

// NPV discounts flows at rate r; flows[i] is received at the end of period i.
func NPV(flows []float64, r float64) float64 {
	var sum float64
	df := 1.0
	for _, c := range flows {
		sum += c / df
		df *= 1 + r
	}
	return sum
}

func npvDerivative(flows []float64, r float64) float64 {
	var sum float64
	for i, c := range flows {
		if i == 0 {
			continue
		}
		sum -= float64(i) * c / math.Pow(1+r, float64(i+1))
	}
	return sum
}

func hasSignChange(flows []float64) bool {
	var pos, neg bool
	for _, c := range flows {
		switch {
		case c > 0:
			pos = true
		case c < 0:
			neg = true
		}
	}
	return pos && neg
}

func newtonIRR(npv, slope func(float64) float64, guess float64) (float64, bool) {
	r := guess
	for i := 0; i < irrMaxIter; i++ {
		f := npv(r)
		d := slope(r)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, false
		}
		next := r - f/d
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			return 0, false
		}
		if math.Abs(next-r) < irrTolerance {
			return next, true
		}
		r = next
	}
	return 0, false
}

// bracketIRR walks a grid of rates and returns the first adjacent pair whose
// NPVs straddle zero.
func bracketIRR(npv func(float64) float64) (float64, float64, bool) {
	grid := []float64{irrLowerBound, -0.99, -0.9, -0.75, -0.5, -0.25, -0.1, 0}
	for r := 0.05; r <= irrScanUpperEnd; r += 0.05 {
		grid = append(grid, r)
	}
	prev := grid[0]
	fPrev := npv(prev)
	for _, r := range grid[1:] {
		f := npv(r)
		if fPrev == 0 {
			return prev, prev, true
		}
		if !math.IsNaN(f) && !math.IsNaN(fPrev) && math.Signbit(f) != math.Signbit(fPrev) {
			return prev, r, true
		}
		prev, fPrev = r, f
	}
	if fPrev == 0 {
		return prev, prev, true
	}
	return 0, 0, false
}

func bisectIRR(npv func(float64) float64, lo, hi float64) (float64, bool) {
	if lo == hi {
		return lo, true
	}
	fLo := npv(lo)
	for i := 0; i < bisectMaxIter; i++ {
		mid := lo + (hi-lo)/2
		fMid := npv(mid)
		if fMid == 0 || (hi-lo)/2 < irrTolerance {
			return mid, true
		}
		if math.Signbit(fMid) == math.Signbit(fLo) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	return 0, false
}
