package ocr

import (
	"regexp"
	"strings"
)

var (
	reYearCol  = regexp.MustCompile(`(保单年度|年度|policy year|year)`)
	reCashCol  = regexp.MustCompile(`(现金价值|退保|cash value|surrender)`)
	reCurrency = regexp.MustCompile(`(¥|￥|\$|hk\$|rmb|usd|hkd|元)`)
	reAmount   = regexp.MustCompile(`\b\d{1,3}(,\d{3})+(\.\d+)?\b|\b\d{4,}\b`)
)

// heuristicConfidence scores how much the text looks like a benefit illustration.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if reYearCol.MatchString(txtL) {
		score += 0.2
	}
	if reCashCol.MatchString(txtL) {
		score += 0.2
	}
	if reCurrency.MatchString(txtL) {
		score += 0.1
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 200 {
		score += 0.1
	}
	return min(score, 1)
}
