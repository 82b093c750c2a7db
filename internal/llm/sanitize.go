package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
)

// policyKeyAliases maps folded key spellings (lowercase, no '_', '-' or spaces)
// to canonical top-level keys. When several spellings of one key are present,
// the exact canonical key wins, then the earliest alias in the list.
var policyKeyAliases = aliasTable(map[string][]string{
	KeyProductName:      {"产品名称", "产品", "productName", "product", "name", "plan_name", "product_name"},
	KeyInsuredAmount:    {"保多少", "保额", "基本保额", "insuredAmount", "sum_assured", "sum_insured", "basic_sum_insured", "coverage_amount"},
	KeyInsuredTerm:      {"保多久", "保险期间", "保障期限", "insuredTerm", "coverage_term", "policy_term", "term"},
	KeyFirstYearPremium: {"首年交多少", "首年保费", "年交保费", "firstYearPremium", "annual_premium", "premium", "first_year_premium"},
	KeyPaymentYears:     {"交多久", "缴费年期", "交费期间", "缴费期间", "paymentYears", "payment_term", "premium_term", "pay_years", "payment_years"},
	KeyBenefitTable:     {"利益演示表", "利益演示", "benefitTable", "benefit_table", "benefits", "illustration", "cash_value_table"},
})

var rowKeyAliases = aliasTable(map[string][]string{
	KeyYear:      {"year", "policy_year", "保单年度", "年度", "年份", "第几年"},
	KeyCashValue: {"cash_value", "cashValue", "现金价值", "现价"},
	KeySurrender: {"surrender", "surrender_value", "surrenderValue", "退保金", "退保价值"},
})

var (
	reNumberNoise = regexp.MustCompile(`[,\s¥￥$元]|^(RMB|CNY|HKD|USD|HK\$)`)
	reUnitSuffix  = regexp.MustCompile(`(年|岁|周岁|years?|yrs?)$`)
)

type alias struct {
	canonical string
	rank      int // 0 is reserved for the exact canonical spelling
}

func aliasTable(m map[string][]string) map[string]alias {
	out := make(map[string]alias)
	for canonical, aliases := range m {
		for i, a := range append([]string{canonical}, aliases...) {
			f := foldKey(a)
			if prev, ok := out[f]; ok && prev.rank <= i+1 {
				continue
			}
			out[f] = alias{canonical: canonical, rank: i + 1}
		}
	}
	return out
}

// resolveKeys renames the keys of obj to their canonical form. Unknown keys are
// returned sorted. The result does not depend on map iteration order.
func resolveKeys(obj map[string]any, table map[string]alias) (map[string]any, []string) {
	type pick struct {
		rank int
		key  string
	}
	out := make(map[string]any, len(obj))
	picked := make(map[string]pick, len(obj))
	var unknown []string
	for k, v := range obj {
		a, ok := table[foldKey(k)]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		rank := a.rank
		if k == a.canonical {
			rank = 0
		}
		if cur, ok := picked[a.canonical]; ok && (cur.rank < rank || cur.rank == rank && cur.key < k) {
			continue
		}
		picked[a.canonical] = pick{rank: rank, key: k}
		out[a.canonical] = v
	}
	slices.Sort(unknown)
	return out, unknown
}

func foldKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

// NormalizePolicyJSON maps a decoded model response onto the canonical policy
// shape:
//   - renames Chinese and snake_case synonyms to canonical keys
//   - coerces numeric strings ("1,000", "¥5000", "10年", "50万") to numbers
//   - drops nulls so they default to zero downstream
//   - removes unknown keys
//
// A benefit table that is present but not an array is fatal (ErrMalformedPolicy).
func NormalizePolicyJSON(m map[string]any, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dropped := make([]string, 0, 4)
	out, unknown := resolveKeys(m, policyKeyAliases)
	for _, k := range unknown {
		dropped = append(dropped, k+"(unknown)")
	}

	for _, k := range []string{KeyFirstYearPremium, KeyInsuredAmount} {
		coerceField(out, k, false, &dropped)
	}
	coerceField(out, KeyPaymentYears, true, &dropped)

	if v, ok := out[KeyProductName]; ok {
		switch t := v.(type) {
		case nil:
			delete(out, KeyProductName)
		case string:
			out[KeyProductName] = strings.TrimSpace(t)
		default:
			out[KeyProductName] = fmt.Sprint(t)
		}
	}
	if v, ok := out[KeyInsuredTerm]; ok {
		switch t := v.(type) {
		case nil, string:
		case float64:
			out[KeyInsuredTerm] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			out[KeyInsuredTerm] = fmt.Sprint(t)
		}
	}

	if v, ok := out[KeyBenefitTable]; ok {
		switch t := v.(type) {
		case nil:
			delete(out, KeyBenefitTable)
		case []any:
			out[KeyBenefitTable] = normalizeRows(t, &dropped)
		default:
			return nil, dropped, common.NewAppError(common.CodeMalformedPolicy,
				fmt.Sprintf("benefit table is %T, not a list", v), common.ErrMalformedPolicy)
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("normalize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.parse.normalize_dropped", "dropped", dropped)
	}
	return b, dropped, nil
}

func normalizeRows(rows []any, dropped *[]string) []any {
	out := make([]any, 0, len(rows))
	for i, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			*dropped = append(*dropped, fmt.Sprintf("benefitTable[%d](type)", i))
			continue
		}
		row, _ := resolveKeys(obj, rowKeyAliases)
		coerceField(row, KeyYear, true, dropped)
		coerceField(row, KeyCashValue, false, dropped)
		coerceField(row, KeySurrender, false, dropped)
		out = append(out, row)
	}
	return out
}

// coerceField rewrites m[k] as a number, or deletes it when it is null or
// cannot be read as one.
func coerceField(m map[string]any, k string, integer bool, dropped *[]string) {
	v, ok := m[k]
	if !ok {
		return
	}
	f, ok := toNumber(v)
	if !ok {
		delete(m, k)
		if v != nil {
			*dropped = append(*dropped, k+"(not a number)")
		}
		return
	}
	if integer {
		m[k] = int64(math.Round(f))
		return
	}
	m[k] = f
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return parseLooseNumber(t)
	}
	return 0, false
}

// parseLooseNumber reads amounts the way illustrations print them.
func parseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}
	s = reNumberNoise.ReplaceAllString(s, "")
	s = reUnitSuffix.ReplaceAllString(s, "")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "万"):
		mult, s = 1e4, strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "亿"):
		mult, s = 1e8, strings.TrimSuffix(s, "亿")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f * mult, true
}
