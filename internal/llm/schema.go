package llm

// Canonical keys of the policy document after normalization.
const (
	KeyProductName      = "productName"
	KeyInsuredAmount    = "insuredAmount"
	KeyInsuredTerm      = "insuredTerm"
	KeyFirstYearPremium = "firstYearPremium"
	KeyPaymentYears     = "paymentYears"
	KeyBenefitTable     = "benefitTable"

	KeyYear      = "year"
	KeyCashValue = "cash_value"
	KeySurrender = "surrender"
)

// BuildPolicyJSONSchema returns the JSON-Schema the normalized parser output must
// satisfy. Every field is optional: absent numbers mean zero downstream.
func BuildPolicyJSONSchema() map[string]any {
	row := map[string]any{
		"type": "object",
		"properties": map[string]any{
			KeyYear:      map[string]any{"type": "integer"},
			KeyCashValue: map[string]any{"type": "number"},
			KeySurrender: map[string]any{"type": "number"},
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			KeyProductName:      map[string]any{"type": "string"},
			KeyInsuredAmount:    map[string]any{"type": []any{"number", "null"}},
			KeyInsuredTerm:      map[string]any{"type": []any{"string", "null"}},
			KeyFirstYearPremium: map[string]any{"type": "number"},
			KeyPaymentYears:     map[string]any{"type": "integer"},
			KeyBenefitTable:     map[string]any{"type": "array", "items": row},
		},
	}
}

// promptSchema is the example shape shown to the model. It keeps the Chinese
// field names illustrations are written with.
var promptSchema = map[string]any{
	"产品名称":  "string",
	"保多少":   "number",
	"保多久":   "string",
	"首年交多少": "number",
	"交多久":   "integer",
	"利益演示表": []any{map[string]any{"year": "integer", "cash_value": "number", "surrender": "number"}},
}
