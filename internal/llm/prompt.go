package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const unknownValue = "未知"

// BuildParseSystemPrompt is the instruction half of the parse call.
func BuildParseSystemPrompt() string {
	parts := []string{
		"You extract structured data from life insurance benefit illustrations.",
		"请严格只输出 JSON 格式，不要添加解释或 Markdown。",
		"Use plain numbers for amounts (no currency symbols or thousands separators).",
		"利益演示表 must list every policy year shown, in the order printed, using the guaranteed cash value.",
		"If a field is not present, use null.",
	}
	return strings.Join(parts, "\n")
}

// BuildParseUserPrompt packages the document text (truncated to maxChars runes),
// any detected tables and the target schema.
func BuildParseUserPrompt(req ParseRequest, maxChars int) string {
	var b strings.Builder
	if name := strings.TrimSpace(req.FileName); name != "" {
		b.WriteString("Filename: ")
		b.WriteString(name)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(req.Text)
	if maxChars > 0 {
		if cut, truncated := truncateRunes(text, maxChars); truncated {
			text = cut + "\n…(truncated)"
		}
	}
	b.WriteString(text)
	if tsv := strings.TrimSpace(req.TablesTSV); tsv != "" {
		b.WriteString("\n\nDetected tables (tab separated):\n")
		b.WriteString(tsv)
	}
	b.WriteString("\n\n按照下面 schema 输出纯 JSON：\n")
	schema, _ := json.Marshal(promptSchema)
	b.Write(schema)
	return b.String()
}

// BuildNarrativePrompt asks for a short plain-text review of the figures.
// Missing figures are spelled out as unknown rather than omitted.
func BuildNarrativePrompt(req NarrativeRequest) string {
	return fmt.Sprintf(
		"请简短点评“%s”：%s，IRR约在%s~%s，年均现金价值增长约%s；给出适合人群建议。"+
			"内容要针对现在普通人选购保险产品时的痛点，不要使用任何**或其他 Markdown 标记。",
		req.ProductName,
		paybackPhrase(req.Payback),
		percentOrUnknown(req.IRRMin),
		percentOrUnknown(req.IRRMax),
		percentOrUnknown(req.AvgAnnualGrowth),
	)
}

func paybackPhrase(p *int) string {
	if p == nil {
		return "回本年份" + unknownValue
	}
	return fmt.Sprintf("第%d年回本", *p)
}

func percentOrUnknown(v *float64) string {
	if v == nil {
		return unknownValue
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func truncateRunes(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
