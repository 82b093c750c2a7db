package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

const (
	comparisonSheet = "Comparison"
	maxSheetName    = 31
)

// Service renders analysis results as an XLSX workbook.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportComparisonXLSX returns a workbook with a "Comparison" sheet (one row
// per document, failed ones included) followed by one schedule sheet per
// successfully analyzed document.
func (s *Service) ExportComparisonXLSX(ctx context.Context, results []pipeline.Result) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), comparisonSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	f.SetActiveSheet(0)

	headers := []string{
		"File",
		"Product",
		"Insured Amount",
		"Insured Term",
		"First-Year Premium",
		"Payment Years",
		"Total Premium",
		"Payback Year",
		"IRR Min %",
		"IRR Max %",
		"Avg Annual Growth %",
		"Status",
		"Error",
	}
	writeRow(f, comparisonSheet, 1, toAny(headers))
	boldHeader(f, comparisonSheet, len(headers))

	used := map[string]bool{strings.ToLower(comparisonSheet): true}
	sheets := 0
	for i, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		writeRow(f, comparisonSheet, i+2, []any{
			r.FileName,
			r.ProductName,
			deref(r.InsuredAmount),
			deref(r.InsuredTerm),
			r.FirstYearPremium,
			r.PaymentYears,
			r.TotalPremium,
			deref(r.ComputedPayback),
			deref(r.Stats.IRRMin),
			deref(r.Stats.IRRMax),
			deref(r.Stats.AvgAnnualGrowth),
			string(r.Status),
			truncate(r.Error, 200),
		})
		if !r.OK() {
			continue
		}
		name := uniqueSheetName(sheetBaseName(r), used)
		if err := s.writeSchedule(f, name, r); err != nil {
			return nil, err
		}
		sheets++
	}

	_ = f.SetColWidth(comparisonSheet, "A", "B", 28)
	_ = f.SetColWidth(comparisonSheet, "C", "K", 16)
	_ = f.SetColWidth(comparisonSheet, "M", "M", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"documents", len(results),
		"schedule_sheets", sheets,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeSchedule(f *excelize.File, sheet string, r pipeline.Result) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet %q: %w", sheet, err)
	}
	headers := []string{"Year", "Cash Value", "Surrender Value", "Cumulative Premium", "Net Cashflow", "IRR %"}
	writeRow(f, sheet, 1, toAny(headers))
	boldHeader(f, sheet, len(headers))

	p := r.Policy()
	for i, row := range r.BenefitTable {
		vals := []any{row.Year, row.CashValue, deref(row.SurrenderValue), p.CumulativePremium(row.Year), nil, nil}
		if i < len(r.Cashflows) {
			vals[4] = r.Cashflows[i]
		}
		if i < len(r.IRRTrend) {
			vals[5] = deref(r.IRRTrend[i])
		}
		writeRow(f, sheet, i+2, vals)
	}
	_ = f.SetColWidth(sheet, "A", "F", 18)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) {
	for col, v := range vals {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func boldHeader(f *excelize.File, sheet string, cols int) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(cols, 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
}

var sheetNameReplacer = strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")", "'", "")

func sheetBaseName(r pipeline.Result) string {
	name := strings.TrimSpace(r.ProductName)
	if name == "" {
		name = strings.TrimSpace(r.FileName)
	}
	if name == "" {
		name = "Document"
	}
	return strings.TrimSpace(sheetNameReplacer.Replace(name))
}

// uniqueSheetName trims name to the sheet-name limit and appends " (n)" until
// it no longer collides (sheet names compare case-insensitively).
func uniqueSheetName(name string, used map[string]bool) string {
	candidate := truncateRunes(name, maxSheetName)
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return truncateRunes(s, n-1) + "…"
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
